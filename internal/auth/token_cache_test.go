package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	radix "github.com/mediocregopher/radix/v3"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/config"
)

// stubRedis 用 radix.Stub 模拟 GET/SETEX/DEL
func stubRedis() (radix.Conn, map[string]string) {
	var mu sync.Mutex
	store := make(map[string]string)
	conn := radix.Stub("tcp", "127.0.0.1:6379", func(args []string) interface{} {
		mu.Lock()
		defer mu.Unlock()
		switch strings.ToUpper(args[0]) {
		case "GET":
			if v, ok := store[args[1]]; ok {
				return v
			}
			return nil
		case "SETEX":
			store[args[1]] = args[3]
			return "OK"
		case "DEL":
			if _, ok := store[args[1]]; ok {
				delete(store, args[1])
				return 1
			}
			return 0
		}
		return errors.New("ERR unknown command " + args[0])
	})
	return conn, store
}

func TestTokenCache_SetGetInvalidate(t *testing.T) {
	conn, store := stubRedis()
	cache := NewTokenCache(conn, NewConsistentHashRing([]string{"n1", "n2"}, 10), time.Minute)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "tok"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	exp := time.Now().Add(time.Hour)
	claims := &Claims{UserID: 5, Role: "MENTEE"}
	claims.ExpiresAt = jwtDate(exp)
	if err := cache.Set(ctx, "tok", claims); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(store) != 1 {
		t.Fatalf("expected one cached entry, got %d", len(store))
	}
	for k, v := range store {
		if strings.Contains(k, "tok") || strings.Contains(v, "tok") {
			t.Fatal("raw token must not be stored")
		}
	}

	got, ok, err := cache.Get(ctx, "tok")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.UserID != 5 || got.Role != "MENTEE" || got.ExpiresAt.Unix() != exp.Unix() {
		t.Fatalf("unexpected cached claims %+v", got)
	}

	if err := cache.Invalidate(ctx, "tok"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := cache.Get(ctx, "tok"); ok {
		t.Fatal("expected miss after invalidate")
	}
}

func TestTokenCache_SkipsAlmostExpired(t *testing.T) {
	conn, store := stubRedis()
	cache := NewTokenCache(conn, nil, time.Minute)
	claims := &Claims{UserID: 5}
	claims.ExpiresAt = jwtDate(time.Now().Add(500 * time.Millisecond))
	if err := cache.Set(context.Background(), "tok", claims); err != nil {
		t.Fatalf("set: %v", err)
	}
	if len(store) != 0 {
		t.Fatal("tokens about to expire must not be cached")
	}
}

func TestVerifier_UsesCache(t *testing.T) {
	conn, _ := stubRedis()
	cache := NewTokenCache(conn, nil, time.Minute)
	ctx := context.Background()

	token, _ := GenerateToken(testJWT, 11, "", "MENTOR", time.Hour)
	if _, err := NewVerifier(testJWT, cache).Verify(ctx, token); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// 换了密钥的校验器仍能命中缓存
	other := NewVerifier(&config.JWTConfig{Secret: "rotated"}, cache)
	claims, err := other.Verify(ctx, token)
	if err != nil {
		t.Fatalf("expected cache hit, got %v", err)
	}
	if claims.UserID != 11 {
		t.Fatalf("unexpected user %d", claims.UserID)
	}

	if err := other.Evict(ctx, "Bearer "+token); err != nil {
		t.Fatalf("evict: %v", err)
	}
	if _, err := other.Verify(ctx, token); err == nil {
		t.Fatal("expected verification to fail once the cache entry is gone")
	}
}

func TestVerifier_EvictWithoutCache(t *testing.T) {
	v := NewVerifier(testJWT, nil)
	if err := v.Evict(context.Background(), "anything"); err != nil {
		t.Fatalf("evict without cache should be a no-op, got %v", err)
	}
	if err := v.Evict(context.Background(), "Bearer "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}
