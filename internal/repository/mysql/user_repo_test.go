package mysql_test

import (
	"context"
	"testing"
	"time"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/repository/mysql"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/testutil"
)

func TestUserSearch_ExcludesSelfAndInactive(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := mysql.NewUserRepository(db)
	ctx := context.Background()

	me := testutil.CreateUser(t, db, "Jordan", user.RoleMentee)
	match := testutil.CreateUser(t, db, "Jordana", user.RoleMentor)
	other := testutil.CreateUser(t, db, "Casey", user.RoleMentee)
	inactive := testutil.CreateUser(t, db, "Jordy", user.RoleMentee)
	if err := db.Model(&user.User{}).Where("id = ?", inactive.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	list, err := repo.Search(ctx, me.ID, "JORD", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(list) != 1 || list[0].ID != match.ID {
		t.Fatalf("expected only %d, got %+v", match.ID, list)
	}

	all, err := repo.Search(ctx, me.ID, "", 10)
	if err != nil {
		t.Fatalf("search all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 active users besides self, got %d", len(all))
	}
	for _, u := range all {
		if u.ID == me.ID || u.ID == inactive.ID {
			t.Fatalf("unexpected user %d in browse list", u.ID)
		}
	}
	_ = other
}

func TestUserSearch_EscapesWildcards(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := mysql.NewUserRepository(db)
	me := testutil.CreateUser(t, db, "me", user.RoleMentee)
	testutil.CreateUser(t, db, "plain", user.RoleMentee)

	list, err := repo.Search(context.Background(), me.ID, "%", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected %% to be matched literally, got %d users", len(list))
	}
}

func TestUserBlock_Idempotency(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := mysql.NewUserRepository(db)
	ctx := context.Background()
	a := testutil.CreateUser(t, db, "alice", user.RoleMentee)
	b := testutil.CreateUser(t, db, "bob", user.RoleMentee)

	if ok, err := repo.Block(ctx, a.ID, b.ID); err != nil || !ok {
		t.Fatalf("block: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Block(ctx, a.ID, b.ID); err != nil || ok {
		t.Fatalf("second block: ok=%v err=%v", ok, err)
	}
	blocked, err := repo.IsBlocked(ctx, a.ID, b.ID)
	if err != nil || !blocked {
		t.Fatalf("is blocked: %v %v", blocked, err)
	}
	if blocked, _ := repo.IsBlocked(ctx, b.ID, a.ID); blocked {
		t.Fatal("block must be directional")
	}
	list, err := repo.ListBlocked(ctx, a.ID)
	if err != nil || len(list) != 1 || list[0].ID != b.ID {
		t.Fatalf("list blocked: %+v %v", list, err)
	}
	if ok, err := repo.Unblock(ctx, a.ID, b.ID); err != nil || !ok {
		t.Fatalf("unblock: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Unblock(ctx, a.ID, b.ID); err != nil || ok {
		t.Fatalf("second unblock: ok=%v err=%v", ok, err)
	}
}

func TestUserResetPresence_ClearsOnlineFlags(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := mysql.NewUserRepository(db)
	ctx := context.Background()

	a := testutil.CreateUser(t, db, "a", user.RoleMentee)
	b := testutil.CreateUser(t, db, "b", user.RoleMentor)
	c := testutil.CreateUser(t, db, "c", user.RoleMentee)
	now := time.Now()
	for _, id := range []int64{a.ID, b.ID} {
		if err := repo.SetPresence(ctx, id, true, now.Add(-time.Hour)); err != nil {
			t.Fatalf("set presence: %v", err)
		}
	}

	n, err := repo.ResetPresence(ctx, now)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 users reset, got %d", n)
	}
	for _, id := range []int64{a.ID, b.ID, c.ID} {
		u, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		if u.IsOnline {
			t.Fatalf("user %d still online", id)
		}
	}
	got, _ := repo.GetByID(ctx, a.ID)
	if got.LastSeenOnline == nil || got.LastSeenOnline.Before(now.Add(-time.Second)) {
		t.Fatalf("expected lastSeenOnline to move to reset time, got %v", got.LastSeenOnline)
	}
	got, _ = repo.GetByID(ctx, c.ID)
	if got.LastSeenOnline != nil {
		t.Fatalf("offline user must be left untouched, got %v", got.LastSeenOnline)
	}

	if n, err := repo.ResetPresence(ctx, now); err != nil || n != 0 {
		t.Fatalf("second reset: n=%d err=%v", n, err)
	}
}
