package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// ErrDuplicateConnection 同一个连接 ID 重复注册
var ErrDuplicateConnection = errors.New("connection already registered")

// Session 一条已建立的双向连接，由传输层实现
type Session interface {
	ID() string
	Emit(event string, body []byte) error
	Close()
}

// ConnectionContext 鉴权通过后绑定到连接上的身份，创建后不可修改，显式传给每个事件处理函数
type ConnectionContext struct {
	ConnID string
	UserID int64
	Role   string
}

// Presence 在线状态变更，由 service.PresenceService 实现
type Presence interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
}

type connEntry struct {
	session  Session
	cc       ConnectionContext
	rooms    []string
	lastSeen atomic.Int64
}

// presenceSeq 记录每个用户最新一次状态变更的序号，过期的变更直接丢弃
type presenceSeq struct {
	mu     sync.Mutex
	latest uint64
}

// Hub 维护连接与房间的映射并负责在线状态扇出，实现 service.Broadcaster。
// 投递只面向当前加入房间的连接，没有离线队列。
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*connEntry
	rooms     map[string]map[string]*connEntry
	userConns map[int64]int
	seqs      map[int64]*presenceSeq

	presence    Presence
	monitor     *service.Monitor
	idleTimeout time.Duration
	wg          sync.WaitGroup
}

// NewHub 创建 Hub，presence 可以稍后通过 SetPresence 注入（它本身依赖 Hub 作为 Broadcaster）
func NewHub(monitor *service.Monitor, idleTimeout time.Duration) *Hub {
	if monitor == nil {
		monitor = service.NewMonitor(nil)
	}
	return &Hub{
		conns:       make(map[string]*connEntry),
		rooms:       make(map[string]map[string]*connEntry),
		userConns:   make(map[int64]int),
		seqs:        make(map[int64]*presenceSeq),
		monitor:     monitor,
		idleTimeout: idleTimeout,
	}
}

// SetPresence 注入在线状态服务
func (h *Hub) SetPresence(p Presence) {
	h.presence = p
}

// Register 把已鉴权的连接加入 user-{id} 与 group-{g} 房间；用户的第一条连接触发上线
func (h *Hub) Register(cc ConnectionContext, s Session, groupIDs []int64) error {
	rooms := make([]string, 0, len(groupIDs)+1)
	rooms = append(rooms, service.UserRoom(cc.UserID))
	for _, g := range groupIDs {
		rooms = append(rooms, service.GroupRoom(g))
	}
	e := &connEntry{session: s, cc: cc, rooms: rooms}
	e.lastSeen.Store(time.Now().UnixNano())

	h.mu.Lock()
	if _, ok := h.conns[cc.ConnID]; ok {
		h.mu.Unlock()
		return ErrDuplicateConnection
	}
	h.conns[cc.ConnID] = e
	for _, r := range rooms {
		members, ok := h.rooms[r]
		if !ok {
			members = make(map[string]*connEntry)
			h.rooms[r] = members
		}
		members[cc.ConnID] = e
	}
	h.userConns[cc.UserID]++
	first := h.userConns[cc.UserID] == 1
	h.mu.Unlock()

	h.monitor.Connections.Inc()
	if first {
		h.monitor.OnlineUsers.Inc()
		h.dispatchPresence(cc.UserID, true)
	}
	return nil
}

// Unregister 移除连接；用户的最后一条连接断开时触发下线。重复调用是空操作
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	e, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	for _, r := range e.rooms {
		if members, ok := h.rooms[r]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(h.rooms, r)
			}
		}
	}
	h.userConns[e.cc.UserID]--
	last := h.userConns[e.cc.UserID] <= 0
	if last {
		delete(h.userConns, e.cc.UserID)
	}
	h.mu.Unlock()

	h.monitor.Connections.Dec()
	if last {
		h.monitor.OnlineUsers.Dec()
		h.dispatchPresence(e.cc.UserID, false)
	}
}

// Touch 刷新连接活跃时间
func (h *Hub) Touch(connID string) {
	h.mu.RLock()
	e, ok := h.conns[connID]
	h.mu.RUnlock()
	if ok {
		e.lastSeen.Store(time.Now().UnixNano())
	}
}

// AnnouncePresence 客户端显式上报 user:online / user:offline
func (h *Hub) AnnouncePresence(userID int64, online bool) {
	h.dispatchPresence(userID, online)
}

// EmitToRoom 向房间内所有连接推送事件，payload 只序列化一次
func (h *Hub) EmitToRoom(room, event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("marshal realtime payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]Session, 0, len(members))
	for _, e := range members {
		targets = append(targets, e.session)
	}
	h.mu.RUnlock()

	h.monitor.Broadcasts.Inc()
	for _, s := range targets {
		if err := s.Emit(event, body); err != nil {
			zap.L().Debug("emit to session failed",
				zap.String("conn_id", s.ID()),
				zap.String("room", room),
				zap.String("event", event),
				zap.Error(err))
		}
	}
}

// EmitToRoomExcept 同 EmitToRoom，但跳过 exceptConnID 这条连接
func (h *Hub) EmitToRoomExcept(room, exceptConnID, event string, payload interface{}) {
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]Session, 0, len(members))
	for id, e := range members {
		if id != exceptConnID {
			targets = append(targets, e.session)
		}
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("marshal realtime payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.monitor.Broadcasts.Inc()
	for _, s := range targets {
		if err := s.Emit(event, body); err != nil {
			zap.L().Debug("emit to session failed",
				zap.String("conn_id", s.ID()),
				zap.String("room", room),
				zap.String("event", event),
				zap.Error(err))
		}
	}
}

// EmitToConn 只发给某一条连接（发送回执、错误）
func (h *Hub) EmitToConn(connID, event string, payload interface{}) {
	h.mu.RLock()
	e, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		zap.L().Error("marshal realtime payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := e.session.Emit(event, body); err != nil {
		zap.L().Debug("emit to session failed", zap.String("conn_id", connID), zap.String("event", event), zap.Error(err))
	}
}

// RoomsOf 连接当前所在房间
func (h *Hub) RoomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.conns[connID]
	if !ok {
		return nil
	}
	return append([]string(nil), e.rooms...)
}

// ConnectionCount 用户当前连接数
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.userConns[userID]
}

// UserSnapshot 管理端查看某用户的连接与房间
type UserSnapshot struct {
	UserID      int64    `json:"userId"`
	Connections int      `json:"connections"`
	Rooms       []string `json:"rooms"`
}

func (h *Hub) Snapshot(userID int64) UserSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range h.conns {
		if e.cc.UserID != userID {
			continue
		}
		for _, r := range e.rooms {
			seen[r] = struct{}{}
		}
	}
	rooms := make([]string, 0, len(seen))
	for r := range seen {
		rooms = append(rooms, r)
	}
	sort.Strings(rooms)
	return UserSnapshot{UserID: userID, Connections: h.userConns[userID], Rooms: rooms}
}

// Run 定期关闭空闲连接，直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	if h.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	interval := h.idleTimeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			h.CloseIdle(now)
		}
	}
}

// CloseIdle 关闭在 now 之前 idleTimeout 内没有任何活动的连接，返回关闭数量
func (h *Hub) CloseIdle(now time.Time) int {
	if h.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-h.idleTimeout).UnixNano()
	var idle []*connEntry
	h.mu.RLock()
	for _, e := range h.conns {
		if e.lastSeen.Load() < cutoff {
			idle = append(idle, e)
		}
	}
	h.mu.RUnlock()

	for _, e := range idle {
		zap.L().Info("closing idle connection", zap.String("conn_id", e.cc.ConnID), zap.Int64("user_id", e.cc.UserID))
		e.session.Close()
		h.Unregister(e.cc.ConnID)
	}
	return len(idle)
}

// CloseAll 进程退出前关闭全部连接，逐个走 Unregister 使下线状态落库并通知联系人，
// 返回前等待所有扇出完成
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	all := make([]*connEntry, 0, len(h.conns))
	for _, e := range h.conns {
		all = append(all, e)
	}
	h.mu.RUnlock()

	for _, e := range all {
		e.session.Close()
		h.Unregister(e.cc.ConnID)
	}
	h.Wait()
	if len(all) > 0 {
		zap.L().Info("closed all realtime connections", zap.Int("connections", len(all)))
	}
	return len(all)
}

// Wait 等待所有在途的在线状态扇出完成
func (h *Hub) Wait() {
	h.wg.Wait()
}

// dispatchPresence 在独立 goroutine 中执行状态变更与扇出，不阻塞连接自身的事件循环。
// 同一用户的变更串行执行，被后续变更覆盖的旧变更直接跳过。
func (h *Hub) dispatchPresence(userID int64, online bool) {
	if h.presence == nil {
		return
	}
	h.mu.Lock()
	st, ok := h.seqs[userID]
	if !ok {
		st = &presenceSeq{}
		h.seqs[userID] = st
	}
	st.latest++
	seq := st.latest
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		st.mu.Lock()
		defer st.mu.Unlock()

		h.mu.RLock()
		stale := st.latest != seq
		h.mu.RUnlock()
		if stale {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var err error
		if online {
			err = h.presence.SetOnline(ctx, userID)
		} else {
			err = h.presence.SetOffline(ctx, userID)
		}
		if err != nil {
			h.monitor.PresenceErrors.Inc()
			zap.L().Error("presence transition failed", zap.Int64("user_id", userID), zap.Bool("online", online), zap.Error(err))
		}
		if !online {
			h.pruneSeq(userID, st, seq)
		}
	}()
}

// pruneSeq 用户已完全下线且没有更新的变更在途时，删除其序号记录
func (h *Hub) pruneSeq(userID int64, st *presenceSeq, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seqs[userID] == st && st.latest == seq && h.userConns[userID] == 0 {
		delete(h.seqs, userID)
	}
}
