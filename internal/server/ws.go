package server

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/realtime"
)

var errSessionClosed = errors.New("websocket session closed")

// wsSession 把 neffos 的命名空间连接适配为 realtime.Session
type wsSession struct {
	ns *websocket.NSConn
	mu sync.Mutex
}

func (s *wsSession) ID() string {
	return s.ns.Conn.ID()
}

func (s *wsSession) Emit(event string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ns.Emit(event, body) {
		return errSessionClosed
	}
	return nil
}

func (s *wsSession) Close() {
	s.ns.Conn.Close()
}

// wsAdapter 连接生命周期：握手鉴权 -> 加入命名空间后注册到 Hub -> 断开时注销
type wsAdapter struct {
	app *App

	mu     sync.RWMutex
	authed map[string]realtime.ConnectionContext
}

func (w *wsAdapter) lookup(connID string) (realtime.ConnectionContext, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cc, ok := w.authed[connID]
	return cc, ok
}

func (w *wsAdapter) onConnect(c *websocket.Conn) error {
	r := c.Socket().Request()
	token := r.URL.Query().Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	claims, err := w.app.Verifier.Verify(r.Context(), token)
	if err != nil {
		zap.L().Info("websocket handshake rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return errors.New("unauthorized")
	}
	w.mu.Lock()
	w.authed[c.ID()] = realtime.ConnectionContext{ConnID: c.ID(), UserID: claims.UserID, Role: claims.Role}
	w.mu.Unlock()
	return nil
}

func (w *wsAdapter) onDisconnect(c *websocket.Conn) {
	w.mu.Lock()
	delete(w.authed, c.ID())
	w.mu.Unlock()
	w.app.Hub.Unregister(c.ID())
	w.app.Gateway.Forget(c.ID())
}

func (w *wsAdapter) onNamespaceConnected(ns *websocket.NSConn, _ websocket.Message) error {
	cc, ok := w.lookup(ns.Conn.ID())
	if !ok {
		return errors.New("unauthorized")
	}
	groupIDs, err := w.app.Groups.ListGroupIDsByUser(context.Background(), cc.UserID)
	if err != nil {
		zap.L().Error("load group rooms failed", zap.Int64("user_id", cc.UserID), zap.Error(err))
		groupIDs = nil
	}
	if err := w.app.Hub.Register(cc, &wsSession{ns: ns}, groupIDs); err != nil {
		return err
	}
	zap.L().Debug("websocket connected", zap.String("conn_id", cc.ConnID), zap.Int64("user_id", cc.UserID))
	return nil
}

func (w *wsAdapter) onNamespaceDisconnect(ns *websocket.NSConn, _ websocket.Message) error {
	w.app.Hub.Unregister(ns.Conn.ID())
	return nil
}

func (w *wsAdapter) onEvent(ns *websocket.NSConn, msg websocket.Message) error {
	cc, ok := w.lookup(ns.Conn.ID())
	if !ok {
		return nil
	}
	w.app.Gateway.Handle(context.Background(), cc, msg.Event, msg.Body)
	return nil
}

// NewWebsocketHandler 创建 /ws 的处理函数，连接 ID 使用 uuid
func NewWebsocketHandler(a *App) iris.Handler {
	w := &wsAdapter{app: a, authed: make(map[string]realtime.ConnectionContext)}

	events := websocket.Events{
		websocket.OnNamespaceConnected:  w.onNamespaceConnected,
		websocket.OnNamespaceDisconnect: w.onNamespaceDisconnect,
	}
	for _, name := range realtime.InboundEvents {
		events[name] = w.onEvent
	}

	ws := websocket.New(websocket.DefaultGorillaUpgrader, events)
	ws.OnConnect = w.onConnect
	ws.OnDisconnect = w.onDisconnect
	ws.OnUpgradeError = func(err error) {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
	}

	return websocket.Handler(ws, func(ctx iris.Context) string {
		return uuid.NewString()
	})
}
