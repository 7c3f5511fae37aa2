package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/middleware"
	"github.com/King-Eliah/mentorship-platform-sub002/internal/service"
)

// 客户端上行事件
const (
	EventSend        = "message:send"
	EventRead        = "message:read"
	EventEdit        = "message:edit"
	EventDelete      = "message:delete"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
	EventOnline      = service.EventUserOnline
	EventOffline     = service.EventUserOffline
	EventPing        = "ping"

	EventPong  = "pong"
	EventError = "error"
)

// InboundEvents 网关接受的全部上行事件名，传输层据此注册处理函数
var InboundEvents = []string{
	EventSend,
	EventRead,
	EventEdit,
	EventDelete,
	EventTypingStart,
	EventTypingStop,
	EventOnline,
	EventOffline,
	EventPing,
}

type sendPayload struct {
	ConversationID int64        `json:"conversationId"`
	Content        string       `json:"content"`
	Type           message.Type `json:"type"`
	ReplyToID      *int64       `json:"replyToId"`
	ClientID       string       `json:"clientId"`
}

type conversationPayload struct {
	ConversationID int64 `json:"conversationId"`
}

type editPayload struct {
	MessageID int64  `json:"messageId"`
	Content   string `json:"content"`
}

// deletePayload 不带 forEveryone 时按对所有人撤回处理
type deletePayload struct {
	MessageID   int64 `json:"messageId"`
	ForEveryone *bool `json:"forEveryone"`
}

// SentAck message:send 的回执，只发给发起连接
type SentAck struct {
	ClientID string               `json:"clientId,omitempty"`
	Message  *service.MessageView `json:"message"`
}

// TypingEvent 正在输入
type TypingEvent struct {
	ConversationID int64 `json:"conversationId"`
	UserID         int64 `json:"userId"`
}

// ErrorEvent 上行事件处理失败时回送给发起连接
type ErrorEvent struct {
	Event   string `json:"event"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Gateway 把上行事件路由到消息/会话服务，业务错误转换为 error 事件
type Gateway struct {
	hub           *Hub
	messages      *service.MessageService
	conversations *service.ConversationService
	limiter       *middleware.KeyedLimiter
	monitor       *service.Monitor
}

// NewGateway 创建网关，limiter 为 nil 时不限流
func NewGateway(hub *Hub, messages *service.MessageService, conversations *service.ConversationService, limiter *middleware.KeyedLimiter, monitor *service.Monitor) *Gateway {
	if monitor == nil {
		monitor = service.NewMonitor(nil)
	}
	return &Gateway{
		hub:           hub,
		messages:      messages,
		conversations: conversations,
		limiter:       limiter,
		monitor:       monitor,
	}
}

// Forget 连接断开后释放它的限流桶
func (g *Gateway) Forget(connID string) {
	g.limiter.Forget(connID)
}

// Handle 处理一条上行事件。身份只来自 cc，负载中的用户字段一律忽略
func (g *Gateway) Handle(ctx context.Context, cc ConnectionContext, event string, body []byte) {
	g.hub.Touch(cc.ConnID)
	g.monitor.Events.WithLabelValues(event).Inc()

	if !g.limiter.Allow(cc.ConnID) {
		g.monitor.RateLimited.Inc()
		g.reject(cc, event, service.InvalidOperation("too many events, slow down"))
		return
	}

	if err := g.dispatch(ctx, cc, event, body); err != nil {
		g.reject(cc, event, err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, cc ConnectionContext, event string, body []byte) error {
	switch event {
	case EventSend:
		var p sendPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		view, err := g.messages.Send(ctx, service.SendInput{
			ConversationID: p.ConversationID,
			SenderID:       cc.UserID,
			Content:        p.Content,
			Type:           p.Type,
			ReplyToID:      p.ReplyToID,
		})
		if err != nil {
			return err
		}
		g.hub.EmitToConn(cc.ConnID, service.EventMessageSent, SentAck{ClientID: p.ClientID, Message: view})
		// 发送者在其他标签页/设备上的连接
		g.hub.EmitToRoomExcept(service.UserRoom(cc.UserID), cc.ConnID, service.EventMessageNew, view)
		return nil

	case EventRead:
		var p conversationPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		_, err := g.messages.MarkRead(ctx, p.ConversationID, cc.UserID)
		return err

	case EventEdit:
		var p editPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		_, err := g.messages.Edit(ctx, p.MessageID, cc.UserID, p.Content)
		return err

	case EventDelete:
		var p deletePayload
		if err := decode(body, &p); err != nil {
			return err
		}
		if p.ForEveryone != nil && !*p.ForEveryone {
			_, err := g.messages.Delete(ctx, p.MessageID, cc.UserID)
			return err
		}
		_, err := g.messages.DeleteForEveryone(ctx, p.MessageID, cc.UserID)
		return err

	case EventTypingStart, EventTypingStop:
		var p conversationPayload
		if err := decode(body, &p); err != nil {
			return err
		}
		conv, err := g.conversations.GetByID(ctx, p.ConversationID, cc.UserID)
		if err != nil {
			return err
		}
		g.hub.EmitToRoom(service.UserRoom(conv.Other(cc.UserID)), event, TypingEvent{
			ConversationID: conv.ID,
			UserID:         cc.UserID,
		})
		return nil

	case EventOnline:
		g.hub.AnnouncePresence(cc.UserID, true)
		return nil

	case EventOffline:
		g.hub.AnnouncePresence(cc.UserID, false)
		return nil

	case EventPing:
		g.hub.EmitToConn(cc.ConnID, EventPong, map[string]int64{"time": time.Now().UnixMilli()})
		return nil
	}
	return service.Validation("unknown event %q", event)
}

func (g *Gateway) reject(cc ConnectionContext, event string, err error) {
	kind := service.KindOf(err)
	g.monitor.EventErrors.WithLabelValues(event, kind.String()).Inc()

	msg := err.Error()
	if kind == service.KindInternal {
		zap.L().Error("realtime event failed",
			zap.String("event", event),
			zap.String("conn_id", cc.ConnID),
			zap.Int64("user_id", cc.UserID),
			zap.Error(err))
		msg = "internal server error"
	}
	g.hub.EmitToConn(cc.ConnID, EventError, ErrorEvent{Event: event, Kind: kind.String(), Message: msg})
}

func decode(body []byte, v interface{}) error {
	if len(body) == 0 {
		return service.Validation("payload is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return service.Validation("invalid payload: %v", err)
	}
	return nil
}
