package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/notification"
)

// Notifier 通知外部通知系统（站内信/推送），投递失败不影响主流程
type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) error
}

// NotificationMessage 队列中的通知消息体
type NotificationMessage struct {
	ID      string                 `json:"id"`
	UserID  int64                  `json:"user_id"`
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
	SentAt  time.Time              `json:"sent_at"`
}

// MQNotifier 把通知写入 RabbitMQ，由 notification-worker 消费落库
type MQNotifier struct {
	conn  *amqp.Connection
	queue string
}

// NewMQNotifier 创建 MQ 通知发布器
func NewMQNotifier(conn *amqp.Connection, queue string) *MQNotifier {
	return &MQNotifier{conn: conn, queue: queue}
}

func (p *MQNotifier) Notify(ctx context.Context, n *notification.Notification) error {
	if p.conn == nil {
		return errors.New("rabbitmq connection not initialized")
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if _, err = ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := EncodeNotification(n)
	if err != nil {
		return err
	}
	return ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.ID,
			Body:         body,
		},
	)
}

// EncodeNotification 序列化通知，没有 ID 时补一个 uuid 用于消费端去重
func EncodeNotification(n *notification.Notification) ([]byte, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	msg := NotificationMessage{
		ID:      n.ID,
		UserID:  n.UserID,
		Type:    n.Type,
		Title:   n.Title,
		Message: n.Message,
		SentAt:  time.Now(),
	}
	if n.Data != "" {
		if err := json.Unmarshal([]byte(n.Data), &msg.Data); err != nil {
			return nil, err
		}
	}
	return json.Marshal(&msg)
}

// NotificationService 消费端：解析队列消息并幂等落库
type NotificationService struct {
	repo notification.Repository
}

// NewNotificationService 创建通知服务
func NewNotificationService(repo notification.Repository) *NotificationService {
	return &NotificationService{repo: repo}
}

// Handle 处理一条队列消息，返回的错误为 ValidationError 时消息应丢弃而不是重试
func (s *NotificationService) Handle(ctx context.Context, body []byte) (*notification.Notification, error) {
	var m NotificationMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, Validation("invalid notification payload: %v", err)
	}
	if m.ID == "" || m.UserID == 0 || m.Type == "" {
		return nil, Validation("notification id, user_id and type are required")
	}
	n := &notification.Notification{
		ID:        m.ID,
		UserID:    m.UserID,
		Type:      m.Type,
		Title:     m.Title,
		Message:   m.Message,
		CreatedAt: m.SentAt,
	}
	if len(m.Data) > 0 {
		raw, err := json.Marshal(m.Data)
		if err != nil {
			return nil, err
		}
		n.Data = string(raw)
	}
	if err := s.repo.Save(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List 查询用户最近的通知
func (s *NotificationService) List(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}

// notify 发通知并吞掉错误，只记日志
func notify(ctx context.Context, n Notifier, msg *notification.Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		zap.L().Warn("publish notification failed",
			zap.Int64("user_id", msg.UserID),
			zap.String("type", msg.Type),
			zap.Error(err))
	}
}
