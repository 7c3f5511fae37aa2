package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/message"
)

type messageRepo struct {
	db *gorm.DB
}

// NewMessageRepository 创建私信仓储
func NewMessageRepository(db *gorm.DB) message.Repository {
	return &messageRepo{db: db}
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*message.Message, error) {
	var m message.Message
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) GetByIDs(ctx context.Context, ids []int64) ([]*message.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []*message.Message
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *messageRepo) Create(ctx context.Context, m *message.Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// visible 过滤掉 viewerID 自己"仅对我删除"的消息
func visible(q *gorm.DB, conversationID, viewerID int64) *gorm.DB {
	return q.Where("conversation_id = ?", conversationID).
		Where("NOT (sender_id = ? AND hidden_for_sender = ?)", viewerID, true)
}

func (r *messageRepo) ListVisible(ctx context.Context, conversationID, viewerID int64, limit, offset int) ([]*message.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var list []*message.Message
	if err := visible(r.db.WithContext(ctx), conversationID, viewerID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *messageRepo) MarkReadFrom(ctx context.Context, conversationID, senderID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&message.Message{}).
		Where("conversation_id = ? AND sender_id = ? AND is_read = ?", conversationID, senderID, false).
		UpdateColumns(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *messageRepo) UpdateContent(ctx context.Context, id int64, content string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&message.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"content":    content,
			"is_edited":  true,
			"updated_at": at,
		}).Error
}

func (r *messageRepo) HideForSender(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&message.Message{}).
		Where("id = ?", id).
		UpdateColumn("hidden_for_sender", true).Error
}

func (r *messageRepo) Tombstone(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&message.Message{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"content":    message.DeletedContent,
			"is_deleted": true,
			"updated_at": at,
		}).Error
}

func (r *messageRepo) Search(ctx context.Context, conversationID, viewerID int64, keyword string, limit int) ([]*message.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var list []*message.Message
	if err := visible(r.db.WithContext(ctx), conversationID, viewerID).
		Where("is_deleted = ?", false).
		Where("LOWER(content) LIKE ? ESCAPE '!'", likePattern(keyword)).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *messageRepo) LastVisible(ctx context.Context, conversationID, viewerID int64) (*message.Message, error) {
	var m message.Message
	err := visible(r.db.WithContext(ctx), conversationID, viewerID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *messageRepo) CountUnread(ctx context.Context, conversationID, readerID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&message.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
		Count(&n).Error
	return n, err
}
