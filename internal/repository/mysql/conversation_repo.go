package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/conversation"
)

type conversationRepo struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓储
func NewConversationRepository(db *gorm.DB) conversation.Repository {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) GetByID(ctx context.Context, id int64) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepo) GetByUsers(ctx context.Context, userID1, userID2 int64) (*conversation.Conversation, error) {
	var c conversation.Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id1 = ? AND user_id2 = ?", userID1, userID2).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *conversationRepo) CreateIfAbsent(ctx context.Context, c *conversation.Conversation) (*conversation.Conversation, error) {
	if c.PairKey == "" {
		c.PairKey = conversation.PairKey(c.UserID1, c.UserID2)
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoNothing: true,
	}).Create(c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected > 0 {
		return c, nil
	}
	// 并发请求已经建好了会话，读回已存在的那一条
	var existing conversation.Conversation
	if err := r.db.WithContext(ctx).Where("pair_key = ?", c.PairKey).First(&existing).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

func (r *conversationRepo) ListByUser(ctx context.Context, userID int64) ([]*conversation.Conversation, error) {
	var list []*conversation.Conversation
	if err := r.db.WithContext(ctx).
		Where("user_id1 = ? OR user_id2 = ?", userID, userID).
		Order("updated_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *conversationRepo) Touch(ctx context.Context, id int64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&conversation.Conversation{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}
