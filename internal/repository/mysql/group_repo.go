package mysql

import (
	"context"

	"gorm.io/gorm"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/group"
)

type groupRepo struct {
	db *gorm.DB
}

// NewGroupRepository 创建小组成员仓储
func NewGroupRepository(db *gorm.DB) group.Repository {
	return &groupRepo{db: db}
}

func (r *groupRepo) ListGroupIDsByUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&group.Member{}).
		Where("user_id = ?", userID).
		Order("group_id ASC").
		Pluck("group_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
