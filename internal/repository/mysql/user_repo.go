package mysql

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/user"
)

type userRepo struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓储
func NewUserRepository(db *gorm.DB) user.Repository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var u user.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, u *user.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *userRepo) ListAll(ctx context.Context) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) ListByIDs(ctx context.Context, ids []int64) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var list []*user.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) ListAdmins(ctx context.Context) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", user.RoleAdmin, true).
		Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) Search(ctx context.Context, excludeID int64, keyword string, limit int) ([]*user.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("id <> ? AND is_active = ?", excludeID, true).
		Order("first_name ASC, last_name ASC, id ASC").
		Limit(limit)
	if keyword != "" {
		p := likePattern(keyword)
		q = q.Where("(LOWER(first_name) LIKE ? ESCAPE '!' OR LOWER(last_name) LIKE ? ESCAPE '!' OR LOWER(email) LIKE ? ESCAPE '!')", p, p, p)
	}
	var list []*user.User
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRepo) SetPresence(ctx context.Context, id int64, online bool, at time.Time) error {
	return r.db.WithContext(ctx).Model(&user.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online":        online,
			"last_seen_online": at,
		}).Error
}

func (r *userRepo) ResetPresence(ctx context.Context, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&user.User{}).
		Where("is_online = ?", true).
		Updates(map[string]interface{}{
			"is_online":        false,
			"last_seen_online": at,
		})
	return res.RowsAffected, res.Error
}

func (r *userRepo) Block(ctx context.Context, userID, targetID int64) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "blocked_user_id"}},
		DoNothing: true,
	}).Create(&user.Block{UserID: userID, BlockedUserID: targetID})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepo) Unblock(ctx context.Context, userID, targetID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND blocked_user_id = ?", userID, targetID).
		Delete(&user.Block{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *userRepo) IsBlocked(ctx context.Context, userID, targetID int64) (bool, error) {
	var b user.Block
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND blocked_user_id = ?", userID, targetID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRepo) ListBlocked(ctx context.Context, userID int64) ([]*user.User, error) {
	var list []*user.User
	if err := r.db.WithContext(ctx).
		Joins("JOIN user_blocks ON user_blocks.blocked_user_id = users.id").
		Where("user_blocks.user_id = ?", userID).
		Order("user_blocks.id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
