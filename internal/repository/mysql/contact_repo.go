package mysql

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/King-Eliah/mentorship-platform-sub002/internal/datamodels/contact"
)

type contactRepo struct {
	db *gorm.DB
}

// NewContactRepository 创建联系人仓储
func NewContactRepository(db *gorm.DB) contact.Repository {
	return &contactRepo{db: db}
}

func (r *contactRepo) GetByID(ctx context.Context, id int64) (*contact.Contact, error) {
	var c contact.Contact
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contactRepo) GetByPair(ctx context.Context, userID, contactUserID int64) (*contact.Contact, error) {
	var c contact.Contact
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND contact_user_id = ?", userID, contactUserID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contactRepo) ListByUser(ctx context.Context, userID int64) ([]*contact.Contact, error) {
	var list []*contact.Contact
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("added_at ASC, id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *contactRepo) ListContactUserIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&contact.Contact{}).
		Where("user_id = ?", userID).
		Pluck("contact_user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *contactRepo) Create(ctx context.Context, c *contact.Contact) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "contact_user_id"}},
		DoNothing: true,
	}).Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Upsert 依赖 (user_id, contact_user_id) 唯一约束：先插入，冲突时只做"升级"更新，
// 两条语句各自原子，并发调用结果一致
func (r *contactRepo) Upsert(ctx context.Context, userID, contactUserID int64, t contact.Type) error {
	created, err := r.Create(ctx, &contact.Contact{
		UserID:        userID,
		ContactUserID: contactUserID,
		ContactType:   t,
	})
	if err != nil || created {
		return err
	}
	weaker := t.WeakerThan()
	if len(weaker) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&contact.Contact{}).
		Where("user_id = ? AND contact_user_id = ? AND contact_type IN ?", userID, contactUserID, weaker).
		Update("contact_type", t).Error
}

func (r *contactRepo) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Delete(&contact.Contact{}, id).Error
}

func (r *contactRepo) GetRequest(ctx context.Context, id int64) (*contact.Request, error) {
	var req contact.Request
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *contactRepo) GetRequestByPair(ctx context.Context, senderID, receiverID int64) (*contact.Request, error) {
	var req contact.Request
	if err := r.db.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ?", senderID, receiverID).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *contactRepo) CreateRequest(ctx context.Context, req *contact.Request) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender_id"}, {Name: "receiver_id"}},
		DoNothing: true,
	}).Create(req)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *contactRepo) ReopenRequest(ctx context.Context, id int64, message *string) (bool, error) {
	updates := map[string]interface{}{
		"status":       contact.RequestPending,
		"responded_at": gorm.Expr("NULL"),
		"created_at":   time.Now(),
	}
	if message != nil {
		updates["message"] = *message
	} else {
		updates["message"] = gorm.Expr("NULL")
	}
	res := r.db.WithContext(ctx).Model(&contact.Request{}).
		Where("id = ? AND status = ?", id, contact.RequestRejected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *contactRepo) RespondRequest(ctx context.Context, id int64, status contact.RequestStatus, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&contact.Request{}).
		Where("id = ? AND status = ?", id, contact.RequestPending).
		Updates(map[string]interface{}{
			"status":       status,
			"responded_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *contactRepo) ListReceivedRequests(ctx context.Context, receiverID int64, status contact.RequestStatus) ([]*contact.Request, error) {
	var list []*contact.Request
	if err := r.db.WithContext(ctx).
		Where("receiver_id = ? AND status = ?", receiverID, status).
		Order("created_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *contactRepo) ListSentRequests(ctx context.Context, senderID int64) ([]*contact.Request, error) {
	var list []*contact.Request
	if err := r.db.WithContext(ctx).
		Where("sender_id = ?", senderID).
		Order("created_at DESC, id DESC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}
