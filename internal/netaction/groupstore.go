package netaction

import (
	"context"
	"errors"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/feedad/kilusi-bill-sub000/pkg/common"
	"gorm.io/gorm"
)

// GormGroupStore is the GORM implementation of GroupStore
type GormGroupStore struct {
	db *gorm.DB
}

func NewGormGroupStore(db *gorm.DB) *GormGroupStore {
	return &GormGroupStore{db: db}
}

// SetUserGroup enforces the at-most-one-membership invariant: prior rows are
// deleted in the same transaction that inserts the target group
func (s *GormGroupStore) SetUserGroup(ctx context.Context, username, groupname string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).
			Delete(&domain.RadUserGroup{}).Error; err != nil {
			return err
		}
		return tx.Create(&domain.RadUserGroup{
			ID:        common.UUIDint64(),
			Username:  username,
			Groupname: groupname,
			Priority:  1,
		}).Error
	})
}

// SyncGroupReply upserts the group's Mikrotik-Rate-Limit reply attribute
func (s *GormGroupStore) SyncGroupReply(ctx context.Context, groupname, rateLimit string) error {
	var existing domain.RadGroupReply
	err := s.db.WithContext(ctx).
		Where("groupname = ? AND attribute = ?", groupname, "Mikrotik-Rate-Limit").
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return s.db.WithContext(ctx).Create(&domain.RadGroupReply{
			ID:        common.UUIDint64(),
			Groupname: groupname,
			Attribute: "Mikrotik-Rate-Limit",
			Op:        ":=",
			Value:     rateLimit,
		}).Error
	case err != nil:
		return err
	}
	if existing.Value == rateLimit {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&domain.RadGroupReply{}).
		Where("id = ?", existing.ID).
		Update("value", rateLimit).Error
}
