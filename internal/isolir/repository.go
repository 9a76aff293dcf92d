package isolir

import (
	"context"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// SubscriberStore is the persistence surface the engine drives
type SubscriberStore interface {
	// ListScheduledCandidates returns subscribers armed for scheduled
	// isolation whose date has arrived and who are not yet isolated.
	ListScheduledCandidates(ctx context.Context, now time.Time) ([]domain.Subscriber, error)
	GetByUsername(ctx context.Context, username string) (*domain.Subscriber, error)
	GetByCustomerId(ctx context.Context, customerId int64) (*domain.Subscriber, error)
	GetNas(ctx context.Context, nasId int64) (*domain.NetNas, error)
	GetPackage(ctx context.Context, packageId int64) (*domain.Package, error)
	UpdateStatus(ctx context.Context, subscriberId int64, status string) error
	// SwapPackage moves the subscriber to packageId while remembering
	// previousId for later restoration.
	SwapPackage(ctx context.Context, subscriberId, packageId, previousId int64) error
	AppendLog(ctx context.Context, entry *domain.IsolirLog) error
}

// GormSubscriberStore backs SubscriberStore with the application database
type GormSubscriberStore struct {
	db *gorm.DB
}

func NewGormSubscriberStore(db *gorm.DB) *GormSubscriberStore {
	return &GormSubscriberStore{db: db}
}

func (s *GormSubscriberStore) ListScheduledCandidates(ctx context.Context, now time.Time) ([]domain.Subscriber, error) {
	var subs []domain.Subscriber
	err := s.db.WithContext(ctx).
		Where("enable_isolir = ?", true).
		Where("isolir_date IS NOT NULL AND isolir_date <= ?", now).
		Where("status <> ?", domain.SubscriberStatusIsolated).
		Find(&subs).Error
	if err != nil {
		return nil, errors.Wrap(err, "list scheduled isolir candidates")
	}
	return subs, nil
}

func (s *GormSubscriberStore) GetByUsername(ctx context.Context, username string) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Errorf("subscriber %s not found", username)
		}
		return nil, errors.Wrap(err, "query subscriber")
	}
	return &sub, nil
}

func (s *GormSubscriberStore) GetByCustomerId(ctx context.Context, customerId int64) (*domain.Subscriber, error) {
	var sub domain.Subscriber
	err := s.db.WithContext(ctx).Where("customer_id = ?", customerId).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Errorf("subscriber for customer %d not found", customerId)
		}
		return nil, errors.Wrap(err, "query subscriber by customer")
	}
	return &sub, nil
}

func (s *GormSubscriberStore) GetNas(ctx context.Context, nasId int64) (*domain.NetNas, error) {
	var nas domain.NetNas
	err := s.db.WithContext(ctx).Where("id = ?", nasId).First(&nas).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query nas %d", nasId)
	}
	return &nas, nil
}

func (s *GormSubscriberStore) GetPackage(ctx context.Context, packageId int64) (*domain.Package, error) {
	var pkg domain.Package
	err := s.db.WithContext(ctx).Where("id = ?", packageId).First(&pkg).Error
	if err != nil {
		return nil, errors.Wrapf(err, "query package %d", packageId)
	}
	return &pkg, nil
}

func (s *GormSubscriberStore) UpdateStatus(ctx context.Context, subscriberId int64, status string) error {
	err := s.db.WithContext(ctx).Model(&domain.Subscriber{}).
		Where("id = ?", subscriberId).
		Update("status", status).Error
	return errors.Wrap(err, "update subscriber status")
}

func (s *GormSubscriberStore) SwapPackage(ctx context.Context, subscriberId, packageId, previousId int64) error {
	err := s.db.WithContext(ctx).Model(&domain.Subscriber{}).
		Where("id = ?", subscriberId).
		Updates(map[string]interface{}{
			"package_id":          packageId,
			"previous_package_id": previousId,
		}).Error
	return errors.Wrap(err, "swap subscriber package")
}

func (s *GormSubscriberStore) AppendLog(ctx context.Context, entry *domain.IsolirLog) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(entry).Error, "append isolir log")
}
