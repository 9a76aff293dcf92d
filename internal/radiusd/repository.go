package radiusd

import (
	"context"
	"time"

	"github.com/feedad/kilusi-bill-sub000/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AuthRepository resolves stored credentials and reply attributes
type AuthRepository interface {
	// GetCheck returns the check entry for username, or nil when no entry exists
	GetCheck(ctx context.Context, username string) (*domain.RadCheck, error)

	// EffectiveReplyAttributes returns group-level attributes for the user's
	// groups overlaid by user-level attributes; user-level wins on conflict
	EffectiveReplyAttributes(ctx context.Context, username string) ([]domain.RadReply, error)
}

// AcctRepository persists the accounting session lifecycle keyed by the
// session's unique id
type AcctRepository interface {
	// CreateSession inserts an open session; a duplicate unique id is a no-op
	CreateSession(ctx context.Context, sess *domain.RadiusAccounting) error

	// UpdateSession refreshes counters on the open session matching uniqueId.
	// A missing session is tolerated and reported via the bool return.
	UpdateSession(ctx context.Context, uniqueId string, sessionTime int, inputTotal, outputTotal int64, inputPackets, outputPackets int) (bool, error)

	// StopSession closes the session matching uniqueId with final counters
	StopSession(ctx context.Context, uniqueId string, stopTime time.Time, sessionTime int, inputTotal, outputTotal int64, terminateCause string) (bool, error)
}

// GormAuthRepository is the GORM implementation of AuthRepository
type GormAuthRepository struct {
	db *gorm.DB
}

func NewGormAuthRepository(db *gorm.DB) *GormAuthRepository {
	return &GormAuthRepository{db: db}
}

func (r *GormAuthRepository) GetCheck(ctx context.Context, username string) (*domain.RadCheck, error) {
	var check domain.RadCheck
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&check).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrStoreUnavailable, "radcheck lookup: %v", err)
	}
	return &check, nil
}

func (r *GormAuthRepository) EffectiveReplyAttributes(ctx context.Context, username string) ([]domain.RadReply, error) {
	var groups []domain.RadUserGroup
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("priority ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	merged := make(map[string]domain.RadReply)
	order := make([]string, 0, 8)

	for _, g := range groups {
		var groupReplies []domain.RadGroupReply
		err = r.db.WithContext(ctx).
			Where("groupname = ?", g.Groupname).
			Order("id ASC").
			Find(&groupReplies).Error
		if err != nil {
			return nil, err
		}
		for _, gr := range groupReplies {
			if _, seen := merged[gr.Attribute]; !seen {
				order = append(order, gr.Attribute)
			}
			merged[gr.Attribute] = domain.RadReply{
				Username:  username,
				Attribute: gr.Attribute,
				Op:        gr.Op,
				Value:     gr.Value,
			}
		}
	}

	var userReplies []domain.RadReply
	err = r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("id ASC").
		Find(&userReplies).Error
	if err != nil {
		return nil, err
	}
	// user-level entries override group-level entries of the same attribute
	for _, ur := range userReplies {
		if _, seen := merged[ur.Attribute]; !seen {
			order = append(order, ur.Attribute)
		}
		merged[ur.Attribute] = ur
	}

	result := make([]domain.RadReply, 0, len(order))
	for _, name := range order {
		result = append(result, merged[name])
	}
	return result, nil
}

// GormAcctRepository is the GORM implementation of AcctRepository
type GormAcctRepository struct {
	db *gorm.DB
}

func NewGormAcctRepository(db *gorm.DB) *GormAcctRepository {
	return &GormAcctRepository{db: db}
}

func (r *GormAcctRepository) CreateSession(ctx context.Context, sess *domain.RadiusAccounting) error {
	// Conflict on the unique id makes NAS Start retransmits idempotent
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "acct_unique_id"}},
			DoNothing: true,
		}).
		Create(sess).Error
}

func (r *GormAcctRepository) UpdateSession(ctx context.Context, uniqueId string, sessionTime int, inputTotal, outputTotal int64, inputPackets, outputPackets int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.RadiusAccounting{}).
		Where("acct_unique_id = ? AND acct_stop_time IS NULL", uniqueId).
		Updates(map[string]interface{}{
			"acct_session_time":   sessionTime,
			"acct_input_total":    inputTotal,
			"acct_output_total":   outputTotal,
			"acct_input_packets":  inputPackets,
			"acct_output_packets": outputPackets,
			"last_update":         time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *GormAcctRepository) StopSession(ctx context.Context, uniqueId string, stopTime time.Time, sessionTime int, inputTotal, outputTotal int64, terminateCause string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.RadiusAccounting{}).
		Where("acct_unique_id = ?", uniqueId).
		Updates(map[string]interface{}{
			"acct_stop_time":       stopTime,
			"acct_session_time":    sessionTime,
			"acct_input_total":     inputTotal,
			"acct_output_total":    outputTotal,
			"acct_terminate_cause": terminateCause,
			"last_update":          time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

// NasRepository loads the NAS allow-list snapshot
type NasRepository interface {
	ListEnabled(ctx context.Context) ([]domain.NetNas, error)
}

// GormNasRepository is the GORM implementation of NasRepository
type GormNasRepository struct {
	db *gorm.DB
}

func NewGormNasRepository(db *gorm.DB) *GormNasRepository {
	return &GormNasRepository{db: db}
}

func (r *GormNasRepository) ListEnabled(ctx context.Context) ([]domain.NetNas, error) {
	var list []domain.NetNas
	err := r.db.WithContext(ctx).Where("status = ?", "enabled").Find(&list).Error
	return list, err
}
