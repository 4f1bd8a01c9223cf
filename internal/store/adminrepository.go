package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/moguard/panel/internal/domain/admin"
)

// AdminRepository implements admin.Repository over gorm.
type AdminRepository struct {
	db *gorm.DB
}

// NewAdminRepository constructs an admin.Repository backed by db.
func NewAdminRepository(db *gorm.DB) admin.Repository {
	return &AdminRepository{db: db}
}

func adminToModel(a *admin.Admin) (*adminModel, error) {
	placeholdersJSON, err := json.Marshal(a.Placeholders())
	if err != nil {
		return nil, fmt.Errorf("store: encode placeholders: %w", err)
	}
	presentationJSON, err := json.Marshal(a.Presentation())
	if err != nil {
		return nil, fmt.Errorf("store: encode presentation: %w", err)
	}
	notifyJSON, err := json.Marshal(a.Notify())
	if err != nil {
		return nil, fmt.Errorf("store: encode notify sinks: %w", err)
	}
	totpJSON, err := json.Marshal(a.TOTP())
	if err != nil {
		return nil, fmt.Errorf("store: encode totp state: %w", err)
	}
	return &adminModel{
		ID: a.ID(), Username: a.Username(), PasswordHash: a.PasswordHash(), Role: string(a.Role()),
		APIKey: a.APIKey(), Secret: a.Secret(),
		CountLimit: a.CountLimit(), UsageLimit: a.UsageLimit(),
		CurrentCount: a.CurrentCount(), CurrentUsage: a.CurrentUsage(),
		ExpireWarningDays: a.ExpireWarningDays(), UsageWarningPercent: a.UsageWarningPercent(),
		PlaceholdersJSON: string(placeholdersJSON), PresentationJSON: string(presentationJSON),
		NotifyJSON: string(notifyJSON), TOTPJSON: string(totpJSON),
		Removed: a.Removed(),
	}, nil
}

func modelToAdmin(m *adminModel) (*admin.Admin, error) {
	var placeholders []admin.Placeholder
	if err := json.Unmarshal([]byte(m.PlaceholdersJSON), &placeholders); err != nil && m.PlaceholdersJSON != "" {
		return nil, fmt.Errorf("store: decode placeholders: %w", err)
	}
	var presentation admin.Presentation
	if err := json.Unmarshal([]byte(m.PresentationJSON), &presentation); err != nil && m.PresentationJSON != "" {
		return nil, fmt.Errorf("store: decode presentation: %w", err)
	}
	var notify admin.NotifySinks
	if err := json.Unmarshal([]byte(m.NotifyJSON), &notify); err != nil && m.NotifyJSON != "" {
		return nil, fmt.Errorf("store: decode notify sinks: %w", err)
	}
	var totp admin.TOTPState
	if err := json.Unmarshal([]byte(m.TOTPJSON), &totp); err != nil && m.TOTPJSON != "" {
		return nil, fmt.Errorf("store: decode totp state: %w", err)
	}
	return admin.Reconstruct(
		m.ID, m.Username, m.PasswordHash, admin.Role(m.Role), m.APIKey, m.Secret,
		m.CanCreate, m.CanUpdate, m.CanRemove,
		m.CountLimit, m.UsageLimit, m.CurrentCount, m.CurrentUsage,
		m.ExpireWarningDays, m.UsageWarningPercent,
		placeholders, presentation, notify, totp,
		m.Removed, m.CreatedAt, m.UpdatedAt,
	), nil
}

func (r *AdminRepository) Create(ctx context.Context, a *admin.Admin) (*admin.Admin, error) {
	m, err := adminToModel(a)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("store: create admin: %w", err)
	}
	return modelToAdmin(m)
}

func (r *AdminRepository) Update(ctx context.Context, a *admin.Admin) error {
	m, err := adminToModel(a)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Model(&adminModel{}).Where("id = ?", m.ID).Updates(m).Error; err != nil {
		return fmt.Errorf("store: update admin %d: %w", m.ID, err)
	}
	return nil
}

func (r *AdminRepository) Get(ctx context.Context, id int64) (*admin.Admin, error) {
	var m adminModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, fmt.Errorf("store: get admin %d: %w", id, err)
	}
	return modelToAdmin(&m)
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*admin.Admin, error) {
	var m adminModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&m).Error; err != nil {
		return nil, fmt.Errorf("store: get admin by username %q: %w", username, err)
	}
	return modelToAdmin(&m)
}

func (r *AdminRepository) GetByAPIKey(ctx context.Context, apiKey string) (*admin.Admin, error) {
	var m adminModel
	if err := r.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&m).Error; err != nil {
		return nil, fmt.Errorf("store: get admin by api key: %w", err)
	}
	return modelToAdmin(&m)
}

func (r *AdminRepository) List(ctx context.Context) ([]*admin.Admin, error) {
	var ms []*adminModel
	if err := r.db.WithContext(ctx).Where("removed = ?", false).Find(&ms).Error; err != nil {
		return nil, fmt.Errorf("store: list admins: %w", err)
	}
	out := make([]*admin.Admin, 0, len(ms))
	for _, m := range ms {
		a, err := modelToAdmin(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AdminRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Model(&adminModel{}).Where("id = ?", id).
		Updates(map[string]any{"removed": true}).Error; err != nil {
		return fmt.Errorf("store: remove admin %d: %w", id, err)
	}
	return nil
}

// SyncCurrentCounts recomputes every admin's current_count in one statement
// (§4.A, §4.F step 4).
func (r *AdminRepository) SyncCurrentCounts(ctx context.Context) error {
	err := r.db.WithContext(ctx).Exec(`
		UPDATE admins SET current_count = (
			SELECT COUNT(*) FROM subscriptions
			WHERE subscriptions.owner_id = admins.id AND subscriptions.removed = ?
		)`, false).Error
	if err != nil {
		return fmt.Errorf("store: sync admin current counts: %w", err)
	}
	return nil
}

func (r *AdminRepository) AdjustCounts(ctx context.Context, id int64, countDelta, usageDelta int64) error {
	if err := r.db.WithContext(ctx).Model(&adminModel{}).Where("id = ?", id).
		Updates(map[string]any{
			"current_count": gorm.Expr("current_count + ?", countDelta),
			"current_usage": gorm.Expr("current_usage + ?", usageDelta),
		}).Error; err != nil {
		return fmt.Errorf("store: adjust admin %d counts: %w", id, err)
	}
	return nil
}
