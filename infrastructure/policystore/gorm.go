package policystore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agentwa/wabridge/domains/policy"
)

type allowlistModel struct {
	Phone     string    `gorm:"primaryKey;column:phone"`
	RawID     string    `gorm:"column:raw_id;index"`
	Label     string    `gorm:"column:label"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (allowlistModel) TableName() string { return "allowlist" }

type pairingModel struct {
	Code      string    `gorm:"primaryKey;column:code"`
	RawID     string    `gorm:"column:raw_id;index"`
	ExpiresAt time.Time `gorm:"column:expires_at"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (pairingModel) TableName() string { return "pairings" }

type groupModel struct {
	GroupID   string    `gorm:"primaryKey;column:group_id"`
	Label     string    `gorm:"column:label"`
	Allowed   bool      `gorm:"column:allowed"`
	Mode      string    `gorm:"column:mode"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (groupModel) TableName() string { return "groups" }

type configModel struct {
	Key   string `gorm:"primaryKey;column:key"`
	Value string `gorm:"column:value"`
}

func (configModel) TableName() string { return "bridge_config" }

// GormStore implements policy.Store on a gorm connection. Writes are
// serialized with a store-level mutex so SQLite never sees competing
// writers.
type GormStore struct {
	db      *gorm.DB
	writeMu sync.Mutex
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&allowlistModel{}, &pairingModel{}, &groupModel{}, &configModel{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// IsAllowed is fail-closed: storage errors count as not allowed.
func (s *GormStore) IsAllowed(ctx context.Context, rawID, phone string) bool {
	var count int64
	err := s.db.WithContext(ctx).Model(&allowlistModel{}).
		Where("phone = ? OR (raw_id <> '' AND raw_id = ?)", phone, rawID).
		Count(&count).Error
	if err != nil {
		logrus.WithError(err).Error("[POLICY_STORE] allowlist check failed, denying")
		return false
	}
	return count > 0
}

func (s *GormStore) GetAllowlistEntry(ctx context.Context, phone string) (*policy.AllowlistEntry, error) {
	var m allowlistModel
	if err := s.db.WithContext(ctx).First(&m, "phone = ?", phone).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &policy.AllowlistEntry{
		Phone:     m.Phone,
		RawID:     m.RawID,
		Label:     m.Label,
		CreatedAt: m.CreatedAt,
	}, nil
}

func (s *GormStore) AddToAllowlist(ctx context.Context, entry policy.AllowlistEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"raw_id": entry.RawID, "label": entry.Label}),
	}).Create(&allowlistModel{
		Phone:     entry.Phone,
		RawID:     entry.RawID,
		Label:     entry.Label,
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (s *GormStore) RemoveFromAllowlist(ctx context.Context, phoneOrRawID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).
		Where("phone = ? OR raw_id = ?", phoneOrRawID, phoneOrRawID).
		Delete(&allowlistModel{}).Error
}

func (s *GormStore) ListAllowlist(ctx context.Context) ([]policy.AllowlistEntry, error) {
	var models []allowlistModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]policy.AllowlistEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, policy.AllowlistEntry{
			Phone:     m.Phone,
			RawID:     m.RawID,
			Label:     m.Label,
			CreatedAt: m.CreatedAt,
		})
	}
	return entries, nil
}

func (s *GormStore) FindActivePairing(ctx context.Context, rawID string) (*policy.PairingEntry, error) {
	var m pairingModel
	err := s.db.WithContext(ctx).
		Where("raw_id = ? AND expires_at > ?", rawID, time.Now().UTC()).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return pairingFromModel(m), nil
}

func (s *GormStore) CreatePairing(ctx context.Context, entry policy.PairingEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Create(&pairingModel{
		Code:      entry.Code,
		RawID:     entry.RawID,
		ExpiresAt: entry.ExpiresAt.UTC(),
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (s *GormStore) CleanExpiredPairings(ctx context.Context, rawID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).
		Where("raw_id = ? AND expires_at <= ?", rawID, time.Now().UTC()).
		Delete(&pairingModel{}).Error
}

func (s *GormStore) GetPairing(ctx context.Context, code string) (*policy.PairingEntry, error) {
	var m pairingModel
	if err := s.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return pairingFromModel(m), nil
}

func (s *GormStore) DeletePairing(ctx context.Context, code string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Delete(&pairingModel{}, "code = ?", code).Error
}

// GetGroupConfig is fail-closed: missing, disabled, or unreadable
// entries all come back {Allowed: false, Mode: mentions}.
func (s *GormStore) GetGroupConfig(ctx context.Context, groupID string) policy.GroupConfig {
	fallback := policy.GroupConfig{Allowed: false, Mode: policy.ModeMentions}

	var m groupModel
	if err := s.db.WithContext(ctx).First(&m, "group_id = ?", groupID).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logrus.WithError(err).Error("[POLICY_STORE] group check failed, denying")
		}
		return fallback
	}
	if !m.Allowed {
		return fallback
	}
	mode := policy.GroupMode(strings.TrimSpace(m.Mode))
	if !mode.Valid() {
		mode = policy.ModeMentions
	}
	return policy.GroupConfig{Allowed: true, Mode: mode}
}

func (s *GormStore) ListGroups(ctx context.Context) ([]policy.GroupEntry, error) {
	var models []groupModel
	if err := s.db.WithContext(ctx).Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	entries := make([]policy.GroupEntry, 0, len(models))
	for _, m := range models {
		entries = append(entries, groupFromModel(m))
	}
	return entries, nil
}

func (s *GormStore) AddGroup(ctx context.Context, entry policy.GroupEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"label": entry.Label, "allowed": entry.Allowed, "mode": string(entry.Mode),
		}),
	}).Create(&groupModel{
		GroupID:   entry.GroupID,
		Label:     entry.Label,
		Allowed:   entry.Allowed,
		Mode:      string(entry.Mode),
		CreatedAt: time.Now().UTC(),
	}).Error
}

func (s *GormStore) UpdateGroup(ctx context.Context, entry policy.GroupEntry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res := s.db.WithContext(ctx).Model(&groupModel{}).
		Where("group_id = ?", entry.GroupID).
		Updates(map[string]interface{}{
			"label": entry.Label, "allowed": entry.Allowed, "mode": string(entry.Mode),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (s *GormStore) RemoveGroup(ctx context.Context, groupID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Delete(&groupModel{}, "group_id = ?", groupID).Error
}

func (s *GormStore) GetConfig(ctx context.Context, key string) (string, error) {
	var m configModel
	if err := s.db.WithContext(ctx).First(&m, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(m.Value), nil
}

func (s *GormStore) SetConfig(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value}),
	}).Create(&configModel{Key: key, Value: value}).Error
}

func pairingFromModel(m pairingModel) *policy.PairingEntry {
	return &policy.PairingEntry{
		Code:      m.Code,
		RawID:     m.RawID,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

func groupFromModel(m groupModel) policy.GroupEntry {
	mode := policy.GroupMode(m.Mode)
	if !mode.Valid() {
		mode = policy.ModeMentions
	}
	return policy.GroupEntry{
		GroupID:   m.GroupID,
		Label:     m.Label,
		Allowed:   m.Allowed,
		Mode:      mode,
		CreatedAt: m.CreatedAt,
	}
}
