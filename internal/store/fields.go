package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// FieldStore reads and writes fields and their versioned AWD configurations.
type FieldStore struct {
	db *gorm.DB
}

func NewFieldStore(db *gorm.DB) *FieldStore { return &FieldStore{db: db} }

// Register creates a field together with its initial configuration. An
// explicit config may be passed; otherwise the stock defaults apply.
func (s *FieldStore) Register(ctx context.Context, field *entities.Field, cfg *entities.AwdConfiguration) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(field).Error; err != nil {
			return fmt.Errorf("create field: %w", err)
		}
		c := entities.DefaultAwdConfiguration(field.ID)
		if cfg != nil {
			c = *cfg
			c.FieldID = field.ID
			c.Version = 1
			c.Active = true
		}
		return tx.Create(&c).Error
	})
}

// Get returns a field by id.
func (s *FieldStore) Get(ctx context.Context, fieldID string) (*entities.Field, error) {
	var f entities.Field
	err := s.db.WithContext(ctx).First(&f, "id = ?", fieldID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Save updates mutable field attributes.
func (s *FieldStore) Save(ctx context.Context, field *entities.Field) error {
	return s.db.WithContext(ctx).Save(field).Error
}

// List returns all fields.
func (s *FieldStore) List(ctx context.Context) ([]entities.Field, error) {
	var out []entities.Field
	err := s.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

// SetEnabled flips AWD control for a field on or off.
func (s *FieldStore) SetEnabled(ctx context.Context, fieldID string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&entities.Field{}).
		Where("id = ?", fieldID).
		Update("awd_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEnabled returns the fields the decision scheduler should visit.
func (s *FieldStore) ListEnabled(ctx context.Context) ([]entities.Field, error) {
	var out []entities.Field
	err := s.db.WithContext(ctx).Where("awd_enabled = ?", true).Order("id").Find(&out).Error
	return out, err
}

// ActiveConfig returns the field's active AWD configuration.
func (s *FieldStore) ActiveConfig(ctx context.Context, fieldID string) (*entities.AwdConfiguration, error) {
	var c entities.AwdConfiguration
	err := s.db.WithContext(ctx).
		Where("field_id = ? AND active = ?", fieldID, true).
		Order("version DESC").
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ReplaceConfig installs a new configuration version for the field. The
// previous version is deactivated, never mutated, so the audit history
// stays intact.
func (s *FieldStore) ReplaceConfig(ctx context.Context, fieldID string, next entities.AwdConfiguration) (*entities.AwdConfiguration, error) {
	var out entities.AwdConfiguration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur entities.AwdConfiguration
		err := tx.Where("field_id = ? AND active = ?", fieldID, true).First(&cur).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		version := 1
		if err == nil {
			version = cur.Version + 1
			if err := tx.Model(&cur).Update("active", false).Error; err != nil {
				return err
			}
		}
		out = next
		out.ID = 0
		out.FieldID = fieldID
		out.Version = version
		out.Active = true
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
