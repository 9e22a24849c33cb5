package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
)

func testFieldRecord(id string) *entities.Field {
	return &entities.Field{
		ID:                 id,
		Name:               "Test Paddy",
		AreaHa:             1.5,
		PlantingMethod:     entities.PlantingTransplanted,
		AwdEnabled:         true,
		ScheduleAnchorDate: time.Now().AddDate(0, 0, -14),
		StationCode:        "RG-01",
	}
}

func TestRegisterAppliesDefaultConfig(t *testing.T) {
	ctx := context.Background()
	s := NewFieldStore(openTestDB(t))

	require.NoError(t, s.Register(ctx, testFieldRecord("field-01"), nil))

	cfg, err := s.ActiveConfig(ctx, "field-01")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)
	assert.True(t, cfg.Active)
	assert.Equal(t, 15.0, cfg.SafeAwdDepthCm)
	assert.Equal(t, 20.0, cfg.EmergencyMoisturePct)
}

func TestGetUnknownFieldIsNotFound(t *testing.T) {
	s := NewFieldStore(openTestDB(t))

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceConfigVersionsAndDeactivates(t *testing.T) {
	ctx := context.Background()
	s := NewFieldStore(openTestDB(t))
	require.NoError(t, s.Register(ctx, testFieldRecord("field-01"), nil))

	next := entities.DefaultAwdConfiguration("field-01")
	next.SafeAwdDepthCm = 12

	saved, err := s.ReplaceConfig(ctx, "field-01", next)
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.True(t, saved.Active)

	active, err := s.ActiveConfig(ctx, "field-01")
	require.NoError(t, err)
	assert.Equal(t, 12.0, active.SafeAwdDepthCm)
	assert.Equal(t, 2, active.Version)
}

func TestListEnabledFiltersDisabledFields(t *testing.T) {
	ctx := context.Background()
	s := NewFieldStore(openTestDB(t))

	require.NoError(t, s.Register(ctx, testFieldRecord("field-01"), nil))
	off := testFieldRecord("field-02")
	off.AwdEnabled = false
	require.NoError(t, s.Register(ctx, off, nil))

	list, err := s.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "field-01", list[0].ID)
}
