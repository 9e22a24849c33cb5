package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func newSession(id, fieldID string) *entities.IrrigationSession {
	return &entities.IrrigationSession{
		ID:            id,
		FieldID:       fieldID,
		StationCode:   "RG-01",
		StartTime:     time.Now().UTC(),
		TargetLevelCm: 5,
		ToleranceCm:   1,
		MaxDuration:   12 * time.Hour,
		GateLevel:     entities.GateMedium,
	}
}

func TestCreateActiveEnforcesOneActivePerField(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))

	err := s.CreateActive(ctx, newSession("s2", "field-01"))
	assert.ErrorIs(t, err, ErrConflict)

	// A different field is unaffected.
	assert.NoError(t, s.CreateActive(ctx, newSession("s3", "field-02")))
}

func TestCreateActiveAllowedAfterFinish(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))
	ok, err := s.Finish(ctx, "s1", entities.SessionCompleted, 5.2, "target reached")
	require.NoError(t, err)
	require.True(t, ok)

	assert.NoError(t, s.CreateActive(ctx, newSession("s2", "field-01")))
}

func TestFinishIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))

	ok, err := s.Finish(ctx, "s1", entities.SessionStopped, 3, "manual stop")
	require.NoError(t, err)
	assert.True(t, ok)

	// The second transition loses the conditional update.
	ok, err = s.Finish(ctx, "s1", entities.SessionStopped, 4, "manual stop again")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, entities.SessionStopped, got.Status)
	assert.Equal(t, "manual stop", got.StopReason)
	require.NotNil(t, got.AchievedLevelCm)
	assert.Equal(t, 3.0, *got.AchievedLevelCm)
}

func TestActiveForField(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	_, err := s.ActiveForField(ctx, "field-01")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))
	got, err := s.ActiveForField(ctx, "field-01")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, entities.SessionActive, got.Status)
}

func TestLatestForFieldReturnsNewest(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	first := newSession("s1", "field-01")
	first.StartTime = time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.CreateActive(ctx, first))
	_, err := s.Finish(ctx, "s1", entities.SessionCompleted, 5, "done")
	require.NoError(t, err)

	require.NoError(t, s.CreateActive(ctx, newSession("s2", "field-01")))

	got, err := s.LatestForField(ctx, "field-01")
	require.NoError(t, err)
	assert.Equal(t, "s2", got.ID)
}

func TestIncrementAnomalyCount(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))
	require.NoError(t, s.IncrementAnomalyCount(ctx, "s1"))
	require.NoError(t, s.IncrementAnomalyCount(ctx, "s1"))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AnomalyCount)
}

func TestListActiveAndCount(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(openTestDB(t))

	require.NoError(t, s.CreateActive(ctx, newSession("s1", "field-01")))
	require.NoError(t, s.CreateActive(ctx, newSession("s2", "field-02")))
	_, err := s.Finish(ctx, "s2", entities.SessionStopped, 1, "stop")
	require.NoError(t, err)

	n, err := s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
}
