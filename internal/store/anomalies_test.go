package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munbon/awd-control/internal/model/entities"
)

func appendAnomaly(t *testing.T, s *AnomalyStore, fieldID string, typ entities.AnomalyType, sev entities.AnomalySeverity, at time.Time) *entities.Anomaly {
	t.Helper()
	a := &entities.Anomaly{
		SessionID:   "s1",
		FieldID:     fieldID,
		Type:        typ,
		Severity:    sev,
		DetectedAt:  at,
		Description: "test anomaly",
	}
	require.NoError(t, s.Append(context.Background(), a))
	return a
}

func TestAnomalyListFilters(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore(openTestDB(t))
	now := time.Now().UTC()

	appendAnomaly(t, s, "field-01", entities.AnomalyLowFlow, entities.SeverityWarning, now.Add(-time.Hour))
	appendAnomaly(t, s, "field-01", entities.AnomalyNoRise, entities.SeverityCritical, now.Add(-30*time.Minute))
	appendAnomaly(t, s, "field-02", entities.AnomalyRapidDrop, entities.SeverityCritical, now.Add(-10*time.Minute))

	list, total, err := s.List(ctx, AnomalyFilter{FieldID: "field-01"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	// Newest first.
	assert.Equal(t, entities.AnomalyNoRise, list[0].Type)

	list, total, err = s.List(ctx, AnomalyFilter{Severity: entities.SeverityCritical})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)

	list, total, err = s.List(ctx, AnomalyFilter{Since: now.Add(-20 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "field-02", list[0].FieldID)
}

func TestAnomalyListPagination(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore(openTestDB(t))
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		appendAnomaly(t, s, "field-01", entities.AnomalyLowFlow, entities.SeverityWarning,
			now.Add(-time.Duration(i)*time.Minute))
	}

	page1, total, err := s.List(ctx, AnomalyFilter{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page1, 2)

	page3, _, err := s.List(ctx, AnomalyFilter{Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestAnomalyResolve(t *testing.T) {
	ctx := context.Background()
	s := NewAnomalyStore(openTestDB(t))

	a := appendAnomaly(t, s, "field-01", entities.AnomalySensorFailure, entities.SeverityWarning, time.Now().UTC())
	require.NoError(t, s.Resolve(ctx, a.ID, "sensor replaced"))

	// A second resolve finds nothing open.
	assert.ErrorIs(t, s.Resolve(ctx, a.ID, "again"), ErrNotFound)

	resolved := true
	list, total, err := s.List(ctx, AnomalyFilter{Resolved: &resolved})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "sensor replaced", list[0].ResolutionAction)
}
