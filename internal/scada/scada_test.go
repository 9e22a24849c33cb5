package scada

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
	"github.com/munbon/awd-control/internal/store"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return db
}

func TestSubmitClampsGateLevel(t *testing.T) {
	sink := NewDBSink(openTestDB(t), time.Second)
	ctx := context.Background()

	low, err := sink.Submit(ctx, "RG-01", 0, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, entities.GateClosed, low.GateLevel)

	high, err := sink.Submit(ctx, "RG-01", 9, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, entities.GateMaxOpen, high.GateLevel)
	assert.Equal(t, entities.CommandPending, high.CompleteStatus)
}

func TestStatusTracksExternalCompletion(t *testing.T) {
	db := openTestDB(t)
	sink := NewDBSink(db, time.Second)
	ctx := context.Background()

	cmd, err := sink.Submit(ctx, "RG-01", entities.GateMedium, "sess-1")
	require.NoError(t, err)

	st, err := sink.Status(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CommandPending, st)

	// The external executor flips the status; this service only reads it.
	require.NoError(t, db.Model(&entities.GateCommand{}).
		Where("id = ?", cmd.ID).
		Update("complete_status", entities.CommandComplete).Error)

	st, err = sink.Status(ctx, cmd.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.CommandComplete, st)
}

func TestCommandsForSessionOrderedAndScoped(t *testing.T) {
	db := openTestDB(t)
	sink := NewDBSink(db, time.Second)
	ctx := context.Background()

	open, err := sink.Submit(ctx, "RG-01", entities.GateLow, "sess-1")
	require.NoError(t, err)
	_, err = sink.Submit(ctx, "RG-02", entities.GateFull, "sess-2")
	require.NoError(t, err)
	closed, err := sink.Submit(ctx, "RG-01", entities.GateClosed, "sess-1")
	require.NoError(t, err)

	cmds, err := sink.CommandsForSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, open.ID, cmds[0].ID)
	assert.Equal(t, closed.ID, cmds[1].ID)
	assert.True(t, cmds[0].Open())
	assert.False(t, cmds[1].Open())
}

func TestPollerAcknowledgesCompletedCommands(t *testing.T) {
	db := openTestDB(t)
	sink := NewDBSink(db, time.Second)
	ctx := context.Background()

	cmd, err := sink.Submit(ctx, "RG-01", entities.GateMedium, "sess-1")
	require.NoError(t, err)
	require.NoError(t, db.Model(&entities.GateCommand{}).
		Where("id = ?", cmd.ID).
		Update("complete_status", entities.CommandComplete).Error)

	var seen []string
	p := NewPoller(db, time.Second, func(c entities.GateCommand) { seen = append(seen, c.ID) })

	p.poll(ctx)
	require.Equal(t, []string{cmd.ID}, seen)

	// Already acknowledged commands are not reported again.
	p.poll(ctx)
	assert.Len(t, seen, 1)

	var stored entities.GateCommand
	require.NoError(t, db.First(&stored, "id = ?", cmd.ID).Error)
	assert.True(t, stored.Acknowledged)
}

func TestPollerSelfAckFlipsStalePending(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	stale := entities.GateCommand{
		ID:             "cmd-stale",
		GateName:       "RG-01",
		GateLevel:      entities.GateLow,
		StartTime:      time.Now().UTC().Add(-time.Minute),
		CompleteStatus: entities.CommandPending,
		SessionID:      "sess-1",
		CreatedAt:      time.Now().UTC().Add(-time.Minute),
	}
	require.NoError(t, db.Create(&stale).Error)

	fresh := entities.GateCommand{
		ID:             "cmd-fresh",
		GateName:       "RG-01",
		GateLevel:      entities.GateLow,
		StartTime:      time.Now().UTC(),
		CompleteStatus: entities.CommandPending,
		SessionID:      "sess-1",
	}
	require.NoError(t, db.Create(&fresh).Error)

	var seen []string
	p := NewPoller(db, time.Second, func(c entities.GateCommand) { seen = append(seen, c.ID) })
	p.EnableSelfAck(10 * time.Second)

	p.poll(ctx)
	assert.Equal(t, []string{"cmd-stale"}, seen)

	var kept entities.GateCommand
	require.NoError(t, db.First(&kept, "id = ?", "cmd-fresh").Error)
	assert.Equal(t, entities.CommandPending, kept.CompleteStatus)
}
