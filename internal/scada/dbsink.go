package scada

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// ErrCommand wraps SCADA sink write failures. Callers log it and keep the
// session alive: the sink's own polling mechanism is responsible for
// retries, not the controller.
var ErrCommand = errors.New("gate command write failed")

// DBSink implements CommandSink against the shared gate_level_commands
// table, the pattern the external SCADA poller already understands.
type DBSink struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewDBSink(db *gorm.DB, timeout time.Duration) *DBSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DBSink{db: db, timeout: timeout}
}

func (s *DBSink) Submit(ctx context.Context, gateName string, gateLevel int, sessionID string) (*entities.GateCommand, error) {
	if gateLevel < entities.GateClosed {
		gateLevel = entities.GateClosed
	}
	if gateLevel > entities.GateMaxOpen {
		gateLevel = entities.GateMaxOpen
	}
	cmd := entities.GateCommand{
		ID:             uuid.New().String(),
		GateName:       gateName,
		GateLevel:      gateLevel,
		StartTime:      time.Now().UTC(),
		CompleteStatus: entities.CommandPending,
		SessionID:      sessionID,
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.WithContext(cctx).Create(&cmd).Error; err != nil {
		return nil, fmt.Errorf("%w: gate=%s level=%d: %v", ErrCommand, gateName, gateLevel, err)
	}
	log.Printf("scada: queued gate command %s gate=%s level=%d session=%s", cmd.ID, gateName, gateLevel, sessionID)
	return &cmd, nil
}

func (s *DBSink) Status(ctx context.Context, commandID string) (entities.CommandStatus, error) {
	var cmd entities.GateCommand
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.WithContext(cctx).First(&cmd, "id = ?", commandID).Error; err != nil {
		return "", err
	}
	return cmd.CompleteStatus, nil
}

func (s *DBSink) CommandsForSession(ctx context.Context, sessionID string) ([]entities.GateCommand, error) {
	var out []entities.GateCommand
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

var _ CommandSink = (*DBSink)(nil)
