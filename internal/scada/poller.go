package scada

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/munbon/awd-control/internal/model/entities"
)

// Poller watches the command table for status flips performed by the
// external SCADA system and acknowledges them. There is no callback from
// the SCADA side, only this polling loop.
type Poller struct {
	db       *gorm.DB
	interval time.Duration

	// onComplete is invoked once per command after its completion has been
	// observed, so the control service can update metrics/session state.
	onComplete func(cmd entities.GateCommand)

	// selfAck simulates the external SCADA executor for local development:
	// pending commands older than the grace window are flipped to complete
	// by the poller itself.
	selfAck      bool
	selfAckAfter time.Duration
}

func NewPoller(db *gorm.DB, interval time.Duration, onComplete func(entities.GateCommand)) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{db: db, interval: interval, onComplete: onComplete}
}

// EnableSelfAck turns on the local-development executor simulation.
func (p *Poller) EnableSelfAck(after time.Duration) {
	p.selfAck = true
	if after <= 0 {
		after = 5 * time.Second
	}
	p.selfAckAfter = after
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if p.selfAck {
		cutoff := time.Now().UTC().Add(-p.selfAckAfter)
		res := p.db.WithContext(ctx).Model(&entities.GateCommand{}).
			Where("complete_status = ? AND created_at < ?", entities.CommandPending, cutoff).
			Update("complete_status", entities.CommandComplete)
		if res.Error != nil {
			log.Printf("scada: self-ack error: %v", res.Error)
		}
	}

	var done []entities.GateCommand
	err := p.db.WithContext(ctx).
		Where("complete_status = ? AND acknowledged = ?", entities.CommandComplete, false).
		Order("created_at ASC").
		Limit(100).
		Find(&done).Error
	if err != nil {
		log.Printf("scada: poll error: %v", err)
		return
	}

	for _, cmd := range done {
		if err := p.db.WithContext(ctx).Model(&entities.GateCommand{}).
			Where("id = ?", cmd.ID).
			Update("acknowledged", true).Error; err != nil {
			log.Printf("scada: ack %s error: %v", cmd.ID, err)
			continue
		}
		log.Printf("scada: command %s gate=%s level=%d completed", cmd.ID, cmd.GateName, cmd.GateLevel)
		if p.onComplete != nil {
			p.onComplete(cmd)
		}
	}
}
