package entities

import "time"

// Gate levels are the discrete valve settings the SCADA system accepts:
// 1 is fully closed, 2..4 are increasing openings.
const (
	GateClosed  = 1
	GateLow     = 2
	GateMedium  = 3
	GateFull    = 4
	GateMaxOpen = GateFull
)

// CommandStatus tracks the SCADA sink's asynchronous execution of a gate
// command. The external system polls pending commands, actuates the gate,
// and flips the status to complete; this service only appends and reads.
type CommandStatus string

const (
	CommandPending  CommandStatus = "pending"
	CommandComplete CommandStatus = "complete"
)

// GateCommand is one append-only record in the SCADA command table.
type GateCommand struct {
	ID             string        `gorm:"primaryKey" json:"id"`
	GateName       string        `gorm:"index" json:"gate_name"`
	GateLevel      int           `json:"gate_level"`
	StartTime      time.Time     `json:"start_time"`
	CompleteStatus CommandStatus `gorm:"index" json:"complete_status"`
	SessionID      string        `gorm:"index" json:"session_id"`

	// Acknowledged is set by the completion poller once the flipped status
	// has been observed and reported.
	Acknowledged bool `gorm:"index" json:"acknowledged"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Open reports whether the command opens the gate (any level above closed).
func (c *GateCommand) Open() bool { return c.GateLevel > GateClosed }
