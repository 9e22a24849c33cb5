// Package scada models the external gate-control system as an append-only
// command sink. This service writes {gate_name, gate_level, start_time,
// complete_status=pending} records; the external SCADA system polls them,
// actuates the gate hardware, and flips complete_status. We never talk to
// hardware directly.
package scada

import (
	"context"

	"github.com/munbon/awd-control/internal/model/entities"
)

// CommandSink is the pluggable command channel to the SCADA system.
type CommandSink interface {
	// Submit appends a gate command and returns the stored record.
	Submit(ctx context.Context, gateName string, gateLevel int, sessionID string) (*entities.GateCommand, error)
	// Status returns the current completion status of a command.
	Status(ctx context.Context, commandID string) (entities.CommandStatus, error)
	// CommandsForSession returns a session's commands, oldest first.
	CommandsForSession(ctx context.Context, sessionID string) ([]entities.GateCommand, error)
}
