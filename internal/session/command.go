package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnknownCommand is returned by Dispatch for commands outside the closed set.
var ErrUnknownCommand = errors.New("unknown command")

// Command is one of StartSessionCommand, CreateMarkerCommand or StopSessionCommand.
type Command interface {
	Name() string
	isCommand()
}

// StartSessionCommand starts a new session.
type StartSessionCommand struct {
	DatabaseName          string `json:"databaseName"`
	AutoCreateStartRecord bool   `json:"autoCreateStartRecord"`
}

// CreateMarkerCommand adds a marker row to the active session.
type CreateMarkerCommand struct {
	Message string `json:"message"`
}

// StopSessionCommand ends the active session.
type StopSessionCommand struct{}

func (StartSessionCommand) Name() string { return ActionStartSession }
func (CreateMarkerCommand) Name() string { return ActionCreateMarker }
func (StopSessionCommand) Name() string  { return ActionStopSession }

func (StartSessionCommand) isCommand() {}
func (CreateMarkerCommand) isCommand() {}
func (StopSessionCommand) isCommand()  {}

// Dispatch runs cmd at the current time and returns the request id it was logged under.
func (m *Manager) Dispatch(ctx context.Context, cmd Command) (string, error) {
	requestID := uuid.NewString()
	if cmd == nil {
		return requestID, fmt.Errorf("%w: <nil>", ErrUnknownCommand)
	}

	l := log.With().Str("requestId", requestID).Str("command", cmd.Name()).Logger()
	ctx = l.WithContext(ctx)
	now := m.clock()

	var err error
	switch c := cmd.(type) {
	case StartSessionCommand:
		err = m.StartSession(ctx, now, c.AutoCreateStartRecord, c.DatabaseName)
	case CreateMarkerCommand:
		err = m.CreateMarker(ctx, now, c.Message)
	case StopSessionCommand:
		err = m.StopSession(ctx, now)
	default:
		err = fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}

	if err != nil {
		l.Warn().Err(err).Msg("Command failed")
	} else {
		l.Debug().Msg("Command handled")
	}
	return requestID, err
}
