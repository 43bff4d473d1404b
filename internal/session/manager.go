// Package session tracks the active Notion logging session and relays
// operator commands to the Notion API.
package session

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/thebtf/notionstamp/internal/config"
	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/pkg/models"
)

// ISOLayout matches the millisecond UTC form used for companionTimeDate.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Message texts emitted on session transitions.
const (
	MessageStart   = "start"
	MessageStop    = "stop"
	MessageDestroy = "stopped during destroy"
)

// ErrNotConfigured is returned when a session is started without valid config.
var ErrNotConfigured = errors.New("notion relay is not configured")

// Sender is the transport used to reach Notion.
type Sender interface {
	CreateDatabase(ctx context.Context, payload notion.DatabasePayload) (*notion.Result, error)
	CreatePage(ctx context.Context, payload notion.PagePayload) (*notion.Result, error)
}

// SenderFactory builds a Sender from configuration.
type SenderFactory func(cfg *config.Config) Sender

// DefaultSenderFactory returns a notion.Client for cfg.
func DefaultSenderFactory(cfg *config.Config) Sender {
	return notion.NewClient(notion.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
	})
}

// Manager owns the session state. Session-mutating operations run one at a
// time through a single-slot semaphore, so a restart's "stop" always lands
// before the new database is created.
type Manager struct {
	slot *semaphore.Weighted

	mu           sync.Mutex
	session      models.Session
	status       models.Status
	sender       Sender
	parentPageID string
	style        notion.TimestampStyle
	configErr    error

	newSender SenderFactory
	clock     func() time.Time
	observer  func(models.Snapshot)
}

// Option configures a Manager.
type Option func(*Manager)

// WithSenderFactory overrides how the Notion transport is built.
func WithSenderFactory(f SenderFactory) Option {
	return func(m *Manager) { m.newSender = f }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithObserver registers a callback invoked with a snapshot after every change.
func WithObserver(fn func(models.Snapshot)) Option {
	return func(m *Manager) { m.observer = fn }
}

// NewManager creates an unconfigured Manager. Call OnInit before dispatching.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		slot:      semaphore.NewWeighted(1),
		newSender: DefaultSenderFactory,
		clock:     time.Now,
		style:     notion.StyleFull,
		configErr: ErrNotConfigured,
		status:    models.Status{Level: models.StatusConnecting},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the session and status.
func (m *Manager) Snapshot() models.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.Snapshot{Session: m.session, Status: m.status}
}

// StartSession stops any active session, then creates a new database.
// An empty databaseName defaults to the ISO timestamp of now.
func (m *Manager) StartSession(ctx context.Context, now time.Time, autoCreateStartRecord bool, databaseName string) error {
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.slot.Release(1)
	return m.startSession(ctx, now, autoCreateStartRecord, databaseName)
}

// StopSession emits "stop" and clears the session whatever the send outcome.
func (m *Manager) StopSession(ctx context.Context, now time.Time) error {
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.slot.Release(1)
	return m.stopSession(ctx, now)
}

// CreateMarker emits message with empty details. No-op when inactive.
func (m *Manager) CreateMarker(ctx context.Context, now time.Time, message string) error {
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.slot.Release(1)
	return m.createMessage(ctx, now, strings.TrimSpace(message), "")
}

func (m *Manager) startSession(ctx context.Context, now time.Time, autoCreateStartRecord bool, databaseName string) error {
	m.mu.Lock()
	active := m.session.Active
	sender, parentPageID, configErr := m.sender, m.parentPageID, m.configErr
	m.mu.Unlock()

	if configErr != nil {
		return configErr
	}

	if active {
		if err := m.stopSession(ctx, now); err != nil {
			logger(ctx).Warn().Err(err).Msg("Stop of previous session failed, starting new session anyway")
		}
	}

	databaseName = strings.TrimSpace(databaseName)
	if databaseName == "" {
		databaseName = now.UTC().Format(ISOLayout)
	}

	logger(ctx).Info().Str("databaseName", databaseName).Bool("autoStart", autoCreateStartRecord).Msg("Creating session database")

	result, err := sender.CreateDatabase(ctx, notion.NewDatabasePayload(parentPageID, databaseName))
	return m.handleResult(ctx, now, result, err, autoCreateStartRecord)
}

func (m *Manager) stopSession(ctx context.Context, now time.Time) error {
	err := m.createMessage(ctx, now, MessageStop, "")

	m.mu.Lock()
	wasActive := m.session.Active
	m.session.Reset()
	m.mu.Unlock()

	if wasActive {
		logger(ctx).Info().Msg("Session stopped")
	}
	m.notify()
	return err
}

// createMessage appends one row to the active database. The first message
// of a session without a start time initialises it, so its elapsed time is 0.
func (m *Manager) createMessage(ctx context.Context, now time.Time, text, details string) error {
	nowMs := now.UnixMilli()

	m.mu.Lock()
	if !m.session.Active {
		m.mu.Unlock()
		return nil
	}
	if m.session.StartTime == 0 {
		m.session.StartTime = nowMs
	}
	databaseID, startMs := m.session.DatabaseID, m.session.StartTime
	sender, style := m.sender, m.style
	m.mu.Unlock()

	payload := notion.NewPagePayload(notion.Message{
		DatabaseID:     databaseID,
		Text:           text,
		NowMillis:      nowMs,
		ISODate:        now.UTC().Format(ISOLayout),
		ElapsedMillis:  nowMs - startMs,
		Timestamp:      notion.FormatElapsed(nowMs, startMs, style),
		LoggingDetails: details,
	})

	logger(ctx).Debug().Str("databaseId", databaseID).Str("message", text).Msg("Creating message")

	result, err := sender.CreatePage(ctx, payload)
	return m.handleResult(ctx, now, result, err, false)
}

// handleResult maps a response shape onto session state and status.
func (m *Manager) handleResult(ctx context.Context, now time.Time, result *notion.Result, err error, autoCreateStartRecord bool) error {
	if err != nil {
		var remote *notion.RemoteError
		if errors.As(err, &remote) {
			logger(ctx).Error().Str("code", remote.Code).Int("status", remote.Status).Msg(remote.Code + " " + remote.Message)
			m.setStatus(models.Status{
				Level:      models.StatusUnknownError,
				Code:       remote.Code,
				Message:    remote.Message,
				HTTPStatus: remote.Status,
			})
			return err
		}

		code := "unknown"
		var transport *notion.TransportError
		if errors.As(err, &transport) {
			code = transport.Code
		}
		logger(ctx).Error().Err(err).Str("code", code).Msg("Notion Send Failed")
		m.setStatus(models.Status{
			Level:   models.StatusUnknownError,
			Code:    code,
			Message: "Unknown Error Sending to Notion",
		})
		return err
	}

	if result != nil && result.Kind == notion.KindDatabase {
		m.mu.Lock()
		m.session.Active = true
		m.session.DatabaseID = result.ID
		if autoCreateStartRecord {
			m.session.StartTime = now.UnixMilli()
		}
		m.mu.Unlock()

		logger(ctx).Info().Str("databaseId", result.ID).Msg("Session started")
		m.setStatus(models.Status{Level: models.StatusOK})

		if autoCreateStartRecord {
			return m.createMessage(ctx, now, MessageStart, "")
		}
		return nil
	}

	m.setStatus(models.Status{Level: models.StatusOK})
	return nil
}

func (m *Manager) setStatus(status models.Status) {
	status.UpdatedAt = m.clock()
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) notify() {
	if m.observer == nil {
		return
	}
	m.observer(m.Snapshot())
}

// destroy emits the teardown message for an active session and ends it.
func (m *Manager) destroy(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	active := m.session.Active
	m.mu.Unlock()
	if !active {
		return nil
	}

	err := m.createMessage(ctx, now, MessageDestroy, string(debug.Stack()))

	m.mu.Lock()
	m.session.Reset()
	m.mu.Unlock()
	m.notify()
	return err
}

// logger returns the request-scoped logger from ctx, or the global logger.
func logger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}
