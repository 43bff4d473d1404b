package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/notionstamp/internal/config"
	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/pkg/models"
)

// Lifecycle is driven by the host. One call completes before the next begins.
type Lifecycle interface {
	OnInit(cfg *config.Config) error
	OnConfigChanged(cfg *config.Config) error
	OnShutdown(ctx context.Context) error
}

var _ Lifecycle = (*Manager)(nil)

// OnInit applies the initial configuration and reports status.
// An invalid config is reported as bad_config and returned.
func (m *Manager) OnInit(cfg *config.Config) error {
	if err := m.slot.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer m.slot.Release(1)

	err := m.applyConfig(cfg)
	log.Info().Int("actions", len(Actions())).Msg("Action definitions published")
	return err
}

// OnConfigChanged swaps in a new configuration. The active session is kept.
func (m *Manager) OnConfigChanged(cfg *config.Config) error {
	if err := m.slot.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer m.slot.Release(1)

	log.Info().Msg("Configuration updated")
	return m.applyConfig(cfg)
}

// OnShutdown emits the teardown message if a session is active.
func (m *Manager) OnShutdown(ctx context.Context) error {
	if err := m.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer m.slot.Release(1)

	log.Debug().Msg("destroying")
	err := m.destroy(ctx, m.clock())
	log.Debug().Msg("destroyed")
	return err
}

func (m *Manager) applyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		m.mu.Lock()
		m.configErr = err
		m.mu.Unlock()

		log.Warn().Err(err).Msg("Invalid configuration")
		m.setStatus(models.Status{Level: models.StatusBadConfig, Message: err.Error()})
		return err
	}

	sender := m.newSender(cfg)

	m.mu.Lock()
	m.sender = sender
	m.parentPageID = cfg.ParentPageID
	m.style = notion.ParseTimestampStyle(cfg.TimestampStyle)
	m.configErr = nil
	m.mu.Unlock()

	m.setStatus(models.Status{Level: models.StatusOK})
	return nil
}
