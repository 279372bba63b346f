package routing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"civicwatch/config"
	"civicwatch/core/incidents"
	"civicwatch/core/store"
	"civicwatch/core/utils"
)

// Sweeper re-evaluates escalation across all open incidents on a cron
// schedule. Losing a version race to a user-triggered transition is
// fine: the incident is picked up again on the next tick.
type Sweeper struct {
	engine     *Engine
	incidents  store.IncidentsStore
	dispatcher incidents.Dispatcher
	cfg        *config.AppConfig
	logger     *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewSweeper(engine *Engine, incidentsStore store.IncidentsStore, dispatcher incidents.Dispatcher, cfg *config.AppConfig, logger *utils.Logger) *Sweeper {
	return &Sweeper{engine: engine, incidents: incidentsStore, dispatcher: dispatcher, cfg: cfg, logger: logger}
}

func (s *Sweeper) StartWithContext(ctx context.Context) error {
	if s == nil || s.engine == nil || !s.cfg.Escalation.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)

	spec := s.cfg.Escalation.SweepSpec
	if spec == "" {
		spec = "@every 1m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := s.SweepOnce(runCtx, time.Now().UTC()); err != nil && s.logger != nil {
			s.logger.Errorf("escalation sweep: %v", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	if s.logger != nil {
		s.logger.Printf("escalation sweeper started (%s)", spec)
	}
	return nil
}

func (s *Sweeper) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	cancel()
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SweepOnce walks every non-terminal incident once. Conflicts are
// skipped, other failures are logged and the walk continues.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) error {
	open, err := s.incidents.ListIncidents(ctx, store.IncidentFilter{NonTerminal: true})
	if err != nil {
		return err
	}
	for i := range open {
		incident := open[i]
		esc, err := s.engine.EvaluateEscalation(ctx, &incident, now)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if s.logger != nil {
				s.logger.Errorf("escalate incident %s: %v", incident.ID, err)
			}
			continue
		}
		if esc == nil {
			continue
		}
		if s.logger != nil {
			s.logger.Printf("incident %s escalated: %s", incident.ID, esc.Reason)
		}
		if s.dispatcher != nil {
			event := incidents.Event{Type: "incident.escalated", IncidentID: incident.ID}
			if err := s.dispatcher.Notify(ctx, event); err != nil && s.logger != nil {
				s.logger.Errorf("notify escalation incident=%s: %v", incident.ID, err)
			}
		}
	}
	return nil
}
