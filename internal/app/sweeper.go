package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/dashpulse/internal/domain"
	"github.com/pscheid92/dashpulse/internal/platform/correlation"
)

// Leadership decides which instance runs a singleton loop.
type Leadership interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// AgentSweeper periodically marks agents offline whose last heartbeat is
// older than staleAfter and publishes their new status.
type AgentSweeper struct {
	service    *Service
	store      domain.DashboardStore
	clock      clockwork.Clock
	interval   time.Duration
	staleAfter time.Duration
	leader     Leadership // nil means always sweep
	isLeader   bool
}

func NewAgentSweeper(service *Service, interval, staleAfter time.Duration, leader Leadership) *AgentSweeper {
	return &AgentSweeper{
		service:    service,
		store:      service.store,
		clock:      service.clock,
		interval:   interval,
		staleAfter: staleAfter,
		leader:     leader,
	}
}

// Run blocks until ctx is cancelled. Leadership is released on exit.
func (s *AgentSweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.resign()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tickCtx := correlation.WithID(ctx, correlation.NewID())
			if s.lead(tickCtx) {
				s.sweep(tickCtx)
			}
		}
	}
}

func (s *AgentSweeper) lead(ctx context.Context) bool {
	if s.leader == nil {
		return true
	}

	if s.isLeader {
		err := s.leader.Renew(ctx)
		if err == nil {
			return true
		}
		slog.WarnContext(ctx, "Sweeper: lost leadership", "error", err)
		s.isLeader = false
	}

	acquired, err := s.leader.TryAcquire(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Sweeper: leader election failed", "error", err)
		return false
	}
	if acquired {
		slog.InfoContext(ctx, "Sweeper: acquired leadership")
	}
	s.isLeader = acquired
	return acquired
}

func (s *AgentSweeper) resign() {
	if s.leader == nil || !s.isLeader {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.leader.Release(ctx); err != nil {
		slog.Warn("Sweeper: failed to release leadership", "error", err)
	}
	s.isLeader = false
}

func (s *AgentSweeper) sweep(ctx context.Context) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Sweeper: list agents failed", "error", err)
		return
	}

	cutoff := s.clock.Now().Add(-s.staleAfter)
	stale := func(a *domain.Agent) bool {
		return a.Status != domain.AgentOffline && a.LastSeen.Before(cutoff)
	}

	for _, listed := range agents {
		if !stale(&listed) {
			continue
		}

		// a heartbeat may have landed since the list was taken
		a, saved, err := s.store.UpdateAgent(ctx, listed.ID, func(a *domain.Agent) bool {
			if !stale(a) {
				return false
			}
			a.Status = domain.AgentOffline
			a.CurrentTaskID = ""
			return true
		})
		if err != nil {
			slog.WarnContext(ctx, "Sweeper: update agent failed", "agent_id", listed.ID, "error", err)
			continue
		}
		if !saved {
			continue
		}

		slog.InfoContext(ctx, "Sweeper: agent marked offline", "agent_id", a.ID, "last_seen", a.LastSeen)
		s.service.publishAgentStatus(ctx, a)
	}
}
