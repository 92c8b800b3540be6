package dashboard

import (
	"context"
	"time"

	"github.com/peter-wins/tradewatch/pkg/logger"
)

func (s *Server) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	s.bgWG.Add(2)
	go func() {
		defer s.bgWG.Done()
		s.snapshotLoop(ctx, s.cfg.SnapshotInterval)
	}()
	go func() {
		defer s.bgWG.Done()
		s.decisionSyncLoop(ctx, s.cfg.SnapshotInterval)
	}()
}

// snapshotLoop journals account equity on an interval so the curve
// survives upstream retention limits and dashboard restarts.
func (s *Server) snapshotLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.takeEquitySnapshot(ctx)
		}
	}
}

func (s *Server) takeEquitySnapshot(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	p, err := s.api.Portfolio(ctx)
	if err != nil {
		logger.Warnf("equity snapshot: portfolio fetch failed: %v", err)
		return
	}
	snap := EquitySnapshot{
		CashBalance:    p.CashBalance,
		PositionsValue: p.PositionsValue,
		TotalEquity:    p.TotalEquity,
		TS:             time.Now().UTC(),
	}
	if err := s.insertEquitySnapshot(ctx, snap); err != nil {
		logger.Errorf("equity snapshot: %v", err)
		return
	}
	logger.Debugf("equity snapshot recorded: %s", snap.TotalEquity)
}

// decisionSyncLoop mirrors the upstream decision log into the local
// journal.
func (s *Server) decisionSyncLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.syncDecisions(ctx)
		}
	}
}

func (s *Server) syncDecisions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	items, err := s.api.Decisions(ctx, 100)
	if err != nil {
		logger.Warnf("decision sync: %v", err)
		return
	}
	if len(items) == 0 {
		return
	}
	if err := s.upsertDecisions(ctx, items); err != nil {
		logger.Errorf("decision sync: %v", err)
	}
}
