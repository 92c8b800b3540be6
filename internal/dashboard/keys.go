package dashboard

import (
	"fmt"
	"time"

	"github.com/peter-wins/tradewatch/pkg/querycache"
)

// Freshness windows per resource. Positions are what the operator
// acts on, so they go stale fastest; the equity curve and decision
// log only grow at snapshot cadence.
const (
	portfolioStaleAfter = 30 * time.Second
	positionsStaleAfter = 15 * time.Second
	equityStaleAfter    = time.Minute
	decisionsStaleAfter = time.Minute
)

var (
	keyPortfolio = querycache.Key{Resource: "portfolio"}
	keyPositions = querycache.Key{Resource: "positions"}
)

func keyEquity(limit int) querycache.Key {
	return querycache.Key{Resource: "equity-curve", Params: fmt.Sprintf("limit=%d", limit)}
}

func keyDecisions(limit int) querycache.Key {
	return querycache.Key{Resource: "decisions", Params: fmt.Sprintf("limit=%d", limit)}
}

// cacheOpts builds per-resource cache options on top of the
// server-wide tuning.
func (s *Server) cacheOpts(staleAfter time.Duration) querycache.Options {
	if s.cfg.CacheStaleAfter > 0 {
		staleAfter = s.cfg.CacheStaleAfter
	}
	return querycache.Options{
		StaleAfter: staleAfter,
		RetainFor:  s.cfg.CacheRetainFor,
		MaxRetries: s.cfg.CacheMaxRetries,
	}
}
