package dashboard

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/peter-wins/tradewatch/internal/upstream"
	"github.com/peter-wins/tradewatch/pkg/logger"
	"github.com/peter-wins/tradewatch/pkg/querycache"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsSnapshot struct {
	Portfolio       *upstream.Portfolio `json:"portfolio,omitempty"`
	PortfolioStatus string              `json:"portfolio_status"`
	Positions       []upstream.Position `json:"positions"`
	PositionsStatus string              `json:"positions_status"`
	TS              time.Time           `json:"ts"`
}

// handleWS pushes the dashboard snapshot once a second until the
// client goes away. Reads are non-blocking cache observations, so a
// slow upstream never stalls the push loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.C:
			if err := conn.WriteJSON(s.wsState()); err != nil {
				return // client disconnected
			}
		}
	}
}

func (s *Server) wsState() wsSnapshot {
	snap := wsSnapshot{TS: time.Now().UTC(), Positions: []upstream.Position{}}

	pres := querycache.Get(s.cache, keyPortfolio, s.api.Portfolio, s.cacheOpts(portfolioStaleAfter))
	snap.PortfolioStatus = pres.Status.String()
	if pres.HasData {
		p := pres.Data
		snap.Portfolio = &p
	}

	posres := querycache.Get(s.cache, keyPositions, s.api.Positions, s.cacheOpts(positionsStaleAfter))
	snap.PositionsStatus = posres.Status.String()
	if posres.HasData && posres.Data != nil {
		snap.Positions = posres.Data
	}
	return snap
}
