package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peter-wins/tradewatch/internal/upstream"
	"github.com/peter-wins/tradewatch/pkg/equitychart"
	"github.com/peter-wins/tradewatch/pkg/logger"
	"github.com/peter-wins/tradewatch/pkg/querycache"
)

const handlerTimeout = 10 * time.Second

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	res, err := querycache.Load(ctx, s.cache, keyPortfolio, s.api.Portfolio, s.cacheOpts(portfolioStaleAfter))
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("portfolio: %v", err))
		return
	}
	if !res.HasData {
		// never fetched successfully: an explicit error state, not a
		// silent blank
		writeError(w, http.StatusBadGateway, fmt.Sprintf("portfolio unavailable: %v", res.Err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"portfolio":  res.Data,
		"status":     res.Status.String(),
		"fetched_at": res.FetchedAt,
		"error":      errString(res.Err),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	res, err := querycache.Load(ctx, s.cache, keyPositions, s.api.Positions, s.cacheOpts(positionsStaleAfter))
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("positions: %v", err))
		return
	}
	if !res.HasData {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("positions unavailable: %v", res.Err))
		return
	}
	items := res.Data
	if items == nil {
		items = []upstream.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"positions":  items,
		"status":     res.Status.String(),
		"fetched_at": res.FetchedAt,
		"error":      errString(res.Err),
	})
}

func (s *Server) handleEquity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	limit := parseLimit(r, 200, 2000)
	fetch := func(ctx context.Context) ([]equitychart.EquityPoint, error) {
		return s.api.EquityCurve(ctx, limit)
	}
	res, err := querycache.Load(ctx, s.cache, keyEquity(limit), fetch, s.cacheOpts(equityStaleAfter))
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("equity: %v", err))
		return
	}

	points := res.Data
	if !res.HasData || len(points) < limit {
		// top up from the local journal when upstream retention is
		// shorter than what the operator asked for
		journalled, jerr := s.listEquityPoints(ctx, limit)
		if jerr != nil {
			logger.Warnf("equity journal read failed: %v", jerr)
		} else {
			points = mergeEquityPoints(journalled, points, limit)
		}
	}
	if len(points) == 0 && res.Err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("equity unavailable: %v", res.Err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chart":      equitychart.Resample(points),
		"raw_count":  len(points),
		"status":     res.Status.String(),
		"fetched_at": res.FetchedAt,
		"error":      errString(res.Err),
	})
}

// mergeEquityPoints unions journal and upstream samples, dropping
// duplicate timestamps (upstream wins), keeping the newest limit
// points in chronological order.
func mergeEquityPoints(journalled, fetched []equitychart.EquityPoint, limit int) []equitychart.EquityPoint {
	seen := make(map[int64]struct{}, len(fetched))
	out := make([]equitychart.EquityPoint, 0, len(journalled)+len(fetched))
	for _, p := range fetched {
		seen[p.Timestamp.UnixNano()] = struct{}{}
		out = append(out, p)
	}
	for _, p := range journalled {
		if _, dup := seen[p.Timestamp.UnixNano()]; dup {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	limit := parseLimit(r, 100, 2000)
	fetch := func(ctx context.Context) ([]upstream.Decision, error) {
		return s.api.Decisions(ctx, limit)
	}
	res, err := querycache.Load(ctx, s.cache, keyDecisions(limit), fetch, s.cacheOpts(decisionsStaleAfter))
	if err != nil {
		writeError(w, http.StatusGatewayTimeout, fmt.Sprintf("decisions: %v", err))
		return
	}

	if res.HasData && len(res.Data) > 0 {
		if jerr := s.upsertDecisions(ctx, res.Data); jerr != nil {
			logger.Warnf("decision journal write failed: %v", jerr)
		}
	}

	items := res.Data
	if !res.HasData {
		// fall back to journalled history
		journalled, jerr := s.listDecisions(ctx, limit)
		if jerr == nil {
			items = journalled
		}
	}
	if items == nil && res.Err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("decisions unavailable: %v", res.Err))
		return
	}
	if items == nil {
		items = []upstream.Decision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decisions":  items,
		"status":     res.Status.String(),
		"fetched_at": res.FetchedAt,
		"error":      errString(res.Err),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.cache.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handlePositionClose(w http.ResponseWriter, r *http.Request) {
	positionID := strings.TrimSpace(pathParam(r, "positionID"))
	if positionID == "" {
		writeError(w, http.StatusBadRequest, "position id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()

	if err := s.api.ClosePosition(ctx, positionID); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("close position: %v", err))
		return
	}
	// server state changed; the next read must see it
	s.cache.Invalidate(keyPositions)
	s.cache.Invalidate(keyPortfolio)
	logger.Infof("position %s closed by operator", positionID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "position_id": positionID})
}

type protectionRequest struct {
	StopLoss   *string `json:"stop_loss"`
	TakeProfit *string `json:"take_profit"`
}

func (s *Server) handlePositionProtection(w http.ResponseWriter, r *http.Request) {
	positionID := strings.TrimSpace(pathParam(r, "positionID"))
	if positionID == "" {
		writeError(w, http.StatusBadRequest, "position id is required")
		return
	}
	var req protectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad body: %v", err))
		return
	}
	var p upstream.Protection
	if req.StopLoss != nil {
		v, err := decimal.NewFromString(strings.TrimSpace(*req.StopLoss))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bad stop_loss: %v", err))
			return
		}
		p.StopLoss = &v
	}
	if req.TakeProfit != nil {
		v, err := decimal.NewFromString(strings.TrimSpace(*req.TakeProfit))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("bad take_profit: %v", err))
			return
		}
		p.TakeProfit = &v
	}
	if p.StopLoss == nil && p.TakeProfit == nil {
		writeError(w, http.StatusBadRequest, "stop_loss or take_profit is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), handlerTimeout)
	defer cancel()
	if err := s.api.UpdateProtection(ctx, positionID, p); err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("update protection: %v", err))
		return
	}
	s.cache.Invalidate(keyPositions)
	s.cache.Invalidate(keyPortfolio)
	logger.Infof("position %s protection updated", positionID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "position_id": positionID})
}
