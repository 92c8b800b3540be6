// Package dashboard serves the monitoring UI and JSON API for one
// automated trading account. All reads go through the query cache so
// any number of views share one upstream fetch per resource; mutating
// actions proxy upstream and invalidate the affected keys.
package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/peter-wins/tradewatch/internal/upstream"
	"github.com/peter-wins/tradewatch/pkg/querycache"
)

type Config struct {
	DBPath           string
	SnapshotInterval time.Duration

	// cache tuning; zero values use querycache defaults
	CacheStaleAfter time.Duration
	CacheRetainFor  time.Duration
	CacheMaxRetries int
}

type Server struct {
	cfg   Config
	db    *sql.DB
	cache *querycache.Store
	api   *upstream.Client

	bgCancel func()
	bgWG     sync.WaitGroup
}

func New(cfg Config, api *upstream.Client) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	if api == nil {
		return nil, errors.New("upstream client is required")
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = time.Minute
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// single connection keeps sqlite happy under concurrent handlers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Server{cfg: cfg, db: db, api: api, cache: querycache.New()}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.startBackground()
	return s, nil
}

func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgWG.Wait()
	}
	s.cache.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.wrap(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	api := r.Group("/api")
	api.GET("/portfolio", s.wrap(s.handlePortfolio))
	api.GET("/positions", s.wrap(s.handlePositions))
	api.GET("/equity", s.wrap(s.handleEquity))
	api.GET("/decisions", s.wrap(s.handleDecisions))
	api.POST("/refresh", s.wrap(s.handleRefresh))

	positions := api.Group("/positions")
	positions.POST("/:positionID/close", s.wrap(s.handlePositionClose))
	positions.POST("/:positionID/protection", s.wrap(s.handlePositionProtection))

	r.GET("/ws", s.wrap(s.handleWS))
	r.GET("/", s.wrap(s.handleUI))

	return r
}

type paramsKeyType string

const paramsKey paramsKeyType = "tradewatch_path_params"

// wrap adapts net/http handlers to gin, injecting path params into
// the request context.
func (s *Server) wrap(h func(http.ResponseWriter, *http.Request)) gin.HandlerFunc {
	return func(c *gin.Context) {
		m := map[string]string{}
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		ctx := context.WithValue(c.Request.Context(), paramsKey, m)
		c.Request = c.Request.WithContext(ctx)
		h(c.Writer, c.Request)
	}
}

func pathParam(r *http.Request, key string) string {
	if m, ok := r.Context().Value(paramsKey).(map[string]string); ok {
		return m[key]
	}
	return ""
}
