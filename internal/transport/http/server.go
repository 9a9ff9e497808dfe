package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"backcast/internal/market"
	"backcast/internal/runtime"
)

// LaunchRequest 触发一次回放的请求体。
type LaunchRequest struct {
	Profile     string   `json:"profile"`
	Market      string   `json:"market"` // crypto / equity
	Symbols     []string `json:"symbols" binding:"required"`
	Interval    string   `json:"interval"`
	Lookback    int      `json:"lookback"`
	StartTS     int64    `json:"start_ts" binding:"required"`
	EndTS       int64    `json:"end_ts" binding:"required"`
	CycleMS     int64    `json:"cycle_ms"`
	SlippageBps float64  `json:"slippage_bps"`
	FeeBps      float64  `json:"fee_bps"`
	PerUnitFee  float64  `json:"per_unit_fee"`
	Notes       string   `json:"notes"`
}

// RunLauncher 启动回放任务并跟踪进行中的任务。
type RunLauncher interface {
	Launch(ctx context.Context, req LaunchRequest) (runtime.Run, error)
	Progress(id string) (runtime.Run, bool)
}

// RunStore 已完成任务的查询端。
type RunStore interface {
	GetRun(ctx context.Context, id string) (runtime.Run, bool, error)
	ListRuns(ctx context.Context, limit int) ([]runtime.Run, error)
	ListFills(ctx context.Context, runID string) ([]runtime.Fill, error)
}

// CandleQuerier 落库 K 线的查询端。
type CandleQuerier interface {
	QueryCandles(ctx context.Context, symbolKey, interval string, start, end int64, limit int) ([]market.Candle, error)
}

// Server 提供 Gin 接口，供前端触发回放/查询进度与结果。
type Server struct {
	addr     string
	launcher RunLauncher
	store    RunStore
	candles  CandleQuerier
	router   *gin.Engine
}

type Config struct {
	Addr     string
	Launcher RunLauncher
	Store    RunStore
	Candles  CandleQuerier
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Launcher == nil {
		return nil, errors.New("launcher 不能为空")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:     cfg.Addr,
		launcher: cfg.Launcher,
		store:    cfg.Store,
		candles:  cfg.Candles,
		router:   router,
	}
	s.registerRoutes()
	return s, nil
}

// Handler 暴露底层路由，便于测试。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := s.router.Group("/api/backcast")
	api.POST("/runs", s.handleRunStart)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/progress", s.handleRunProgress)
	api.GET("/runs/:id/fills", s.handleRunFills)
	api.GET("/candles", s.handleCandles)
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req LaunchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.launcher.Launch(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []runtime.Run{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	runs, err := s.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	id := c.Param("id")
	if run, ok := s.launcher.Progress(id); ok {
		c.JSON(http.StatusOK, gin.H{"run": run})
		return
	}
	if s.store != nil {
		run, ok, err := s.store.GetRun(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if ok {
			c.JSON(http.StatusOK, gin.H{"run": run})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
}

func (s *Server) handleRunProgress(c *gin.Context) {
	id := c.Param("id")
	if run, ok := s.launcher.Progress(id); ok {
		c.JSON(http.StatusOK, gin.H{
			"id":           run.ID,
			"status":       run.Status,
			"progress_pct": run.ProgressPct,
		})
		return
	}
	if s.store != nil {
		run, ok, err := s.store.GetRun(c.Request.Context(), id)
		if err == nil && ok {
			pct := 0.0
			if run.Status == runtime.RunStatusDone {
				pct = 100.0
			}
			c.JSON(http.StatusOK, gin.H{"id": run.ID, "status": run.Status, "progress_pct": pct})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
}

func (s *Server) handleRunFills(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "store not configured"})
		return
	}
	fills, err := s.store.ListFills(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"fills": fills})
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.candles == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "candle store not configured"})
		return
	}
	symbolKey := c.Query("symbol")
	interval := c.DefaultQuery("interval", "1m")
	if symbolKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol 不能为空"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "500"))
	candles, err := s.candles.QueryCandles(c.Request.Context(), symbolKey, interval, start, end, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

// Start 启动 HTTP 服务，阻塞直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
