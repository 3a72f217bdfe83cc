package api

import (
	"context"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"kestrel/internal/agent"
	"kestrel/internal/event"
	"kestrel/internal/gateway/database"
	"kestrel/internal/logger"
	"kestrel/internal/pkg/format"
	"kestrel/internal/transport/web"
	"kestrel/internal/venue"
)

// AgentView 暴露代理的只读状态与手动触发入口，避免 HTTP 层直接持有 Agent。
type AgentView interface {
	State() agent.State
	Pairs() []string
	Trigger() bool
}

// ServerConfig 运维接口的装配参数。除 Addr 与 Agent 外都允许为空，
// 对应路由会返回"未启用"。
type ServerConfig struct {
	Addr    string
	Env     string
	Agent   AgentView
	Store   *database.Store
	Bus     *event.Bus
	Venue   venue.Client
	Prices  *venue.PriceCache
	Metrics http.Handler
}

// Server 只读运维接口 + 手动触发周期。不承载任何交易逻辑。
type Server struct {
	cfg       ServerConfig
	srv       *http.Server
	startedAt time.Time
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8880"
	}
	s := &Server{cfg: cfg, startedAt: time.Now()}

	if !strings.EqualFold(cfg.Env, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	g := engine.Group("/api")
	g.GET("/health", s.handleHealth)
	g.GET("/status", s.handleStatus)
	g.GET("/positions", s.handlePositions)
	g.GET("/account", s.handleAccount)
	g.GET("/decisions", s.handleDecisions)
	g.GET("/cycles", s.handleCycles)
	g.GET("/trades", s.handleTrades)
	g.GET("/events", s.handleEvents)
	g.GET("/events/recent", s.handleRecentEvents)
	g.POST("/cycle/trigger", s.handleTrigger)

	if cfg.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// 内嵌控制台：纯静态页面，数据全部走上面的只读接口
	engine.SetHTMLTemplate(template.Must(template.ParseFS(web.Templates, "templates/*.html")))
	if sub, err := fs.Sub(web.Static, "static"); err == nil {
		engine.StaticFS("/static", http.FS(sub))
	}
	engine.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", nil)
	})

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

func (s *Server) Addr() string { return s.cfg.Addr }

// Start 监听并阻塞到 ctx 取消，随后优雅关停。
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(ln) }()
	logger.Infof("✓ 运维接口监听 %s", s.srv.Addr)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutCtx)
		return nil
	case err := <-errc:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	uptime := time.Since(s.startedAt)
	resp := gin.H{
		"env":      s.cfg.Env,
		"uptime_s": uptime.Seconds(),
		"uptime":   format.Duration(uptime.Milliseconds()),
	}
	if s.cfg.Agent != nil {
		resp["state"] = s.cfg.Agent.State().String()
		resp["pairs"] = s.cfg.Agent.Pairs()
	}
	if s.cfg.Venue != nil {
		resp["venue"] = s.cfg.Venue.Name()
	}
	if s.cfg.Prices != nil {
		if marks := s.cfg.Prices.Snapshot(); len(marks) > 0 {
			resp["marks"] = marks
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.cfg.Venue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易所接口未启用"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	positions, err := s.cfg.Venue.Positions(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (s *Server) handleAccount(c *gin.Context) {
	if s.cfg.Venue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "交易所接口未启用"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()
	bal, err := s.cfg.Venue.Balance(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (s *Server) handleDecisions(c *gin.Context) {
	if s.cfg.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	rows, err := s.cfg.Store.ListDecisions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": rows, "count": len(rows)})
}

func (s *Server) handleCycles(c *gin.Context) {
	if s.cfg.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	rows, err := s.cfg.Store.ListCycles(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycles": rows, "count": len(rows)})
}

func (s *Server) handleTrades(c *gin.Context) {
	if s.cfg.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	rows, err := s.cfg.Store.ListTrades(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
}

func (s *Server) handleEvents(c *gin.Context) {
	if s.cfg.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "存储未启用"})
		return
	}
	rows, err := s.cfg.Store.ListEvents(c.Request.Context(), c.Query("type"), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "count": len(rows)})
}

func (s *Server) handleRecentEvents(c *gin.Context) {
	if s.cfg.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "事件总线未启用"})
		return
	}
	events := s.cfg.Bus.Recent(queryLimit(c))
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// POST /api/cycle/trigger：手动触发一次周期。正在执行时返回 409，不排队。
func (s *Server) handleTrigger(c *gin.Context) {
	if s.cfg.Agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "代理未启用"})
		return
	}
	if !s.cfg.Agent.Trigger() {
		c.JSON(http.StatusConflict, gin.H{"accepted": false, "reason": "已有待执行的触发"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
