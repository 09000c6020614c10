package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/logging"
	"maestro/internal/observability"
	"maestro/internal/session"
	"maestro/internal/store"
)

// Gateway is the HTTP/WebSocket edge: it upgrades clients, owns their read
// loops, and serves health, metrics, and artifact files.
type Gateway struct {
	cfg        *config.Config
	dispatcher *Dispatcher
	store      *store.Store
	metrics    *observability.Metrics
	engine     *gin.Engine
	upgrader   websocket.Upgrader
	logger     logging.Logger
}

func NewGateway(cfg *config.Config, dispatcher *Dispatcher, st *store.Store, metrics *observability.Metrics) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowWebSockets = true
	engine.Use(cors.New(corsConfig))

	g := &Gateway{
		cfg:        cfg,
		dispatcher: dispatcher,
		store:      st,
		metrics:    metrics,
		engine:     engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logging.NewComponentLogger("Gateway"),
	}

	engine.GET("/ws", g.handleWS)
	engine.GET("/healthz", g.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/artifacts/:task/:file", g.handleArtifact)
	return g
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Addr,
		Handler:           g.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		g.logger.Info("Listening on %s", g.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (g *Gateway) handleWS(c *gin.Context) {
	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("Upgrade failed: %v", err)
		return
	}

	conn := newConnection(ws, g.cfg.WSMaxMessageBytes, g.cfg.WSPingInterval)
	sess := session.New(g.cfg.MemoryWindow, 0)
	fanout := events.NewFanout(conn, g.store, sess.ID)

	g.metrics.ActiveSessions.Inc()
	g.logger.Info("Session %s connected", sess.ID)

	defer func() {
		// cancel in-flight work before freeing the session
		sess.RequestCancel()
		sess.AwaitIdle()
		conn.Close()
		g.metrics.ActiveSessions.Dec()
		g.logger.Info("Session %s disconnected", sess.ID)
	}()

	fanout.Status("Connected. Select a task or send a message.", false)
	g.dispatcher.sendCatalog(fanout)

	ctx := c.Request.Context()
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("Session %s read error: %v", sess.ID, err)
			}
			return
		}
		g.dispatcher.Handle(ctx, sess, fanout, env)
	}
}

func (g *Gateway) handleArtifact(c *gin.Context) {
	path, err := g.dispatcher.safeArtifactPath(c.Param("task"), c.Param("file"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
		return
	}
	c.File(path)
}
