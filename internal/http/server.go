package http

import (
	"context"
	"net/http"

	"github.com/jmehdipour/dbrelay/internal/http/middleware"
	"github.com/jmehdipour/dbrelay/internal/metrics"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the running components the operator endpoints read from. Nil
// fields disable the routes that need them.
type Deps struct {
	Status      StatusSource
	Emitter     Emitter
	DeadLetters DeadLetterReplayer
	AdminToken  string
	Log         *zap.Logger
}

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.ERROR)
	e.Use(echoMid.Recover(), requestLogger(d.Log))

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// routes
	v1 := e.Group("/v1", middleware.AdminTokenMiddleware(d.AdminToken))
	if d.Status != nil {
		v1.GET("/status", statusHandler(d.Status))
	}
	if d.Emitter != nil {
		v1.POST("/changes", emitChangeHandler(d.Emitter, d.Log))
	}
	if d.DeadLetters != nil {
		v1.GET("/dead-letters", deadLetterCountHandler(d.DeadLetters))
		v1.POST("/dead-letters/replay", replayHandler(d.DeadLetters, d.Log))
	}

	return &Server{e: e, log: d.Log}
}

func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

func requestLogger(l *zap.Logger) echo.MiddlewareFunc {
	return echoMid.RequestLoggerWithConfig(echoMid.RequestLoggerConfig{
		LogURI:     true,
		LogMethod:  true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			p := c.Path()
			return p == "/metrics" || p == "/healthz"
		},
		LogValuesFunc: func(_ echo.Context, v echoMid.RequestLoggerValues) error {
			l.Info("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.Error(v.Error))
			return nil
		},
	})
}
