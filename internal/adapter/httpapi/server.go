package httpapi

import (
	"MoonshotBridge/internal/app/bridge"
	"MoonshotBridge/internal/config"
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler обработчик запросов пользователя.
type Handler interface {
	Handle(ctx context.Context, query string, qc bridge.Context) bridge.Reply
}

// Normalizer приводит загруженную картинку к формату, который понимает модель.
type Normalizer interface {
	Normalize(path string) (string, error)
}

// Server HTTP и WebSocket API бриджа.
type Server struct {
	cfg       config.HTTPConfig
	imagesDir string
	bridge    Handler
	images    Normalizer
	logger    *zap.SugaredLogger
	upgrader  websocket.Upgrader

	echo    *echo.Echo
	srv     *http.Server
	running atomic.Bool
	mu      sync.Mutex
	addr    string
}

func NewServer(cfg config.HTTPConfig, imagesDir string, h Handler, images Normalizer, logger *zap.SugaredLogger) *Server {
	if cfg.BindAddr == "" {
		cfg.BindAddr = "127.0.0.1:8080"
	}
	s := &Server{
		cfg:       cfg,
		imagesDir: imagesDir,
		bridge:    h,
		images:    images,
		logger:    logger,
		addr:      cfg.BindAddr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(s.requestID)
	e.GET("/health", s.handleHealth)
	e.POST("/v1/reply", s.handleReply)
	e.POST("/v1/image", s.handleImage)
	e.GET("/v1/ws", s.handleWS)
	s.echo = e

	s.srv = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler возвращает корневой обработчик, используется в тестах.
func (s *Server) Handler() http.Handler { return s.echo }

// Start запускает сервер в отдельной горутине и немедленно возвращается.
// Отмена ctx инициирует graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		s.running.Store(false)
		return err
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		s.logger.Infow("HTTP API listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) && err != nil {
			s.logger.Errorw("HTTP API stopped with error", "error", err)
		} else {
			s.logger.Infow("HTTP API stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.WithoutCancel(ctx))
	}()
	return nil
}

// Stop инициирует graceful shutdown.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeoutCause(ctx, 5*time.Second, errors.New("http api shutdown timeout"))
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warnw("graceful shutdown error", "error", err)
		return s.srv.Close()
	}
	return nil
}

// Addr возвращает адрес, на котором слушает сервер.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
