package httpapi

import (
	"MoonshotBridge/internal/app/bridge"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	headerRequestID = "X-Request-Id"
	ctxRequestID    = "request_id"
	maxUploadSize   = 20 << 20
	maxWSMessage    = 64 << 10
)

// ReplyRequest тело POST /v1/reply и кадра WebSocket.
type ReplyRequest struct {
	Query     string `json:"query"`
	Type      string `json:"type"` // TEXT|IMAGE, по умолчанию TEXT
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

type ReplyResponse struct {
	Kind      bridge.ReplyKind `json:"kind"`
	Content   string           `json:"content"`
	RequestID string           `json:"request_id"`
}

func (r ReplyRequest) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query is required")
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session_id is required")
	}
	return nil
}

func (r ReplyRequest) context() bridge.Context {
	typ := bridge.TypeText
	if r.Type != "" {
		typ = bridge.ContextType(strings.ToUpper(r.Type))
	}
	return bridge.Context{Type: typ, SessionID: r.SessionID, ModelOverride: r.Model}
}

// validRequestID допустимый идентификатор из заголовка X-Request-Id.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func errorBody(msg string) map[string]string { return map[string]string{"error": msg} }

// requestID проставляет идентификатор запроса из заголовка либо генерирует новый.
func (s *Server) requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func requestIDOf(c echo.Context) string {
	id, _ := c.Get(ctxRequestID).(string)
	return id
}

// GET /health
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// POST /v1/reply
func (s *Server) handleReply(c echo.Context) error {
	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if err := req.validate(); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	id := requestIDOf(c)
	reply := s.bridge.Handle(c.Request().Context(), req.Query, req.context())
	s.logger.Infow("Ответ отправлен", "request_id", id, "session", req.SessionID, "kind", reply.Kind)
	return c.JSON(http.StatusOK, ReplyResponse{Kind: reply.Kind, Content: reply.Content, RequestID: id})
}

// POST /v1/image (multipart: session_id, model, file)
func (s *Server) handleImage(c echo.Context) error {
	sessionID := strings.TrimSpace(c.FormValue("session_id"))
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("session_id is required"))
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("file is required"))
	}
	if fh.Size > maxUploadSize {
		return c.JSON(http.StatusRequestEntityTooLarge, errorBody("file too large"))
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	switch ext {
	case ".png", ".jpg", ".jpeg":
	default:
		return c.JSON(http.StatusBadRequest, errorBody("only png and jpeg images are supported"))
	}

	id := requestIDOf(c)
	saved, err := s.saveUpload(fh, uuid.NewString()+ext)
	if err != nil {
		s.logger.Errorw("Не удалось сохранить картинку", "request_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, errorBody("failed to store image"))
	}
	path, err := s.images.Normalize(saved)
	if err != nil {
		s.logger.Warnw("Не удалось обработать картинку", "request_id", id, "path", saved, "error", err)
		_ = os.Remove(saved)
		return c.JSON(http.StatusBadRequest, errorBody("invalid image"))
	}

	qc := bridge.Context{Type: bridge.TypeImage, SessionID: sessionID, ModelOverride: c.FormValue("model")}
	reply := s.bridge.Handle(c.Request().Context(), path, qc)
	s.logger.Infow("Ответ на картинку отправлен", "request_id", id, "session", sessionID, "kind", reply.Kind)
	return c.JSON(http.StatusOK, ReplyResponse{Kind: reply.Kind, Content: reply.Content, RequestID: id})
}

func (s *Server) saveUpload(fh *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(s.imagesDir, 0o755); err != nil {
		return "", err
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(s.imagesDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

// GET /v1/ws: каждый текстовый кадр содержит ReplyRequest, в ответ кадр ReplyResponse.
func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warnw("Не удалось открыть WebSocket", "error", err)
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(maxWSMessage)

	ctx := c.Request().Context()
	connID := requestIDOf(c)
	s.logger.Infow("WebSocket подключён", "conn", connID, "remote", c.RealIP())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("Ошибка WebSocket", "conn", connID, "error", err)
			}
			return nil
		}

		id := uuid.NewString()
		var req ReplyRequest
		resp := ReplyResponse{Kind: bridge.KindError, RequestID: id}
		if err := json.Unmarshal(data, &req); err != nil {
			resp.Content = "invalid request body"
		} else if err := req.validate(); err != nil {
			resp.Content = err.Error()
		} else {
			reply := s.bridge.Handle(ctx, req.Query, req.context())
			resp.Kind, resp.Content = reply.Kind, reply.Content
		}
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warnw("Не удалось отправить сообщение WebSocket", "conn", connID, "error", err)
			return nil
		}
	}
}
