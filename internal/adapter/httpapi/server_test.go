package httpapi

import (
	"MoonshotBridge/internal/app/bridge"
	"MoonshotBridge/internal/config"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type call struct {
	query string
	qc    bridge.Context
}

type fakeBridge struct {
	mu    sync.Mutex
	calls []call
}

func (f *fakeBridge) Handle(_ context.Context, query string, qc bridge.Context) bridge.Reply {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{query: query, qc: qc})
	return bridge.Reply{Kind: bridge.KindText, Content: "echo:" + query}
}

type fakeImages struct{ err error }

func (f fakeImages) Normalize(path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".jpg", nil
}

func newTestServer(t *testing.T, images Normalizer) (*Server, *fakeBridge) {
	t.Helper()
	fb := &fakeBridge{}
	s := NewServer(config.HTTPConfig{BindAddr: "127.0.0.1:0"}, t.TempDir(), fb, images, zap.NewNop().Sugar())
	return s, fb
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, fakeImages{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReply(t *testing.T) {
	s, fb := newTestServer(t, fakeImages{})

	req := httptest.NewRequest(http.MethodPost, "/v1/reply", strings.NewReader(`{"query":"hi","session_id":"s1","model":"m"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, "rid")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp ReplyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ReplyResponse{Kind: bridge.KindText, Content: "echo:hi", RequestID: "rid"}, resp)
	require.Len(t, fb.calls, 1)
	assert.Equal(t, bridge.Context{Type: bridge.TypeText, SessionID: "s1", ModelOverride: "m"}, fb.calls[0].qc)
}

func TestReplyValidation(t *testing.T) {
	s, fb := newTestServer(t, fakeImages{})
	for _, body := range []string{`{"query":"hi"}`, `{"session_id":"s"}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/reply", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	}
	assert.Empty(t, fb.calls)
}

func multipartImage(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("session_id", "s1"))
	fw, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestImage(t *testing.T) {
	s, fb := newTestServer(t, fakeImages{})
	body, ct := multipartImage(t, "shot.png")
	req := httptest.NewRequest(http.MethodPost, "/v1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fb.calls, 1)
	assert.Equal(t, bridge.TypeImage, fb.calls[0].qc.Type)
	assert.True(t, strings.HasSuffix(fb.calls[0].query, ".jpg"))
	assert.Equal(t, s.imagesDir, filepath.Dir(fb.calls[0].query))
}

func TestImageRejected(t *testing.T) {
	s, fb := newTestServer(t, fakeImages{})
	body, ct := multipartImage(t, "notes.txt")
	req := httptest.NewRequest(http.MethodPost, "/v1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s, fb = newTestServer(t, fakeImages{err: errors.New("bad")})
	body, ct = multipartImage(t, "shot.png")
	req = httptest.NewRequest(http.MethodPost, "/v1/image", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fb.calls)

	entries, err := os.ReadDir(s.imagesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWebSocket(t *testing.T) {
	s, _ := newTestServer(t, fakeImages{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"hi","session_id":"s1"}`)))
	var resp ReplyResponse
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, bridge.KindText, resp.Kind)
	assert.Equal(t, "echo:hi", resp.Content)
	assert.NotEmpty(t, resp.RequestID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"query":"hi"}`)))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, bridge.KindError, resp.Kind)
	assert.Equal(t, "session_id is required", resp.Content)
}

func TestStartStop(t *testing.T) {
	s, _ := newTestServer(t, fakeImages{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://" + s.Addr() + "/health")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestImageIgnoresRequestIDForStorage(t *testing.T) {
	root := t.TempDir()
	imagesDir := filepath.Join(root, "images")
	fb := &fakeBridge{}
	s := NewServer(config.HTTPConfig{BindAddr: "127.0.0.1:0"}, imagesDir, fb, fakeImages{}, zap.NewNop().Sugar())

	body, ct := multipartImage(t, "shot.png")
	req := httptest.NewRequest(http.MethodPost, "/v1/image", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(headerRequestID, "../escaped")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoFileExists(t, filepath.Join(root, "escaped.png"))
	assert.NotEqual(t, "../escaped", rec.Header().Get(headerRequestID))

	rootEntries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, rootEntries, 1)
	assert.Equal(t, "images", rootEntries[0].Name())

	stored, err := os.ReadDir(imagesDir)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, ".png", filepath.Ext(stored[0].Name()))
	require.Len(t, fb.calls, 1)
	assert.Equal(t, imagesDir, filepath.Dir(fb.calls[0].query))
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t, fakeImages{})
	for id, keep := range map[string]bool{
		"abc-123_X":             true,
		"../x":                  false,
		"a/b":                   false,
		"":                      false,
		strings.Repeat("a", 65): false,
	} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(headerRequestID, id)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		got := rec.Header().Get(headerRequestID)
		assert.NotEmpty(t, got)
		if keep {
			assert.Equal(t, id, got)
		} else {
			assert.NotEqual(t, id, got)
		}
	}
}
