package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autoreply/backend/internal/config"
	"autoreply/backend/internal/domain"
	"autoreply/backend/internal/service"
	"autoreply/backend/internal/storage"
	"autoreply/backend/internal/storage/memory"
)

const (
	testUser     = "operator"
	testPassword = "review-secret-1"
)

// fakeGateway 按调用路径可编程的网关替身
type fakeGateway struct {
	sendErr   error
	deleteErr error
	sentBody  string
}

func (g *fakeGateway) ListUnread(context.Context) ([]domain.InboundMessage, error) { return nil, nil }
func (g *fakeGateway) CreateDraft(context.Context, string, string) (string, error) {
	return "", nil
}
func (g *fakeGateway) MarkRead(context.Context, string) error { return nil }
func (g *fakeGateway) SendDraft(_ context.Context, _ string, body string) error {
	if g.sendErr != nil {
		return g.sendErr
	}
	g.sentBody = body
	return nil
}
func (g *fakeGateway) DeleteDraft(context.Context, string) error { return g.deleteErr }
func (g *fakeGateway) Health() error                             { return nil }

type testEnv struct {
	router    *gin.Engine
	repo      storage.DraftRepository
	gw        *fakeGateway
	triggered int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		repo: memory.NewStore(),
		gw:   &fakeGateway{},
	}
	cfg := &config.Config{
		Auth: config.AuthConfig{Username: testUser, Password: testPassword},
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	svc := service.NewDraftService(env.repo, env.gw, nil, nil, zap.NewNop())
	env.router = NewRouter(RouterDependencies{
		Config:        cfg,
		DraftService:  svc,
		TriggerIntake: func() { env.triggered++ },
		Logger:        zap.NewNop(),
	})
	return env
}

func (e *testEnv) seed(t *testing.T, messageID, providerDraftID string) *domain.Draft {
	t.Helper()
	d := &domain.Draft{
		ID:        uuid.NewString(),
		MessageID: messageID,
		Sender:    "alice@example.com",
		Subject:   "Meeting tomorrow",
		Body:      "Happy to meet at 10am.",
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, e.repo.CreateDraft(context.Background(), d))
	if providerDraftID != "" {
		require.NoError(t, e.repo.SetProviderDraftID(context.Background(), d.ID, providerDraftID))
	}
	return d
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(testUser, testPassword)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRouterAuth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drafts", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/drafts", nil)
	req.SetBasicAuth(testUser, "wrong-password")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListDrafts(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "<m1@example.com>", "7/1")
	env.seed(t, "<m2@example.com>", "7/2")

	w := env.do(http.MethodGet, "/api/v1/drafts?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, CodeSuccess, resp.Code)
	items, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)

	w = env.do(http.MethodGet, "/api/v1/drafts?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/v1/drafts?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDraft(t *testing.T) {
	env := newTestEnv(t)
	d := env.seed(t, "<m1@example.com>", "7/1")

	w := env.do(http.MethodGet, "/api/v1/drafts/"+d.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/v1/drafts/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decodeResponse(t, w).Code)
}

func TestUpdateDraft(t *testing.T) {
	env := newTestEnv(t)
	d := env.seed(t, "<m1@example.com>", "7/1")

	payload, _ := json.Marshal(map[string]string{"body": "Reworded reply."})
	w := env.do(http.MethodPut, "/api/v1/drafts/"+d.ID, payload)
	require.Equal(t, http.StatusOK, w.Code)

	cur, err := env.repo.GetDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reworded reply.", cur.Body)
	assert.Equal(t, domain.StatusPending, cur.Status)

	// 空正文拒绝
	payload, _ = json.Marshal(map[string]string{"body": ""})
	w = env.do(http.MethodPut, "/api/v1/drafts/"+d.ID, payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendDraft(t *testing.T) {
	t.Run("edited body reaches gateway and store", func(t *testing.T) {
		env := newTestEnv(t)
		d := env.seed(t, "<m1@example.com>", "7/1")

		payload, _ := json.Marshal(map[string]string{"body": "Thanks, will follow up by Friday."})
		w := env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/send", payload)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Thanks, will follow up by Friday.", env.gw.sentBody)

		cur, err := env.repo.GetDraft(context.Background(), d.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSent, cur.Status)
		assert.Equal(t, "Thanks, will follow up by Friday.", cur.Body)
	})

	t.Run("empty request body sends stored draft", func(t *testing.T) {
		env := newTestEnv(t)
		d := env.seed(t, "<m1@example.com>", "7/1")

		w := env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/send", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, d.Body, env.gw.sentBody)
	})

	t.Run("terminal draft conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		d := env.seed(t, "<m1@example.com>", "7/1")

		w := env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/send", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/send", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, CodeConflict, decodeResponse(t, w).Code)
	})
}

func TestRejectDraft(t *testing.T) {
	env := newTestEnv(t)
	d := env.seed(t, "<m1@example.com>", "7/1")

	w := env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/reject", nil)
	require.Equal(t, http.StatusOK, w.Code)

	cur, err := env.repo.GetDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, cur.Status)

	// 终态之后重复拒绝
	w = env.do(http.MethodPost, "/api/v1/drafts/"+d.ID+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTriggerIntake(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/v1/intake/trigger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.triggered)
}

func TestReviewPage(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "<m1@example.com>", "7/1")

	w := env.do(http.MethodGet, "/drafts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "alice@example.com"))
	assert.True(t, strings.Contains(body, "Happy to meet at 10am."))
}

func TestMetricsEndpointIsPublic(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
