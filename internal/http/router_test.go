package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/signalix/loginbroker/internal/auth"
	"github.com/signalix/loginbroker/internal/http/handlers"
	"github.com/signalix/loginbroker/internal/login"
	"github.com/signalix/loginbroker/internal/middleware"
	"github.com/signalix/loginbroker/internal/model"
	"github.com/signalix/loginbroker/internal/provider"
	"github.com/signalix/loginbroker/internal/repo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "admin123"

// memSessions is an in-memory repo.SessionRepo
type memSessions struct {
	mu   sync.Mutex
	recs map[string]model.SessionRecord
}

func newMemSessions() *memSessions {
	return &memSessions{recs: make(map[string]model.SessionRecord)}
}

func (m *memSessions) Put(_ context.Context, phone, token string) (model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := model.SessionRecord{PhoneNumber: phone, Token: token, SavedAt: time.Now().UTC()}
	m.recs[phone] = rec
	return rec, nil
}

func (m *memSessions) Get(_ context.Context, phone string) (model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[phone]
	if !ok {
		return model.SessionRecord{}, repo.ErrSessionNotFound
	}
	return rec, nil
}

func (m *memSessions) Delete(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, phone)
	return nil
}

func (m *memSessions) List(_ context.Context) ([]model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.SessionRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhoneNumber < out[j].PhoneNumber })
	return out, nil
}

type testServer struct {
	handler  http.Handler
	stub     *provider.Stub
	sessions *memSessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	stub := provider.NewStub("")
	sessions := newMemSessions()
	service := login.NewService(stub, sessions, login.NewRegistry(), time.Minute)

	jwtService := auth.NewJWTService("test-secret", time.Hour)
	password, err := auth.NewPasswordChecker(adminPassword, bcrypt.MinCost)
	require.NoError(t, err)

	router := NewRouter(
		handlers.NewLoginHandler(service),
		handlers.NewAdminHandler(sessions, service, jwtService, password),
		jwtService,
	)
	return &testServer{handler: router, stub: stub, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) adminToken(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/admin/login", map[string]string{"password": adminPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeMap(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m))
	return m
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeMap(t, w)["ok"])
}

func TestLoginFlow_CodeOnly(t *testing.T) {
	s := newTestServer(t)
	phone := "+491234567890"

	w := s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, decodeMap(t, w)["ok"])

	w = s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": "00000"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decodeMap(t, w)["error"], "wrong code")

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session, _ := decodeMap(t, w)["session"].(string)
	assert.NotEmpty(t, session)

	rec, err := s.sessions.Get(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, session, rec.Token)
	assert.Equal(t, 0, s.stub.OpenConns())

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode}, "")
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestLoginFlow_Password(t *testing.T) {
	s := newTestServer(t)
	phone := "+15550001111"
	s.stub.SetPassword(phone, "hunter2")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "").Code)

	w := s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeMap(t, w)["needs_password"])

	// still waiting for the password
	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeMap(t, w)["needs_password"])

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode, "password": "hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	m := decodeMap(t, w)
	assert.NotEmpty(t, m["session"])
	assert.Nil(t, m["needs_password"])
}

func TestLoginFlow_WrongPasswordEndsAttempt(t *testing.T) {
	s := newTestServer(t)
	phone := "+15550002222"
	s.stub.SetPassword(phone, "hunter2")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode}, "").Code)

	w := s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode, "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": phone, "code": provider.DefaultStubCode, "password": "hunter2"}, "")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, 0, s.stub.OpenConns())
}

func TestLoginStart_Validation(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": "  "}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": "123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeMap(t, w)["error"], "invalid phone number")
	assert.Equal(t, 0, s.stub.OpenConns())

	req := httptest.NewRequest(http.MethodPost, "/login/start", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = s.do(t, http.MethodPost, "/login/verify", map[string]string{"phone_number": "+491234567890"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginCancel(t *testing.T) {
	s := newTestServer(t)
	phone := "+491234567890"

	w := s.do(t, http.MethodPost, "/login/cancel", map[string]string{"phone_number": phone}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "").Code)
	assert.Equal(t, 1, s.stub.OpenConns())

	w = s.do(t, http.MethodPost, "/login/cancel", map[string]string{"phone_number": phone}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.stub.OpenConns())

	// the phone can start over
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": phone}, "").Code)
}

func TestAdmin_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/admin/sessions", "/admin/attempts"} {
		w := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := s.do(t, http.MethodPost, "/admin/login", map[string]string{"password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_LoginSetsCookie(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/admin/login", map[string]string{"password": adminPassword}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AdminCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/admin/sessions", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdmin_SessionsAndAttempts(t *testing.T) {
	s := newTestServer(t)
	token := s.adminToken(t)
	ctx := context.Background()

	_, err := s.sessions.Put(ctx, "+491234567890", "tok-1")
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/admin/sessions", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []struct {
		PhoneNumber string    `json:"phone_number"`
		Session     string    `json:"session"`
		SavedAt     time.Time `json:"saved_at"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "+491234567890", sessions[0].PhoneNumber)
	assert.Equal(t, "tok-1", sessions[0].Session)
	assert.False(t, sessions[0].SavedAt.IsZero())

	w = s.do(t, http.MethodDelete, "/admin/sessions/+491234567890", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
	_, err = s.sessions.Get(ctx, "+491234567890")
	assert.ErrorIs(t, err, repo.ErrSessionNotFound)

	// absent is not an error
	w = s.do(t, http.MethodDelete, "/admin/sessions/+491234567890", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/login/start", map[string]string{"phone_number": "+15550003333"}, "").Code)
	w = s.do(t, http.MethodGet, "/admin/attempts", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var attempts []struct {
		ID          string `json:"id"`
		PhoneNumber string `json:"phone_number"`
		State       string `json:"state"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "+15550003333", attempts[0].PhoneNumber)
	assert.Equal(t, "code_sent", attempts[0].State)
	assert.NotEmpty(t, attempts[0].ID)
}
