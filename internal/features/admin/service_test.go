package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/waste-rewards/internal/common"
	"serotonyl.ru/waste-rewards/internal/session"
)

type attempt struct {
	addr    string
	success bool
	at      time.Time
}

type fakeStore struct {
	mu       sync.Mutex
	attempts []attempt
	now      func() time.Time
}

func (f *fakeStore) LogAttempt(_ context.Context, remoteAddr string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt{addr: remoteAddr, success: success, at: f.now()})
	return nil
}

func (f *fakeStore) RecentFailures(_ context.Context, remoteAddr string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.attempts {
		if a.addr == remoteAddr && !a.success && !a.at.Before(since) {
			n++
		}
	}
	return n, nil
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	sessions *session.Manager
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)

	f := &fixture{now: time.Now()}
	f.store = &fakeStore{now: func() time.Time { return f.now }}
	f.sessions = session.NewManager(strings.Repeat("k", 32), time.Hour)
	f.svc = NewService(f.store, f.sessions, hash)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestLoginIssuesAdminSession(t *testing.T) {
	f := newFixture(t)

	token, sess, err := f.svc.Login(t.Context(), "10.0.0.1", "s3cret")
	require.NoError(t, err)
	require.True(t, sess.IsAdmin())
	require.Equal(t, int64(0), sess.UserID)

	parsed, err := f.sessions.Parse(token)
	require.NoError(t, err)
	require.Equal(t, session.RoleAdmin, parsed.Role)
	require.Len(t, f.store.attempts, 1)
	require.True(t, f.store.attempts[0].success)
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for i := 0; i < MaxFailedAttempts; i++ {
		_, _, err := f.svc.Login(ctx, "10.0.0.2", "wrong")
		require.ErrorIs(t, err, common.ErrWrongPassword)
	}

	// Даже верный пароль не принимается до конца окна
	_, _, err := f.svc.Login(ctx, "10.0.0.2", "s3cret")
	require.ErrorIs(t, err, common.ErrTooManyAttempts)

	// Другой адрес не заблокирован
	_, _, err = f.svc.Login(ctx, "10.0.0.3", "s3cret")
	require.NoError(t, err)

	f.now = f.now.Add(LockoutWindow + time.Minute)
	_, _, err = f.svc.Login(ctx, "10.0.0.2", "s3cret")
	require.NoError(t, err)
}

func TestLoginEmptyPassword(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Login(t.Context(), "10.0.0.4", "")
	require.ErrorIs(t, err, common.ErrWrongPassword)
}

func TestLoginHandler(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc, false)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/session", strings.NewReader(`{"password":"s3cret"}`))
	req.RemoteAddr = "192.0.2.7:51234"
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "192.0.2.7", f.store.attempts[0].addr)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, resp.Token, cookies[0].Value)

	for i := 0; i < MaxFailedAttempts; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/admin/session", strings.NewReader(`{"password":"nope"}`))
		req.RemoteAddr = "192.0.2.8:40000"
		rec = httptest.NewRecorder()
		h.Login(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/session", strings.NewReader(`{"password":"s3cret"}`))
	req.RemoteAddr = "192.0.2.8:40001"
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
