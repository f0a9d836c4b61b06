package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	return NewStore(hash, securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32))
}

func TestAuthenticate(t *testing.T) {
	s := newStore(t)
	assert.NoError(t, s.Authenticate("correct horse"))
	assert.ErrorIs(t, s.Authenticate("battery staple"), ErrInvalidPassword)

	empty := NewStore("", securecookie.GenerateRandomKey(32), nil)
	assert.ErrorIs(t, empty.Authenticate(""), ErrInvalidPassword)
}

func TestSessionRoundTrip(t *testing.T) {
	s := newStore(t)
	issued := time.Date(2026, 10, 18, 21, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil)))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	sess, ok := s.GetSession(req)
	require.True(t, ok)
	assert.True(t, sess.IssuedAt.Equal(issued))

	other := newStore(t)
	_, ok = other.GetSession(req)
	assert.False(t, ok, "cookie from another key pair is rejected")
}

func TestRequireAuth(t *testing.T) {
	s := newStore(t)
	h := s.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := SessionFromContext(r.Context())
		assert.True(t, ok)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Accept", "application/json")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	login := httptest.NewRecorder()
	require.NoError(t, s.SetSession(login, httptest.NewRequest(http.MethodPost, "/login", nil)))
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(login.Result().Cookies()[0])
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClearSession(t *testing.T) {
	rec := httptest.NewRecorder()
	newStore(t).ClearSession(rec)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}
