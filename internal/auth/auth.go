// Package auth guards the operator panel with a single password and a
// signed, encrypted session cookie.
package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidPassword = errors.New("invalid password")

const (
	cookieName = "yoyakudash_session"
	sessionTTL = 14 * 24 * time.Hour
)

type Store struct {
	sc   *securecookie.SecureCookie
	hash string
	now  func() time.Time
}

type ctxKey string

const sessionKey ctxKey = "session"

// NewStore guards the panel with the operator password whose bcrypt hash is
// passwordHash.
func NewStore(passwordHash string, hashKey, blockKey []byte) *Store {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(sessionTTL.Seconds()))
	return &Store{sc: sc, hash: passwordHash, now: time.Now}
}

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw))
	return err == nil
}

// Authenticate checks the operator password. With no hash configured every
// password is rejected.
func (s *Store) Authenticate(password string) error {
	if s.hash == "" || !CheckPassword(s.hash, password) {
		return ErrInvalidPassword
	}
	return nil
}

type Session struct {
	IssuedAt time.Time
}

type cookieValue struct {
	V        int
	IssuedAt int64
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request) error {
	encoded, err := s.sc.Encode(cookieName, cookieValue{V: 1, IssuedAt: s.now().Unix()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var val cookieValue
	if err := s.sc.Decode(cookieName, c.Value, &val); err != nil || val.V != 1 {
		return Session{}, false
	}
	return Session{IssuedAt: time.Unix(val.IssuedAt, 0)}, true
}

// RequireAuth redirects browsers without a session to /login. Requests
// asking for JSON get a 401 instead.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			if r.Header.Get("Accept") == "application/json" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey).(Session)
	return sess, ok
}
