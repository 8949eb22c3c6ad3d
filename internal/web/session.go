package web

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/oauth2"
)

const (
	sessionName = "goodhare"

	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenType    = "token_type"
	keyExpiry       = "expiry"
	keyState        = "oauth_state"
	keyUserID       = "user_id"
	keyUserName     = "user_name"

	flashError   = "error"
	flashSuccess = "success"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind    string
	Message string
}

// newCookieStore derives signing and encryption keys from secret.
func newCookieStore(secret string, secure bool) *sessions.CookieStore {
	hashKey := sha256.Sum256([]byte("goodhare-session-hash:" + secret))
	blockKey := sha256.Sum256([]byte("goodhare-session-block:" + secret))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((7 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// session wraps a gorilla session with typed accessors.
type session struct {
	*sessions.Session
}

func (s session) str(key string) string {
	v, _ := s.Values[key].(string)
	return v
}

// Token returns the stored token, or nil when the session is unauthenticated.
func (s session) Token() *oauth2.Token {
	access := s.str(keyAccessToken)
	if access == "" {
		return nil
	}

	token := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: s.str(keyRefreshToken),
		TokenType:    s.str(keyTokenType),
	}
	if unix, ok := s.Values[keyExpiry].(int64); ok && unix > 0 {
		token.Expiry = time.Unix(unix, 0)
	}
	return token
}

// SetToken stores token in the session.
func (s session) SetToken(token *oauth2.Token) {
	s.Values[keyAccessToken] = token.AccessToken
	s.Values[keyRefreshToken] = token.RefreshToken
	s.Values[keyTokenType] = token.TokenType
	if token.Expiry.IsZero() {
		delete(s.Values, keyExpiry)
	} else {
		s.Values[keyExpiry] = token.Expiry.Unix()
	}
}

// SetUser stores the account that owns the session.
func (s session) SetUser(id, name string) {
	s.Values[keyUserID] = id
	s.Values[keyUserName] = name
}

func (s session) UserID() string   { return s.str(keyUserID) }
func (s session) UserName() string { return s.str(keyUserName) }

// Clear drops everything except pending flashes.
func (s session) Clear() {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyTokenType, keyExpiry, keyState, keyUserID, keyUserName} {
		delete(s.Values, key)
	}
}

// Flash queues a message of kind for the next page.
func (s session) Flash(kind, message string) {
	s.AddFlash(message, kind)
}

// Flashes drains queued messages, errors first.
func (s session) Flashes() []Flash {
	var out []Flash
	for _, kind := range []string{flashError, flashSuccess} {
		for _, v := range s.Session.Flashes(kind) {
			if msg, ok := v.(string); ok {
				out = append(out, Flash{Kind: kind, Message: msg})
			}
		}
	}
	return out
}
