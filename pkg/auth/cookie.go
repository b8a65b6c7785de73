package auth

import (
	"crypto/sha256"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

// browserSessionName is the signed cookie that carries the engine session ID
// for browser clients, so a web console does not have to thread session_id
// through every request body.
const browserSessionName = "indaba_session"

const sessionIDKey = "session_id"

// CookieSettings contains cookie security settings derived from the base URL.
type CookieSettings struct {
	// Secure indicates whether the cookie should only be sent over HTTPS.
	Secure bool
	// Domain is the cookie domain scope; empty isolates to the exact host.
	Domain string
}

// DeriveCookieSettings determines cookie security settings from the server's
// base URL. Localhost gets an insecure, host-scoped cookie for development;
// anything else is Secure. An explicit domain override wins.
func DeriveCookieSettings(baseURL string, domainOverride string) CookieSettings {
	if domainOverride != "" {
		return CookieSettings{Secure: isHTTPS(baseURL), Domain: domainOverride}
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		// Safe defaults for invalid URLs
		return CookieSettings{Secure: true, Domain: ""}
	}

	hostname := parsed.Hostname()
	if hostname == "localhost" || hostname == "127.0.0.1" {
		return CookieSettings{Secure: false, Domain: ""}
	}

	return CookieSettings{Secure: parsed.Scheme != "http", Domain: ""}
}

// isHTTPS reports whether the base URL uses HTTPS. Empty or unparsable URLs
// default to true.
func isHTTPS(baseURL string) bool {
	if baseURL == "" {
		return true
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return true
	}
	return parsed.Scheme != "http"
}

// BrowserSessions binds engine session IDs to signed cookies. The secret can
// be any passphrase; it is SHA-256 hashed to derive the signing key, so it
// only has to be consistent across restarts and replicas.
type BrowserSessions struct {
	store *sessions.CookieStore
}

// NewBrowserSessions creates the cookie store. maxAge is in seconds.
func NewBrowserSessions(secret string, settings CookieSettings, maxAge int) *BrowserSessions {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &BrowserSessions{store: store}
}

// SessionID returns the engine session ID carried by the request's cookie.
func (b *BrowserSessions) SessionID(r *http.Request) (uuid.UUID, bool) {
	session, err := b.store.Get(r, browserSessionName)
	if err != nil {
		return uuid.Nil, false
	}
	raw, ok := session.Values[sessionIDKey].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// SetSessionID writes the engine session ID into the signed cookie.
func (b *BrowserSessions) SetSessionID(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	session, _ := b.store.Get(r, browserSessionName)
	session.Values[sessionIDKey] = id.String()
	return session.Save(r, w)
}

// Clear expires the cookie.
func (b *BrowserSessions) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := b.store.Get(r, browserSessionName)
	session.Options.MaxAge = -1
	delete(session.Values, sessionIDKey)
	return session.Save(r, w)
}
