// Package creds resolves and caches the platform session credentials.
//
// Two cookies make up a usable session: the long-lived stable token and
// the rotating session token the platform reissues on most responses.
// Sources are layered: an explicit cookie string, individual environment
// variables, and finally the OS keychain. The first source that yields a
// value for a token wins; both tokens must resolve or the pair is
// unusable.
package creds

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/covale/dealbridge/internal/config"
)

// Cookie names used by the platform.
const (
	CookieToken   = "dl_token"
	CookieSession = "dl_session"
)

// Keychain entry naming: one service, one account per token.
const (
	KeychainService        = "dealbridge"
	KeychainAccountToken   = "token"
	KeychainAccountSession = "session"
)

// ErrMissingCredentials means no source yielded a complete token pair.
// This is fatal to any authenticated call, not a retryable condition.
var ErrMissingCredentials = errors.New("no platform credentials found (set " +
	config.EnvCookie + ", or " + config.EnvToken + " and " + config.EnvSession +
	", or store them with 'dealbridge auth set')")

// Pair is a complete set of session credentials.
type Pair struct {
	// Token is the stable, long-lived credential.
	Token string
	// Session is the rotating token the platform reissues per response.
	Session string
}

// valid reports whether both tokens are present.
func (p Pair) valid() bool {
	return p.Token != "" && p.Session != ""
}

// Store resolves and caches the credential pair. It is safe for
// concurrent use; concurrent session rotations are last-writer-wins,
// which matches the platform's own semantics (any recently issued
// session token is accepted).
type Store struct {
	cookie string // raw cookie header string from config, may be empty
	kc     Keychain
	logger *slog.Logger

	mu     sync.Mutex
	cached Pair
}

// NewStore creates a credential store. cookie is an optional raw cookie
// header string ("dl_token=...; dl_session=..."). kc may be nil, in
// which case the system keychain is used.
func NewStore(cookie string, kc Keychain, logger *slog.Logger) *Store {
	if kc == nil {
		kc = SystemKeychain{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cookie: cookie,
		kc:     kc,
		logger: logger,
	}
}

// Resolve returns the credential pair, loading it lazily on first use.
// Returns ErrMissingCredentials if no source supplies both tokens.
func (s *Store) Resolve() (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached.valid() {
		return s.cached, nil
	}

	pair := Pair{
		Token:   s.cached.Token,
		Session: s.cached.Session,
	}
	if pair.Token == "" {
		pair.Token = s.resolveToken(CookieToken, config.EnvToken, KeychainAccountToken)
	}
	if pair.Session == "" {
		pair.Session = s.resolveToken(CookieSession, config.EnvSession, KeychainAccountSession)
	}

	if !pair.valid() {
		return Pair{}, ErrMissingCredentials
	}

	s.cached = pair
	return pair, nil
}

// resolveToken tries each source for a single token: the configured
// cookie string, the named environment variable, then the keychain.
// Returns "" when nothing yields a value. Caller holds s.mu.
func (s *Store) resolveToken(cookieName, envName, account string) string {
	if v := cookieValue(s.cookie, cookieName); v != "" {
		return v
	}
	if v := os.Getenv(envName); v != "" {
		return v
	}

	v, err := s.kc.Get(KeychainService, account)
	if err != nil {
		if !errors.Is(err, ErrKeychainNotFound) && !errors.Is(err, ErrUnsupportedPlatform) {
			s.logger.Debug("keychain read failed", "account", account, "error", err)
		}
		return ""
	}
	s.logger.Debug("credential loaded from keychain", "account", account)
	return v
}

// SetSession replaces the cached rotating session token. Called by the
// session layer whenever the platform rotates it.
func (s *Store) SetSession(session string) {
	if session == "" {
		return
	}
	s.mu.Lock()
	s.cached.Session = session
	s.mu.Unlock()
}

// Clear drops the in-memory pair. The next Resolve re-reads all sources
// from scratch. Called on detected session expiry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.cached = Pair{}
	s.mu.Unlock()
}

// Persist writes both tokens to the keychain.
func (s *Store) Persist(pair Pair) error {
	if !pair.valid() {
		return fmt.Errorf("persist: %w", ErrMissingCredentials)
	}
	if err := s.kc.Set(KeychainService, KeychainAccountToken, pair.Token); err != nil {
		return fmt.Errorf("persist stable token: %w", err)
	}
	if err := s.kc.Set(KeychainService, KeychainAccountSession, pair.Session); err != nil {
		return fmt.Errorf("persist session token: %w", err)
	}

	s.mu.Lock()
	s.cached = pair
	s.mu.Unlock()
	return nil
}

// Erase removes both keychain entries and drops the in-memory cache.
// Entries that are already absent are not an error.
func (s *Store) Erase() error {
	for _, account := range []string{KeychainAccountToken, KeychainAccountSession} {
		if err := s.kc.Delete(KeychainService, account); err != nil && !errors.Is(err, ErrKeychainNotFound) {
			return fmt.Errorf("erase %s: %w", account, err)
		}
	}
	s.Clear()
	return nil
}

// ParseCookie pulls both platform tokens out of a raw cookie header
// string, as copied from a browser's devtools. Missing cookies leave
// the corresponding field empty.
func ParseCookie(header string) Pair {
	return Pair{
		Token:   cookieValue(header, CookieToken),
		Session: cookieValue(header, CookieSession),
	}
}

// cookieValue extracts a named cookie's value from a raw cookie header
// string. Returns "" when the cookie is absent.
func cookieValue(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
