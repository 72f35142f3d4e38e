// Package auth implements the household PIN login and the signed session
// cookie that guards the API.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// CookieName is the session cookie set after a successful PIN check.
const CookieName = "family-calendar-session"

var (
	// ErrInvalidPIN is returned by Verify when the PIN does not match.
	ErrInvalidPIN = errors.New("invalid pin")
	// ErrInvalidSession is returned for missing, expired or forged tokens.
	ErrInvalidSession = errors.New("invalid session")
)

// Options configures an Authenticator.
type Options struct {
	// PINHash is a bcrypt hash. When set, PIN is ignored.
	PINHash string
	// PIN is the plain-text fallback.
	PIN string
	// Secret signs session tokens (HS256).
	Secret string
	// TTL is the session lifetime.
	TTL time.Duration
	// SecureCookie sets the Secure attribute.
	SecureCookie bool
}

// Authenticator checks PINs and issues/validates session tokens.
type Authenticator struct {
	opts Options
	now  func() time.Time
}

// sessionClaims is the JWT payload. There are no user accounts; a valid
// token only says "this browser entered the household PIN".
type sessionClaims struct {
	Authenticated bool `json:"authenticated"`
	jwt.RegisteredClaims
}

// New builds an Authenticator. A zero TTL defaults to seven days.
func New(opts Options) (*Authenticator, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: session secret is empty")
	}
	if opts.PINHash == "" && opts.PIN == "" {
		return nil, errors.New("auth: neither pin nor pin_hash configured")
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	return &Authenticator{opts: opts, now: time.Now}, nil
}

// VerifyPIN reports whether pin matches the configured PIN.
func (a *Authenticator) VerifyPIN(pin string) error {
	if a.opts.PINHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(a.opts.PINHash), []byte(pin)); err != nil {
			return ErrInvalidPIN
		}
		return nil
	}
	if len(pin) != len(a.opts.PIN) || subtle.ConstantTimeCompare([]byte(pin), []byte(a.opts.PIN)) != 1 {
		return ErrInvalidPIN
	}
	return nil
}

// IssueToken returns a signed session token valid for the configured TTL.
func (a *Authenticator) IssueToken() (string, error) {
	now := a.now()
	claims := sessionClaims{
		Authenticated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.opts.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.opts.Secret))
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// ValidateToken checks signature, algorithm and expiry.
func (a *Authenticator) ValidateToken(raw string) error {
	if raw == "" {
		return ErrInvalidSession
	}
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.opts.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || !claims.Authenticated {
		return ErrInvalidSession
	}
	return nil
}

// Authenticated reports whether r carries a valid session cookie.
func (a *Authenticator) Authenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return a.ValidateToken(c.Value) == nil
}

// SessionCookie wraps a token in the session cookie.
func (a *Authenticator) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.opts.TTL / time.Second),
		HttpOnly: true,
		Secure:   a.opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearCookie expires the session cookie in the browser.
func (a *Authenticator) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	}
}

// HashPIN returns a bcrypt hash suitable for the auth.pin_hash config key.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", errors.New("pin is empty")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
