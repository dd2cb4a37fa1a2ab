// Package token issues and renews the short-lived key-pair JWTs used to
// authenticate against the analyst service.
package token

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/snowbridge-labs/analyst-gateway/internal/keys"
)

const (
	// DefaultLifetime is how long an issued token stays valid.
	DefaultLifetime = 59 * time.Minute

	// DefaultRenewalMargin is how close to expiry a token may get before a
	// fresh one is issued.
	DefaultRenewalMargin = 5 * time.Minute
)

// SigningError indicates the private key could not produce a signature.
// There is no fallback credential, so this is fatal for the calling request.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string {
	return "signing token: " + e.Err.Error()
}

func (e *SigningError) Unwrap() error {
	return e.Err
}

// Principal identifies a caller to the analyst service.
type Principal struct {
	Account     string
	User        string
	Fingerprint string
}

// QualifiedName is the value used for both the issuer and subject claims:
// {ACCOUNT}.{USER}.SHA256:{fingerprint}.
func (p Principal) QualifiedName() string {
	return fmt.Sprintf("%s.%s.SHA256:%s",
		strings.ToUpper(p.Account), strings.ToUpper(p.User), p.Fingerprint)
}

// Token is an immutable signed credential. Renewal replaces the whole value,
// it is never mutated in place.
type Token struct {
	Raw       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t Token) usable(now time.Time, margin time.Duration) bool {
	return t.Raw != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// Option configures a Generator.
type Option func(*Generator)

// WithLifetime overrides the token lifetime.
func WithLifetime(d time.Duration) Option {
	return func(g *Generator) {
		g.lifetime = d
	}
}

// WithRenewalMargin overrides the renewal margin.
func WithRenewalMargin(d time.Duration) Option {
	return func(g *Generator) {
		g.margin = d
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// Generator owns the current token and renews it transparently. It is safe
// for concurrent use: renewal is serialized so at most one signing operation
// happens at a time.
type Generator struct {
	principal Principal
	key       *rsa.PrivateKey
	lifetime  time.Duration
	margin    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	current Token
}

// New builds a Generator from a private key file. The fingerprint is derived
// from the paired public key once, at construction; key rotation requires a
// new Generator.
func New(account, user, privateKeyPath string, opts ...Option) (*Generator, error) {
	key, err := keys.LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, err
	}
	return NewFromKey(account, user, key, opts...)
}

// NewFromKey builds a Generator from an already-loaded private key.
func NewFromKey(account, user string, key *rsa.PrivateKey, opts ...Option) (*Generator, error) {
	fingerprint, err := keys.Fingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		principal: Principal{
			Account:     account,
			User:        user,
			Fingerprint: fingerprint,
		},
		key:      key,
		lifetime: DefaultLifetime,
		margin:   DefaultRenewalMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Principal returns the identity the generator signs for.
func (g *Generator) Principal() Principal {
	return g.principal
}

// CurrentToken returns the held token, signing a new one first when none is
// held or the held one is within the renewal margin of expiry.
func (g *Generator) CurrentToken() (Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.current.usable(now, g.margin) {
		return g.current, nil
	}

	issued, err := g.sign(now)
	if err != nil {
		return Token{}, err
	}
	g.current = issued
	return g.current, nil
}

// Bearer returns the current token's compact serialization, renewing if
// needed. It satisfies the analyst client's token source.
func (g *Generator) Bearer() (string, error) {
	t, err := g.CurrentToken()
	if err != nil {
		return "", err
	}
	return t.Raw, nil
}

func (g *Generator) sign(now time.Time) (Token, error) {
	name := g.principal.QualifiedName()
	expires := now.Add(g.lifetime)

	claims := jwt.MapClaims{
		"iss": name,
		"sub": name,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(g.key)
	if err != nil {
		return Token{}, &SigningError{Err: err}
	}

	return Token{
		Raw:       raw,
		IssuedAt:  now,
		ExpiresAt: expires,
	}, nil
}
