// Package tokens issues and verifies the signed links mailed to users: invitation activation
// links and password reset links.
//
// A token is an HS256 JWT whose claims are derived entirely from the subject's identity, a
// fingerprint of its current state and the time it was issued. Any change to the state after
// issuance makes the recomputed token differ, so links are single-use without server-side
// bookkeeping.
package tokens

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalid is the only failure a caller ever sees when a link does not check out.
var ErrInvalid = errors.New("invalid token")

// Audiences for the two link kinds. A token minted for one never validates as the other.
const (
	AudienceInvitation    = "invitation"
	AudiencePasswordReset = "password-reset"
)

// Subject is anything a link can be minted for.
type Subject interface {
	// TokenSubject is the stable identifier carried in the link.
	TokenSubject() string
	// TokenState changes whenever previously issued links must stop working.
	TokenState() string
	// TokenIssuedAt anchors expiry. The zero time means "now".
	TokenIssuedAt() time.Time
}

type claims struct {
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// Generator mints and checks tokens for one audience.
type Generator struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewGenerator returns a Generator signing with secret. Tokens expire ttl after issuance.
func NewGenerator(secret, audience string, ttl time.Duration) *Generator {
	return &Generator{
		secret:   []byte(secret),
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock returns a copy of g that reads time from now.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	cp := *g
	cp.now = now
	return &cp
}

// TTL reports how long issued tokens stay valid.
func (g *Generator) TTL() time.Duration {
	return g.ttl
}

// Make returns the token for the subject's current state.
func (g *Generator) Make(s Subject) (string, error) {
	issued := s.TokenIssuedAt()
	if issued.IsZero() {
		issued = g.now()
	}
	return g.makeAt(s, issued)
}

func (g *Generator) makeAt(s Subject, issued time.Time) (string, error) {
	if len(g.secret) == 0 {
		return "", errors.New("tokens: signing secret not configured")
	}
	issued = time.Unix(issued.Unix(), 0)

	c := claims{
		Fingerprint: fingerprint(s.TokenState()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.TokenSubject(),
			Audience:  jwt.ClaimStrings{g.audience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(g.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

// Check reports whether token was minted by g for the subject in its current state and has
// not expired.
func (g *Generator) Check(s Subject, token string) bool {
	if s == nil || token == "" || len(g.secret) == 0 {
		return false
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(g.audience),
		jwt.WithSubject(s.TokenSubject()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	var c claims
	parsed, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil || !parsed.Valid || c.IssuedAt == nil {
		return false
	}

	expected, err := g.makeAt(s, c.IssuedAt.Time)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 1
}

func fingerprint(state string) string {
	sum := sha256.Sum256([]byte(state))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
