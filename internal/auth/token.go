// Package auth issues and verifies the bearer tokens that authorize host and
// player actions.
package auth

import (
	"errors"
	"fmt"
	"time"

	"quiz-engine/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Role is what a token holder may do in a game.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

const issuer = "quiz-engine"

// Claims bind a token to one game and, for players, one player id.
type Claims struct {
	GameID   string `json:"gid"`
	PlayerID string `json:"pid,omitempty"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueHost returns a token allowing lifecycle control of gameID.
func (i *Issuer) IssueHost(gameID string) (string, error) {
	return i.sign(Claims{GameID: gameID, Role: RoleHost})
}

// IssuePlayer returns a token allowing playerID to answer in gameID.
func (i *Issuer) IssuePlayer(gameID, playerID string) (string, error) {
	return i.sign(Claims{GameID: gameID, PlayerID: playerID, Role: RolePlayer})
}

func (i *Issuer) sign(c Claims) (string, error) {
	now := i.now()
	c.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject(c),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func subject(c Claims) string {
	if c.Role == RolePlayer {
		return c.PlayerID
	}
	return c.GameID
}

// Verify parses a token and returns its claims. Any failure maps to
// domain.ErrUnauthorized.
func (i *Issuer) Verify(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, domain.ErrUnauthorized
	}
	if claims.GameID == "" || (claims.Role == RolePlayer && claims.PlayerID == "") {
		return Claims{}, domain.ErrUnauthorized
	}
	if claims.Role != RoleHost && claims.Role != RolePlayer {
		return Claims{}, domain.ErrUnauthorized
	}
	return claims, nil
}

// Authorize checks that claims carry role for gameID.
func Authorize(c Claims, role Role, gameID string) error {
	if c.Role != role || c.GameID != gameID {
		return domain.ErrUnauthorized
	}
	return nil
}
