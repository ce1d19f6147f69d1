package api

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// localUserID owns every request when auth is disabled.
const localUserID = "local"

var (
	errMissingSubject = errors.New("token has no subject")
	errNoExpiry       = errors.New("token has no expiry")
)

// Auth checks HS256 bearer tokens signed with a shared secret. Audience and
// Issuer are enforced only when set.
type Auth struct {
	Audience string
	Issuer   string

	secret []byte
	parser *jwt.Parser
}

func NewAuth(secret, audience, issuer string) (*Auth, error) {
	if secret == "" {
		return nil, errors.New("auth secret must not be empty")
	}
	return &Auth{
		Audience: audience,
		Issuer:   issuer,
		secret:   []byte(secret),
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// UserIDFromAuthHeader returns the subject of the bearer token in h.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	token, err := parseBearer(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromToken(token)
}

// UserIDFromToken verifies a compact JWT and returns its subject. The parser
// already rejects expired, not-yet-valid and future-issued tokens.
func (a *Auth) UserIDFromToken(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(token, &claims, a.key); err != nil {
		return "", err
	}
	if claims.ExpiresAt == nil {
		return "", errNoExpiry
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, true) {
		return "", fmt.Errorf("audience %v not accepted", claims.Audience)
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, true) {
		return "", fmt.Errorf("issuer %q not accepted", claims.Issuer)
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return claims.Subject, nil
}

func (a *Auth) key(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
	}
	return a.secret, nil
}
