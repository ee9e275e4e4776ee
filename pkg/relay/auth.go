// Package relay carries jadedchat envelopes between sibling server
// processes over websockets. A Hub plays the proxy: it accepts one
// connection per server, unwraps each Forward envelope and hands the
// inbound form to the addressed servers. Client is the per-process end.
package relay

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chanrelay"

// ErrNoServer is returned for a token without a server name.
var ErrNoServer = errors.New("token names no server")

// Auth issues and checks the bearer tokens servers present to the hub. The
// token subject is the server name.
type Auth struct {
	key    []byte
	expiry time.Duration
}

// NewAuth creates an authenticator. If secret is empty a random 32-byte key
// is generated, which only works when hub and clients share the process.
func NewAuth(secret string, expiry time.Duration) *Auth {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &Auth{key: key, expiry: expiry}
}

// Issue signs a token for server.
func (a *Auth) Issue(server string) (string, error) {
	if server == "" {
		return "", ErrNoServer
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   server,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
}

// Validate checks a token and returns the server it was issued to.
func (a *Auth) Validate(tokenStr string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.key, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return "", ErrNoServer
	}
	return claims.Subject, nil
}
