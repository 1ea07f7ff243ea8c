package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/npezzotti/go-rumble/internal/types"
	"golang.org/x/crypto/bcrypt"
)

var errSessionNotFound = errors.New("session not found")

type session struct {
	username string
	expires  time.Time
}

// sessionRegistry maps live tokens to usernames. Each user holds at most
// one token; an expired token stays registered until the user logs in
// again.
type sessionRegistry struct {
	method     jwt.SigningMethod
	signingKey []byte
	ttl        time.Duration
	byToken    map[string]session
	byUser     map[string]string
}

func newSessionRegistry(signingKey []byte, ttl time.Duration) *sessionRegistry {
	return &sessionRegistry{
		method:     jwt.SigningMethodHS256,
		signingKey: signingKey,
		ttl:        ttl,
		byToken:    make(map[string]session),
		byUser:     make(map[string]string),
	}
}

func (sr *sessionRegistry) newToken(username string, now time.Time) (string, time.Time, error) {
	exp := now.Add(sr.ttl)
	token := jwt.NewWithClaims(sr.method, jwt.RegisteredClaims{
		Subject:   username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})

	signed, err := token.SignedString(sr.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, exp, nil
}

func (sr *sessionRegistry) verifyToken(tokenString string, now time.Time) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return sr.signingKey, nil
	},
		jwt.WithValidMethods([]string{sr.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// start issues a token for username, superseding any token it held.
func (sr *sessionRegistry) start(username string, now time.Time) (token string, superseded bool, err error) {
	token, exp, err := sr.newToken(username, now)
	if err != nil {
		return "", false, err
	}

	if old, ok := sr.byUser[username]; ok {
		delete(sr.byToken, old)
		superseded = true
	}

	sr.byToken[token] = session{username: username, expires: exp}
	sr.byUser[username] = token

	return token, superseded, nil
}

func (sr *sessionRegistry) resolve(token string, now time.Time) (string, error) {
	s, ok := sr.byToken[token]
	if !ok {
		return "", errSessionNotFound
	}

	claims, err := sr.verifyToken(token, now)
	if err != nil {
		return "", err
	}

	if claims.Subject != s.username || !now.Before(s.expires) {
		return "", fmt.Errorf("session for %q is no longer valid", s.username)
	}

	return s.username, nil
}

// end removes a registered token.
func (sr *sessionRegistry) end(token string) bool {
	s, ok := sr.byToken[token]
	if !ok {
		return false
	}

	delete(sr.byToken, token)
	delete(sr.byUser, s.username)
	return true
}

// Login verifies the credentials and starts a new session for the user.
// A session the user already holds is invalidated.
func (cs *ChatServer) Login(username, password string) (string, error) {
	cs.mu.RLock()
	user, ok := cs.users.lookup(username)
	cs.mu.RUnlock()

	if !ok || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), passwordDigest(password)) != nil {
		return "", newError(ErrUnauthorized, "Invalid username or password")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	token, superseded, err := cs.sessions.start(username, cs.now())
	if err != nil {
		return "", internalError(err, "failed to create session for %s", username)
	}

	if !superseded {
		cs.stats.Incr(metricActiveSessions)
	}

	return token, nil
}

// Logout ends the session identified by token.
func (cs *ChatServer) Logout(token string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return err
	}

	cs.sessions.end(token)
	cs.stats.Decr(metricActiveSessions)

	return nil
}

// Resolve returns the user holding the live session token.
func (cs *ChatServer) Resolve(token string) (types.User, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return cs.resolveLocked(token)
}
