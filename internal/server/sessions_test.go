package server

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-rumble/internal/stats"
	"github.com/npezzotti/go-rumble/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestLogin(t *testing.T) {
	tcases := []struct {
		name     string
		username string
		password string
		success  bool
	}{
		{
			name:     "successful login",
			username: "Saar_Sayfan",
			password: "passwurd",
			success:  true,
		},
		{
			name:     "fails with wrong password",
			username: "Saar_Sayfan",
			password: "passwird",
		},
		{
			name:     "fails with unregistered user",
			username: "nobody",
			password: "passwurd",
		},
		{
			name:     "fails when logging in by handle",
			username: "Saar",
			password: "passwurd",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cs, _ := newTestChatServer(t, newAcceptingRepo())
			_, err := cs.Register("Saar_Sayfan", "passwurd", "Saar")
			require.NoError(t, err)

			token, err := cs.Login(tc.username, tc.password)
			if !tc.success {
				assertErrorMessage(t, err, ErrUnauthorized, "Invalid username or password")
				assert.Empty(t, token)
				assert.Empty(t, cs.sessions.byToken, "expected no session to be created")
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, token)

			user, err := cs.Resolve(token)
			require.NoError(t, err)
			assert.Equal(t, "Saar_Sayfan", user.Username)
			assert.Equal(t, "Saar", user.Handle)
		})
	}
}

func TestLogin_SupersedesPreviousSession(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	tokenA := loginTestUser(t, cs, "alice", "Al")

	tokenB, err := cs.Login("alice", "passwurd")
	require.NoError(t, err, "expected re-login to succeed")
	assert.NotEqual(t, tokenA, tokenB, "expected a fresh token")

	_, err = cs.Resolve(tokenA)
	assert.ErrorIs(t, err, ErrUnauthorized, "expected the first token to be invalidated")

	user, err := cs.Resolve(tokenB)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	assert.Len(t, cs.sessions.byToken, 1, "expected a single live session per user")
}

type failingSigningMethod struct{}

func (failingSigningMethod) Alg() string { return "HS256" }

func (failingSigningMethod) Sign(string, any) ([]byte, error) {
	return nil, errors.New("signer unavailable")
}

func (failingSigningMethod) Verify(string, []byte, any) error {
	return errors.New("signer unavailable")
}

func TestLogin_SigningFailure(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	_, err := cs.Register("alice", "passwurd", "Al")
	require.NoError(t, err)

	cs.sessions.method = failingSigningMethod{}

	_, err = cs.Login("alice", "passwurd")
	assertErrorMessage(t, err, ErrInternal, "failed to create session for alice")
	assert.Empty(t, cs.sessions.byToken, "expected no session to be registered")
}

func TestLogin_ActiveSessionCount(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return()
	su.On("Incr", metricUsers).Return()
	su.On("Incr", metricActiveSessions).Return().Once()
	defer su.AssertExpectations(t)

	cs, err := NewChatServer(testutil.TestLogger(t), newAcceptingRepo(), su, Options{
		SigningKey:   testSigningKey,
		PasswordCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	clock := &testClock{now: time.Date(2014, 12, 24, 10, 0, 0, 0, time.UTC)}
	cs.now = clock.Now

	token := loginTestUser(t, cs, "alice", "Al")

	// an expired session is still registered and counted
	clock.Advance(defaultSessionTTL)
	_, err = cs.Resolve(token)
	require.ErrorIs(t, err, ErrUnauthorized)

	// logging in again replaces it without counting a second session
	_, err = cs.Login("alice", "passwurd")
	require.NoError(t, err)
	assert.Len(t, cs.sessions.byToken, 1)
	su.AssertNotCalled(t, "Decr", metricActiveSessions)
}

func TestLogin_TokensAreUnique(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	loginTestUser(t, cs, "alice", "Al")

	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		token, err := cs.Login("alice", "passwurd")
		require.NoError(t, err)
		_, dup := seen[token]
		assert.False(t, dup, "expected token %d to be unique", i)
		seen[token] = struct{}{}
	}
}

func TestLogout(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")

	require.NoError(t, cs.Logout(token))

	_, err := cs.Resolve(token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = cs.Logout(token)
	assertErrorMessage(t, err, ErrUnauthorized, "Unauthorized user")

	err = cs.Logout("12343tyui876543345678976543")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// the user may log in again afterwards
	_, err = cs.Login("alice", "passwurd")
	assert.NoError(t, err)
}

func TestResolve_ExpiredSession(t *testing.T) {
	cs, clock := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")

	clock.Advance(defaultSessionTTL - time.Second)
	_, err := cs.Resolve(token)
	assert.NoError(t, err, "expected token to be valid before expiry")

	clock.Advance(time.Second)
	_, err = cs.Resolve(token)
	assert.ErrorIs(t, err, ErrUnauthorized, "expected token to expire")

	err = cs.CreateRoom(token, "lobby")
	assert.ErrorIs(t, err, ErrUnauthorized)

	token, err = cs.Login("alice", "passwurd")
	require.NoError(t, err)
	_, err = cs.Resolve(token)
	assert.NoError(t, err)
}

func TestResolve_ForeignToken(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	loginTestUser(t, cs, "alice", "Al")

	other, err := NewChatServer(testutil.TestLogger(t), newAcceptingRepo(), newMockStats(), Options{
		SigningKey:   []byte("another-key"),
		PasswordCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	other.now = cs.now
	foreign := loginTestUser(t, other, "alice", "Al")

	_, err = cs.Resolve(foreign)
	assert.ErrorIs(t, err, ErrUnauthorized, "expected a token issued elsewhere to be rejected")
}

func Test_sessionRegistry_verifyToken(t *testing.T) {
	now := time.Date(2014, 12, 24, 10, 0, 0, 0, time.UTC)
	sr := newSessionRegistry([]byte("key"), time.Hour)

	token, _, err := sr.newToken("alice", now)
	require.NoError(t, err)

	claims, err := sr.verifyToken(token, now)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.NotEmpty(t, claims.ID)

	_, err = sr.verifyToken(token, now.Add(time.Hour))
	assert.Error(t, err, "expected expired token to fail verification")

	_, err = newSessionRegistry([]byte("other"), time.Hour).verifyToken(token, now)
	assert.Error(t, err, "expected token signed with another key to fail verification")

	_, err = sr.verifyToken("not a token", now)
	assert.Error(t, err)
}
