package server

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/types"
	"golang.org/x/crypto/bcrypt"
)

type userDirectory struct {
	byUsername map[string]types.User
	handles    map[string]struct{}
	// registration order
	order []string
}

// passwordDigest fits a password of any length into bcrypt's 72 byte input.
func passwordDigest(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

func newUserDirectory() *userDirectory {
	return &userDirectory{
		byUsername: make(map[string]types.User),
		handles:    make(map[string]struct{}),
	}
}

func (ud *userDirectory) lookup(username string) (types.User, bool) {
	u, ok := ud.byUsername[username]
	return u, ok
}

func (ud *userDirectory) handleTaken(handle string) bool {
	_, ok := ud.handles[handle]
	return ok
}

func (ud *userDirectory) add(u types.User) {
	ud.byUsername[u.Username] = u
	ud.handles[u.Handle] = struct{}{}
	ud.order = append(ud.order, u.Username)
}

// Register creates a new user. Both the username and the handle must be
// unused by every registered user.
func (cs *ChatServer) Register(username, password, handle string) (types.User, error) {
	pwdHash, err := bcrypt.GenerateFromPassword(passwordDigest(password), cs.passwordCost)
	if err != nil {
		return types.User{}, internalError(err, "failed to hash password")
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.users.lookup(username); ok {
		return types.User{}, newError(ErrConflict, "Username %s is already taken", username)
	}
	if cs.users.handleTaken(handle) {
		return types.User{}, newError(ErrConflict, "Handle %s is already taken", handle)
	}

	user := types.User{
		Username:     username,
		Handle:       handle,
		PasswordHash: string(pwdHash),
	}

	err = cs.db.SaveUser(database.User{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Handle:       user.Handle,
		CreatedAt:    cs.now().UTC(),
	})
	if err != nil {
		return types.User{}, persistenceError(err, "failed to save user %s", username)
	}

	cs.users.add(user)
	cs.stats.Incr(metricUsers)

	return user, nil
}

func (cs *ChatServer) FindByUsername(username string) (types.User, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return cs.users.lookup(username)
}

// Users returns the handle of every registered user in registration order.
func (cs *ChatServer) Users(token string) ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(cs.users.order))
	for _, username := range cs.users.order {
		handles = append(handles, cs.users.byUsername[username].Handle)
	}

	return handles, nil
}
