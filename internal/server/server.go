package server

import (
	"crypto/rand"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/stats"
	"github.com/npezzotti/go-rumble/internal/types"
	"golang.org/x/crypto/bcrypt"
)

// NumActiveSessions counts registered sessions. An expired session stays
// counted until its user logs in again.
const (
	metricUsers          = "NumUsers"
	metricActiveSessions = "NumActiveSessions"
	metricRooms          = "NumRooms"
	metricMessages       = "NumMessages"

	defaultSessionTTL = time.Hour * 24
)

type Options struct {
	// SigningKey signs session tokens. A random key is generated when empty,
	// which invalidates tokens across restarts.
	SigningKey   []byte
	SessionTTL   time.Duration
	PasswordCost int
}

// ChatServer owns users, sessions, rooms and their messages. A single
// RWMutex guards all of it; mutations are written to the repository while
// the lock is held and only applied in memory once the write succeeded.
type ChatServer struct {
	log          *log.Logger
	db           database.ChatRepository
	stats        stats.StatsProvider
	mu           sync.RWMutex
	users        *userDirectory
	sessions     *sessionRegistry
	rooms        *roomRegistry
	passwordCost int
	now          func() time.Time
}

func NewChatServer(logger *log.Logger, db database.ChatRepository, su stats.StatsProvider, opts Options) (*ChatServer, error) {
	key := opts.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	cost := opts.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	cs := &ChatServer{
		log:          logger,
		db:           db,
		stats:        su,
		users:        newUserDirectory(),
		sessions:     newSessionRegistry(key, ttl),
		rooms:        newRoomRegistry(),
		passwordCost: cost,
		now:          time.Now,
	}

	for _, name := range []string{metricUsers, metricActiveSessions, metricRooms, metricMessages} {
		cs.stats.RegisterMetric(name)
	}

	return cs, nil
}

// Load replaces the in-memory state with the contents of the repository.
// It must complete before any other operation is served.
func (cs *ChatServer) Load() error {
	dbUsers, err := cs.db.LoadUsers()
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}

	dbRooms, err := cs.db.LoadRooms()
	if err != nil {
		return fmt.Errorf("load rooms: %w", err)
	}

	users := newUserDirectory()
	for _, u := range dbUsers {
		users.add(types.User{
			Username:     u.Username,
			Handle:       u.Handle,
			PasswordHash: u.PasswordHash,
		})
	}

	rooms := newRoomRegistry()
	var numMessages int
	for _, dbRoom := range dbRooms {
		r := newRoom(dbRoom.Name)
		for _, m := range dbRoom.Messages {
			r.append(types.Message{
				Timestamp: m.CreatedAt.UTC().Truncate(time.Second),
				Handle:    m.Handle,
				Text:      m.Content,
			})
		}
		numMessages += len(r.messages)
		rooms.add(r)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.stats.Add(metricUsers, len(users.order)-len(cs.users.order))
	cs.stats.Add(metricRooms, len(rooms.order)-len(cs.rooms.order))
	cs.stats.Add(metricMessages, numMessages-cs.rooms.numMessages())

	cs.users = users
	cs.rooms = rooms

	cs.log.Printf("loaded %d users and %d rooms with %d messages", len(dbUsers), len(dbRooms), numMessages)
	return nil
}

func (cs *ChatServer) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.log.Println("closing chat server")
	if err := cs.db.Close(); err != nil {
		return fmt.Errorf("close repository: %w", err)
	}

	return nil
}

// Ping reports whether the backing repository is reachable.
func (cs *ChatServer) Ping() error {
	return cs.db.Ping()
}

// resolveLocked returns the user owning a live session token. The caller
// must hold cs.mu.
func (cs *ChatServer) resolveLocked(token string) (types.User, error) {
	username, err := cs.sessions.resolve(token, cs.now())
	if err != nil {
		return types.User{}, errUnauthorizedUser()
	}

	user, ok := cs.users.lookup(username)
	if !ok {
		return types.User{}, errUnauthorizedUser()
	}

	return user, nil
}

func (cs *ChatServer) roomLocked(name string) (*room, error) {
	r, ok := cs.rooms.get(name)
	if !ok {
		return nil, errRoomNotFound()
	}

	return r, nil
}

// memberLocked authorizes token to act inside room name.
func (cs *ChatServer) memberLocked(token, name string) (types.User, *room, error) {
	user, err := cs.resolveLocked(token)
	if err != nil {
		return types.User{}, nil, err
	}

	r, err := cs.roomLocked(name)
	if err != nil {
		return types.User{}, nil, err
	}

	if !r.isMember(user.Username) {
		return types.User{}, nil, newError(ErrForbidden, "User is not a member of the room")
	}

	return user, r, nil
}
