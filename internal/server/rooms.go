package server

import (
	"slices"

	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/types"
)

type room struct {
	name string
	// usernames in join order
	members  []string
	messages []types.Message
}

func newRoom(name string) *room {
	return &room{
		name:     name,
		members:  make([]string, 0),
		messages: make([]types.Message, 0),
	}
}

func (r *room) isMember(username string) bool {
	return slices.Contains(r.members, username)
}

func (r *room) addMember(username string) bool {
	if r.isMember(username) {
		return false
	}

	r.members = append(r.members, username)
	return true
}

func (r *room) removeMember(username string) bool {
	idx := slices.Index(r.members, username)
	if idx < 0 {
		return false
	}

	r.members = slices.Delete(r.members, idx, idx+1)
	return true
}

type roomRegistry struct {
	byName map[string]*room
	// creation order
	order []string
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{
		byName: make(map[string]*room),
		order:  make([]string, 0),
	}
}

func (rr *roomRegistry) get(name string) (*room, bool) {
	r, ok := rr.byName[name]
	return r, ok
}

func (rr *roomRegistry) add(r *room) {
	rr.byName[r.name] = r
	rr.order = append(rr.order, r.name)
}

func (rr *roomRegistry) remove(name string) {
	delete(rr.byName, name)
	if idx := slices.Index(rr.order, name); idx >= 0 {
		rr.order = slices.Delete(rr.order, idx, idx+1)
	}
}

func (rr *roomRegistry) numMessages() int {
	var n int
	for _, r := range rr.byName {
		n += len(r.messages)
	}
	return n
}

// CreateRoom creates an empty room. Room names are unique among existing
// rooms; the name of a destroyed room may be reused.
func (cs *ChatServer) CreateRoom(token, name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return err
	}

	if _, ok := cs.rooms.get(name); ok {
		return newError(ErrConflict, "A room with this name already exists")
	}

	err := cs.db.SaveRoom(database.Room{
		Name:      name,
		CreatedAt: cs.now().UTC(),
	})
	if err != nil {
		return persistenceError(err, "failed to save room %s", name)
	}

	cs.rooms.add(newRoom(name))
	cs.stats.Incr(metricRooms)

	return nil
}

// DestroyRoom deletes a room along with its memberships and messages.
func (cs *ChatServer) DestroyRoom(token, name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return err
	}

	r, err := cs.roomLocked(name)
	if err != nil {
		return err
	}

	if err := cs.db.DeleteRoom(name); err != nil {
		return persistenceError(err, "failed to delete room %s", name)
	}

	cs.rooms.remove(name)
	cs.stats.Decr(metricRooms)
	cs.stats.Add(metricMessages, -len(r.messages))

	return nil
}

// Rooms returns the names of all rooms in creation order.
func (cs *ChatServer) Rooms(token string) ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return nil, err
	}

	return slices.Clone(cs.rooms.order), nil
}

func (cs *ChatServer) JoinRoom(token, name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user, err := cs.resolveLocked(token)
	if err != nil {
		return err
	}

	r, err := cs.roomLocked(name)
	if err != nil {
		return err
	}

	if !r.addMember(user.Username) {
		return newError(ErrConflict, "User already in the room")
	}

	return nil
}

func (cs *ChatServer) LeaveRoom(token, name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user, err := cs.resolveLocked(token)
	if err != nil {
		return err
	}

	r, err := cs.roomLocked(name)
	if err != nil {
		return err
	}

	if !r.removeMember(user.Username) {
		return newError(ErrNotFound, "User not found")
	}

	return nil
}

// Members returns the handles of the room's current members in join order.
func (cs *ChatServer) Members(token, name string) ([]string, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	if _, err := cs.resolveLocked(token); err != nil {
		return nil, err
	}

	r, err := cs.roomLocked(name)
	if err != nil {
		return nil, err
	}

	handles := make([]string, 0, len(r.members))
	for _, username := range r.members {
		if u, ok := cs.users.lookup(username); ok {
			handles = append(handles, u.Handle)
		}
	}

	return handles, nil
}
