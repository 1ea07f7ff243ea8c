package database

import (
	"fmt"
	"time"
)

const (
	insertUserQuery = "INSERT INTO users (username, password_hash, handle, created_at) " +
		"VALUES (?, ?, ?, ?)"
	insertRoomQuery    = "INSERT INTO rooms (name, created_at) VALUES (?, ?)"
	insertMessageQuery = "INSERT INTO messages (room_id, user_id, content, created_at) VALUES (" +
		"(SELECT id FROM rooms WHERE name = ?), " +
		"(SELECT id FROM users WHERE handle = ?), ?, ?)"
	deleteRoomQuery     = "DELETE FROM rooms WHERE name = ?"
	deleteMessagesQuery = "DELETE FROM messages WHERE room_id IN (SELECT id FROM rooms WHERE name = ?)"
	selectUsersQuery    = "SELECT id, username, password_hash, handle, created_at FROM users ORDER BY id"
	selectRoomsQuery    = "SELECT id, name, created_at FROM rooms ORDER BY id"
	selectMessagesQuery = "SELECT m.id, m.room_id, u.handle, m.content, m.created_at FROM messages AS m " +
		"JOIN users AS u ON u.id = m.user_id ORDER BY m.room_id, m.created_at, m.id"
)

func (db *SqlChatRepository) LoadUsers() ([]User, error) {
	rows, err := db.conn.Query(db.rebind(selectUsersQuery))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.PasswordHash, &u.Handle, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.CreatedAt = u.CreatedAt.UTC()

		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

func (db *SqlChatRepository) LoadRooms() ([]Room, error) {
	rows, err := db.conn.Query(db.rebind(selectRoomsQuery))
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	byId := make(map[int]int)
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Id, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		r.Messages = make([]Message, 0)

		byId[r.Id] = len(rooms)
		rooms = append(rooms, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if err := db.loadMessages(rooms, byId); err != nil {
		return nil, err
	}

	return rooms, nil
}

func (db *SqlChatRepository) loadMessages(rooms []Room, byId map[int]int) error {
	rows, err := db.conn.Query(db.rebind(selectMessagesQuery))
	if err != nil {
		return fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg    Message
			roomId int
		)
		if err := rows.Scan(&msg.Id, &roomId, &msg.Handle, &msg.Content, &msg.CreatedAt); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()

		idx, ok := byId[roomId]
		if !ok {
			return fmt.Errorf("message %d references unknown room %d", msg.Id, roomId)
		}
		rooms[idx].Messages = append(rooms[idx].Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func (db *SqlChatRepository) SaveUser(user User) error {
	_, err := db.conn.Exec(
		db.rebind(insertUserQuery),
		user.Username,
		user.PasswordHash,
		user.Handle,
		createdAt(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert user %q: %w", user.Username, err)
	}

	return nil
}

func (db *SqlChatRepository) SaveRoom(room Room) error {
	_, err := db.conn.Exec(
		db.rebind(insertRoomQuery),
		room.Name,
		createdAt(room.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert room %q: %w", room.Name, err)
	}

	return nil
}

// DeleteRoom removes the room together with its messages in one
// transaction.
func (db *SqlChatRepository) DeleteRoom(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(db.rebind(deleteMessagesQuery), name); err != nil {
		return fmt.Errorf("delete messages for room %q: %w", name, err)
	}

	if _, err := tx.Exec(db.rebind(deleteRoomQuery), name); err != nil {
		return fmt.Errorf("delete room %q: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (db *SqlChatRepository) SaveMessage(roomName string, msg Message) error {
	_, err := db.conn.Exec(
		db.rebind(insertMessageQuery),
		roomName,
		msg.Handle,
		msg.Content,
		createdAt(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message into %q: %w", roomName, err)
	}

	return nil
}

func (db *SqlChatRepository) DeleteMessagesForRoom(name string) error {
	if _, err := db.conn.Exec(db.rebind(deleteMessagesQuery), name); err != nil {
		return fmt.Errorf("delete messages for room %q: %w", name, err)
	}

	return nil
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

var _ ChatRepository = (*SqlChatRepository)(nil)
