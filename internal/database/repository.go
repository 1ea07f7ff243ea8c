package database

type ChatRepository interface {
	Ping() error
	Close() error
	LoadUsers() ([]User, error)
	LoadRooms() ([]Room, error)
	SaveUser(user User) error
	SaveRoom(room Room) error
	// DeleteRoom removes a room and its messages. Nothing is removed when
	// it fails.
	DeleteRoom(name string) error
	SaveMessage(roomName string, msg Message) error
	DeleteMessagesForRoom(name string) error
}
