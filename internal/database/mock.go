package database

import (
	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) LoadUsers() ([]User, error) {
	args := m.Called()
	if users, ok := args.Get(0).([]User); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) LoadRooms() ([]Room, error) {
	args := m.Called()
	if rooms, ok := args.Get(0).([]Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockChatRepository) SaveUser(user User) error {
	args := m.Called(user)
	return args.Error(0)
}
func (m *MockChatRepository) SaveRoom(room Room) error {
	args := m.Called(room)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteRoom(name string) error {
	args := m.Called(name)
	return args.Error(0)
}
func (m *MockChatRepository) SaveMessage(roomName string, msg Message) error {
	args := m.Called(roomName, msg)
	return args.Error(0)
}
func (m *MockChatRepository) DeleteMessagesForRoom(name string) error {
	args := m.Called(name)
	return args.Error(0)
}
