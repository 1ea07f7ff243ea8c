package server

import (
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tcases := []struct {
		name     string
		input    string
		expected time.Time
		err      bool
	}{
		{
			name:     "timestamp without zone is utc",
			input:    "2014-12-24T00:00:00",
			expected: time.Date(2014, 12, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339 utc",
			input:    "2014-12-24T10:30:00Z",
			expected: time.Date(2014, 12, 24, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "rfc3339 with offset is converted to utc",
			input:    "2014-12-24T12:30:00+02:00",
			expected: time.Date(2014, 12, 24, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "garbage",
			input: "start",
			err:   true,
		},
		{
			name:  "date only",
			input: "2014-12-24",
			err:   true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tc.input)
			if tc.err {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.expected.Equal(ts), "expected %v, got %v", tc.expected, ts)
			assert.Equal(t, time.UTC, ts.Location())
		})
	}
}

func Test_room_append(t *testing.T) {
	at := time.Date(2014, 12, 24, 10, 0, 0, 0, time.UTC)
	r := newRoom("lobby")

	r.append(types.Message{Timestamp: at.Add(2 * time.Second), Text: "c"})
	r.append(types.Message{Timestamp: at, Text: "a"})
	r.append(types.Message{Timestamp: at.Add(2 * time.Second), Text: "d"})
	r.append(types.Message{Timestamp: at.Add(time.Second), Text: "b"})
	r.append(types.Message{Timestamp: at, Text: "a2"})

	var texts []string
	for _, m := range r.messages {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"a", "a2", "b", "c", "d"}, texts)
}

func TestPostMessage(t *testing.T) {
	cs, clock := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")

	err := cs.PostMessage(token, "room0", "hi")
	assertErrorMessage(t, err, ErrNotFound, "Room not found")

	require.NoError(t, cs.CreateRoom(token, "room0"))

	err = cs.PostMessage("bad token", "room0", "hi")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = cs.PostMessage(token, "room0", "hi")
	assertErrorMessage(t, err, ErrForbidden, "User is not a member of the room")

	require.NoError(t, cs.JoinRoom(token, "room0"))

	clock.Set(time.Date(2014, 12, 24, 10, 0, 0, 750_000_000, time.FixedZone("CET", 3600)))
	require.NoError(t, cs.PostMessage(token, "room0", "hi"))

	r, _ := cs.rooms.get("room0")
	require.Len(t, r.messages, 1)
	assert.Equal(t, types.Message{
		Timestamp: time.Date(2014, 12, 24, 9, 0, 0, 0, time.UTC),
		Handle:    "Al",
		Text:      "hi",
	}, r.messages[0], "expected utc timestamp truncated to the second")
}

func TestPostMessage_PersistenceFailure(t *testing.T) {
	dbErr := errors.New("db error")
	db := &database.MockChatRepository{}
	db.On("SaveUser", mock.Anything).Return(nil)
	db.On("SaveRoom", mock.Anything).Return(nil)
	db.On("SaveMessage", "room0", mock.MatchedBy(func(m database.Message) bool {
		return m.Handle == "Al" && m.Content == "hi" && !m.CreatedAt.IsZero()
	})).Return(dbErr).Once()
	defer db.AssertExpectations(t)

	cs, clock := newTestChatServer(t, db)
	token := loginTestUser(t, cs, "alice", "Al")
	require.NoError(t, cs.CreateRoom(token, "room0"))
	require.NoError(t, cs.JoinRoom(token, "room0"))

	err := cs.PostMessage(token, "room0", "hi")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, dbErr)

	msgs, err := cs.MessagesBetween(token, "room0", clock.Now().Add(-time.Hour), clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, msgs, "expected failed post to be rolled back")
}

func TestMessages_HalfOpenRange(t *testing.T) {
	cs, clock := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")
	require.NoError(t, cs.CreateRoom(token, "room0"))
	require.NoError(t, cs.JoinRoom(token, "room0"))

	start := clock.Now()
	for _, text := range []string{"TEST MESSAGE 0", "TEST MESSAGE 1", "TEST MESSAGE 2"} {
		require.NoError(t, cs.PostMessage(token, "room0", text))
		clock.Advance(time.Second)
	}

	tcases := []struct {
		name     string
		start    time.Time
		end      time.Time
		expected []string
	}{
		{
			name:     "empty range",
			start:    start,
			end:      start,
			expected: []string{},
		},
		{
			name:     "reversed range",
			start:    start.Add(time.Second),
			end:      start,
			expected: []string{},
		},
		{
			name:     "start inclusive end exclusive",
			start:    start,
			end:      start.Add(time.Second),
			expected: []string{"TEST MESSAGE 0"},
		},
		{
			name:     "middle",
			start:    start.Add(time.Second),
			end:      start.Add(2 * time.Second),
			expected: []string{"TEST MESSAGE 1"},
		},
		{
			name:     "all messages",
			start:    start,
			end:      start.Add(4 * time.Second),
			expected: []string{"TEST MESSAGE 0", "TEST MESSAGE 1", "TEST MESSAGE 2"},
		},
		{
			name:     "before any message",
			start:    start.Add(-time.Hour),
			end:      start,
			expected: []string{},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			msgs, err := cs.MessagesBetween(token, "room0", tc.start, tc.end)
			require.NoError(t, err)
			require.NotNil(t, msgs, "expected an empty sequence, not nil")

			texts := make([]string, 0, len(msgs))
			for _, m := range msgs {
				texts = append(texts, m.Text)
			}
			assert.Equal(t, tc.expected, texts)
		})
	}
}

func TestMessages_TiesKeepPostOrder(t *testing.T) {
	cs, clock := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")
	require.NoError(t, cs.CreateRoom(token, "room0"))
	require.NoError(t, cs.JoinRoom(token, "room0"))

	at := clock.Now()
	require.NoError(t, cs.PostMessage(token, "room0", "later"))
	// the wall clock stepped back
	clock.Set(at.Add(-2 * time.Second))
	require.NoError(t, cs.PostMessage(token, "room0", "first"))
	clock.Set(at.Add(-2*time.Second + 500*time.Millisecond))
	require.NoError(t, cs.PostMessage(token, "room0", "second"))

	msgs, err := cs.MessagesBetween(token, "room0", at.Add(-time.Minute), at.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Text)
	assert.Equal(t, "second", msgs[1].Text)
	assert.Equal(t, "later", msgs[2].Text)
	assert.Equal(t, msgs[0].Timestamp, msgs[1].Timestamp)
}

func TestMessages_TextRange(t *testing.T) {
	cs, _ := newTestChatServer(t, newAcceptingRepo())
	token := loginTestUser(t, cs, "alice", "Al")
	outsider := loginTestUser(t, cs, "bob", "Bo")

	_, err := cs.Messages(token, "room0", "start", "end")
	assert.ErrorIs(t, err, ErrNotFound, "expected missing room before bad range")

	require.NoError(t, cs.CreateRoom(token, "room0"))

	_, err = cs.Messages("No such user", "room0", "start", "end")
	assert.ErrorIs(t, err, ErrUnauthorized, "expected bad token before bad range")

	_, err = cs.Messages(outsider, "room0", "start", "end")
	assert.ErrorIs(t, err, ErrForbidden, "expected missing membership before bad range")

	require.NoError(t, cs.JoinRoom(token, "room0"))

	_, err = cs.Messages(token, "room0", "start", "2014-12-25T00:00:00")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = cs.Messages(token, "room0", "2014-12-24T00:00:00", "end")
	assert.ErrorIs(t, err, ErrInvalid)

	msgs, err := cs.Messages(token, "room0", "2014-12-24T00:00:00", "2014-12-25T00:00:00")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, cs.PostMessage(token, "room0", "TEST MESSAGE"))
	msgs, err = cs.Messages(token, "room0", "2014-12-24T00:00:00", "2014-12-25T00:00:00")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "TEST MESSAGE", msgs[0].Text)
}

func TestEndToEnd(t *testing.T) {
	t.Run("post and query a message", func(t *testing.T) {
		cs, clock := newTestChatServer(t, newAcceptingRepo())
		_, err := cs.Register("alice", "pw", "Al")
		require.NoError(t, err)
		tokenA, err := cs.Login("alice", "pw")
		require.NoError(t, err)

		require.NoError(t, cs.CreateRoom(tokenA, "lobby"))
		require.NoError(t, cs.JoinRoom(tokenA, "lobby"))

		before := clock.Now()
		clock.Advance(400 * time.Millisecond)
		require.NoError(t, cs.PostMessage(tokenA, "lobby", "hi"))
		clock.Advance(time.Second)
		after := clock.Now()

		msgs, err := cs.MessagesBetween(tokenA, "lobby", before, after)
		require.NoError(t, err)
		assert.Equal(t, []types.Message{{Timestamp: before, Handle: "Al", Text: "hi"}}, msgs)
	})

	t.Run("register the same username twice", func(t *testing.T) {
		cs, _ := newTestChatServer(t, newAcceptingRepo())
		_, err := cs.Register("alice", "pw", "Al")
		require.NoError(t, err)

		_, err = cs.Register("alice", "pw", "Al")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, err.Error(), "alice")
	})

	t.Run("second login invalidates the first", func(t *testing.T) {
		cs, _ := newTestChatServer(t, newAcceptingRepo())
		tokenA := loginTestUser(t, cs, "alice", "Al")
		tokenB, err := cs.Login("alice", "passwurd")
		require.NoError(t, err)

		_, err = cs.Resolve(tokenA)
		assert.ErrorIs(t, err, ErrUnauthorized)
		_, err = cs.Resolve(tokenB)
		assert.NoError(t, err)
	})

	t.Run("room names are reusable after destruction", func(t *testing.T) {
		cs, _ := newTestChatServer(t, newAcceptingRepo())
		token := loginTestUser(t, cs, "alice", "Al")

		require.NoError(t, cs.CreateRoom(token, "x"))
		require.NoError(t, cs.DestroyRoom(token, "x"))
		assert.NoError(t, cs.CreateRoom(token, "x"))
	})
}
