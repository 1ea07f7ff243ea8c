package server

import (
	"sort"
	"time"

	"github.com/npezzotti/go-rumble/internal/database"
	"github.com/npezzotti/go-rumble/internal/types"
)

// TimestampLayout is the layout messages are rendered with. Timestamps
// without a zone are read as UTC.
const TimestampLayout = "2006-01-02T15:04:05"

// ParseTimestamp accepts RFC 3339 or TimestampLayout.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}

	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, newError(ErrInvalid, "Invalid timestamp %q", s)
	}

	return t, nil
}

// append inserts m after every message with a timestamp not later than its
// own, so the log stays sorted by time and then by insertion.
func (r *room) append(m types.Message) {
	idx := sort.Search(len(r.messages), func(i int) bool {
		return r.messages[i].Timestamp.After(m.Timestamp)
	})

	if idx == len(r.messages) {
		r.messages = append(r.messages, m)
		return
	}

	r.messages = append(r.messages, types.Message{})
	copy(r.messages[idx+1:], r.messages[idx:])
	r.messages[idx] = m
}

// between returns the messages with start <= timestamp < end.
func (r *room) between(start, end time.Time) []types.Message {
	result := make([]types.Message, 0)
	if !start.Before(end) {
		return result
	}

	idx := sort.Search(len(r.messages), func(i int) bool {
		return !r.messages[i].Timestamp.Before(start)
	})

	for _, m := range r.messages[idx:] {
		if !m.Timestamp.Before(end) {
			break
		}
		result = append(result, m)
	}

	return result
}

// PostMessage appends text to the room's log, stamped with the current
// UTC time truncated to the second.
func (cs *ChatServer) PostMessage(token, name, text string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	user, r, err := cs.memberLocked(token, name)
	if err != nil {
		return err
	}

	msg := types.Message{
		Timestamp: cs.now().UTC().Truncate(time.Second),
		Handle:    user.Handle,
		Text:      text,
	}

	err = cs.db.SaveMessage(name, database.Message{
		Handle:    msg.Handle,
		Content:   msg.Text,
		CreatedAt: msg.Timestamp,
	})
	if err != nil {
		return persistenceError(err, "failed to save message to room %s", name)
	}

	r.append(msg)
	cs.stats.Incr(metricMessages)

	return nil
}

// Messages returns the room's messages in the half-open range [start, end),
// both given as text. The range is parsed after membership is checked.
func (cs *ChatServer) Messages(token, name, start, end string) ([]types.Message, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	_, r, err := cs.memberLocked(token, name)
	if err != nil {
		return nil, err
	}

	startTime, err := ParseTimestamp(start)
	if err != nil {
		return nil, err
	}

	endTime, err := ParseTimestamp(end)
	if err != nil {
		return nil, err
	}

	return r.between(startTime, endTime), nil
}

// MessagesBetween is Messages for already parsed bounds.
func (cs *ChatServer) MessagesBetween(token, name string, start, end time.Time) ([]types.Message, error) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	_, r, err := cs.memberLocked(token, name)
	if err != nil {
		return nil, err
	}

	return r.between(start, end), nil
}
