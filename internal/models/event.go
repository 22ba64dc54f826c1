package models

import (
	"fmt"
	"strconv"
	"strings"
)

// EventType names a push frame delivered to a user's topic.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessagesRead   EventType = "messages.read"
)

// Event is the envelope written to push subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`

	// Set for messages.read: ReaderID marked everything from CounterpartID as read.
	ReaderID      uint `json:"readerId,omitempty"`
	ReaderRole    Role `json:"readerRole,omitempty"`
	CounterpartID uint `json:"counterpartId,omitempty"`
}

// PoolCounterpart stands for "the whole employee pool" when a customer marks
// their shared thread as read.
const PoolCounterpart uint = 0

// Frame actions sent by push clients.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ClientFrame is a control frame sent from a push client to the server.
type ClientFrame struct {
	Action string `json:"action"`
	Topic  string `json:"topic"`
}

// ServerAck acknowledges a ClientFrame.
type ServerAck struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Error string `json:"error,omitempty"`
}

const topicPrefix = "user."
const topicSuffix = ".messages"

// UserTopic is the delivery topic scoped to one user.
func UserTopic(userID uint) string {
	return fmt.Sprintf("%s%d%s", topicPrefix, userID, topicSuffix)
}

// ParseUserTopic extracts the user id from a topic built by UserTopic.
func ParseUserTopic(topic string) (uint, error) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicSuffix) {
		return 0, fmt.Errorf("unknown topic %q", topic)
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicSuffix)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("unknown topic %q", topic)
	}
	return uint(id), nil
}

// Audience is the set of push topics an event is delivered to. Pool adds
// every connected staff session.
type Audience struct {
	UserIDs []uint
	Pool    bool
}
