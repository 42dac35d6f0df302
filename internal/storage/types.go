package storage

import (
	"encoding"
	"encoding/binary"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBConversation struct {
	ID           string   `msgpack:"id"`
	Participants []string `msgpack:"participants"`
	ListingID    int64    `msgpack:"listingId"`
	ListingTitle string   `msgpack:"listingTitle"`
	CreatedAt    int64    `msgpack:"createdAt"`
	UnreadCount  int      `msgpack:"unreadCount"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

type DBMessage struct {
	ID             string `msgpack:"id"`
	ConversationID string `msgpack:"conversationId"`
	SenderID       string `msgpack:"senderId"`
	Content        string `msgpack:"content"`
	Type           string `msgpack:"type"`
	Timestamp      int64  `msgpack:"timestamp"` // Unix nanoseconds
	Read           bool   `msgpack:"read"`
	Status         string `msgpack:"status"`
}

// Key orders messages by timestamp within the conversation bucket,
// with the id as a tiebreaker.
func (m *DBMessage) Key() []byte {
	key := make([]byte, 8, 8+len(m.ID))
	binary.BigEndian.PutUint64(key, uint64(m.Timestamp))
	return append(key, m.ID...)
}

func (m *DBMessage) MarshalBinary() (data []byte, err error) {
	type alias DBMessage
	return msgpack.Marshal((*alias)(m))
}

func (m *DBMessage) UnmarshalBinary(data []byte) error {
	type alias DBMessage
	return msgpack.Unmarshal(data, (*alias)(m))
}

// DBPushSubscription holds a browser web-push subscription as the
// JSON blob the browser handed over.
type DBPushSubscription struct {
	ID           string `msgpack:"id"`
	Subscription []byte `msgpack:"subscription"`
	CreatedAt    int64  `msgpack:"createdAt"`
}

func (s *DBPushSubscription) Key() []byte {
	return []byte(s.ID)
}

func (s *DBPushSubscription) MarshalBinary() (data []byte, err error) {
	type alias DBPushSubscription
	return msgpack.Marshal((*alias)(s))
}

func (s *DBPushSubscription) UnmarshalBinary(data []byte) error {
	type alias DBPushSubscription
	return msgpack.Unmarshal(data, (*alias)(s))
}
