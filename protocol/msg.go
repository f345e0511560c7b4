// Package protocol defines the messages exchanged between Raido and its
// clients over WebSocket, and the primitives to send and receive them.
//
// Messages are JSON objects sent in text frames. Every message carries a
// type, a timestamp and an optional request id used to match responses to
// requests.
package protocol

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	// ErrTypeIndexNotJoined is the type of the error returned when a client
	// sends an index scoped message without having joined an index.
	ErrTypeIndexNotJoined = "index_not_joined"

	// ErrTypeMsgSkip indicates that a message was not handled by a module.
	ErrTypeMsgSkip = "msg_skip"

	// ErrTypeBadMsg is the type of the error returned when a frame is not a
	// valid message.
	ErrTypeBadMsg = "bad_msg"
)

// HeaderClientID is the HTTP header where clients put their id when opening
// a connection.
const HeaderClientID = "X-Raido-Client-Id"

// Payload is a message body.
type Payload interface {
	GetType() MsgType
}

// Header contains the fields shared by all messages.
type Header struct {
	Type      MsgType   `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RequestID uint32    `json:"request_id,omitempty"`
}

// NewHeader returns a header timestamped with the current time.
func NewHeader(t MsgType, requestID uint32) Header {
	return Header{
		Type:      t,
		Timestamp: time.Now(),
		RequestID: requestID,
	}
}

func (h Header) GetType() MsgType {
	return h.Type
}

// Msg is an encoded message.
type Msg struct {
	Type      MsgType
	Time      time.Time
	RequestID uint32
	Data      []byte
}

// MsgFromPayload encodes the given payload.
func MsgFromPayload(p Payload) (Msg, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").
			WithTag("msg_type", p.GetType()).
			Wrap(err)
	}
	return Decode(data)
}

// Decode reads the header of an encoded message.
func Decode(data []byte) (Msg, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Msg{}, errors.New("decoding message header failed").
			WithType(ErrTypeBadMsg).
			Wrap(err)
	}

	if h.Type == "" {
		return Msg{}, errors.New("message has no type").WithType(ErrTypeBadMsg)
	}

	return Msg{
		Type:      h.Type,
		Time:      h.Timestamp,
		RequestID: h.RequestID,
		Data:      data,
	}, nil
}

// DataTo decodes the message into the given payload.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message failed").
			WithType(ErrTypeBadMsg).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// TypeString returns the message type as a string.
func (m Msg) TypeString() string {
	return string(m.Type)
}

// ResponseSender is the interface to send messages to a client.
type ResponseSender interface {
	// Encodes and sends a payload.
	Send(Payload)

	// Sends an already encoded message.
	SendMsg(Msg)
}

// Receiver is a function that reads a message. It returns the number of
// bytes read.
type Receiver func() (Msg, int, error)

// Sender is a function that writes a message. It returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// Send writes a message to the given connection.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	if err := websocket.Message.Send(conn, string(msg.Data)); err != nil {
		return 0, err
	}
	return len(msg.Data), nil
}

// Receive reads a message from the given connection.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	msg, err := Decode(data)
	return msg, len(data), err
}
