package protocol

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

const defaultScenarioTimeout = time.Second * 5

// Scenario is a scripted sequence of messages sent and expected on a client
// connection. It is used to test servers end to end.
type Scenario struct {
	conn  *websocket.Conn
	steps []func() error
}

// NewScenario creates a scenario that runs on the given connection.
func NewScenario(conn *websocket.Conn) *Scenario {
	return &Scenario{conn: conn}
}

// Send adds a step that sends the payload returned by newPayload.
func (s *Scenario) Send(newPayload func() Payload) *Scenario {
	s.steps = append(s.steps, func() error {
		msg, err := MsgFromPayload(newPayload())
		if err != nil {
			return err
		}

		_, err = Send(s.conn, msg)
		return err
	})
	return s
}

// Receive adds a step that reads messages until one goes through all the
// given handlers. A handler returning an error of type ErrTypeMsgSkip
// discards the message. Any other error stops the scenario.
func (s *Scenario) Receive(handlers ...func(Msg) error) *Scenario {
	s.steps = append(s.steps, func() error {
		for {
			msg, _, err := Receive(s.conn)
			if err != nil {
				return errors.New("receiving message failed").Wrap(err)
			}

			if err = handle(msg, handlers); errors.IsType(err, ErrTypeMsgSkip) {
				continue
			}
			return err
		}
	})
	return s
}

func handle(msg Msg, handlers []func(Msg) error) error {
	for _, h := range handlers {
		if err := h(msg); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the scenario steps in order. Reads fail once the context deadline,
// or a default timeout when the context has none, is exceeded.
func (s *Scenario) Run(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultScenarioTimeout)
	}

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return errors.New("setting read deadline failed").Wrap(err)
	}
	defer s.conn.SetReadDeadline(time.Time{})

	for i, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := step(); err != nil {
			return errors.New("scenario step failed").
				WithTag("step", i).
				Wrap(err)
		}
	}
	return nil
}

// FilterByType skips messages that are not of the given type.
func FilterByType(t MsgType) func(Msg) error {
	return func(msg Msg) error {
		if msg.Type != t {
			return errors.New("unexpected message type").
				WithType(ErrTypeMsgSkip).
				WithTag("expected", t).
				WithTag("msg_type", msg.Type)
		}
		return nil
	}
}

// FilterByRequestID skips messages that do not respond to the given request.
func FilterByRequestID(id uint32) func(Msg) error {
	return func(msg Msg) error {
		if msg.RequestID != id {
			return errors.New("unexpected request id").
				WithType(ErrTypeMsgSkip).
				WithTag("expected", id).
				WithTag("request_id", msg.RequestID)
		}
		return nil
	}
}
