package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/modules"
	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
	"github.com/stretchr/testify/require"
)

type testModule struct {
	currentIndex       *models.Index
	currentParticipant *models.Participant
	handledMsgs        []protocol.MsgType
	skippedMsgs        []protocol.MsgType
	onDisconnect       func()
}

func (m *testModule) Name() string {
	return "test-module"
}

func (m *testModule) Init(i *models.Index, p *models.Participant) {
	m.currentIndex = i
	m.currentParticipant = p
}

func (m *testModule) HandleMsg(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	switch msg.Type {
	case protocol.MsgTypeEntityAddRequest:
		m.skippedMsgs = append(m.skippedMsgs, msg.Type)
		return errors.New("message skipped").WithType(protocol.ErrTypeMsgSkip)

	default:
		m.handledMsgs = append(m.handledMsgs, msg.Type)
		return nil
	}
}

func (m *testModule) HandleDisconnect() {
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

func TestModule(t *testing.T) {
	var wg sync.WaitGroup
	var modA *testModule

	clientA, _, close := NewTestingEnv(t, newTestHandler(func() modules.Module {
		if modA == nil {
			wg.Add(1)
			modA = &testModule{
				onDisconnect: func() {
					wg.Done()
				},
			}
		}
		return modA
	}))
	defer close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := protocol.NewScenario(clientA).
		Send(func() protocol.Payload {
			return &protocol.IndexJoinRequest{
				Header: protocol.NewHeader(protocol.MsgTypeIndexJoinRequest, 1),
			}
		}).
		Receive(
			protocol.FilterByRequestID(1),
			protocol.FilterByType(protocol.MsgTypeIndexJoinResponse),
		).
		Receive(
			protocol.FilterByType(protocol.MsgTypeIndexState),
		).
		Send(func() protocol.Payload {
			return &protocol.EntityAddRequest{
				Header:   protocol.NewHeader(protocol.MsgTypeEntityAddRequest, 2),
				Position: rtree.Point{X: 1, Y: 1},
			}
		}).
		Receive(
			protocol.FilterByRequestID(2),
			protocol.FilterByType(protocol.MsgTypeEntityAddResponse),
		).
		Run(ctx)
	require.NoError(t, err)

	clientA.Close()

	wg.Wait()
	require.NotNil(t, modA.currentIndex)
	require.NotNil(t, modA.currentParticipant)
	require.Equal(t, []protocol.MsgType{protocol.MsgTypeIndexJoinRequest}, modA.handledMsgs)
	require.Equal(t, []protocol.MsgType{protocol.MsgTypeEntityAddRequest}, modA.skippedMsgs)
}
