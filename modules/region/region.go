// Package region implements a module that answers region queries and
// statistics requests on the spatial index of the joined index.
package region

import (
	"context"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/protocol"
)

// State is the region module state shared by the participants of an index.
type State struct {
	queries atomic.Uint64
}

// Queries returns the number of region queries served.
func (s *State) Queries() uint64 {
	return s.queries.Load()
}

type Module struct {
	currentIndex       *models.Index
	currentParticipant *models.Participant
	state              *State
}

func (m *Module) Name() string {
	return "region"
}

func (m *Module) Init(i *models.Index, p *models.Participant) {
	m.currentIndex = i
	m.currentParticipant = p

	m.state = i.LoadOrStoreModuleState(m.Name(), func() any {
		return &State{}
	}).(*State)
}

func (m *Module) HandleMsg(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var err error

	switch msg.Type {
	case protocol.MsgTypeRegionQueryRequest:
		err = m.HandleRegionQuery(ctx, respond, msg)

	case protocol.MsgTypeIndexStatsRequest:
		err = m.HandleIndexStats(ctx, respond, msg)
	}

	return err
}

func (m *Module) HandleDisconnect() {
}

func (m *Module) HandleRegionQuery(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.RegionQueryRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	index := m.currentIndex
	if index == nil {
		return errors.New("index not joined").
			WithType(protocol.ErrTypeIndexNotJoined).
			WithTag("msg_type", msg.Type)
	}

	if req.Region.IsEmpty() {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeBadRequest))
		return nil
	}

	entities := index.Query(req.Region)
	m.state.queries.Add(1)

	respond.Send(&protocol.RegionQueryResponse{
		Header:   protocol.NewHeader(protocol.MsgTypeRegionQueryResponse, req.RequestID),
		Entities: models.EntitiesToProtocol(entities),
	})
	return nil
}

func (m *Module) HandleIndexStats(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	index := m.currentIndex
	if index == nil {
		return errors.New("index not joined").
			WithType(protocol.ErrTypeIndexNotJoined).
			WithTag("msg_type", msg.Type)
	}

	respond.Send(&protocol.IndexStatsResponse{
		Header:        protocol.NewHeader(protocol.MsgTypeIndexStatsResponse, req.RequestID),
		Stats:         index.Stats(),
		RegionQueries: m.state.Queries(),
	})
	return nil
}
