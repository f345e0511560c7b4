package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/raido/featureflag"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/modules"
	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
	"golang.org/x/net/websocket"
)

// RealtimeHandler represents a service that manages multiple client connections
// and relays their actions in realtime.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server indexes.
	Indexes *models.IndexStore

	// The modules that expand Raido features.
	Modules []modules.Module

	FeatureFlags featureflag.FeatureFlag

	conn               *websocket.Conn
	currentIndex       *models.Index
	currentParticipant *models.Participant

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(protocol.HeaderClientID)
	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(&protocol.Response{
		Header: protocol.NewHeader(protocol.MsgTypePingResponse, req.RequestID),
	})
	return nil
}

func (h *RealtimeHandler) HandleIndexJoin(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.IndexJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentIndex != nil && h.Indexes.GlobalIndexID(h.currentIndex.ID) == req.IndexID {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeAlreadyJoined))
		return nil
	}

	index, ok := h.Indexes.GetByGlobalID(req.IndexID)
	if !ok && req.IndexID != "" {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeNotFound))
		return nil
	}

	if h.currentParticipant != nil {
		h.leaveIndex()
	}

	if !ok {
		index = h.Indexes.NewIndex()
		if err := h.Indexes.Add(ctx, index); err != nil {
			index.Close()
			respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeInternalServerError))
			return nil
		}
	}

	participant := &models.Participant{
		ID:        index.NewParticipantID(),
		Responder: respond,
	}

	if err := index.AddParticipant(participant); err != nil {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeNotFound))
		return nil
	}

	respond.Send(&protocol.IndexJoinResponse{
		Header:        protocol.NewHeader(protocol.MsgTypeIndexJoinResponse, req.RequestID),
		IndexID:       h.Indexes.GlobalIndexID(index.ID),
		IndexUUID:     index.UUID,
		ParticipantID: participant.ID,
	})

	h.currentIndex = index
	h.currentParticipant = participant

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableIndexState, func() {
		respond.Send(&protocol.IndexState{
			Header:       protocol.NewHeader(protocol.MsgTypeIndexState, 0),
			Participants: models.ParticipantsToProtocol(index.GetParticipants()),
			Entities:     models.EntitiesToProtocol(index.Entities()),
		})
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantJoinBroadcast, func() {
		index.Broadcast(participant, &protocol.ParticipantJoinBroadcast{
			Header:          protocol.NewHeader(protocol.MsgTypeParticipantJoinBroadcast, 0),
			OriginTimestamp: req.Timestamp,
			ParticipantID:   participant.ID,
		})
	})

	for _, m := range h.Modules {
		m.Init(index, participant)
	}

	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveIndex()
	}
}

func (h *RealtimeHandler) HandleEntityAdd(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.EntityAddRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	index := h.currentIndex
	if participant == nil || index == nil {
		return errors.New("index not joined").
			WithType(protocol.ErrTypeIndexNotJoined).
			WithTag("msg_type", msg.Type)
	}

	entity, err := index.AddEntity(participant.ID, req.Position, req.Persist)
	if errors.IsType(err, rtree.ErrTypeCapacityExceeded) {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeIndexFull))
		return nil
	}
	if err != nil {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeInternalServerError))
		return nil
	}

	participant.AddEntity(entity)

	now := time.Now()

	respond.Send(&protocol.EntityAddResponse{
		Header:   protocol.Header{Type: protocol.MsgTypeEntityAddResponse, Timestamp: now, RequestID: req.RequestID},
		EntityID: entity.ID,
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityAddBroadcast, func() {
		index.Broadcast(participant, &protocol.EntityAddBroadcast{
			Header:          protocol.Header{Type: protocol.MsgTypeEntityAddBroadcast, Timestamp: now},
			OriginTimestamp: req.Timestamp,
			Entity:          entity.ToProtocol(),
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleEntityDelete(ctx context.Context, respond protocol.ResponseSender, msg protocol.Msg) error {
	var req protocol.EntityDeleteRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	index := h.currentIndex
	if participant == nil || index == nil {
		return errors.New("index not joined").
			WithType(protocol.ErrTypeIndexNotJoined).
			WithTag("msg_type", msg.Type)
	}

	entity, ok := index.EntityByID(req.EntityID)
	if !ok {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeNotFound))
		return nil
	}

	if entity.ParticipantID != participant.ID {
		respond.Send(protocol.NewErrorResponse(req.RequestID, protocol.ErrorCodeUnauthorized))
		return nil
	}

	now := time.Now()

	index.RemoveEntity(entity)
	participant.RemoveEntity(entity)

	respond.Send(&protocol.EntityDeleteResponse{
		Header: protocol.Header{Type: protocol.MsgTypeEntityDeleteResponse, Timestamp: now, RequestID: req.RequestID},
	})

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityDeleteBroadcast, func() {
		index.Broadcast(participant, &protocol.EntityDeleteBroadcast{
			Header:          protocol.Header{Type: protocol.MsgTypeEntityDeleteBroadcast, Timestamp: now},
			OriginTimestamp: req.Timestamp,
			EntityID:        entity.ID,
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleEntityMove(ctx context.Context, msg protocol.Msg) error {
	var move protocol.EntityMove
	if err := msg.DataTo(&move); err != nil {
		return err
	}

	participant := h.currentParticipant
	index := h.currentIndex
	if participant == nil || index == nil {
		return errors.New("index not joined").
			WithType(protocol.ErrTypeIndexNotJoined).
			WithTag("msg_type", msg.Type)
	}

	entity, ok := index.EntityByID(move.EntityID)
	if !ok {
		return nil
	}

	if entity.ParticipantID != participant.ID {
		return nil
	}

	if err := index.MoveEntity(entity, move.Position); err != nil {
		// A rejected move keeps the entity in place unless the index dropped
		// it.
		if e, ok := index.EntityByID(entity.ID); !ok || e != entity {
			h.dropEntity(index, participant, entity)
		}
		return nil
	}

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityMoveBroadcast, func() {
		index.Broadcast(participant, &protocol.EntityMoveBroadcast{
			Header:          protocol.NewHeader(protocol.MsgTypeEntityMoveBroadcast, 0),
			OriginTimestamp: move.Timestamp,
			EntityID:        entity.ID,
			Position:        entity.Position(),
		})
	})

	return nil
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond protocol.ResponseSender, msg protocol.Msg) error {
	if h.CurrentParticipant() == nil || h.CurrentIndex() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, protocol.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond protocol.ResponseSender) error {
	respond.Send(&protocol.SyncClock{
		Header: protocol.NewHeader(protocol.MsgTypeSyncClock, 0),
	})
	return nil
}

func (h *RealtimeHandler) Receiver() protocol.Receiver {
	return func() (protocol.Msg, int, error) {
		return protocol.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() protocol.Sender {
	return func(msg protocol.Msg) (int, error) {
		return protocol.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetIndexes() *models.IndexStore {
	return h.Indexes
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentIndex() *models.Index {
	return h.currentIndex
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

// dropEntity notifies the other participants that an entity no longer
// exists.
func (h *RealtimeHandler) dropEntity(index *models.Index, participant *models.Participant, entity *models.Entity) {
	participant.RemoveEntity(entity)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityDeleteBroadcast, func() {
		now := time.Now()
		index.Broadcast(participant, &protocol.EntityDeleteBroadcast{
			Header:          protocol.Header{Type: protocol.MsgTypeEntityDeleteBroadcast, Timestamp: now},
			OriginTimestamp: now,
			EntityID:        entity.ID,
		})
	})
}

func (h *RealtimeHandler) leaveIndex() {
	index := h.currentIndex
	participant := h.currentParticipant

	if participant == nil || index == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	now := time.Now()

	for id := range participant.EntityIDs() {
		entity, ok := index.EntityByID(id)
		if !ok || entity.Persist {
			continue
		}

		index.RemoveEntity(entity)

		h.FeatureFlags.IfNotSet(featureflag.FlagDisableEntityDeleteBroadcast, func() {
			index.Broadcast(participant, &protocol.EntityDeleteBroadcast{
				Header:          protocol.Header{Type: protocol.MsgTypeEntityDeleteBroadcast, Timestamp: now},
				OriginTimestamp: now,
				EntityID:        entity.ID,
			})
		})
	}

	index.RemoveParticipant(participant)

	h.FeatureFlags.IfNotSet(featureflag.FlagDisableParticipantLeaveBroadcast, func() {
		index.Broadcast(participant, &protocol.ParticipantLeaveBroadcast{
			Header:          protocol.Header{Type: protocol.MsgTypeParticipantLeaveBroadcast, Timestamp: now},
			OriginTimestamp: now,
			ParticipantID:   participant.ID,
		})
	})

	h.Indexes.RemoveIfEmpty(context.Background(), index)

	h.currentParticipant = nil
	h.currentIndex = nil
}
