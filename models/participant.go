package models

import (
	"github.com/aukilabs/raido/protocol"
)

// An index participant.
type Participant struct {
	ID        uint32
	Responder protocol.ResponseSender

	entityIDs map[uint32]struct{}
}

func (p *Participant) AddEntity(e *Entity) {
	if p.entityIDs == nil {
		p.entityIDs = make(map[uint32]struct{})
	}
	p.entityIDs[e.ID] = struct{}{}
}

func (p *Participant) RemoveEntity(e *Entity) {
	delete(p.entityIDs, e.ID)
}

func (p *Participant) EntityIDs() map[uint32]struct{} {
	return p.entityIDs
}

func (p *Participant) ToProtocol() protocol.Participant {
	return protocol.Participant{
		ID: p.ID,
	}
}

func ParticipantsToProtocol(participants []*Participant) []protocol.Participant {
	res := make([]protocol.Participant, len(participants))
	for i, p := range participants {
		res[i] = p.ToProtocol()
	}
	return res
}
