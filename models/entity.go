package models

import (
	"sync"

	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
)

// An entity is a point owned by a participant and indexed in the spatial
// index of an index.
type Entity struct {
	ID            uint32
	ParticipantID uint32
	Persist       bool

	mutex    sync.RWMutex
	position rtree.Point
}

// Position returns the position where the entity is indexed.
func (e *Entity) Position() rtree.Point {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.position
}

// setPosition must only be called by the index holding the entity, while
// the entity is out of the spatial index.
func (e *Entity) setPosition(p rtree.Point) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.position = p
}

func (e *Entity) ToProtocol() protocol.Entity {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return protocol.Entity{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		Position:      e.position,
		Persist:       e.Persist,
	}
}

func EntitiesToProtocol(entities []*Entity) []protocol.Entity {
	res := make([]protocol.Entity, len(entities))
	for i, e := range entities {
		res[i] = e.ToProtocol()
	}
	return res
}
