package models

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
	"github.com/google/uuid"
)

const (
	// ErrTypeIndexClosed is the type of the error returned when an entity is
	// added to or moved in a closed index.
	ErrTypeIndexClosed = "index_closed"

	// ErrTypeEntityNotFound is the type of the error returned when an entity
	// is not in the index.
	ErrTypeEntityNotFound = "entity_not_found"
)

// DefaultIndexConfig is the spatial index config used when an index store
// has none.
var DefaultIndexConfig = rtree.Config{
	MinElementsPerNode: 4,
	MaxElementsPerNode: 16,
	MaxElements:        4096,
}

// Index represents a spatial index shared by participants. The entities of
// an index are stored in an rtree.Tree, which is only accessed while holding
// treeMutex.
type Index struct {
	ID   uint32
	UUID string

	participantIDs   SequentialIDGenerator
	participantMutex sync.RWMutex
	participants     map[uint32]*Participant

	entityIDs SequentialIDGenerator
	treeMutex sync.RWMutex
	tree      *rtree.Tree[*Entity]
	entities  map[uint32]*Entity
	closed    bool

	moduleStates map[string]any
	moduleMutex  sync.RWMutex

	closeOnce sync.Once
}

// NewIndex creates an index with its spatial index allocated from the given
// config. It panics when the config is not valid.
func NewIndex(id uint32, c rtree.Config) *Index {
	return &Index{
		ID:           id,
		UUID:         uuid.New().String(),
		participants: make(map[uint32]*Participant),
		tree:         rtree.New[*Entity](c),
		entities:     make(map[uint32]*Entity),
		moduleStates: make(map[string]any),
	}
}

// Close releases the spatial index. Participants can no longer join and
// entities can no longer be added or moved once the index is closed.
func (i *Index) Close() {
	i.participantMutex.Lock()
	defer i.participantMutex.Unlock()

	i.close()
}

func (i *Index) close() {
	i.closeOnce.Do(func() {
		i.treeMutex.Lock()
		defer i.treeMutex.Unlock()

		instrumentEntities(-len(i.entities))
		i.tree.Close()
		i.entities = make(map[uint32]*Entity)
		i.closed = true
	})
}

// closeIfEmpty closes the index when it has no participants. It reports
// whether the index is closed.
func (i *Index) closeIfEmpty() bool {
	i.participantMutex.Lock()
	defer i.participantMutex.Unlock()

	if len(i.participants) != 0 {
		return false
	}

	i.close()
	return true
}

func (i *Index) NewParticipantID() uint32 {
	return i.participantIDs.New()
}

// AddParticipant adds a participant to the index. It returns an error of
// type ErrTypeIndexClosed when the index is closed.
func (i *Index) AddParticipant(p *Participant) error {
	i.participantMutex.Lock()
	defer i.participantMutex.Unlock()

	if i.closed {
		return errors.New("index is closed").
			WithType(ErrTypeIndexClosed).
			WithTag("index_id", i.ID).
			WithTag("participant_id", p.ID)
	}

	i.participants[p.ID] = p
	return nil
}

func (i *Index) RemoveParticipant(p *Participant) {
	i.participantMutex.Lock()
	defer i.participantMutex.Unlock()

	delete(i.participants, p.ID)
}

// GetParticipants returns the participants sorted by id.
func (i *Index) GetParticipants() []*Participant {
	i.participantMutex.RLock()
	defer i.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(i.participants))
	for _, p := range i.participants {
		participants = append(participants, p)
	}

	sort.Slice(participants, func(a, b int) bool {
		return participants[a].ID < participants[b].ID
	})
	return participants
}

func (i *Index) GetParticipantsByIDs(ids ...uint32) []*Participant {
	i.participantMutex.RLock()
	defer i.participantMutex.RUnlock()

	participants := make([]*Participant, 0, len(ids))
	for _, id := range ids {
		p, ok := i.participants[id]
		if ok {
			participants = append(participants, p)
		}
	}
	return participants
}

func (i *Index) ParticipantCount() int {
	i.participantMutex.RLock()
	defer i.participantMutex.RUnlock()

	return len(i.participants)
}

// AddEntity creates an entity at the given position and inserts it in the
// spatial index. It returns an error of type rtree.ErrTypeCapacityExceeded
// when the index is full.
func (i *Index) AddEntity(participantID uint32, pos rtree.Point, persist bool) (*Entity, error) {
	i.treeMutex.Lock()
	defer i.treeMutex.Unlock()

	if i.closed {
		return nil, errors.New("index is closed").
			WithType(ErrTypeIndexClosed).
			WithTag("index_id", i.ID)
	}

	e := &Entity{
		ID:            i.entityIDs.New(),
		ParticipantID: participantID,
		Persist:       persist,
		position:      pos,
	}

	if err := i.tree.TryInsert(pos, e); err != nil {
		i.entityIDs.Reuse(e.ID)
		instrumentCapacityError()
		return nil, errors.New("adding entity failed").
			WithType(rtree.ErrTypeCapacityExceeded).
			WithTag("index_id", i.ID).
			WithTag("participant_id", participantID).
			Wrap(err)
	}

	i.entities[e.ID] = e
	instrumentEntities(1)
	return e, nil
}

// RemoveEntity removes the entity from the index. It returns false when the
// entity is not in the index.
func (i *Index) RemoveEntity(e *Entity) bool {
	i.treeMutex.Lock()
	defer i.treeMutex.Unlock()

	if i.entities[e.ID] != e {
		return false
	}

	if !i.tree.Remove(e.Position(), isEntity(e)) {
		logs.WithTag("index_id", i.ID).
			WithTag("entity_id", e.ID).
			Warn(errors.New("entity missing from spatial index"))
	}

	delete(i.entities, e.ID)
	i.entityIDs.Reuse(e.ID)
	instrumentEntities(-1)
	return true
}

// MoveEntity moves the entity to the given position. The entity stays at its
// previous position when the spatial index cannot hold the new one.
func (i *Index) MoveEntity(e *Entity, pos rtree.Point) error {
	i.treeMutex.Lock()
	defer i.treeMutex.Unlock()

	if i.closed {
		return errors.New("index is closed").
			WithType(ErrTypeIndexClosed).
			WithTag("index_id", i.ID)
	}

	if i.entities[e.ID] != e {
		return errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("index_id", i.ID).
			WithTag("entity_id", e.ID)
	}

	prev := e.Position()
	if prev == pos {
		return nil
	}

	i.tree.Remove(prev, isEntity(e))

	err := i.tree.TryInsert(pos, e)
	if err == nil {
		e.setPosition(pos)
		return nil
	}
	instrumentCapacityError()

	if rerr := i.tree.TryInsert(prev, e); rerr != nil {
		delete(i.entities, e.ID)
		i.entityIDs.Reuse(e.ID)
		instrumentEntities(-1)

		return errors.New("moving entity failed, entity dropped").
			WithType(rtree.ErrTypeCapacityExceeded).
			WithTag("index_id", i.ID).
			WithTag("entity_id", e.ID).
			Wrap(rerr)
	}

	return errors.New("moving entity failed").
		WithType(rtree.ErrTypeCapacityExceeded).
		WithTag("index_id", i.ID).
		WithTag("entity_id", e.ID).
		Wrap(err)
}

func (i *Index) EntityByID(id uint32) (*Entity, bool) {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	e, ok := i.entities[id]
	return e, ok
}

// Entities returns the entities sorted by id.
func (i *Index) Entities() []*Entity {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	entities := make([]*Entity, 0, len(i.entities))
	for _, e := range i.entities {
		entities = append(entities, e)
	}

	sortEntities(entities)
	return entities
}

func (i *Index) EntityCount() int {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	return len(i.entities)
}

// Query returns the entities positioned within the given box, sorted by id.
func (i *Index) Query(b rtree.Box) []*Entity {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	if i.closed {
		return nil
	}

	var entities []*Entity
	i.tree.Query(b, func(e *Entity) {
		entities = append(entities, e)
	})

	instrumentQueryResults(len(entities))
	sortEntities(entities)
	return entities
}

// Stats returns a summary of the spatial index.
func (i *Index) Stats() rtree.Stats {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	if i.closed {
		return rtree.Stats{}
	}
	return i.tree.Stats()
}

// Check verifies the structure of the spatial index.
func (i *Index) Check() error {
	i.treeMutex.RLock()
	defer i.treeMutex.RUnlock()

	if i.closed {
		return nil
	}
	return i.tree.Check()
}

func (i *Index) Broadcast(sender *Participant, p protocol.Payload) {
	i.participantMutex.RLock()
	defer i.participantMutex.RUnlock()

	msg, err := protocol.MsgFromPayload(p)
	if err != nil {
		logs.WithTag("msg_type", p.GetType()).Debug(err)
		return
	}

	for _, participant := range i.participants {
		if participant == sender {
			continue
		}
		participant.Responder.SendMsg(msg)
	}
}

func (i *Index) BroadcastTo(sender *Participant, p protocol.Payload, participantIDs ...uint32) {
	participants := i.GetParticipantsByIDs(participantIDs...)
	isParticipantHandled := make(map[uint32]struct{}, len(participantIDs))

	msg, err := protocol.MsgFromPayload(p)
	if err != nil {
		logs.WithTag("msg_type", p.GetType()).Debug(err)
		return
	}

	for _, participant := range participants {
		if participant == sender {
			continue
		}

		if _, ok := isParticipantHandled[participant.ID]; ok {
			continue
		}
		isParticipantHandled[participant.ID] = struct{}{}

		participant.Responder.SendMsg(msg)
	}
}

func (i *Index) SetModuleState(moduleName string, state any) {
	i.moduleMutex.Lock()
	defer i.moduleMutex.Unlock()

	i.moduleStates[moduleName] = state
}

// LoadOrStoreModuleState returns the state of the given module, creating it
// with newState when the module has none.
func (i *Index) LoadOrStoreModuleState(moduleName string, newState func() any) any {
	i.moduleMutex.Lock()
	defer i.moduleMutex.Unlock()

	state, ok := i.moduleStates[moduleName]
	if !ok {
		state = newState()
		i.moduleStates[moduleName] = state
	}
	return state
}

func (i *Index) ModuleState(moduleName string) (any, bool) {
	i.moduleMutex.RLock()
	defer i.moduleMutex.RUnlock()

	state, ok := i.moduleStates[moduleName]
	return state, ok
}

func isEntity(e *Entity) func(*Entity) bool {
	return func(v *Entity) bool {
		return v == e
	}
}

func sortEntities(entities []*Entity) {
	sort.Slice(entities, func(a, b int) bool {
		return entities[a].ID < entities[b].ID
	})
}

// IndexStore contains the indexes served by a server.
type IndexStore struct {
	// The id of the server, used as a prefix for global index ids.
	ServerID string

	// The config of the spatial index of the created indexes.
	// DefaultIndexConfig is used when zero.
	Config rtree.Config

	initOnce sync.Once
	mutex    sync.RWMutex
	indexes  map[string]*Index
	ids      SequentialIDGenerator
}

func (s *IndexStore) init() {
	s.indexes = map[string]*Index{}

	if s.ServerID == "" {
		s.ServerID = "raido"
	}

	if s.Config == (rtree.Config{}) {
		s.Config = DefaultIndexConfig
	}
}

func (s *IndexStore) NewID() uint32 {
	return s.ids.New()
}

// NewIndex creates an index with a new id and the store config. The index
// is not added to the store.
func (s *IndexStore) NewIndex() *Index {
	s.initOnce.Do(s.init)
	return NewIndex(s.NewID(), s.Config)
}

func (s *IndexStore) Add(ctx context.Context, index *Index) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.indexes[s.GlobalIndexID(index.ID)] = index

	instrumentAddIndex()
	return nil
}

func (s *IndexStore) Remove(ctx context.Context, index *Index) {
	s.remove(index, func() bool {
		index.Close()
		return true
	})
}

// RemoveIfEmpty removes and closes the index when it has no participants.
// Participants can't join the index once it is removed.
func (s *IndexStore) RemoveIfEmpty(ctx context.Context, index *Index) bool {
	return s.remove(index, index.closeIfEmpty)
}

func (s *IndexStore) remove(index *Index, close func() bool) bool {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	globalID := s.GlobalIndexID(index.ID)
	if s.indexes[globalID] != index {
		return false
	}

	if !close() {
		return false
	}

	delete(s.indexes, globalID)
	s.ids.Reuse(index.ID)

	instrumentRemoveIndex()
	return true
}

func (s *IndexStore) GetByGlobalID(v string) (*Index, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	index, ok := s.indexes[v]
	return index, ok
}

// List returns the indexes sorted by id.
func (s *IndexStore) List() []*Index {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	indexes := make([]*Index, 0, len(s.indexes))
	for _, index := range s.indexes {
		indexes = append(indexes, index)
	}

	sort.Slice(indexes, func(a, b int) bool {
		return indexes[a].ID < indexes[b].ID
	})
	return indexes
}

func (s *IndexStore) GlobalIndexID(indexID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, indexID)
}
