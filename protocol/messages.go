package protocol

import (
	"time"

	"github.com/aukilabs/raido/rtree"
)

// MsgType is the type of a message.
type MsgType string

const (
	MsgTypePingRequest  MsgType = "ping_request"
	MsgTypePingResponse MsgType = "ping_response"
	MsgTypeSyncClock    MsgType = "sync_clock"
	MsgTypeError        MsgType = "error_response"

	MsgTypeIndexJoinRequest          MsgType = "index_join_request"
	MsgTypeIndexJoinResponse         MsgType = "index_join_response"
	MsgTypeIndexState                MsgType = "index_state"
	MsgTypeParticipantJoinBroadcast  MsgType = "participant_join_broadcast"
	MsgTypeParticipantLeaveBroadcast MsgType = "participant_leave_broadcast"

	MsgTypeEntityAddRequest       MsgType = "entity_add_request"
	MsgTypeEntityAddResponse      MsgType = "entity_add_response"
	MsgTypeEntityAddBroadcast     MsgType = "entity_add_broadcast"
	MsgTypeEntityDeleteRequest    MsgType = "entity_delete_request"
	MsgTypeEntityDeleteResponse   MsgType = "entity_delete_response"
	MsgTypeEntityDeleteBroadcast  MsgType = "entity_delete_broadcast"
	MsgTypeEntityMove             MsgType = "entity_move"
	MsgTypeEntityMoveBroadcast    MsgType = "entity_move_broadcast"
	MsgTypeRegionQueryRequest     MsgType = "region_query_request"
	MsgTypeRegionQueryResponse    MsgType = "region_query_response"
	MsgTypeIndexStatsRequest      MsgType = "index_stats_request"
	MsgTypeIndexStatsResponse     MsgType = "index_stats_response"
)

// ErrorCode describes why a request failed.
type ErrorCode string

const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeAlreadyJoined       ErrorCode = "already_joined"
	ErrorCodeIndexFull           ErrorCode = "index_full"
	ErrorCodeInternalServerError ErrorCode = "internal_server_error"
)

// Request is a message without a body.
type Request struct {
	Header
}

// Response is a response without a body.
type Response struct {
	Header
}

type SyncClock struct {
	Header
}

type ErrorResponse struct {
	Header
	Code ErrorCode `json:"code"`
}

// NewErrorResponse returns an error response to the request with the given
// id.
func NewErrorResponse(requestID uint32, code ErrorCode) *ErrorResponse {
	return &ErrorResponse{
		Header: NewHeader(MsgTypeError, requestID),
		Code:   code,
	}
}

type Participant struct {
	ID uint32 `json:"id"`
}

type Entity struct {
	ID            uint32      `json:"id"`
	ParticipantID uint32      `json:"participant_id"`
	Position      rtree.Point `json:"position"`
	Persist       bool        `json:"persist,omitempty"`
}

type IndexJoinRequest struct {
	Header

	// The global id of the index to join. A new index is created when empty.
	IndexID string `json:"index_id,omitempty"`
}

type IndexJoinResponse struct {
	Header
	IndexID       string `json:"index_id"`
	IndexUUID     string `json:"index_uuid"`
	ParticipantID uint32 `json:"participant_id"`
}

type IndexState struct {
	Header
	Participants []Participant `json:"participants"`
	Entities     []Entity      `json:"entities"`
}

type ParticipantJoinBroadcast struct {
	Header
	OriginTimestamp time.Time `json:"origin_timestamp"`
	ParticipantID   uint32    `json:"participant_id"`
}

type ParticipantLeaveBroadcast struct {
	Header
	OriginTimestamp time.Time `json:"origin_timestamp"`
	ParticipantID   uint32    `json:"participant_id"`
}

type EntityAddRequest struct {
	Header
	Position rtree.Point `json:"position"`

	// Whether the entity outlives the connection of the participant that
	// created it.
	Persist bool `json:"persist,omitempty"`
}

type EntityAddResponse struct {
	Header
	EntityID uint32 `json:"entity_id"`
}

type EntityAddBroadcast struct {
	Header
	OriginTimestamp time.Time `json:"origin_timestamp"`
	Entity          Entity    `json:"entity"`
}

type EntityDeleteRequest struct {
	Header
	EntityID uint32 `json:"entity_id"`
}

type EntityDeleteResponse struct {
	Header
}

type EntityDeleteBroadcast struct {
	Header
	OriginTimestamp time.Time `json:"origin_timestamp"`
	EntityID        uint32    `json:"entity_id"`
}

type EntityMove struct {
	Header
	EntityID uint32      `json:"entity_id"`
	Position rtree.Point `json:"position"`
}

type EntityMoveBroadcast struct {
	Header
	OriginTimestamp time.Time   `json:"origin_timestamp"`
	EntityID        uint32      `json:"entity_id"`
	Position        rtree.Point `json:"position"`
}

type RegionQueryRequest struct {
	Header
	Region rtree.Box `json:"region"`
}

type RegionQueryResponse struct {
	Header
	Entities []Entity `json:"entities"`
}

type IndexStatsResponse struct {
	Header
	Stats rtree.Stats `json:"stats"`

	// The number of region queries served by the index.
	RegionQueries uint64 `json:"region_queries"`
}
