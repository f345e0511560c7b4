package featureflag

type Flag string

const (
	FlagDisableIndexState                Flag = "DISABLE_INDEX_STATE"
	FlagDisableParticipantJoinBroadcast  Flag = "DISABLE_PARTICIPANT_JOIN_BROADCAST"
	FlagDisableParticipantLeaveBroadcast Flag = "DISABLE_PARTICIPANT_LEAVE_BROADCAST"
	FlagDisableEntityAddBroadcast        Flag = "DISABLE_ENTITY_ADD_BROADCAST"
	FlagDisableEntityDeleteBroadcast     Flag = "DISABLE_ENTITY_DELETE_BROADCAST"
	FlagDisableEntityMoveBroadcast       Flag = "DISABLE_ENTITY_MOVE_BROADCAST"
)
