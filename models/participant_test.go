package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParticipantAddEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	require.Len(t, p.EntityIDs(), 1)
}

func TestParticipantRemoveEntity(t *testing.T) {
	p := Participant{
		ID: 1,
	}

	e := &Entity{
		ID:            1,
		ParticipantID: 1,
	}

	p.AddEntity(e)
	require.Len(t, p.EntityIDs(), 1)

	p.RemoveEntity(e)
	require.Empty(t, p.EntityIDs())
}

func TestParticipantsToProtocol(t *testing.T) {
	participants := []*Participant{
		{
			ID: 1,
		},
		{
			ID: 2,
		},
	}

	res := ParticipantsToProtocol(participants)
	require.Len(t, res, 2)
	require.Equal(t, uint32(1), res[0].ID)
	require.Equal(t, uint32(2), res[1].ID)
}
