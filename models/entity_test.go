package models

import (
	"testing"

	"github.com/aukilabs/raido/rtree"
	"github.com/stretchr/testify/require"
)

func TestEntityPosition(t *testing.T) {
	var e Entity

	p := rtree.Point{X: 1, Y: 2}
	e.setPosition(p)
	require.Equal(t, p, e.Position())
}

func TestEntityToProtocol(t *testing.T) {
	e := Entity{
		ID:            1,
		ParticipantID: 2,
		Persist:       true,
	}
	e.setPosition(rtree.Point{X: 3, Y: 4})

	pe := e.ToProtocol()
	require.Equal(t, e.ID, pe.ID)
	require.Equal(t, e.ParticipantID, pe.ParticipantID)
	require.True(t, pe.Persist)
	require.Equal(t, rtree.Point{X: 3, Y: 4}, pe.Position)
}

func TestEntitiesToProtocol(t *testing.T) {
	entities := []*Entity{
		{ID: 1},
		{ID: 2},
	}

	res := EntitiesToProtocol(entities)
	require.Len(t, res, 2)
	require.Equal(t, uint32(1), res[0].ID)
	require.Equal(t, uint32(2), res[1].ID)
}
