package region

import (
	"context"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	payloads []protocol.Payload
}

func (r *recorder) Send(p protocol.Payload) {
	r.payloads = append(r.payloads, p)
}

func (r *recorder) SendMsg(protocol.Msg) {}

func newTestMsg(t *testing.T, p protocol.Payload) protocol.Msg {
	msg, err := protocol.MsgFromPayload(p)
	require.NoError(t, err)
	return msg
}

func newTestModule(t *testing.T) (*Module, *models.Index) {
	index := models.NewIndex(1, models.DefaultIndexConfig)
	participant := &models.Participant{ID: 1}
	require.NoError(t, index.AddParticipant(participant))

	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			_, err := index.AddEntity(participant.ID, rtree.Point{X: float32(x), Y: float32(y)}, false)
			require.NoError(t, err)
		}
	}

	var m Module
	m.Init(index, participant)
	return &m, index
}

func TestModuleInit(t *testing.T) {
	mA, index := newTestModule(t)

	var mB Module
	mB.Init(index, &models.Participant{ID: 2})
	require.Same(t, mA.state, mB.state)
}

func TestModuleInitConcurrently(t *testing.T) {
	index := models.NewIndex(1, models.DefaultIndexConfig)

	modules := make([]*Module, 16)
	var wg sync.WaitGroup

	for i := range modules {
		modules[i] = &Module{}

		wg.Add(1)
		go func(m *Module, id uint32) {
			defer wg.Done()
			m.Init(index, &models.Participant{ID: id})
		}(modules[i], uint32(i+1))
	}
	wg.Wait()

	for _, m := range modules[1:] {
		require.Same(t, modules[0].state, m.state)
	}
}

func TestHandleRegionQuery(t *testing.T) {
	t.Run("entities in the region are returned", func(t *testing.T) {
		m, _ := newTestModule(t)

		var r recorder
		err := m.HandleMsg(context.Background(), &r, newTestMsg(t, &protocol.RegionQueryRequest{
			Header: protocol.NewHeader(protocol.MsgTypeRegionQueryRequest, 3),
			Region: rtree.Box{MinX: 1, MinY: 1, MaxX: 2, MaxY: 1.5},
		}))
		require.NoError(t, err)
		require.Len(t, r.payloads, 1)

		res, ok := r.payloads[0].(*protocol.RegionQueryResponse)
		require.True(t, ok)
		require.Equal(t, uint32(3), res.RequestID)
		require.Len(t, res.Entities, 2)
		require.Equal(t, rtree.Point{X: 1, Y: 1}, res.Entities[0].Position)
		require.Equal(t, rtree.Point{X: 2, Y: 1}, res.Entities[1].Position)
		require.Equal(t, uint64(1), m.state.Queries())
	})

	t.Run("empty region is a bad request", func(t *testing.T) {
		m, _ := newTestModule(t)

		var r recorder
		err := m.HandleMsg(context.Background(), &r, newTestMsg(t, &protocol.RegionQueryRequest{
			Header: protocol.NewHeader(protocol.MsgTypeRegionQueryRequest, 4),
			Region: rtree.Box{MinX: 2, MinY: 0, MaxX: 1, MaxY: 1},
		}))
		require.NoError(t, err)
		require.Len(t, r.payloads, 1)

		res, ok := r.payloads[0].(*protocol.ErrorResponse)
		require.True(t, ok)
		require.Equal(t, protocol.ErrorCodeBadRequest, res.Code)
		require.Zero(t, m.state.Queries())
	})

	t.Run("index not joined", func(t *testing.T) {
		var m Module

		var r recorder
		err := m.HandleMsg(context.Background(), &r, newTestMsg(t, &protocol.RegionQueryRequest{
			Header: protocol.NewHeader(protocol.MsgTypeRegionQueryRequest, 5),
		}))
		require.Error(t, err)
		require.True(t, errors.IsType(err, protocol.ErrTypeIndexNotJoined))
	})
}

func TestHandleIndexStats(t *testing.T) {
	m, _ := newTestModule(t)

	var r recorder
	err := m.HandleMsg(context.Background(), &r, newTestMsg(t, &protocol.Request{
		Header: protocol.NewHeader(protocol.MsgTypeIndexStatsRequest, 6),
	}))
	require.NoError(t, err)
	require.Len(t, r.payloads, 1)

	res, ok := r.payloads[0].(*protocol.IndexStatsResponse)
	require.True(t, ok)
	require.Equal(t, 16, res.Stats.Len)
	require.Equal(t, int(models.DefaultIndexConfig.MaxElements), res.Stats.Cap)
	require.Equal(t, &rtree.Box{MinX: 0, MinY: 0, MaxX: 3, MaxY: 3}, res.Stats.Bounds)
}

func TestHandleMsgIgnoresOtherMessages(t *testing.T) {
	m, _ := newTestModule(t)

	var r recorder
	err := m.HandleMsg(context.Background(), &r, newTestMsg(t, &protocol.Request{
		Header: protocol.NewHeader(protocol.MsgTypePingRequest, 7),
	}))
	require.NoError(t, err)
	require.Empty(t, r.payloads)
}
