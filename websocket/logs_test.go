package websocket

import (
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/raido/protocol"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&RealtimeHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&RealtimeHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test-1")
	h.incCounter("test-1")
	h.incCounter("test-2")

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	clientIDTag := fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID)
	require.Contains(t, logString, `"test-1":2`)
	require.Contains(t, logString, `"test-2":1`)
	require.Contains(t, logString, clientIDTag)
	t.Log(b.String())
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// This is to avoid the test block since no summary is sent if no counter is
	// incremented.
	h.incCounter("test-1")

	wg.Wait()
	out := b.String()
	require.NotEmpty(t, out)
	t.Log(out)
}

func TestDisconnectReason(t *testing.T) {
	require.Equal(t, "closed", disconnectReason(nil))
	require.Equal(t, "closed", disconnectReason(io.EOF))
	require.Equal(t, "closed", disconnectReason(net.ErrClosed))
	require.Equal(t, "idle connection", disconnectReason(goerrors.New("idle connection")))
}

type senderHandler struct {
	Handler
}

func (h senderHandler) Sender() protocol.Sender {
	return func(msg protocol.Msg) (int, error) {
		return len(msg.Data), nil
	}
}

func (h senderHandler) GetClientID() string {
	return "test-client"
}

func (h senderHandler) Close() {}

func TestHandlerWithLogsTagsConcurrentAccess(t *testing.T) {
	logs.SetLogger(func(e logs.Entry) {})

	h := HandlerWithLogs(senderHandler{}, time.Hour).(*handlerWithLogs)
	defer h.Close()

	send := h.Sender()
	msg := protocol.Msg{Type: protocol.MsgTypeSyncClock, Data: []byte(`{"type":"sync_clock"}`)}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			send(msg)
		}
	}()

	for i := uint32(1); i <= 100; i++ {
		h.setTags(connTags{
			indexID:       "tedx1",
			indexUUID:     "uuid",
			participantID: i,
		})
	}
	wg.Wait()

	require.Equal(t, connTags{
		indexID:       "tedx1",
		indexUUID:     "uuid",
		participantID: 100,
	}, h.getTags())
}
