package websocket

import (
	"context"
	goerrors "errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/raido/protocol"
	"golang.org/x/net/websocket"
)

const (
	indexIDTag       = "index_id"
	indexUUIDTag     = "index_uuid"
	participantIDTag = "participant_id"

	xForwardedForHeader = "X-Forwarded-For"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	tagsMutex sync.RWMutex
	tags      connTags
}

// connTags identifies the index and participant of a connection in logs.
type connTags struct {
	indexID       string
	indexUUID     string
	participantID uint32
}

func (h *handlerWithLogs) setTags(t connTags) {
	h.tagsMutex.Lock()
	defer h.tagsMutex.Unlock()

	h.tags = t
}

func (h *handlerWithLogs) getTags() connTags {
	h.tagsMutex.RLock()
	defer h.tagsMutex.RUnlock()

	return h.tags
}

// entry returns a log entry tagged with the client, index and participant.
func (h *handlerWithLogs) entry() logs.Entry {
	tags := h.getTags()

	return logs.WithClientID(h.GetClientID()).
		WithTag(indexIDTag, tags.indexID).
		WithTag(indexUUIDTag, tags.indexUUID).
		WithTag(participantIDTag, tags.participantID)
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)
	h.originalRequest = conn.Request()

	logs.WithClientID(h.GetClientID()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleIndexJoin(ctx context.Context, sender protocol.ResponseSender, msg protocol.Msg) error {
	prevParticipant := h.CurrentParticipant()

	if err := h.Handler.HandleIndexJoin(ctx, sender, msg); err != nil {
		return err
	}

	if p := h.CurrentParticipant(); p == nil || p == prevParticipant {
		var req protocol.IndexJoinRequest
		// The request was already decoded by the wrapped handler.
		msg.DataTo(&req)

		logs.WithClientID(h.GetClientID()).
			WithTag(indexIDTag, req.IndexID).
			WithTag("request_id", req.RequestID).
			WithTag("http_headers", h.httpHeaders()).
			Info("participant failed to join an index")
		return nil
	}

	h.setTags(connTags{
		indexID:       h.GetIndexes().GlobalIndexID(h.CurrentIndex().ID),
		indexUUID:     h.CurrentIndex().UUID,
		participantID: h.CurrentParticipant().ID,
	})

	h.entry().
		WithTag("http_headers", h.httpHeaders()).
		Info("participant joined an index")
	return nil
}

func (h *handlerWithLogs) httpHeaders() httpHeaders {
	if h.originalRequest == nil {
		return httpHeaders{}
	}

	return httpHeaders{
		UserAgent:     h.originalRequest.UserAgent(),
		XForwardedFor: h.originalRequest.Header.Get(xForwardedForHeader),
	}
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	h.entry().
		WithTag("reason", disconnectReason(err)).
		Info("client disconnected")
}

func disconnectReason(err error) string {
	switch {
	case err == nil, goerrors.Is(err, io.EOF), goerrors.Is(err, net.ErrClosed):
		return "closed"

	default:
		return err.Error()
	}
}

func (h *handlerWithLogs) Receiver() protocol.Receiver {
	receive := h.Handler.Receiver()

	return func() (protocol.Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !goerrors.Is(err, io.EOF) && !goerrors.Is(err, net.ErrClosed) {
			h.entry().
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() protocol.Sender {
	sender := h.Handler.Sender()

	return func(msg protocol.Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil && !goerrors.Is(err, net.ErrClosed) {
			h.entry().
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := h.entry().
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
