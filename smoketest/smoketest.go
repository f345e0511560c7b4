// Package smoketest checks that a Raido endpoint serves the realtime
// protocol end to end.
package smoketest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/raido/protocol"
	"github.com/aukilabs/raido/rtree"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const defaultTimeout = time.Second * 10

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Request is the body of a smoke test request.
type Request struct {
	// The endpoint to test.
	Endpoint string `json:"endpoint"`

	Timeout time.Duration `json:"timeout,omitempty"`
}

type Results struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          Status  `json:"status"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	Endpoint   string
	UserAgent  string
	SendResult func(context.Context, Results) error
}

// HandleSmokeTest starts a smoke test in the background and responds
// immediately. Results are reported with opts.SendResult.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Error(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil || req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			res, err := Run(ctx, RunOptions{
				FromEndpoint: opts.Endpoint,
				ToEndpoint:   req.Endpoint,
				UserAgent:    opts.UserAgent,
				Timeout:      req.Timeout,
			})
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

type RunOptions struct {
	FromEndpoint string
	ToEndpoint   string
	UserAgent    string
	Timeout      time.Duration
}

// Run joins a new index on the tested endpoint, adds an entity and finds it
// back with a region query.
func Run(ctx context.Context, opts RunOptions) (Results, error) {
	res := Results{
		FromEndpoint: opts.FromEndpoint,
		ToEndpoint:   opts.ToEndpoint,
		Status:       StatusFailed,
	}

	fail := func(err error) (Results, error) {
		err = errors.New("smoke test failed").
			WithTag("from_endpoint", opts.FromEndpoint).
			WithTag("to_endpoint", opts.ToEndpoint).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config, err := websocket.NewConfig(websocketURL(opts.ToEndpoint), opts.FromEndpoint)
	if err != nil {
		return fail(err)
	}
	config.Header.Set(protocol.HeaderClientID, uuid.NewString())
	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return fail(errors.New("dialing endpoint failed").Wrap(err))
	}
	defer conn.Close()

	position := rtree.Point{X: 1, Y: 1}
	var entityID uint32

	start := time.Now()

	err = protocol.NewScenario(conn).
		Send(func() protocol.Payload {
			return &protocol.IndexJoinRequest{
				Header: protocol.NewHeader(protocol.MsgTypeIndexJoinRequest, 1),
			}
		}).
		Receive(
			protocol.FilterByRequestID(1),
			expectType(protocol.MsgTypeIndexJoinResponse),
		).
		Send(func() protocol.Payload {
			return &protocol.EntityAddRequest{
				Header:   protocol.NewHeader(protocol.MsgTypeEntityAddRequest, 2),
				Position: position,
			}
		}).
		Receive(
			protocol.FilterByRequestID(2),
			expectType(protocol.MsgTypeEntityAddResponse),
			func(msg protocol.Msg) error {
				var res protocol.EntityAddResponse
				if err := msg.DataTo(&res); err != nil {
					return err
				}
				entityID = res.EntityID
				return nil
			},
		).
		Send(func() protocol.Payload {
			return &protocol.RegionQueryRequest{
				Header: protocol.NewHeader(protocol.MsgTypeRegionQueryRequest, 3),
				Region: rtree.Box{
					MinX: position.X,
					MinY: position.Y,
					MaxX: position.X,
					MaxY: position.Y,
				},
			}
		}).
		Receive(
			protocol.FilterByRequestID(3),
			expectType(protocol.MsgTypeRegionQueryResponse),
			func(msg protocol.Msg) error {
				var res protocol.RegionQueryResponse
				if err := msg.DataTo(&res); err != nil {
					return err
				}
				for _, e := range res.Entities {
					if e.ID == entityID {
						return nil
					}
				}
				return errors.New("added entity not found by region query").
					WithTag("entity_id", entityID)
			},
		).
		Run(ctx)
	if err != nil {
		return fail(err)
	}

	res.Status = StatusSuccess
	res.LatencyMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
	return res, nil
}

// expectType fails on a response of another type. Messages that are not
// responses are skipped.
func expectType(t protocol.MsgType) func(protocol.Msg) error {
	return func(msg protocol.Msg) error {
		if msg.Type == protocol.MsgTypeError {
			var res protocol.ErrorResponse
			msg.DataTo(&res)
			return errors.New("error response received").
				WithTag("expected", t).
				WithTag("code", res.Code)
		}
		if msg.Type != t {
			return errors.New("unexpected response type").
				WithTag("expected", t).
				WithTag("msg_type", msg.Type)
		}
		return nil
	}
}

func websocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")

	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")

	default:
		return endpoint
	}
}
