package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/raido/featureflag"
	raidohttp "github.com/aukilabs/raido/http"
	"github.com/aukilabs/raido/models"
	"github.com/aukilabs/raido/modules"
	"github.com/aukilabs/raido/modules/region"
	"github.com/aukilabs/raido/rtree"
	"github.com/aukilabs/raido/smoketest"
	rwebsocket "github.com/aukilabs/raido/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Raido version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "raido_info",
		Help:        "Raido information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"RAIDO_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"RAIDO_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"RAIDO_PUBLIC_ENDPOINT"      help:"The public endpoint where this Raido server is reachable."`
	ServerID           string        `cli:""        env:"RAIDO_SERVER_ID"            help:"The server id prefixed to global index ids."`
	LogLevel           string        `cli:""        env:"RAIDO_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"RAIDO_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"RAIDO_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"RAIDO_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration `cli:",hidden" env:"RAIDO_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Index              indexConfig   `cli:",hidden" env:"-"                          help:"Spatial index configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                          help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"RAIDO_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                          help:"Show version."`
	Help               bool          `cli:""        env:"-"                          help:"Show help."`
}

type indexConfig struct {
	MinElementsPerNode uint32 `cli:",hidden" env:"RAIDO_INDEX_MIN_ELEMENTS_PER_NODE" help:"The number of elements under which a leaf is merged with its sibling."`
	MaxElementsPerNode uint32 `cli:",hidden" env:"RAIDO_INDEX_MAX_ELEMENTS_PER_NODE" help:"The number of elements above which a leaf is split."`
	MaxElements        uint32 `cli:",hidden" env:"RAIDO_INDEX_MAX_ELEMENTS"          help:"The maximum number of entities in an index."`
}

func (c indexConfig) rtreeConfig() rtree.Config {
	return rtree.Config{
		MinElementsPerNode: c.MinElementsPerNode,
		MaxElementsPerNode: c.MaxElementsPerNode,
		MaxElements:        c.MaxElements,
	}
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"RAIDO_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"RAIDO_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"RAIDO_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"RAIDO_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "raido",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Index: indexConfig{
			MinElementsPerNode: models.DefaultIndexConfig.MinElementsPerNode,
			MaxElementsPerNode: models.DefaultIndexConfig.MaxElementsPerNode,
			MaxElements:        models.DefaultIndexConfig.MaxElements,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Raido server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "raido",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	indexes := models.IndexStore{
		ServerID: conf.ServerID,
		Config:   conf.Index.rtreeConfig(),
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var service http.ServeMux
	service.Handle("/health", raidohttp.HandleWithCORS(http.HandlerFunc(raidohttp.HandleHealthCheck)))
	service.Handle("/version", raidohttp.HandleWithCORS(http.HandlerFunc(raidohttp.HandleVersion(version))))
	service.Handle("/ready", raidohttp.HandleWithCORS(http.HandlerFunc(raidohttp.HandleReadyCheck(readinessCheck))))

	service.Handle("/", raidohttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh rwebsocket.Handler = &rwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Indexes:                 &indexes,
				Modules: []modules.Module{
					&region.Module{},
				},
				FeatureFlags: featureFlags,
			}
			h := rwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = rwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			rwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", raidohttp.HandleHealthCheck)
	admin.HandleFunc("/ready", raidohttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/indexes", raidohttp.HandleIndexList(&indexes))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Raido %s", version),
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("from_endpoint", res.FromEndpoint).
				WithTag("to_endpoint", res.ToEndpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				Info("smoke test done")
			return nil
		},
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("server_id", conf.ServerID).
		WithTag("index_config", conf.Index.rtreeConfig()).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting raido server")

	raidohttp.NewServers(conf.Addr, conf.AdminAddr, &service, &admin).
		ListenAndServe(ctx)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.ServerID == "" {
		return errors.New("server id is empty")
	}

	if err := conf.Index.rtreeConfig().Validate(); err != nil {
		return errors.New("invalid index config").Wrap(err)
	}

	return nil
}
