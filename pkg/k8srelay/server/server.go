// Package server exposes the correlation core over gRPC, playing the role
// pkg/grpc.Server plays for event ingestion: connection lifecycle, keepalive
// tuning, and one goroutine-owned session per stream.
package server

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/tapio/k8s-relay/pkg/k8srelay"
)

// SinkDialer opens the downstream byte sink a session's Writer frames
// records onto. What sits on the other end (a unix socket to the reducer, a
// file, a pipe) is deliberately outside this package's concern, matching
// spec.md §1's explicit non-goal of "downstream byte-level encoding".
type SinkDialer interface {
	Dial(ctx context.Context) (io.WriteCloser, error)
}

// Config configures the gRPC transport around the core, grounded on
// pkg/grpc.ServerConfig's keepalive/limits fields.
type Config struct {
	ListenAddress        string
	MaxConcurrentStreams uint32
	CollectBufferSize    int

	MaxConnectionAge  time.Duration
	KeepAliveTime     time.Duration
	KeepAliveTimeout  time.Duration
	MaxConnectionIdle time.Duration

	// SinkNetwork/SinkAddress dial the downstream reducer, per session.
	SinkNetwork string
	SinkAddress string

	// MetricsAddress serves /metrics and /health, empty disables it.
	MetricsAddress string

	// OTLPEndpoint, if non-empty, is where session/dispatch spans export
	// to. Empty leaves tracing enabled but non-exporting.
	OTLPEndpoint string

	Correlator k8srelay.CorrelatorConfig
}

// DefaultConfig mirrors pkg/grpc.DefaultServerConfig's shape, scaled to a
// single-tenant metadata relay rather than a multi-collector event bus. The
// core tunables (listen address, collect buffer size, correlator bounds)
// delegate to k8srelay.DefaultConfig rather than restating them, so the two
// packages can't drift apart.
func DefaultConfig() Config {
	core := k8srelay.DefaultConfig()
	return Config{
		ListenAddress:        core.ListenAddress,
		MaxConcurrentStreams: 1000,
		CollectBufferSize:    core.CollectBufferSize,
		MaxConnectionAge:     30 * time.Minute,
		KeepAliveTime:        30 * time.Second,
		KeepAliveTimeout:     5 * time.Second,
		MaxConnectionIdle:    15 * time.Minute,
		SinkNetwork:          "unix",
		SinkAddress:          "/run/k8s-relay/reducer.sock",
		MetricsAddress:       "0.0.0.0:9097",
		Correlator: k8srelay.CorrelatorConfig{
			MaxWaitingPods:   core.MaxWaitingPods,
			MaxDeletedOwners: core.MaxDeletedOwners,
		},
	}
}

// Server implements CollectorRelayServer: one Collect stream in, one
// correlated record stream out per watcher connection.
type Server struct {
	config Config
	sink   SinkDialer

	logger  *zap.Logger
	metrics *k8srelay.Recorder
	tracer  trace.Tracer

	shutdown chan struct{}
	wg       sync.WaitGroup

	started atomic.Bool
	stopped atomic.Bool
}

// NewServer creates a Server. sink dials the downstream byte sink once per
// Collect session.
func NewServer(config Config, sink SinkDialer, logger *zap.Logger, metrics *k8srelay.Recorder, tracer trace.Tracer) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("k8srelay/server")
	}
	return &Server{
		config:   config,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		shutdown: make(chan struct{}),
	}
}

// NewGRPCServer builds a *grpc.Server with s registered, using the same
// keepalive/enforcement shape as pkg/grpc.Server.Start.
func (s *Server) NewGRPCServer() *grpc.Server {
	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(s.config.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionAge:      s.config.MaxConnectionAge,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  s.config.KeepAliveTime,
			Timeout:               s.config.KeepAliveTimeout,
			MaxConnectionIdle:     s.config.MaxConnectionIdle,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	RegisterCollectorRelayServer(grpcServer, s)
	return grpcServer
}

// Stop signals every in-flight Collect session to resync and return, then
// waits for them to drain.
func (s *Server) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	close(s.shutdown)
	s.wg.Wait()
}

// Collect implements CollectorRelayServer. One call is one watcher session:
// it dials a fresh downstream sink, wires a Correlator/FrameWriter/
// ResyncChannel private to this stream, and drives k8srelay.Session to
// completion.
func (s *Server) Collect(stream CollectorRelay_CollectServer) error {
	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	sink, err := s.sink.Dial(ctx)
	if err != nil {
		s.logger.Warn("failed to dial downstream sink", zap.Error(err))
		return status.Errorf(codes.Unavailable, "dial downstream sink: %v", err)
	}
	defer sink.Close()

	bufSize := s.config.CollectBufferSize
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	writer := k8srelay.NewFrameWriter(sink, bufSize)
	correlator := k8srelay.NewCorrelator(writer, s.config.Correlator, s.logger, s.metrics)
	resync := k8srelay.NewResyncChannel(&lastMessageNotifier{stream: stream}, cancel, s.logger, s.metrics)
	session := k8srelay.NewSession(correlator, writer, resync, s.logger, s.metrics, s.tracer)

	return session.Run(ctx, &watchEventStream{stream: stream}, s.shutdown)
}

// lastMessageNotifier adapts the gRPC stream's Send to k8srelay.ResyncNotifier.
type lastMessageNotifier struct {
	stream CollectorRelay_CollectServer
}

func (n *lastMessageNotifier) SendLastMessage() error {
	if err := n.stream.Send(&CollectResponse{Resync: true}); err != nil {
		return fmt.Errorf("send resync notification: %w", err)
	}
	return nil
}

// watchEventStream adapts the gRPC stream's Recv to k8srelay.EventStream,
// translating the wire WatchEvent into the core's Info type.
type watchEventStream struct {
	stream CollectorRelay_CollectServer
}

func (w *watchEventStream) Recv() (*k8srelay.Info, error) {
	event, err := w.stream.Recv()
	if err != nil {
		return nil, err
	}
	return toInfo(event), nil
}
