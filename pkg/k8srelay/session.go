package k8srelay

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EventStream is the read side of the watcher's bidirectional stream: one
// Info per call, io.EOF (or any error) on stream end.
type EventStream interface {
	Recv() (*Info, error)
}

// Session implements the Session Loop of SPEC_FULL.md §4.5: it reads Info
// messages off one watcher stream, dispatches them to the Correlator, and
// forces a resync when the waiting set overflows. One Session is created
// per Collect invocation and owns its Correlator, Writer and ResyncChannel
// exclusively — nothing here is shared across sessions.
type Session struct {
	id         uuid.UUID
	correlator *Correlator
	writer     Writer
	resync     *ResyncChannel
	logger     *zap.Logger
	metrics    *Recorder
	tracer     trace.Tracer
}

// NewSession wires together a fresh Correlator/Writer/ResyncChannel for one
// watcher stream.
func NewSession(correlator *Correlator, writer Writer, resync *ResyncChannel, logger *zap.Logger, metrics *Recorder, tracer trace.Tracer) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("k8srelay")
	}
	id := uuid.New()
	return &Session{
		id:         id,
		correlator: correlator,
		writer:     writer,
		resync:     resync,
		logger:     logger.With(zap.String("session_id", id.String())),
		metrics:    metrics,
		tracer:     tracer,
	}
}

// Run drives the session loop to completion. shutdown, if non-nil, is an
// external signal (e.g. server-wide graceful shutdown) that forces a resync
// the same way waiting-set overflow does. Run always returns a CANCELLED
// gRPC status, even on clean stream EOF: the downstream reducer treats any
// other termination as anomalous (SPEC_FULL.md §4.5, §5).
func (s *Session) Run(ctx context.Context, stream EventStream, shutdown <-chan struct{}) error {
	ctx, span := s.tracer.Start(ctx, "k8srelay.Collect", trace.WithAttributes(
		attribute.String("session.id", s.id.String()),
	))
	defer span.End()

	if s.metrics != nil {
		s.metrics.SessionStarted()
		defer s.metrics.SessionEnded()
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		select {
		case <-shutdown:
			s.resync.Trigger()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		// The read loop ending for any reason, including a clean EOF,
		// releases the shutdown watcher above.
		defer stopLoop()
		return s.readLoop(gctx, stream)
	})

	_ = g.Wait()

	s.writer.Reset()
	return status.Error(codes.Canceled, "session ended")
}

func (s *Session) readLoop(ctx context.Context, stream EventStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		info, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("watcher stream closed cleanly")
			} else {
				s.logger.Debug("watcher stream read ended", zap.Error(err))
			}
			return nil
		}

		if err := s.dispatch(ctx, info); err != nil {
			s.logger.Warn("failed to dispatch event", zap.Error(err))
			return err
		}

		if s.correlator.NeedRestart() {
			s.logger.Info("waiting-set overflow, forcing resync")
			s.resync.Trigger()
			return nil
		}

		if err := s.writer.Flush(); err != nil {
			s.logger.Warn("failed to flush writer", zap.Error(err))
			return newRelayError(ErrorKindTransport, "flush", err)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, info *Info) error {
	_, span := s.tracer.Start(ctx, "k8srelay.dispatch", trace.WithAttributes(
		attribute.Int("info.type", int(info.Type)),
		attribute.Int("info.event", int(info.Event)),
	))
	defer span.End()

	switch info.Type {
	case InfoTypePod:
		if info.Pod == nil {
			return nil
		}
		switch info.Event {
		case EventAdded, EventModified:
			return s.correlator.PodAddedOrModified(*info.Pod)
		case EventDeleted:
			return s.correlator.PodDeleted(info.Pod.UID)
		default:
			s.logger.Debug("ignoring pod event", zap.Int("event", int(info.Event)))
			return nil
		}

	case InfoTypeReplicaSet:
		if info.ReplicaSet == nil {
			return nil
		}
		switch info.Event {
		case EventAdded, EventModified:
			return s.correlator.ReplicaSetAddedOrModified(*info.ReplicaSet)
		case EventDeleted:
			return s.correlator.ReplicaSetDeleted(*info.ReplicaSet)
		default:
			s.logger.Debug("ignoring replicaset event", zap.Int("event", int(info.Event)))
			return nil
		}

	case InfoTypeJob:
		if info.Job == nil {
			return nil
		}
		switch info.Event {
		case EventAdded, EventModified:
			return s.correlator.JobAddedOrModified(*info.Job)
		case EventDeleted:
			return s.correlator.JobDeleted(*info.Job)
		default:
			s.logger.Debug("ignoring job event", zap.Int("event", int(info.Event)))
			return nil
		}

	default:
		s.logger.Debug("ignoring info of unknown type", zap.Int("type", int(info.Type)))
		return nil
	}
}
