package pipeline

import (
	"context"

	"github.com/racetiming/pipeline/archive"
	"github.com/racetiming/pipeline/ingestrouter"
	"github.com/racetiming/pipeline/metrics"
	"github.com/racetiming/pipeline/model"
)

// Option tunes a Pipeline after its required collaborators are wired:
// required collaborators are constructor arguments, optional tuning knobs
// go through functional options.
type Option func(*Pipeline)

// WithRoster installs the registration-roster lookup used to backfill
// CarPosition.Team.
func WithRoster(roster ingestrouter.Roster) Option {
	return func(p *Pipeline) {
		p.router.SetRoster(roster)
	}
}

// WithArchiveExporter installs the S3 archive export collaborator.
// Without it, ExportSessionArchive is a no-op.
func WithArchiveExporter(exporter *archive.Exporter) Option {
	return func(p *Pipeline) {
		p.archiveExporter = exporter
	}
}

// WithMetricsEmitter installs the CloudWatch metrics collaborator.
// Without it, metrics are simply not emitted.
func WithMetricsEmitter(emitter *metrics.CloudWatchEmitter) Option {
	return func(p *Pipeline) {
		p.metricsEmitter = emitter
	}
}

// WithErrorHandler installs the callback invoked for every classified
// pipeline error. The default logs nothing and simply drops
// errors; most deployments should install one that logs via zerolog.
func WithErrorHandler(fn func(error)) Option {
	return func(p *Pipeline) {
		if fn == nil {
			return
		}
		p.onErr = fn
		p.lapProc.SetErrorHandler(fn)
	}
}

// LapEventDispatcher publishes completed-lap events to consumers outside
// this process.
type LapEventDispatcher interface {
	DispatchLapCompleted(ctx context.Context, lap model.LapCompleted) error
}

// WithLapEventDispatcher installs an outbound dispatcher invoked for every
// durably recorded lap, in addition to the synthetic lap-completed message
// the pipeline posts back to itself. Dispatch failures are reported as
// external transient errors and never block ingestion.
func WithLapEventDispatcher(d LapEventDispatcher) Option {
	return func(p *Pipeline) {
		p.lapDispatcher = d
	}
}

// WithSnapshotSink installs the side channel that makes the pipeline's
// current full state visible to other processes (the snapshot REST API
// replica) without those processes running their own ingestion. Without it,
// only the process hosting the Pipeline can answer SnapshotProvider reads.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(p *Pipeline) {
		p.snapshotSink = sink
	}
}

// WithInputBufferSize overrides the default input channel capacity.
func WithInputBufferSize(n int) Option {
	return func(p *Pipeline) {
		if n <= 0 {
			return
		}
		p.input = make(chan model.TimingMessage, n)
	}
}

// noopPublisher discards every broadcast, used when the caller has no
// subscription transport wired (e.g. a pipeline run purely for archival or
// test purposes).
type noopPublisher struct{}

func (noopPublisher) Broadcast(ctx context.Context, eventID int64, actionType string, payload any) error {
	return nil
}
