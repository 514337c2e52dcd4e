// Package broadcast implements the output broadcaster: it turns the
// PatchUpdates produced by the applier into the three egress events named
// in the (SessionPatch, CarPatches, Reset) and hands them to
// whatever transport is actually fanning out to subscribers.
package broadcast

import (
	"context"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
	"github.com/rs/zerolog"
)

// Egress event action names.
const (
	ActionSessionPatch = "SessionPatch"
	ActionCarPatches   = "CarPatches"
	ActionReset        = "Reset"
)

// Publisher is the subscription transport's fanout entry point. ws.Pusher
// satisfies this.
type Publisher interface {
	Broadcast(ctx context.Context, eventID int64, actionType string, payload any) error
}

// Broadcaster never blocks the applier on delivery failure, since
// Publisher.Broadcast already continues past individual dead connections.
type Broadcaster struct {
	publisher Publisher
}

func New(publisher Publisher) *Broadcaster {
	return &Broadcaster{publisher: publisher}
}

// Publish emits SessionPatch and/or CarPatches events for one PatchUpdates,
// skipping whichever half is empty.
func (b *Broadcaster) Publish(ctx context.Context, eventID int64, patches model.PatchUpdates) {
	logger := zerolog.Ctx(ctx)

	if !patches.SessionPatch.IsEmpty() {
		if err := b.publisher.Broadcast(ctx, eventID, ActionSessionPatch, patches.SessionPatch); err != nil {
			logger.Error().Err(err).Int64("eventID", eventID).Msg("failed to broadcast session patch")
		}
	}
	if len(patches.CarPatches) > 0 {
		if err := b.publisher.Broadcast(ctx, eventID, ActionCarPatches, patches.CarPatches); err != nil {
			logger.Error().Err(err).Int64("eventID", eventID).Msg("failed to broadcast car patches")
		}
	}
}

// Reset emits the Reset event followed by a full state resend built from the
// session's current state and car list, so subscribers can discard local
// state and start over.
func (b *Broadcaster) Reset(ctx context.Context, eventID int64, state model.SessionState, cars []model.CarPosition) {
	logger := zerolog.Ctx(ctx)

	if err := b.publisher.Broadcast(ctx, eventID, ActionReset, nil); err != nil {
		logger.Error().Err(err).Int64("eventID", eventID).Msg("failed to broadcast reset")
	}

	fullCars := make([]model.CarPositionPatch, 0, len(cars))
	for _, c := range cars {
		fullCars = append(fullCars, patch.FullPatch(c))
	}

	b.Publish(ctx, eventID, model.PatchUpdates{
		SessionPatch: patch.DiffSession(model.SessionState{}, state),
		CarPatches:   fullCars,
	})
}
