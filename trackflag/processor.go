// Package trackflag implements the flag supplementary processor: it
// receives the full flag-duration history on every update and applies it
// via the diff engine's whole-list semantics.
package trackflag

import (
	"context"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/session"
)

// Persister is the external durable collaborator: it receives the new list
// on every update and is the source of truth for flag history on restart.
type Persister interface {
	ReplaceFlagLog(ctx context.Context, eventID, sessionID int64, entries []model.FlagDuration) error
}

type Processor struct {
	persister Persister
}

func New(persister Persister) *Processor {
	return &Processor{persister: persister}
}

// ProcessFlags applies a full flag-duration list update, persists it, and
// returns the session patch if the list changed. Persistence failure is an
// external transient error; the in-memory session state is still updated
// so ingestion is not blocked on the write.
func (p *Processor) ProcessFlags(ctx context.Context, sessCtx *session.Context, eventID int64, list []model.FlagDuration) (model.SessionStatePatch, bool, error) {
	old := sessCtx.State()
	new := sessCtx.MutateSession(func(s model.SessionState) model.SessionState {
		s.FlagDurations = list
		if open := openFlag(list); open != "" {
			s.CurrentFlag = open
		}
		return s
	})

	sp := patch.DiffSession(old, new)

	var persistErr error
	if p.persister != nil {
		persistErr = p.persister.ReplaceFlagLog(ctx, eventID, new.SessionID, list)
	}

	if sp == nil {
		return model.SessionStatePatch{}, false, persistErr
	}
	return *sp, true, persistErr
}

// openFlag returns the flag of the one entry with a nil EndTime (at most
// one entry may be open), or "" if none is open.
func openFlag(list []model.FlagDuration) model.Flag {
	for _, d := range list {
		if d.EndTime == nil {
			return d.Flag
		}
	}
	return ""
}

// Validate enforces the invariant: the list must be time-ordered and
// have at most one open (EndTime=nil) interval. Returns false if violated;
// callers drop the offending update.
func Validate(list []model.FlagDuration) bool {
	openCount := 0
	for i, d := range list {
		if d.EndTime == nil {
			openCount++
		}
		if i > 0 {
			if d.StartTime.Before(list[i-1].StartTime) {
				return false
			}
		}
	}
	return openCount <= 1
}
