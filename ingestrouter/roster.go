package ingestrouter

import (
	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
)

// Roster is the registration-roster lookup used to derive a car's team. It
// is optional; a router with no roster set simply leaves Team untouched.
type Roster interface {
	TeamForCar(car string) (string, bool)
}

// StaticRoster is a Roster backed by a fixed []model.EventEntry, the shape
// a roster loaded once at session start (e.g. from a registration export)
// takes.
type StaticRoster struct {
	byCar map[string]string
}

func NewStaticRoster(entries []model.EventEntry) *StaticRoster {
	byCar := make(map[string]string, len(entries))
	for _, e := range entries {
		byCar[e.CarNumber] = e.Team
	}
	return &StaticRoster{byCar: byCar}
}

func (r *StaticRoster) TeamForCar(car string) (string, bool) {
	team, ok := r.byCar[car]
	return team, ok
}

// SetRoster installs the roster lookup used to backfill CarPosition.Team on
// every RMonitor batch.
func (r *Router) SetRoster(roster Roster) {
	r.roster = roster
}

// backfillTeams applies the roster lookup to every known car and returns
// any resulting patches, called once per RMonitor batch alongside the
// batch's own car patches.
func (r *Router) backfillTeams() []model.CarPositionPatch {
	if r.roster == nil {
		return nil
	}

	var patches []model.CarPositionPatch
	for _, car := range r.sessionCtx.AllCars() {
		team, ok := r.roster.TeamForCar(car.Number)
		if !ok || team == car.Team {
			continue
		}
		old := car
		updated := r.sessionCtx.Mutate(car.Number, func(c model.CarPosition) model.CarPosition {
			c.Team = team
			return c
		})
		if cp := patch.DiffCar(old, updated); cp != nil {
			patches = append(patches, *cp)
		}
	}
	return patches
}
