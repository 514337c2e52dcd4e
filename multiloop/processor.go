// Package multiloop implements the multiloop supplementary processor:
// per-car section (sector) completion and best-sector indicators, carried
// as a sidecar data source alongside the RMonitor base processor.
//
// The wire format is a simple record:
// "<car_number>,<section_index>,<section_time_ms>" comma-delimited lines,
// one per completed section crossing.
package multiloop

import (
	"strconv"
	"strings"

	"github.com/racetiming/pipeline/model"
	"github.com/racetiming/pipeline/patch"
	"github.com/racetiming/pipeline/session"
)

// SectionCrossing is one decoded multiloop record.
type SectionCrossing struct {
	CarNumber    string
	SectionIndex int
	SectionTime  int
}

// ParseLine decodes one multiloop record line. Malformed lines are skipped
//, returning ok=false.
func ParseLine(line string) (SectionCrossing, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return SectionCrossing{}, false
	}
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return SectionCrossing{}, false
	}
	section, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return SectionCrossing{}, false
	}
	timeMs, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return SectionCrossing{}, false
	}
	return SectionCrossing{
		CarNumber:    strings.TrimSpace(parts[0]),
		SectionIndex: section,
		SectionTime:  timeMs,
	}, true
}

// Processor applies section crossings to the session's car positions and
// tracks, per section index, which car currently holds the best time for
// that section (used to derive the best-sector indicator).
type Processor struct {
	bestSectionTime map[int]int    // section index -> best time ms seen this session
	bestSectionCar  map[int]string // section index -> car number holding it
}

func New() *Processor {
	return &Processor{
		bestSectionTime: make(map[int]int),
		bestSectionCar:  make(map[int]string),
	}
}

// ProcessBatch applies each crossing in order and returns the resulting car
// patches. A car not yet known to the session (no prior RMonitor record) is
// skipped: multiloop is a sidecar enrichment source, not authoritative for
// car identity.
func (p *Processor) ProcessBatch(ctx *session.Context, lines []string) model.PatchUpdates {
	var updates model.PatchUpdates

	for _, line := range lines {
		crossing, ok := ParseLine(line)
		if !ok {
			continue
		}
		if _, known := ctx.GetCarByNumber(crossing.CarNumber); !known {
			continue
		}

		if best, seen := p.bestSectionTime[crossing.SectionIndex]; !seen || crossing.SectionTime < best {
			p.bestSectionTime[crossing.SectionIndex] = crossing.SectionTime
			p.bestSectionCar[crossing.SectionIndex] = crossing.CarNumber
		}

		oldCar, _ := ctx.GetCarByNumber(crossing.CarNumber)
		newCar := ctx.Mutate(crossing.CarNumber, func(c model.CarPosition) model.CarPosition {
			sections := append([]int(nil), c.CompletedSections...)
			for len(sections) <= crossing.SectionIndex {
				sections = append(sections, 0)
			}
			sections[crossing.SectionIndex] = crossing.SectionTime
			c.CompletedSections = sections
			return c
		})

		if cp := patch.DiffCar(oldCar, newCar); cp != nil {
			updates.CarPatches = append(updates.CarPatches, *cp)
		}
	}

	return updates
}

// BestSectionHolder reports which car currently holds the best time for a
// section index, if any.
func (p *Processor) BestSectionHolder(sectionIndex int) (string, bool) {
	car, ok := p.bestSectionCar[sectionIndex]
	return car, ok
}
