package entities

// Phase is the stage of a field's AWD cycle for a given growth week.
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseWetting     Phase = "wetting"
	PhaseDrying      Phase = "drying"
	PhaseHarvest     Phase = "harvest"
)

// PhaseWeek is one row of a phase schedule template.
type PhaseWeek struct {
	Phase            Phase   `json:"phase"`
	TargetLevelCm    float64 `json:"target_level_cm"`
	FertilizerNotice bool    `json:"fertilizer_notice"`
}

// PhaseSchedule maps growth week -> phase parameters for one planting
// method. Templates are immutable reference data; weeks past the end of
// the template clamp to the final (harvest) entry.
type PhaseSchedule struct {
	Method PlantingMethod
	Weeks  []PhaseWeek
}

// Lookup returns the phase parameters for a growth week, clamping weeks
// beyond the template to the harvest entry.
func (s PhaseSchedule) Lookup(week int) PhaseWeek {
	if week < 0 {
		week = 0
	}
	if week >= len(s.Weeks) {
		return s.Weeks[len(s.Weeks)-1]
	}
	return s.Weeks[week]
}

// Length returns the number of weeks in the template.
func (s PhaseSchedule) Length() int { return len(s.Weeks) }

var (
	prep = PhaseWeek{Phase: PhasePreparation, TargetLevelCm: 10}
	wet  = PhaseWeek{Phase: PhaseWetting, TargetLevelCm: 5}
	wetF = PhaseWeek{Phase: PhaseWetting, TargetLevelCm: 5, FertilizerNotice: true}
	dry  = PhaseWeek{Phase: PhaseDrying}
	harv = PhaseWeek{Phase: PhaseHarvest}

	// transplantedSchedule: 14-week template. Continuous shallow flooding
	// for two weeks after transplanting, then alternating wet/dry cycles,
	// drained from the final week for harvest.
	transplantedSchedule = PhaseSchedule{
		Method: PlantingTransplanted,
		Weeks: []PhaseWeek{
			prep,      // week 0: land preparation, saturate to 10cm
			wetF,      // week 1: establishment + basal fertilizer
			wet,       // week 2
			dry,       // week 3: first drying cycle
			wetF,      // week 4: tillering top dressing
			dry, dry,  // weeks 5-6
			wetF,      // week 7: panicle initiation top dressing
			dry,       // week 8
			wet,       // week 9: flowering, keep flooded
			dry,       // week 10
			wet,       // week 11: grain filling
			dry,       // week 12
			harv,      // week 13: terminal drainage
		},
	}

	// directSeededSchedule: 15-week template. The seedbed stays drained
	// through germination before the first flooding.
	directSeededSchedule = PhaseSchedule{
		Method: PlantingDirectSeeded,
		Weeks: []PhaseWeek{
			prep,     // week 0
			dry,      // week 1: germination, field drained
			{Phase: PhaseWetting, TargetLevelCm: 3, FertilizerNotice: true}, // week 2: shallow first flood
			wet,      // week 3
			dry,      // week 4
			wetF,     // week 5: tillering top dressing
			dry, dry, // weeks 6-7
			wetF,     // week 8: panicle initiation
			dry,      // week 9
			wet,      // week 10: flowering
			dry,      // week 11
			wet,      // week 12: grain filling
			dry,      // week 13
			harv,     // week 14
		},
	}
)

// ScheduleFor returns the built-in template for a planting method. Unknown
// methods fall back to the transplanted template.
func ScheduleFor(m PlantingMethod) PhaseSchedule {
	if m == PlantingDirectSeeded {
		return directSeededSchedule
	}
	return transplantedSchedule
}
