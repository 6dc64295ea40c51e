package domain

// GoalType identifies an entry in the goal catalog.
type GoalType string

const (
	GoalSteps    GoalType = "steps"
	GoalSleep    GoalType = "sleep"
	GoalHRV      GoalType = "hrv"
	GoalCalories GoalType = "calories"
)

// Direction declares how a raw measurement compares against a goal target.
// Every goal in the current catalog is MoreIsBetter; the field exists so the
// verification rule generalizes if a less-is-better goal is ever added.
type Direction string

const (
	MoreIsBetter Direction = "more_is_better"
	LessIsBetter Direction = "less_is_better"
)

// Goal describes one entry in the goal catalog.
type Goal struct {
	ID            GoalType
	Name          string
	Unit          string
	Direction     Direction
	DefaultTarget int64
}

// goalCatalog is the fixed set of supported health goals.
var goalCatalog = map[GoalType]Goal{
	GoalSteps:    {ID: GoalSteps, Name: "Steps", Unit: "steps", Direction: MoreIsBetter, DefaultTarget: 10000},
	GoalSleep:    {ID: GoalSleep, Name: "Sleep", Unit: "hours", Direction: MoreIsBetter, DefaultTarget: 7},
	GoalHRV:      {ID: GoalHRV, Name: "HRV", Unit: "ms", Direction: MoreIsBetter, DefaultTarget: 50},
	GoalCalories: {ID: GoalCalories, Name: "Calories", Unit: "cal", Direction: MoreIsBetter, DefaultTarget: 500},
}

// GoalByID looks up a goal in the catalog. It returns ErrUnknownGoal for an
// unrecognized goal type.
func GoalByID(id GoalType) (Goal, error) {
	g, ok := goalCatalog[id]
	if !ok {
		return Goal{}, ErrUnknownGoal
	}
	return g, nil
}

// Goals returns every catalog entry in a stable order.
func Goals() []Goal {
	return []Goal{
		goalCatalog[GoalSteps],
		goalCatalog[GoalSleep],
		goalCatalog[GoalHRV],
		goalCatalog[GoalCalories],
	}
}

// SourceID identifies a wearable data source in the source catalog.
type SourceID string

const (
	SourceOura    SourceID = "oura"
	SourceApple   SourceID = "apple"
	SourceWhoop   SourceID = "whoop"
	SourceGarmin  SourceID = "garmin"
	SourceFitbit  SourceID = "fitbit"
	SourceSamsung SourceID = "samsung"
)

// Source describes a wearable oracle feed. Reliability (0-100) expresses
// historical trust in measurements from this source and caps the confidence
// the verification oracle will assign to its readings.
type Source struct {
	ID          SourceID
	Name        string
	Reliability int
}

var sourceCatalog = map[SourceID]Source{
	SourceOura:    {ID: SourceOura, Name: "Oura Ring", Reliability: 95},
	SourceApple:   {ID: SourceApple, Name: "Apple Watch", Reliability: 92},
	SourceWhoop:   {ID: SourceWhoop, Name: "WHOOP", Reliability: 90},
	SourceGarmin:  {ID: SourceGarmin, Name: "Garmin", Reliability: 88},
	SourceFitbit:  {ID: SourceFitbit, Name: "Fitbit", Reliability: 85},
	SourceSamsung: {ID: SourceSamsung, Name: "Samsung", Reliability: 82},
}

// SourceByID looks up a wearable source. It returns ErrUnknownSource for an
// unrecognized source id.
func SourceByID(id SourceID) (Source, error) {
	s, ok := sourceCatalog[id]
	if !ok {
		return Source{}, ErrUnknownSource
	}
	return s, nil
}

// Sources returns every source catalog entry in a stable order.
func Sources() []Source {
	return []Source{
		sourceCatalog[SourceOura],
		sourceCatalog[SourceApple],
		sourceCatalog[SourceWhoop],
		sourceCatalog[SourceGarmin],
		sourceCatalog[SourceFitbit],
		sourceCatalog[SourceSamsung],
	}
}
