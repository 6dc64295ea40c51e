// Package oracle verifies daily wearable measurements against goal targets.
// Verification is pure and deterministic: the same goal, target, raw value,
// and source always produce the same verdict and confidence, so replays and
// retries are safe.
package oracle

import (
	"github.com/aurayield/engine/internal/domain"
)

// Oracle checks raw measurements against goal targets and scores how much the
// verdict can be trusted given the reporting source.
type Oracle struct{}

// New returns an Oracle.
func New() *Oracle {
	return &Oracle{}
}

// Verify returns whether rawValue satisfies the target for the given goal and
// a confidence in [0, 100] for that verdict. A missing or non-positive
// reading is never verified and carries zero confidence. Unknown goals or
// sources are an error; callers validate both at stake creation, so an error
// here means catalog drift.
func (o *Oracle) Verify(goalID domain.GoalType, target, rawValue int64, sourceID domain.SourceID) (bool, int, error) {
	goal, err := domain.GoalByID(goalID)
	if err != nil {
		return false, 0, err
	}
	source, err := domain.SourceByID(sourceID)
	if err != nil {
		return false, 0, err
	}

	if rawValue <= 0 || target <= 0 {
		return false, 0, nil
	}

	verified := false
	switch goal.Direction {
	case domain.MoreIsBetter:
		verified = rawValue >= target
	case domain.LessIsBetter:
		verified = rawValue <= target
	}

	return verified, confidence(goal.Direction, target, rawValue, verified, source.Reliability), nil
}

// confidence scales the source's reliability by how close the reading landed
// to the target. A verified day gets the full reliability: overshooting a
// step goal is not penalized. An unverified day decays linearly with the
// shortfall, so a near miss still carries signal while a reading far from
// the target carries almost none.
func confidence(dir domain.Direction, target, rawValue int64, verified bool, reliability int) int {
	if verified {
		return reliability
	}

	var proximity float64
	switch dir {
	case domain.MoreIsBetter:
		proximity = float64(rawValue) / float64(target)
	case domain.LessIsBetter:
		proximity = float64(target) / float64(rawValue)
	}
	if proximity < 0 {
		proximity = 0
	}
	if proximity > 1 {
		proximity = 1
	}

	return int(float64(reliability) * proximity)
}
