package rank

import (
	"fmt"
	"math"
)

// ScoreFor projects an ordinal position onto the category's score band:
//
//	score = MaxScore - position * (MaxScore - MinScore) / scopeSize
//
// The projection is linear and strictly order preserving. Position 0 maps to
// exactly MaxScore and the last position stays above MinScore, so scores land
// in the half-open interval (MinScore, MaxScore] and a singleton scope rates
// its only item at the band maximum.
func ScoreFor(c Category, position, scopeSize int) (float64, error) {
	if scopeSize <= 0 {
		return 0, fmt.Errorf("%w: scope size %d", ErrInvalidPosition, scopeSize)
	}
	if position < 0 || position >= scopeSize {
		return 0, fmt.Errorf("%w: position %d in scope of %d", ErrInvalidPosition, position, scopeSize)
	}
	width := c.MaxScore - c.MinScore
	return c.MaxScore - float64(position)*width/float64(scopeSize), nil
}

// PositionFor inverts ScoreFor, recovering the ordinal position of a score
// inside the given band and scope. Rounding absorbs float noise from the
// forward projection; a score outside the band, or one that rounds outside
// the scope, is a data inconsistency.
func PositionFor(c Category, score float64, scopeSize int) (int, error) {
	if scopeSize <= 0 {
		return 0, fmt.Errorf("%w: scope size %d", ErrInvalidPosition, scopeSize)
	}
	if !c.Contains(score) {
		return 0, fmt.Errorf("%w: %v outside %q (%v, %v]", ErrScoreOutOfRange, score, c.ID, c.MinScore, c.MaxScore)
	}
	width := c.MaxScore - c.MinScore
	position := int(math.Round((c.MaxScore - score) * float64(scopeSize) / width))
	if position < 0 || position >= scopeSize {
		return 0, fmt.Errorf("%w: %v maps to position %d in scope of %d", ErrScoreOutOfRange, score, position, scopeSize)
	}
	return position, nil
}
