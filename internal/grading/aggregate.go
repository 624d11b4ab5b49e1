package grading

import "math"

// CategoryScore is one category's graded tally plus its percentage share of
// the exam. Weights across an exam sum to 100.
type CategoryScore struct {
	Weight         float64
	PointsEarned   float64
	PointsPossible float64
}

// Ratio is the fraction of the category's points earned. A category with no
// gradable items counts as fully earned so content-free categories never
// penalize the candidate.
func (c CategoryScore) Ratio() float64 {
	if c.PointsPossible == 0 {
		return 1.0
	}
	return c.PointsEarned / c.PointsPossible
}

type Summary struct {
	Score  int
	Passed bool
}

// Aggregate rolls weighted category ratios into a 0-100 score and a verdict.
// Rounding at the integer boundary is half-up; the result is clamped to
// [0, 100] against weight sets that drift from 100.
func Aggregate(categories []CategoryScore, passingScore int) Summary {
	total := 0.0
	for _, category := range categories {
		total += category.Ratio() * category.Weight
	}

	score := int(math.Floor(total + 0.5))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return Summary{
		Score:  score,
		Passed: score >= passingScore,
	}
}
