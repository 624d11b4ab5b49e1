package grading_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/credexam/certification-api/internal/grading"
)

func TestSimilarity(t *testing.T) {
	t.Run("ExactAfterNormalization", func(t *testing.T) {
		assert.InDelta(t, 1.0, grading.Similarity("Paris", "paris "), 0)
		assert.InDelta(t, 1.0, grading.Similarity("  HELLO", "hello"), 0)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Zero(t, grading.Similarity("", "paris"))
		assert.Zero(t, grading.Similarity("paris", ""))
		assert.Zero(t, grading.Similarity("   ", "paris"), "whitespace only normalizes to empty")
	})

	t.Run("EditDistanceRatio", func(t *testing.T) {
		// one substitution over five runes
		assert.InDelta(t, 0.8, grading.Similarity("paris", "parys"), 1e-9)
		// completely different strings of equal length
		assert.InDelta(t, 0.0, grading.Similarity("abc", "xyz"), 1e-9)
	})

	t.Run("SymmetricForEqualLengths", func(t *testing.T) {
		pairs := [][2]string{
			{"paris", "parys"},
			{"kitten", "mitten"},
			{"golang", "erlang"},
		}
		for _, pair := range pairs {
			assert.InDelta(
				t,
				grading.Similarity(pair[0], pair[1]),
				grading.Similarity(pair[1], pair[0]),
				1e-9,
				"similarity should not depend on argument order",
			)
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		score := grading.Similarity("a", "completely different and much longer")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	})
}
