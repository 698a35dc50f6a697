package guardrails

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreNoMatch(t *testing.T) {
	require.Zero(t, defaultToxicityRules.Score("Kia ora, how do I register a company?"))
}

func TestScoreMonotonicInMatchCount(t *testing.T) {
	prev := 0.0
	for n := 1; n <= 4; n++ {
		text := strings.TrimSpace(strings.Repeat("damn ", n))
		score := defaultToxicityRules.Score(text)
		require.Greater(t, score, prev, "score for %d matches", n)
		require.InDelta(t, 0.3+0.1*float64(n-1), score, 1e-9)
		prev = score
	}
}

func TestScoreCappedAtOne(t *testing.T) {
	score := defaultToxicityRules.Score("bitch bitch bitch bitch")
	require.Equal(t, 1.0, score)
}

func TestScoreTakesMaximumAcrossRules(t *testing.T) {
	// profanity 0.3 and sexual 0.4 do not stack.
	score := defaultToxicityRules.Score("damn that nude painting")
	require.InDelta(t, 0.4, score, 1e-9)
}
