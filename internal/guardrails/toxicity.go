package guardrails

import "math"

const repeatMatchIncrement = 0.1

// WeightedRuleSet scores text by its most severe matching rule.
type WeightedRuleSet []WeightedRule

// Score returns the maximum per-rule score. A rule matching n times scores
// min(weight + 0.1*(n-1), 1). Categories do not stack.
func (rs WeightedRuleSet) Score(text string) float64 {
	maxScore := 0.0
	for _, rule := range rs {
		count := len(rule.Pattern.FindAllStringIndex(text, -1))
		if count == 0 {
			continue
		}
		score := math.Min(rule.Weight+repeatMatchIncrement*float64(count-1), 1.0)
		maxScore = math.Max(maxScore, score)
	}
	return maxScore
}
