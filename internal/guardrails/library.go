package guardrails

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Library holds the pattern tables used by the evaluator. It is built once at
// start-up and never mutated afterwards.
type Library struct {
	Secrets    RuleSet
	Disallowed RuleSet
	Regional   RuleSet
	Toxicity   WeightedRuleSet
}

// Classifier is the set of contracts the evaluator depends on. A stronger
// classifier can replace any member without touching the evaluator.
type Classifier struct {
	Secrets  Matcher
	Intents  Matcher
	Toxicity Scorer
}

// DefaultLibrary returns the built-in pattern tables.
func DefaultLibrary() *Library {
	return &Library{
		Secrets:    defaultSecretRules,
		Disallowed: defaultDisallowedRules,
		Regional:   defaultRegionalRules,
		Toxicity:   defaultToxicityRules,
	}
}

// Classifier exposes the library through the evaluator contracts. Regional
// rules are checked after the general disallowed set when includeRegional is set.
func (l *Library) Classifier(includeRegional bool) Classifier {
	intents := make(RuleSet, 0, len(l.Disallowed)+len(l.Regional))
	intents = append(intents, l.Disallowed...)
	if includeRegional {
		intents = append(intents, l.Regional...)
	}
	return Classifier{
		Secrets:  l.Secrets,
		Intents:  intents,
		Toxicity: l.Toxicity,
	}
}

type patternFile struct {
	Secrets    []patternEntry `yaml:"secrets"`
	Disallowed []patternEntry `yaml:"disallowed"`
	Regional   []patternEntry `yaml:"regional"`
	Toxicity   []patternEntry `yaml:"toxicity"`
}

type patternEntry struct {
	Name    string  `yaml:"name"`
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// LoadLibrary reads pattern tables from a YAML file. Sections that are absent
// keep the built-in defaults.
func LoadLibrary(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return ParseLibrary(raw)
}

// ParseLibrary builds a library from YAML bytes.
func ParseLibrary(raw []byte) (*Library, error) {
	var file patternFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode pattern file: %w", err)
	}

	lib := DefaultLibrary()
	var err error
	if file.Secrets != nil {
		if lib.Secrets, err = compileRuleSet("secrets", file.Secrets); err != nil {
			return nil, err
		}
	}
	if file.Disallowed != nil {
		if lib.Disallowed, err = compileRuleSet("disallowed", file.Disallowed); err != nil {
			return nil, err
		}
	}
	if file.Regional != nil {
		if lib.Regional, err = compileRuleSet("regional", file.Regional); err != nil {
			return nil, err
		}
	}
	if file.Toxicity != nil {
		rules := make(WeightedRuleSet, 0, len(file.Toxicity))
		for i, entry := range file.Toxicity {
			rule, err := compileEntry("toxicity", i, entry)
			if err != nil {
				return nil, err
			}
			if entry.Weight <= 0 || entry.Weight > 1 {
				return nil, fmt.Errorf("toxicity[%d] %q: weight must be in (0,1]", i, rule.Name)
			}
			rules = append(rules, WeightedRule{Rule: rule, Weight: entry.Weight})
		}
		lib.Toxicity = rules
	}
	return lib, nil
}

func compileRuleSet(section string, entries []patternEntry) (RuleSet, error) {
	rules := make(RuleSet, 0, len(entries))
	for i, entry := range entries {
		rule, err := compileEntry(section, i, entry)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileEntry(section string, idx int, entry patternEntry) (Rule, error) {
	pattern := strings.TrimSpace(entry.Pattern)
	if pattern == "" {
		return Rule{}, fmt.Errorf("%s[%d]: pattern must be provided", section, idx)
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		name = fmt.Sprintf("%s_%d", section, idx)
	}
	return compileRule(name, pattern)
}
