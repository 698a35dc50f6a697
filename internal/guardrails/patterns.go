package guardrails

import (
	"fmt"
	"regexp"
)

// Rule pairs a compiled pattern with the name reported when it matches.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// WeightedRule is a toxicity rule with a severity weight in (0,1].
type WeightedRule struct {
	Rule
	Weight float64
}

// Matcher reports whether text trips a rule set and which rule did.
type Matcher interface {
	Match(text string) (string, bool)
}

// Scorer maps text to a toxicity score in [0,1].
type Scorer interface {
	Score(text string) float64
}

// RuleSet is an ordered list of binary rules evaluated top-to-bottom.
type RuleSet []Rule

// Match returns the name of the first rule matching text.
func (rs RuleSet) Match(text string) (string, bool) {
	for _, rule := range rs {
		if rule.Pattern.MatchString(text) {
			return rule.Name, true
		}
	}
	return "", false
}

// Names lists rule names in evaluation order.
func (rs RuleSet) Names() []string {
	names := make([]string, 0, len(rs))
	for _, rule := range rs {
		names = append(names, rule.Name)
	}
	return names
}

func mustRule(name, pattern string) Rule {
	return Rule{Name: name, Pattern: regexp.MustCompile(pattern)}
}

func mustWeighted(name, pattern string, weight float64) WeightedRule {
	return WeightedRule{Rule: mustRule(name, pattern), Weight: weight}
}

func compileRule(name, pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile rule %q: %w", name, err)
	}
	return Rule{Name: name, Pattern: re}, nil
}

var defaultSecretRules = RuleSet{
	mustRule("private_key", `(?i)-----BEGIN (?:RSA|EC|OPENSSH|DSA)? ?PRIVATE KEY-----`),
	mustRule("aws_access_key", `\bAKIA[0-9A-Z]{16}\b`),
	mustRule("aws_temporary_key", `\bASIA[0-9A-Z]{16}\b`),
	mustRule("github_pat", `\bghp_[A-Za-z0-9]{36,}\b`),
	mustRule("slack_token", `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`),
	mustRule("google_api_key", `\bAIza[0-9A-Za-z\-_]{35}\b`),
	mustRule("jwt", `\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`),
	mustRule("credential_assignment", `(?i)\b(api[_-]?key|secret|token|password)\s*[:=]\s*\S{8,}`),
}

var defaultDisallowedRules = RuleSet{
	mustRule("self_harm", `(?i)\b(how to|best way to|methods to)\b.*\b(kill myself|suicide|self-harm)\b`),
	mustRule("explosives", `(?i)\b(how to|instructions|guide|recipe|make|create|build|manufacture)\b.*\b(bomb|explosive|pipe bomb|napalm|gunpowder|black powder|thermite|molotov)\b`),
	mustRule("firearms", `(?i)\b(how to)\b.*\b(make)\b.*\b(gun|firearm|silencer|suppressor)\b`),
	mustRule("gunpowder", `(?i)\b(gunpowder|black powder)\b.*\b(recipe|formula|how to|make|create|ingredients)\b`),
	mustRule("malware", `(?i)\b(write|create|generate)\b.*\b(malware|ransomware|keylogger|trojan)\b`),
	mustRule("credential_theft", `(?i)\b(how to)\b.*\b(steal|phish|bypass|hack)\b.*\b(password|account|2fa|otp)\b`),
	mustRule("doxxing", `(?i)\b(find|dox|track)\b.*\b(address|phone|email|ssn|ird number)\b`),
	mustRule("csam", `(?i)\b(child porn|csam|minor)\b.*\b(sex|nude|explicit)\b`),
}

// NZ-specific fraud patterns.
var defaultRegionalRules = RuleSet{
	mustRule("document_forgery", `(?i)\b(fake|forge|counterfeit)\b.*\b(ird|tax return|passport|driver license|licence)\b`),
	mustRule("tax_evasion", `(?i)\b(how to)\b.*\b(evade|avoid|skip)\b.*\b(tax|gst|paye|ird)\b`),
	mustRule("immigration_fraud", `(?i)\b(fake|fraudulent)\b.*\b(work visa|residence|citizenship|immigration)\b`),
}

var defaultToxicityRules = WeightedRuleSet{
	mustWeighted("slurs", `(?i)\b(nigger|faggot|retard|cunt|bitch)\b`, 0.9),
	mustWeighted("group_violence", `(?i)\b(hate|kill|murder|die)\b.*\b(jews|muslims|christians|gays|women|men)\b`, 0.95),
	mustWeighted("profanity", `(?i)\b(fuck|shit|damn|ass|hell)\b`, 0.3),
	mustWeighted("threats", `(?i)\b(i will|going to|gonna)\b.*\b(kill|hurt|harm|attack)\b`, 0.85),
	mustWeighted("threat_language", `(?i)\b(threat|threaten)\b`, 0.6),
	mustWeighted("sexual", `(?i)\b(sex|porn|xxx|nude|naked)\b`, 0.4),
	mustWeighted("harassment", `(?i)\b(harass|stalk|dox|bully)\b`, 0.7),
	mustWeighted("violence", `(?i)\b(beat|torture|abuse|assault)\b`, 0.75),
}
