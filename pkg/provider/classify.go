package provider

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/provio/provio/pkg/engine"
)

//go:embed rules.yaml
var builtinRules []byte

// Rule matches one failure signature and assigns its classification. A rule
// matches when the invocation exit code appears in ExitCodes or any pattern
// occurs in the lowercased stderr output.
type Rule struct {
	// Name identifies the rule in logs and tests.
	Name string `yaml:"name"`

	// Class is the error class assigned on match.
	Class engine.ErrorClass `yaml:"class"`

	// Code is an optional error code assigned on match.
	Code string `yaml:"code,omitempty"`

	// Patterns are lowercase substrings matched against stderr.
	Patterns []string `yaml:"patterns,omitempty"`

	// ExitCodes are process exit codes that match regardless of stderr.
	ExitCodes []int `yaml:"exit_codes,omitempty"`
}

// Classification is the verdict for one failed invocation.
type Classification struct {
	// Class is the assigned error class.
	Class engine.ErrorClass

	// Code is the assigned error code.
	Code string

	// Rule names the matching rule, empty for the default verdict.
	Rule string
}

// Classifier maps failed invocations to error classes by matching stderr
// patterns and exit codes against an ordered rule table. The retry policy
// is data, not code: adjusting what counts as retryable means editing the
// table, not the executor.
type Classifier struct {
	rules []Rule
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewClassifier builds a classifier from the embedded rule table.
func NewClassifier() (*Classifier, error) {
	return ParseRules(builtinRules)
}

// ParseRules builds a classifier from a YAML rule table.
func ParseRules(data []byte) (*Classifier, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse classification rules: %w", err)
	}
	for i, rule := range file.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("classification rule %d has no name", i)
		}
		switch rule.Class {
		case engine.ErrorClassTransient, engine.ErrorClassThrottled,
			engine.ErrorClassConflict, engine.ErrorClassPermanent:
		default:
			return nil, fmt.Errorf("classification rule %q has invalid class %q", rule.Name, rule.Class)
		}
		if len(rule.Patterns) == 0 && len(rule.ExitCodes) == 0 {
			return nil, fmt.Errorf("classification rule %q matches nothing", rule.Name)
		}
	}
	return &Classifier{rules: file.Rules}, nil
}

// Classify returns the verdict for a failed invocation. Rules are checked
// in table order; an unmatched failure is permanent, since retrying an
// unknown error against a provider that already rejected it mostly repeats
// the rejection with a delay.
func (c *Classifier) Classify(exitCode int, stderr string) Classification {
	lowered := strings.ToLower(stderr)
	for _, rule := range c.rules {
		if rule.matches(exitCode, lowered) {
			code := rule.Code
			if code == "" {
				code = engine.ErrCodeProviderFailed
			}
			return Classification{Class: rule.Class, Code: code, Rule: rule.Name}
		}
	}
	return Classification{Class: engine.ErrorClassPermanent, Code: engine.ErrCodeProviderFailed}
}

func (r Rule) matches(exitCode int, loweredStderr string) bool {
	for _, code := range r.ExitCodes {
		if code == exitCode {
			return true
		}
	}
	for _, pattern := range r.Patterns {
		if pattern != "" && strings.Contains(loweredStderr, pattern) {
			return true
		}
	}
	return false
}
