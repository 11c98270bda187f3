package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Ref is a parsed reference to an output captured by another step,
// written as "ref://<step>/<output>" inside argument values.
type Ref struct {
	// Step is the referenced step name.
	Step string

	// Output is the referenced capture name.
	Output string
}

// String returns the canonical reference syntax.
func (r Ref) String() string {
	return "ref://" + r.Step + "/" + r.Output
}

var refPattern = regexp.MustCompile(`ref://([A-Za-z0-9][A-Za-z0-9_-]*)/([A-Za-z0-9][A-Za-z0-9_.-]*)`)

// FindRefs returns every well-formed reference embedded in value, in order.
func FindRefs(value string) []Ref {
	matches := refPattern.FindAllStringSubmatch(value, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := make([]Ref, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, Ref{Step: m[1], Output: m[2]})
	}
	return refs
}

// ValidateSequence statically checks a step sequence before anything
// executes: step names are unique, every step does something, every
// action carries a probe so existing resources are found before anything
// is created, poll and secret specs are well-formed, and every ref://
// reference points at a declared capture of a strictly earlier step
// (poll arguments and secret sources may also reference the step's own
// captures). Any violation is an InvalidStepGraphError and nothing runs.
func ValidateSequence(steps []Step) error {
	if len(steps) == 0 {
		return NewStepGraphError("stack declares no steps")
	}

	index := make(map[string]int, len(steps))
	captures := make(map[string]map[string]bool, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return NewStepGraphError(fmt.Sprintf("step at position %d has no name", i))
		}
		if _, dup := index[s.Name]; dup {
			return NewStepGraphError(fmt.Sprintf("duplicate step name %q", s.Name))
		}
		index[s.Name] = i
		caps := make(map[string]bool, len(s.Captures))
		for _, c := range s.Captures {
			if c.Name == "" {
				return NewStepGraphError(fmt.Sprintf("step %q declares a capture with no name", s.Name))
			}
			caps[c.Name] = true
		}
		captures[s.Name] = caps
	}

	for i, s := range steps {
		if s.Action == "" && s.Secret == nil {
			return NewStepGraphError(fmt.Sprintf("step %q declares neither an action nor a secret", s.Name))
		}
		// A create action without a probe would run unconditionally on
		// every deploy, so the re-run of a converged stack would mutate it.
		if s.Action != "" && s.Probe == nil {
			return NewStepGraphError(fmt.Sprintf("step %q declares an action without a probe", s.Name))
		}
		if s.Poll != nil {
			if s.Poll.Action == "" {
				return NewStepGraphError(fmt.Sprintf("step %q declares a poll without a status action", s.Name))
			}
			if s.Poll.Attempts <= 0 {
				return NewStepGraphError(fmt.Sprintf("step %q poll attempts must be positive", s.Name))
			}
			if s.Poll.Interval <= 0 {
				return NewStepGraphError(fmt.Sprintf("step %q poll interval must be positive", s.Name))
			}
		}
		if s.Secret != nil {
			if s.Secret.Resource == "" || s.Secret.Role == "" {
				return NewStepGraphError(fmt.Sprintf("step %q secret needs both resource and role", s.Name))
			}
			if err := s.Secret.Mode.Validate(); err != nil {
				return NewStepGraphError(fmt.Sprintf("step %q: %v", s.Name, err))
			}
			if s.Secret.ValueFrom == "" {
				if err := s.Secret.Generator.Validate(); err != nil {
					return NewStepGraphError(fmt.Sprintf("step %q: %v", s.Name, err))
				}
			}
		}

		for _, key := range sortedKeys(s.Args) {
			if err := validateRefValue(steps, index, captures, i, false, "argument "+key, s.Args[key]); err != nil {
				return err
			}
		}
		if s.Probe != nil {
			for _, key := range sortedKeys(s.Probe.Args) {
				if err := validateRefValue(steps, index, captures, i, false, "probe argument "+key, s.Probe.Args[key]); err != nil {
					return err
				}
			}
		}
		if s.Poll != nil {
			for _, key := range sortedKeys(s.Poll.Args) {
				if err := validateRefValue(steps, index, captures, i, true, "poll argument "+key, s.Poll.Args[key]); err != nil {
					return err
				}
			}
		}
		if s.Secret != nil && s.Secret.ValueFrom != "" {
			if err := validateRefValue(steps, index, captures, i, true, "secret value", s.Secret.ValueFrom); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateRefValue checks every reference in one value against the position
// and capture rules. allowSelf admits references to the containing step's
// own captures (used for poll arguments and secret sources, which resolve
// after the step's action has captured its outputs).
func validateRefValue(steps []Step, index map[string]int, captures map[string]map[string]bool, pos int, allowSelf bool, where, value string) error {
	step := steps[pos]
	refs := FindRefs(value)
	if markers := strings.Count(value, "ref://"); markers > len(refs) {
		return NewStepGraphError(fmt.Sprintf("step %q %s contains a malformed reference: %q", step.Name, where, value))
	}
	for _, r := range refs {
		target, ok := index[r.Step]
		if !ok {
			return NewStepGraphError(fmt.Sprintf("step %q %s references unknown step %q", step.Name, where, r.Step))
		}
		if target > pos {
			return NewStepGraphError(fmt.Sprintf("step %q %s references later step %q; steps may only use outputs of earlier steps", step.Name, where, r.Step))
		}
		if target == pos && !allowSelf {
			return NewStepGraphError(fmt.Sprintf("step %q %s references its own output %q", step.Name, where, r.Output))
		}
		if !captures[r.Step][r.Output] {
			return NewStepGraphError(fmt.Sprintf("step %q %s references output %q which step %q does not capture", step.Name, where, r.Output, r.Step))
		}
	}
	return nil
}

// ResolveValue replaces every reference in value using lookup. Lookup misses
// are internal errors: static validation guarantees the reference shape, so
// a miss means the referenced step failed to capture its output.
func ResolveValue(value string, lookup func(step, output string) (string, bool)) (string, error) {
	var resolveErr error
	resolved := refPattern.ReplaceAllStringFunc(value, func(match string) string {
		m := refPattern.FindStringSubmatch(match)
		v, ok := lookup(m[1], m[2])
		if !ok {
			if resolveErr == nil {
				resolveErr = NewPermanentError(
					fmt.Sprintf("output %q of step %q is not available", m[2], m[1]), nil,
				).WithCode(ErrCodeInternal)
			}
			return match
		}
		return v
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return resolved, nil
}

// ResolveArgs returns a copy of args with every reference replaced.
func ResolveArgs(args map[string]string, lookup func(step, output string) (string, bool)) (map[string]string, error) {
	if len(args) == 0 {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(args))
	for k, v := range args {
		resolved, err := ResolveValue(v, lookup)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
