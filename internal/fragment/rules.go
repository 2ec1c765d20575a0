package fragment

import (
	"fmt"
	"slices"
)

// Position is an insertion point within a rule's step list.
type Position int

const (
	// Prepend places the step first, ahead of every existing step.
	Prepend Position = iota
	// Append places the step last.
	Append
)

func (p Position) String() string {
	switch p {
	case Prepend:
		return "prepend"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("Position(%d)", int(p))
	}
}

// RulePredicate selects a rule.
type RulePredicate func(Rule) bool

// MatchExtension selects rules whose test list contains ext.
func MatchExtension(ext string) RulePredicate {
	return func(r Rule) bool {
		return slices.Contains(r.Test, ext)
	}
}

// MatchName selects rules by name.
func MatchName(name string) RulePredicate {
	return func(r Rule) bool {
		return r.Name == name
	}
}

// InsertStep inserts step into the first rule satisfying match at the given
// position. The rule and step lists are copied, so f itself is unchanged.
//
// Calling InsertStep twice inserts the step twice.
func InsertStep(f Fragment, match RulePredicate, step Step, pos Position) (Fragment, error) {
	idx := slices.IndexFunc(f.Module.Rules, match)
	if idx < 0 {
		return f, fmt.Errorf("%w: cannot %s step %q", ErrRuleNotFound, pos, step.Loader)
	}

	rules := slices.Clone(f.Module.Rules)
	use := rules[idx].Use

	switch pos {
	case Prepend:
		rules[idx].Use = slices.Insert(slices.Clone(use), 0, step)
	case Append:
		rules[idx].Use = append(slices.Clip(use), step)
	default:
		return f, fmt.Errorf("unknown insertion point %s", pos)
	}

	f.Module.Rules = rules
	return f, nil
}
