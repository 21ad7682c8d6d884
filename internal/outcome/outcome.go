// Package outcome implements the outcome decider: mapping a job's (return
// code, timeout flag) through an ordered outcome table to one of
// {success, fail_ignored, fail}.
package outcome

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/litani-build/litani"
)

// Decide runs the decision procedure:
//  1. If timeoutReached: return the timeout rule's action, or the
//     wildcard's if no timeout rule exists.
//  2. Else scan rules in order and return the action of the first
//     return-code rule whose value equals returnCode.
//  3. If no return-code rule matched, return the wildcard action.
func Decide(table *litani.OutcomeTable, returnCode int, timeoutReached bool) (litani.Outcome, error) {
	wildcard, ok := findWildcard(table)
	if !ok {
		return "", xerrors.New("outcome table has no wildcard rule")
	}

	if timeoutReached {
		for _, r := range table.Outcomes {
			if r.Type == "timeout" {
				return r.Action, nil
			}
		}
		return wildcard, nil
	}

	for _, r := range table.Outcomes {
		if r.Type == "return-code" && r.Value != nil && *r.Value == returnCode {
			return r.Action, nil
		}
	}
	return wildcard, nil
}

func findWildcard(table *litani.OutcomeTable) (litani.Outcome, bool) {
	for _, r := range table.Outcomes {
		if r.Type == "wildcard" {
			return r.Action, true
		}
	}
	return "", false
}

// ValidateOutcomeLabel checks that a job status's outcome field, once the
// job is complete, is one of the three known labels. A status file is
// external, on-disk state the aggregator reads back, so a corrupted or
// hand-edited outcome string is caught here rather than propagated.
func ValidateOutcomeLabel(o litani.Outcome) error {
	switch o {
	case litani.OutcomeSuccess, litani.OutcomeFail, litani.OutcomeFailIgnored:
		return nil
	default:
		return xerrors.Errorf("%q: %w", o, litani.ErrUnknownOutcomeLabel)
	}
}

// Validate returns an error if table lacks the mandatory wildcard rule.
func Validate(table *litani.OutcomeTable) error {
	if _, ok := findWildcard(table); !ok {
		return xerrors.New("outcome table is missing the mandatory wildcard rule")
	}
	return nil
}

// DefaultTableOptions configures the synthesized default table assembled
// from CLI-shaped flags.
type DefaultTableOptions struct {
	TimeoutOk     bool  // timeout -> success
	TimeoutIgnore bool  // timeout -> fail_ignored (mutually exclusive with TimeoutOk)
	OkReturns     []int // return-code N -> success, in the order given
	IgnoreReturns []int // return-code N -> fail_ignored, in the order given
}

// DefaultTable assembles the default outcome table: an optional timeout
// rule, then one return-code rule per --ok-returns value,
// then one per --ignore-returns value, then the fixed
// "return-code 0 -> success", then the mandatory wildcard -> fail.
func DefaultTable(opts DefaultTableOptions) *litani.OutcomeTable {
	var rules []litani.OutcomeRule

	if opts.TimeoutOk {
		rules = append(rules, litani.OutcomeRule{Type: "timeout", Action: litani.OutcomeSuccess})
	} else if opts.TimeoutIgnore {
		rules = append(rules, litani.OutcomeRule{Type: "timeout", Action: litani.OutcomeFailIgnored})
	}

	for _, n := range opts.OkReturns {
		n := n
		rules = append(rules, litani.OutcomeRule{Type: "return-code", Value: &n, Action: litani.OutcomeSuccess})
	}
	for _, n := range opts.IgnoreReturns {
		n := n
		rules = append(rules, litani.OutcomeRule{Type: "return-code", Value: &n, Action: litani.OutcomeFailIgnored})
	}

	zero := 0
	rules = append(rules,
		litani.OutcomeRule{Type: "return-code", Value: &zero, Action: litani.OutcomeSuccess},
		litani.OutcomeRule{Type: "wildcard", Action: litani.OutcomeFail},
	)

	return &litani.OutcomeTable{Outcomes: rules}
}

// LoadFile reads an outcome table from path, which may be JSON or YAML,
// using gopkg.in/yaml.v3 -- YAML is a JSON superset, so the same decoder
// handles both formats, matching Sumatoshi-tech-codefang's use of yaml.v3
// for its own JSON-shaped config.
func LoadFile(path string) (*litani.OutcomeTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("read outcome table %s: %w", path, err)
	}
	var table litani.OutcomeTable
	if err := yaml.Unmarshal(b, &table); err != nil { // yaml.v3 parses JSON too, covering both extensions
		return nil, xerrors.Errorf("decode outcome table %s: %w", path, err)
	}
	if err := Validate(&table); err != nil {
		return nil, xerrors.Errorf("%s: %w", path, err)
	}
	return &table, nil
}
