package outcome

import (
	"testing"

	"github.com/litani-build/litani"
)

func TestDecideReturnCodeMatch(t *testing.T) {
	zero := 0
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{
		{Type: "return-code", Value: &zero, Action: litani.OutcomeSuccess},
		{Type: "wildcard", Action: litani.OutcomeFail},
	}}

	got, err := Decide(table, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != litani.OutcomeSuccess {
		t.Errorf("Decide(0, false) = %q, want %q", got, litani.OutcomeSuccess)
	}
}

func TestDecideWildcardFallback(t *testing.T) {
	zero := 0
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{
		{Type: "return-code", Value: &zero, Action: litani.OutcomeSuccess},
		{Type: "wildcard", Action: litani.OutcomeFail},
	}}

	got, err := Decide(table, 17, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != litani.OutcomeFail {
		t.Errorf("Decide(17, false) = %q, want %q", got, litani.OutcomeFail)
	}
}

// TestDecideTimeoutPrecedesReturnCode asserts the ordering rule: a timeout
// takes precedence over whatever return code the killed process
// happened to exit with.
func TestDecideTimeoutPrecedesReturnCode(t *testing.T) {
	zero := 0
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{
		{Type: "return-code", Value: &zero, Action: litani.OutcomeSuccess},
		{Type: "timeout", Action: litani.OutcomeFailIgnored},
		{Type: "wildcard", Action: litani.OutcomeFail},
	}}

	got, err := Decide(table, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != litani.OutcomeFailIgnored {
		t.Errorf("Decide(0, true) = %q, want %q (timeout rule must win)", got, litani.OutcomeFailIgnored)
	}
}

func TestDecideTimeoutNoRuleFallsBackToWildcard(t *testing.T) {
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{
		{Type: "wildcard", Action: litani.OutcomeFail},
	}}

	got, err := Decide(table, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != litani.OutcomeFail {
		t.Errorf("Decide with no timeout rule = %q, want wildcard %q", got, litani.OutcomeFail)
	}
}

func TestDecideMissingWildcardIsError(t *testing.T) {
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{}}
	if _, err := Decide(table, 0, false); err == nil {
		t.Fatal("Decide with no wildcard rule: want error, got nil")
	}
}

func TestDefaultTableOrdering(t *testing.T) {
	table := DefaultTable(DefaultTableOptions{
		TimeoutOk:     true,
		OkReturns:     []int{2},
		IgnoreReturns: []int{3},
	})
	if err := Validate(table); err != nil {
		t.Fatal(err)
	}

	wantTypes := []string{"timeout", "return-code", "return-code", "return-code", "wildcard"}
	if len(table.Outcomes) != len(wantTypes) {
		t.Fatalf("DefaultTable has %d rules, want %d", len(table.Outcomes), len(wantTypes))
	}
	for i, want := range wantTypes {
		if table.Outcomes[i].Type != want {
			t.Errorf("rule %d type = %q, want %q", i, table.Outcomes[i].Type, want)
		}
	}

	got, err := Decide(table, 3, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != litani.OutcomeFailIgnored {
		t.Errorf("Decide(3, false) = %q, want %q", got, litani.OutcomeFailIgnored)
	}
}

func TestValidateOutcomeLabel(t *testing.T) {
	for _, ok := range []litani.Outcome{litani.OutcomeSuccess, litani.OutcomeFail, litani.OutcomeFailIgnored} {
		if err := ValidateOutcomeLabel(ok); err != nil {
			t.Errorf("ValidateOutcomeLabel(%q): %v, want nil", ok, err)
		}
	}
	if err := ValidateOutcomeLabel(litani.Outcome("bogus")); err == nil {
		t.Error("ValidateOutcomeLabel(\"bogus\"): want error, got nil")
	}
}

func TestValidateRejectsMissingWildcard(t *testing.T) {
	table := &litani.OutcomeTable{Outcomes: []litani.OutcomeRule{
		{Type: "return-code", Action: litani.OutcomeSuccess},
	}}
	if err := Validate(table); err == nil {
		t.Fatal("Validate: want error for table without a wildcard rule")
	}
}
