package capabilities

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"
)

func TestJSONRoundTripsTags(t *testing.T) {
	s, err := JSON()
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	if err := json.Unmarshal([]byte(s), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(Tags) {
		t.Fatalf("got %d tags, want %d", len(got), len(Tags))
	}
	for i, tag := range Tags {
		if got[i] != tag {
			t.Errorf("tag %d = %q, want %q", i, got[i], tag)
		}
	}
}

func TestTableListsEveryTagSorted(t *testing.T) {
	table := Table()
	lines := strings.Split(strings.TrimRight(table, "\n"), "\n")
	if len(lines) != len(Tags) {
		t.Fatalf("got %d lines, want %d", len(lines), len(Tags))
	}
	for _, tag := range Tags {
		if !strings.Contains(table, tag) {
			t.Errorf("table missing tag %q:\n%s", tag, table)
		}
	}
	if !sort.StringsAreSorted(lines) {
		t.Errorf("table lines are not sorted:\n%s", table)
	}
}
