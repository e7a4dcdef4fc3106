package domain

import (
	"encoding/json"
	"testing"
)

func TestNormalizeStage(t *testing.T) {
	cases := []struct {
		in   Stage
		want Stage
	}{
		{StageBacklog, StageBacklog},
		{StageHorizonTwo, StageHorizonTwo},
		{"Unallocated", StageBacklog},
		{"In analysis", StageInDiscovery},
		{"", StageBacklog},
		{"Sprint 9", StageBacklog},
	}
	for _, tc := range cases {
		if got := NormalizeStage(tc.in); got != tc.want {
			t.Fatalf("NormalizeStage(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValueValidity(t *testing.T) {
	if !LevelHigh.Valid() || Level("Urgent").Valid() {
		t.Fatalf("unexpected level validity")
	}
	if !JobEmotional.Valid() || JobTag("Spiritual").Valid() {
		t.Fatalf("unexpected job tag validity")
	}
	if !StageInDiscovery.Valid() || Stage("Unallocated").Valid() {
		t.Fatalf("unexpected stage validity")
	}
	if len(Stages()) != 5 || Stages()[0] != StageBacklog {
		t.Fatalf("unexpected stage list: %v", Stages())
	}
}

func TestCellCommentUnmarshalLegacyString(t *testing.T) {
	var c CellComment
	if err := json.Unmarshal([]byte(`"needs a follow-up call"`), &c); err != nil {
		t.Fatalf("unmarshal legacy form: %v", err)
	}
	if c.Text != "needs a follow-up call" {
		t.Fatalf("unexpected text %q", c.Text)
	}
	if c.Replies == nil || len(c.Replies) != 0 {
		t.Fatalf("expected empty replies, got %#v", c.Replies)
	}
}

func TestCellCommentUnmarshalObjectForm(t *testing.T) {
	var c CellComment
	if err := json.Unmarshal([]byte(`{"text":"check with support","replies":["done"]}`), &c); err != nil {
		t.Fatalf("unmarshal object form: %v", err)
	}
	if c.Text != "check with support" || len(c.Replies) != 1 || c.Replies[0] != "done" {
		t.Fatalf("unexpected comment: %#v", c)
	}

	var bare CellComment
	if err := json.Unmarshal([]byte(`{"text":"no replies yet"}`), &bare); err != nil {
		t.Fatalf("unmarshal without replies: %v", err)
	}
	if bare.Replies == nil {
		t.Fatalf("expected replies initialized to empty slice")
	}

	if err := json.Unmarshal([]byte(`42`), &c); err == nil {
		t.Fatalf("expected error for non-string, non-object payload")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var r Result
	r.Merge(Result{})
	if r.Violations != nil {
		t.Fatalf("merging empty result should not allocate")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if r.HasBlocking() {
		t.Fatalf("warn violation should not block")
	}
	r.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !r.HasBlocking() {
		t.Fatalf("expected blocking after merge")
	}
	if len(r.Violations) != 2 {
		t.Fatalf("expected 2 violations, got %d", len(r.Violations))
	}
}
