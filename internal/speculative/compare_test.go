package speculative

import (
	"reflect"
	"testing"

	"github.com/samcharles93/speculate/internal/device"
)

func TestCompare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		draft     []device.Token
		preds     []device.Token
		bonus     device.Token
		want      Outcome
		committed []device.Token
	}{
		{
			name:      "mismatch at last slot",
			draft:     []device.Token{5, 6, 7},
			preds:     []device.Token{5, 6, 9},
			bonus:     42,
			want:      Outcome{Kind: PartialAccept, Accepted: 2, Replacement: 9},
			committed: []device.Token{5, 6, 9},
		},
		{
			name:      "all agree",
			draft:     []device.Token{5, 6, 7},
			preds:     []device.Token{5, 6, 7},
			bonus:     42,
			want:      Outcome{Kind: FullAccept, Accepted: 3, Bonus: 42},
			committed: []device.Token{5, 6, 7, 42},
		},
		{
			name:      "first token wrong",
			draft:     []device.Token{1, 2, 3},
			preds:     []device.Token{4, 2, 3},
			bonus:     8,
			want:      Outcome{Kind: PartialAccept, Accepted: 0, Replacement: 4},
			committed: []device.Token{4},
		},
		{
			name:      "later agreement is ignored",
			draft:     []device.Token{1, 2, 3, 4},
			preds:     []device.Token{1, 9, 3, 4},
			bonus:     8,
			want:      Outcome{Kind: PartialAccept, Accepted: 1, Replacement: 9},
			committed: []device.Token{1, 9},
		},
		{
			name:      "single token window",
			draft:     []device.Token{3},
			preds:     []device.Token{3},
			bonus:     11,
			want:      Outcome{Kind: FullAccept, Accepted: 1, Bonus: 11},
			committed: []device.Token{3, 11},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Compare(tt.draft, tt.preds, tt.bonus)
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if got.Advanced() != got.Accepted+1 {
				t.Fatalf("advanced %d for accepted %d", got.Advanced(), got.Accepted)
			}
			committed := got.Committed(tt.draft)
			if !reflect.DeepEqual(committed, tt.committed) {
				t.Fatalf("committed %v, want %v", committed, tt.committed)
			}
			if len(committed) != got.Advanced() {
				t.Fatalf("committed %d tokens but advanced %d", len(committed), got.Advanced())
			}
		})
	}
}

func TestCompareLengthMismatchPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Compare([]device.Token{1, 2}, []device.Token{1}, 0)
}

func TestOutcomeString(t *testing.T) {
	t.Parallel()
	full := Outcome{Kind: FullAccept, Accepted: 3, Bonus: 42}
	if got := full.String(); got != "FullAccept(bonus=42)" {
		t.Fatalf("got %q", got)
	}
	partial := Outcome{Kind: PartialAccept, Accepted: 2, Replacement: 9}
	if got := partial.String(); got != "PartialAccept(accepted=2, replacement=9)" {
		t.Fatalf("got %q", got)
	}
	if PartialAccept.String() != "partial" || FullAccept.String() != "full" {
		t.Fatal("unexpected kind names")
	}
}
