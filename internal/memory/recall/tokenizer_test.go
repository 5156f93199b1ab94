package recall

import "testing"

func TestSimpleTokenizerLowercasesAndSplits(t *testing.T) {
	got := SimpleTokenizer{}.Tokenize("The  Quick\tBrown FOX")
	want := []string{"the", "quick", "brown", "fox"}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJaccard(t *testing.T) {
	tok := SimpleTokenizer{}

	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "red green blue", "red green blue", 1.0},
		{"disjoint", "red green", "yellow purple", 0.0},
		{"partial", "red green blue", "red green yellow", 0.5},
		{"both empty", "", "", 1.0},
		{"one empty", "red", "", 0.0},
		{"case insensitive", "Red Green", "red green", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Jaccard(tok, tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Jaccard(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
