package recall

import "strings"

// Tokenizer splits text into comparable tokens for near-duplicate
// detection. Kept behind an interface so a language-aware segmenter can
// replace the default without touching the fusion engine.
type Tokenizer interface {
	Tokenize(text string) []string
}

// SimpleTokenizer lowercases and splits on whitespace. Good enough for
// the Jaccard dedup check; punctuation noise only loosens the overlap,
// never tightens it.
type SimpleTokenizer struct{}

// Tokenize splits text into lowercase whitespace-delimited tokens.
func (SimpleTokenizer) Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Jaccard returns the token-set Jaccard similarity of two texts. Two
// empty texts are identical by convention.
func Jaccard(tok Tokenizer, a, b string) float64 {
	setA := toSet(tok.Tokenize(a))
	setB := toSet(tok.Tokenize(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}
