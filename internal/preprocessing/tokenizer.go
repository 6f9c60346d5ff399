package preprocessing

import (
	"strings"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"

	"github.com/kcb-text2sql/backend/internal/dictionary"
)

// particles are the postpositions split off the end of an unknown segment,
// longest first so that 에서 wins over 에.
var particles = []string{
	"이랑", "께서", "한테", "에서", "에게", "으로", "까지", "부터", "보다", "이나",
	"은", "는", "이", "가", "을", "를", "의", "에", "로", "와", "과", "도", "만", "나", "랑",
}

// Tokenize splits text into eojeol with prose and then segments each
// eojeol by longest dictionary match. Segments the dictionary does not
// know lose a trailing particle, which becomes its own token.
func Tokenize(text string, snap *dictionary.Snapshot) []string {
	var words []string
	for _, eojeol := range eojeols(text) {
		words = append(words, segment(eojeol, snap)...)
	}
	return words
}

func eojeols(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithSegmentation(false),
		prose.WithExtraction(false))
	if err != nil {
		return strings.Fields(text)
	}
	tokens := doc.Tokens()
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if t := strings.TrimSpace(tok.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func segment(eojeol string, snap *dictionary.Snapshot) []string {
	if _, ok := snap.Lookup(eojeol); ok {
		return []string{eojeol}
	}

	lexicon := snap.Lexicon()
	var (
		out     []string
		unknown strings.Builder
	)
	flush := func() {
		if unknown.Len() > 0 {
			out = append(out, splitParticle(unknown.String())...)
			unknown.Reset()
		}
	}

	rest := eojeol
	for rest != "" {
		if w := longestPrefix(rest, lexicon); w != "" {
			flush()
			out = append(out, w)
			rest = rest[len(w):]
			continue
		}
		_, size := utf8.DecodeRuneInString(rest)
		unknown.WriteString(rest[:size])
		rest = rest[size:]
	}
	flush()
	return out
}

func longestPrefix(s string, lexicon []string) string {
	for _, w := range lexicon {
		if w != "" && strings.HasPrefix(s, w) {
			return w
		}
	}
	return ""
}

func splitParticle(seg string) []string {
	for _, p := range particles {
		if seg == p {
			return []string{seg}
		}
		if stem, ok := strings.CutSuffix(seg, p); ok && stem != "" {
			return []string{stem, p}
		}
	}
	return []string{seg}
}
