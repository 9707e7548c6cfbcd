// Package textutil provides the text normalization, tokenization and price
// parsing shared by the relevance scorer and the line-item matcher.
package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are tokens too generic to carry relevance signal: Russian
// prepositions, measurement units, and catalog boilerplate.
var stopWords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "из": {}, "для": {}, "по": {}, "под": {},
	"шт": {}, "м": {}, "мм": {}, "м2": {}, "м3": {}, "ед": {},
	"работ": {}, "работы": {}, "монтаж": {}, "демонтаж": {}, "устройство": {},
}

// stripMarks removes combining diacritical marks after NFD decomposition,
// so accented variants compare equal to their base letters.
var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

var spaceRe = regexp.MustCompile(`\s+`)

// Normalize lowercases s, folds ё to е, strips diacritics, collapses
// whitespace and trims. Pure and deterministic.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	s = strings.ReplaceAll(s, " ", " ")
	if out, _, err := transform.String(stripMarks, s); err == nil {
		s = out
	}
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var tokenSplitRe = regexp.MustCompile(`[^a-zа-я0-9]+`)

// Tokenize splits s into significant words: non-alphanumeric separators,
// tokens of length one and stop-words are dropped.
func Tokenize(s string) []string {
	var tokens []string
	for _, w := range tokenSplitRe.Split(Normalize(s), -1) {
		if len([]rune(w)) <= 1 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// TokenSet returns the distinct tokens of s.
func TokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// Overlap computes Jaccard-style token overlap between two strings:
// intersection size divided by the larger token-set size. Returns 0 when
// either side has no tokens.
func Overlap(a, b string) float64 {
	as, bs := TokenSet(a), TokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	larger := len(as)
	if len(bs) > larger {
		larger = len(bs)
	}
	return float64(inter) / float64(larger)
}

var (
	priceRe        = regexp.MustCompile(`[0-9]+(?:[\s.,][0-9]{3})*(?:[.,][0-9]+)?`)
	thousandsDotRe = regexp.MustCompile(`\.(?:\d{3})(?:\D|$)`)
)

// ParsePrice extracts the first decimal number from free text, tolerating
// space/dot thousands separators and a comma decimal separator.
// Returns (0, false) when no number is found.
func ParsePrice(text string) (float64, bool) {
	raw := Normalize(text)
	if raw == "" {
		return 0, false
	}
	m := priceRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	cleaned := strings.ReplaceAll(m, " ", "")
	// A dot followed by exactly three digits is a thousands separator.
	if thousandsDotRe.MatchString(cleaned + " ") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
