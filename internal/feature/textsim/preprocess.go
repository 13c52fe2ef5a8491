package textsim

import (
	"regexp"
	"strings"
)

var reNonAlnum = regexp.MustCompile(`[^a-zA-Z0-9 ]+`)

// OCR engines routinely confuse these glyph pairs (O/0, l/1, S/5, ...).
// Folding both texts through the same tables makes the similarity score
// robust to which side of the confusion each scan landed on.
var (
	foldUpper = mapTable("TDCLUEZOBSY", "70GIVF20857")
	foldLower = mapTable("ucibogqzsy", "ve16099257")
)

func mapTable(from, to string) map[rune]rune {
	m := make(map[rune]rune, len(from))
	f := []rune(from)
	t := []rune(to)
	for i := range f {
		m[f[i]] = t[i]
	}
	return m
}

func applyTable(s string, table map[rune]rune) string {
	return strings.Map(func(r rune) rune {
		if repl, ok := table[r]; ok {
			return repl
		}
		return r
	}, s)
}

// Preprocess strips punctuation and folds OCR-confusable characters. Returns
// the input unchanged when preprocessing is disabled.
func (c *Comparer) Preprocess(text string) string {
	if !c.preprocess {
		return text
	}
	text = reNonAlnum.ReplaceAllString(text, "")
	text = applyTable(strings.ToUpper(text), foldUpper)
	text = applyTable(strings.ToLower(text), foldLower)
	return text
}
