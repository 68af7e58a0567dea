package pipeline

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// Invisible characters that survive copy-paste from word processors.
	zeroWidthReplacer = strings.NewReplacer(
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
	)

	// Typographic quotes and dashes mapped to their ASCII forms.
	punctuationReplacer = strings.NewReplacer(
		"\u201c", `"`,
		"\u201d", `"`,
		"\u2018", "'",
		"\u2019", "'",
		"\u2013", "-",
		"\u2014", "-",
	)

	sentenceBoundaryRegex = regexp.MustCompile(`([.!?])([A-Z])`)
	whitespaceRegex       = regexp.MustCompile(`\s+`)
)

// Normalize canonicalizes manuscript text before extraction: NFC
// unicode normalization, zero-width stripping, quote and dash
// canonicalization, missing-space repair after sentence punctuation and
// whitespace collapsing. Normalize is idempotent.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = zeroWidthReplacer.Replace(text)
	text = punctuationReplacer.Replace(text)
	text = sentenceBoundaryRegex.ReplaceAllString(text, "$1 $2")
	text = whitespaceRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
