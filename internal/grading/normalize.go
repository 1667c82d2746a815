package grading

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	whitespaceRun   = regexp.MustCompile(`\s+`)
	punctuationRune = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	lowerCaser      = cases.Lower(language.Und)
)

// NormalizeOptions controls how free text is canonicalised before comparison.
type NormalizeOptions struct {
	CaseSensitive     bool
	RemoveWhitespace  bool
	RemovePunctuation bool
}

// Normalize canonicalises a raw answer value. Values that are not strings
// normalise to the empty string.
//
// Steps run in a fixed order: trim, lowercase (unless case sensitive),
// collapse whitespace runs, strip punctuation.
func Normalize(value interface{}, opts NormalizeOptions) string {
	text, ok := value.(string)
	if !ok {
		return ""
	}

	text = strings.TrimSpace(text)
	if !opts.CaseSensitive {
		text = lowerCaser.String(text)
	}
	if opts.RemoveWhitespace {
		text = whitespaceRun.ReplaceAllString(text, " ")
	}
	if opts.RemovePunctuation {
		text = punctuationRune.ReplaceAllString(text, "")
	}

	return text
}
