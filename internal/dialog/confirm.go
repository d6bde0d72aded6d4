package dialog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Verdict classifies a reply while a confirmation is pending.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictYes
	VerdictNo
)

// Default keyword sets; overridable via chat.yes_words / chat.no_words.
var (
	DefaultYesWords = []string{"yes", "y", "yeah", "yep", "ok", "okay", "sure", "confirm", "go ahead"}
	DefaultNoWords  = []string{"no", "n", "nope", "cancel", "stop", "never mind"}
)

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalize lowercases and strips diacritics so "Não" matches "nao".
func normalize(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// Matcher centralizes affirmative/negative keyword matching so the
// state machine branches never embed their own string checks.
type Matcher struct {
	yes []string
	no  []string
}

// NewMatcher builds a matcher from raw keyword lists. Empty lists fall
// back to the defaults.
func NewMatcher(yesWords, noWords []string) *Matcher {
	if len(yesWords) == 0 {
		yesWords = DefaultYesWords
	}
	if len(noWords) == 0 {
		noWords = DefaultNoWords
	}
	m := &Matcher{}
	for _, w := range yesWords {
		m.yes = append(m.yes, normalize(w))
	}
	for _, w := range noWords {
		m.no = append(m.no, normalize(w))
	}
	return m
}

// Classify resolves a message to yes, no, or unknown. Negative words
// win over affirmative ones so "no, cancel" never confirms. Single
// words must match a whole token; multi-word phrases match as
// substrings.
func (m *Matcher) Classify(msg string) Verdict {
	normalized := normalize(msg)
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	if matchAny(m.no, normalized, tokens) {
		return VerdictNo
	}
	if matchAny(m.yes, normalized, tokens) {
		return VerdictYes
	}
	return VerdictUnknown
}

func matchAny(words []string, normalized string, tokens []string) bool {
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(normalized, w) {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if tok == w {
				return true
			}
		}
	}
	return false
}
