// Package moderation provides content filtering and moderation capabilities.
// It screens chat messages for prohibited content and enforces community
// guidelines before messages are delivered to recipients.
package moderation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Reasons attached to blocking Results, in the order the checks run.
const (
	ReasonSpamPattern       = "spam_pattern"
	ReasonBlockedKeyword    = "blocked_keyword"
	ReasonTooLong           = "message_too_long"
	ReasonExcessiveNewlines = "excessive_newlines"
)

// Content limits enforced by Check.
const (
	MaxContentChars = 2000
	MaxNewlines     = 10
)

// defaultTerms is the built-in lexicon. Deployments extend it via
// NewFilterWithTerms; the placeholder entries here keep the real list out of
// the repository.
var defaultTerms = []string{
	"badword", "offensive", "slur1", "slur2",
	"kill yourself", "go die",
}

// Result is the outcome of a content check. Term identifies the matched
// pattern or lexicon entry for audit logging; it is never echoed to other
// room members.
type Result struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter screens message content. Checks run in a fixed order and
// short-circuit on the first violation: spam patterns, then the lexicon,
// then the length cap, then the newline cap. The policy is reject-on-match;
// there is no mask-and-allow path.
type Filter struct {
	words   map[string]string // normalized single word -> lexicon term
	phrases []string          // normalized multi-word terms
}

// NewFilter creates a Filter loaded with the built-in lexicon.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms creates a Filter from an explicit term list. Single
// words match whole tokens only; terms containing spaces match as phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]string)}
	for _, term := range terms {
		norm := normalize(term, false)
		if norm == "" {
			continue
		}
		if strings.ContainsRune(norm, ' ') {
			f.phrases = append(f.phrases, norm)
		} else {
			f.words[norm] = norm
		}
	}
	return f
}

// Check screens text and returns a blocking Result on the first violation,
// or a zero-value Result if the text is clean.
func (f *Filter) Check(text string) Result {
	if r := checkSpamPatterns(text); r.Blocked {
		return r
	}
	if r := f.checkLexicon(text); r.Blocked {
		return r
	}
	if utf8.RuneCountInString(text) > MaxContentChars {
		return Result{Blocked: true, Reason: ReasonTooLong}
	}
	if strings.Count(text, "\n") > MaxNewlines {
		return Result{Blocked: true, Reason: ReasonExcessiveNewlines}
	}
	return Result{}
}

// checkLexicon matches whole normalized tokens against the word set and the
// normalized text against each phrase. The text is checked twice: once with
// punctuation stripped, and once with leetspeak substitutions folded, so
// both "badword!" and "b@dw0rd" match "badword".
func (f *Filter) checkLexicon(text string) Result {
	for _, leet := range []bool{false, true} {
		norm := normalize(text, leet)

		for _, tok := range strings.Fields(norm) {
			if term, ok := f.words[tok]; ok {
				return Result{Blocked: true, Reason: ReasonBlockedKeyword, Term: term}
			}
		}

		padded := " " + norm + " "
		for _, p := range f.phrases {
			if strings.Contains(padded, " "+p+" ") {
				return Result{Blocked: true, Reason: ReasonBlockedKeyword, Term: p}
			}
		}
	}
	return Result{}
}

// leetMap folds common character substitutions so "b@dw0rd" matches
// "badword".
var leetMap = map[rune]rune{
	'@': 'a',
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'$': 's',
	'!': 'i',
}

// normalize lower-cases text and collapses punctuation runs to single spaces
// so token boundaries survive. With leet set, substitution characters are
// folded to their letter equivalents instead of being treated as punctuation.
func normalize(text string, leet bool) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if leet {
			if sub, ok := leetMap[r]; ok {
				r = sub
			}
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
