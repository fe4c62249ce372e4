package moderation

import (
	"regexp"
	"strings"
	"unicode"
)

// Compiled regex patterns for spam detection.
// These are compiled once at package init and reused for every call,
// making them safe and efficient for concurrent use.
var (
	// urlPattern matches http/https URLs, www. URLs, and common TLD patterns.
	// The bare-domain variant requires a trailing "/" to avoid false positives
	// on version strings like "v2.0" or decimal numbers like "3.14".
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)
)

// spamCheck pairs a detection function with metadata used for reporting.
type spamCheck struct {
	name  string
	match func(string) bool
}

// spamChecks is the ordered list of spam checks applied by checkSpamPatterns.
// Order matters: the first match wins.
var spamChecks = []spamCheck{
	{name: "char_flood", match: hasCharFlood},
	{name: "url", match: func(text string) bool {
		return urlPattern.MatchString(text)
	}},
	{name: "shouting", match: isShouting},
	{name: "phrase_flood", match: hasPhraseFlood},
}

// hasCharFlood returns true if text contains 5 or more consecutive identical
// characters. Go's regexp package (RE2) does not support backreferences, so
// this is implemented as a simple linear scan which is both correct and fast.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// isShouting returns true if text is long enough to judge (8+ letters) and
// more than 80% of its letters are upper case. Digits, punctuation and
// whitespace are ignored so "ROFL!!! :-)" is judged only on its letters.
func isShouting(text string) bool {
	const (
		minLetters = 8
		threshold  = 0.8
	)

	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < minLetters {
		return false
	}
	return float64(upper)/float64(letters) > threshold
}

// hasPhraseFlood returns true if the same word or multi-word block appears 3
// or more times consecutively (case-insensitive). Words are delimited by
// whitespace. Go's regexp package (RE2) does not support backreferences, so
// this is implemented with a token scan over block sizes 1-3.
func hasPhraseFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	if len(words) < threshold {
		return false
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}

	for size := 1; size <= 3; size++ {
		if len(words) < size*threshold {
			continue
		}
		count := 1
		for i := size; i+size <= len(words)+1 && i < len(words); i += size {
			if blockEqual(words[i-size:i], words[i:min(i+size, len(words))]) {
				count++
				if count >= threshold {
					return true
				}
			} else {
				count = 1
			}
		}
	}
	return false
}

func blockEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// checkSpamPatterns runs every spam check against text and returns a blocking
// Result on the first match. If no pattern matches, it returns a zero-value
// (non-blocking) Result.
func checkSpamPatterns(text string) Result {
	for _, sc := range spamChecks {
		if sc.match(text) {
			return Result{
				Blocked: true,
				Reason:  ReasonSpamPattern,
				Term:    sc.name,
			}
		}
	}
	return Result{}
}
