package moderation

import "testing"

func TestCheckSpamPatterns_CharFlood(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"five repeats", "aaaaa", true},
		{"repeats inside word", "heyyyyy there", true},
		{"four repeats ok", "aaaa", false},
		{"no repeats", "hello world", false},
		{"repeated punctuation", "what?????", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkSpamPatterns(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("checkSpamPatterns(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != "char_flood" {
				t.Errorf("Term = %q, want char_flood", result.Term)
			}
		})
	}
}

func TestCheckSpamPatterns_URL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"http url", "check http://spam.example/offer", true},
		{"https url", "https://example.com", true},
		{"www url", "visit www.example.com now", true},
		{"bare domain with path", "example.com/free", true},
		{"version string", "we shipped v2.0 today", false},
		{"decimal number", "pi is 3.14", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkSpamPatterns(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("checkSpamPatterns(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != "url" {
				t.Errorf("Term = %q, want url", result.Term)
			}
		})
	}
}

func TestCheckSpamPatterns_Shouting(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"all caps", "STOP SPAMMING THIS CHANNEL", true},
		{"short caps ok", "WOW", false},
		{"mostly lowercase", "this is Fine honestly", false},
		{"caps with punctuation", "I SAID STOP IT!!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkSpamPatterns(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("checkSpamPatterns(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != "shouting" {
				t.Errorf("Term = %q, want shouting", result.Term)
			}
		})
	}
}

func TestCheckSpamPatterns_PhraseFlood(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		blocked bool
	}{
		{"single word repeated", "buy buy buy", true},
		{"case insensitive", "Buy BUY buy", true},
		{"two word block", "free money free money free money", true},
		{"two repeats ok", "really really interesting", false},
		{"varied words", "come on over here now", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := checkSpamPatterns(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("checkSpamPatterns(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != "phrase_flood" {
				t.Errorf("Term = %q, want phrase_flood", result.Term)
			}
		})
	}
}
