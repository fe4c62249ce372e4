package moderation

import (
	"strings"
	"testing"
)

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"normal message", "hello there", false},
		{"empty", "", true},
		{"whitespace only", "   \n\t ", true},
		{"exact byte limit", strings.Repeat("a", MaxContentBytes), false},
		{"over byte limit", strings.Repeat("€", MaxContentBytes/3+1), true},
		{"over char cap but under byte cap", strings.Repeat("a", MaxContentChars+1), false},
		{"invalid utf8", "hello \xff world", true},
		{"multibyte within limits", strings.Repeat("é", 100), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateContent(...) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
