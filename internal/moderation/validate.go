package moderation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxContentBytes is the hard cap on the encoded size of a message.
const MaxContentBytes = 4096

// ValidateContent checks the structural requirements every message must meet
// before any policy or moderation check runs: non-empty, within the byte
// cap, valid UTF-8. The character cap is the content filter's concern, so a
// message over MaxContentChars but under the byte cap passes here and is
// rejected by Filter.Check with a moderation reason.
func ValidateContent(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("message content is empty")
	}
	if len(text) > MaxContentBytes {
		return fmt.Errorf("message exceeds %d byte limit", MaxContentBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message contains invalid UTF-8")
	}
	return nil
}
