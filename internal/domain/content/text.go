package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/rarity/internal/domain"
)

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Normalize lowercases text, unifies apostrophes, collapses whitespace and
// strips leading and trailing punctuation.
func Normalize(text string) string {
	s := strings.ToLower(apostrophes.Replace(text))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// Hash returns the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var negationWords = map[string]bool{
	"not":     true,
	"no":      true,
	"never":   true,
	"nothing": true,
	"nobody":  true,
	"nowhere": true,
	"neither": true,
	"nor":     true,
	"none":    true,
	"without": true,
	"cannot":  true,
	"cant":    true,
	"wont":    true,
	"dont":    true,
	"didnt":   true,
}

// DetectNegation reports whether the text is a negated statement ("I did not run today").
func DetectNegation(text string) bool {
	for _, tok := range strings.Fields(Normalize(text)) {
		tok = strings.TrimFunc(tok, func(r rune) bool { return unicode.IsPunct(r) && r != '\'' })
		if strings.HasSuffix(tok, "n't") || negationWords[tok] {
			return true
		}
	}
	return false
}

// ValidateText rejects empty text and text longer than maxRunes (0 disables the limit).
func ValidateText(text string, maxRunes int) error {
	if strings.TrimSpace(text) == "" {
		return domain.NewInvalidInput("text", "is empty")
	}
	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		return domain.NewInvalidInput("text", "is too long")
	}
	return nil
}
