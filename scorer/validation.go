package scorer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidationResult contains the results of content validation
type ValidationResult struct {
	Valid       bool
	Issues      []string
	Suggestions []string
}

// ValidateContent checks a single text against the maximum length in runes
func ValidateContent(content string, maxLength int) ValidationResult {
	result := ValidationResult{Valid: true}

	if n := utf8.RuneCountInString(content); maxLength > 0 && n > maxLength {
		result.Valid = false
		result.Issues = append(result.Issues, fmt.Sprintf("content too long (%d chars, maximum %d)", n, maxLength))
		result.Suggestions = append(result.Suggestions, "enable truncation or shorten the text")
	}

	return result
}

// TruncateContent cuts content to at most maxLength runes
func TruncateContent(content string, maxLength int) string {
	if maxLength <= 0 || utf8.RuneCountInString(content) <= maxLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxLength])
}

// PrepareTexts sanitizes every text and applies the length policy. With
// truncation disabled, an over-long text fails the whole batch.
func PrepareTexts(texts []string, maxLength int, truncate bool) ([]string, error) {
	prepared := make([]string, len(texts))
	for i, text := range texts {
		text = SanitizeContent(text)
		if truncate {
			prepared[i] = TruncateContent(text, maxLength)
			continue
		}
		if result := ValidateContent(text, maxLength); !result.Valid {
			return nil, fmt.Errorf("%w: text %d: %s", ErrContentTooLong, i, strings.Join(result.Issues, "; "))
		}
		prepared[i] = text
	}
	return prepared, nil
}

// SanitizeContent cleans and normalizes text content
func SanitizeContent(content string) string {
	content = strings.TrimSpace(content)
	content = normalizeWhitespace(content)
	content = removeNonPrintable(content)
	return content
}

// normalizeWhitespace replaces multiple consecutive spaces with a single space
// but preserves newlines and tabs
func normalizeWhitespace(s string) string {
	var result strings.Builder
	wasSpace := false

	for _, r := range s {
		if r == '\n' || r == '\t' {
			result.WriteRune(r)
			wasSpace = false
		} else if unicode.IsSpace(r) {
			if !wasSpace {
				result.WriteRune(' ')
				wasSpace = true
			}
		} else {
			result.WriteRune(r)
			wasSpace = false
		}
	}

	return result.String()
}

// removeNonPrintable removes non-printable characters except newlines and tabs
func removeNonPrintable(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}

	return result.String()
}
