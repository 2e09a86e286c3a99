package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	scriptRegex = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRegex  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRegex    = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes script and style blocks and all remaining tags
func StripHTML(input string) string {
	input = scriptRegex.ReplaceAllString(input, "")
	input = styleRegex.ReplaceAllString(input, "")
	return tagRegex.ReplaceAllString(input, "")
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Text cleans user-supplied free text that is relayed to other clients
// (conference topics, broadcast messages). The result holds at most
// maxRunes runes; maxRunes <= 0 means unbounded.
func Text(input string, maxRunes int) string {
	input = strings.TrimSpace(StripControlCharacters(StripHTML(input)))
	if maxRunes > 0 {
		if runes := []rune(input); len(runes) > maxRunes {
			input = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return input
}
