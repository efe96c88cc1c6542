package matrix

import (
	"fmt"
	"regexp"
	"strings"
)

// Replace applies a list of substitution expressions to value in order.
// Each expression has the form "/regex/replacement/", where '/' may be
// any rune except the escape rune '\'.
func Replace(value string, expressions []string) (string, error) {
	result := value
	for _, expression := range expressions {
		var err error
		result, err = regexpReplace(result, expression)
		if err != nil {
			return "", err
		}
	}
	return result, nil
}

func regexpReplace(value, expression string) (string, error) {
	runes := []rune(expression)
	if len(runes) == 0 || runes[0] == '\\' {
		return "", invalidExpression(expression)
	}

	parts := splitUnescaped(expression, runes[0], '\\')
	if len(parts) != 4 || parts[0] != "" || parts[3] != "" {
		return "", invalidExpression(expression)
	}

	re, err := regexp.Compile(parts[1])
	if err != nil {
		return "", fmt.Errorf("replace expression %q: %w", expression, err)
	}
	return re.ReplaceAllString(value, parts[2]), nil
}

// splitUnescaped splits s on sep, treating an odd number of preceding
// esc runes as an escape for the separator.
func splitUnescaped(s string, sep, esc rune) []string {
	seps := string(sep)
	escs := string(esc)

	result := make([]string, 0, strings.Count(s, seps)+1)
	current := ""

	for i := strings.IndexRune(s, sep); i >= 0; i = strings.IndexRune(s, sep) {
		if trailingCount(s[:i], esc)%2 == 1 {
			current += s[:i-len(escs)] + seps
		} else {
			result = append(result, current+s[:i])
			current = ""
		}
		s = s[i+len(seps):]
	}

	return append(result, current+s)
}

func trailingCount(s string, r rune) int {
	count := 0
	runes := []rune(s)
	for i := len(runes) - 1; i >= 0 && runes[i] == r; i-- {
		count++
	}
	return count
}

func invalidExpression(input string) error {
	return fmt.Errorf(`invalid replace expression %q: expected "/regex/replacement/"`, input)
}
