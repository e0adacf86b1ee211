package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Refiner applies deterministic substitutions to dictated and OCR-extracted
// text before it becomes draft input. With no rules loaded it is the identity
// transform.
type Refiner struct {
	rules     []rule
	loopLimit int
}

type rule struct {
	literal     string
	pattern     *regexp.Regexp
	replacement string
}

func (r rule) apply(input string) (string, bool) {
	if r.pattern != nil {
		output := r.pattern.ReplaceAllString(input, r.replacement)
		return output, output != input
	}
	output := strings.ReplaceAll(input, r.literal, r.replacement)
	return output, output != input
}

// NewRefiner loads substitution rules from an optional file. A missing file
// or an empty path yields an identity refiner.
func NewRefiner(path string, loopLimit int) (*Refiner, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	if strings.TrimSpace(path) == "" {
		return &Refiner{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Refiner{loopLimit: loopLimit}, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	rules, err := parseRules(string(contents))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return &Refiner{rules: rules, loopLimit: loopLimit}, nil
}

// Refine applies the rules until no rule changes the text or the iteration
// limit is reached.
func (r *Refiner) Refine(text string) (string, error) {
	if len(r.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < r.loopLimit; i++ {
		changed := false
		for _, rule := range r.rules {
			next, ruleChanged := rule.apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}
	return "", fmt.Errorf("rules did not converge after %d iterations", r.loopLimit)
}

// parseRules reads one rule per line: `literal => replacement` or
// `/regex/ => replacement`. Blank lines and `#` comments are skipped.
func parseRules(contents string) ([]rule, error) {
	var rules []rule
	for lineNo, line := range strings.Split(contents, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		parts := strings.SplitN(trimmed, "=>", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected `pattern => replacement`", lineNo+1)
		}
		pattern := strings.TrimSpace(parts[0])
		replacement := strings.TrimSpace(parts[1])
		if pattern == "" {
			return nil, fmt.Errorf("line %d: empty pattern", lineNo+1)
		}

		if strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") && len(pattern) > 2 {
			compiled, err := regexp.Compile(pattern[1 : len(pattern)-1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
			}
			rules = append(rules, rule{pattern: compiled, replacement: replacement})
			continue
		}

		rules = append(rules, rule{literal: pattern, replacement: replacement})
	}
	return rules, nil
}
