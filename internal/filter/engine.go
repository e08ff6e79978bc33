// Package filter implements the supplier category denylist and per-run category bookkeeping.
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"catalog_sync/internal/model"
)

// ErrCategoryExcluded marks a row whose category is on the denylist.
var ErrCategoryExcluded = errors.New("category excluded")

// Engine classifies supplier category names as food or non-food.
type Engine struct {
	names    map[string]struct{}
	patterns []*regexp.Regexp
}

// New creates an Engine from the configured denylist and operator rules.
// Exact names compare case-insensitively after trimming. Regex rules that do not
// compile are ignored; they are validated when created.
func New(denylist []string, rules []model.CategoryRule) *Engine {
	e := &Engine{names: make(map[string]struct{}, len(denylist)+len(rules))}
	for _, name := range denylist {
		e.addName(name)
	}
	for _, r := range rules {
		switch r.Kind {
		case model.RuleExclude:
			e.addName(r.Value)
		case model.RuleExcludeRe:
			re, err := regexp.Compile("(?i)" + r.Value)
			if err != nil {
				continue
			}
			e.patterns = append(e.patterns, re)
		}
	}
	return e
}

func (e *Engine) addName(name string) {
	if key := normalizeName(name); key != "" {
		e.names[key] = struct{}{}
	}
}

// IsFoodCategory reports whether a category is not on the denylist.
func (e *Engine) IsFoodCategory(name string) bool {
	key := normalizeName(name)
	if _, ok := e.names[key]; ok {
		return false
	}
	for _, re := range e.patterns {
		if re.MatchString(key) {
			return false
		}
	}
	return true
}

// Check returns ErrCategoryExcluded for a non-food category.
func (e *Engine) Check(name string) error {
	if !e.IsFoodCategory(name) {
		return fmt.Errorf("%w: %q", ErrCategoryExcluded, name)
	}
	return nil
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
