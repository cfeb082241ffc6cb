package crawler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Excluder matches URL paths against glob patterns such as "/admin/**" or
// "**/*.pdf". Patterns without a leading slash match anywhere.
type Excluder struct {
	patterns []string
}

// NewExcluder validates patterns.
func NewExcluder(patterns []string) (*Excluder, error) {
	e := &Excluder{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "**") {
			p = "**/" + p
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		e.patterns = append(e.patterns, p)
	}
	return e, nil
}

// Excluded reports whether u should be skipped.
func (e *Excluder) Excluded(u *url.URL) bool {
	if e == nil || len(e.patterns) == 0 {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	for _, pattern := range e.patterns {
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		// "**/x" should also match "x" directly under the root
		if ok, _ := doublestar.Match(pattern, strings.TrimPrefix(p, "/")); ok {
			return true
		}
	}
	return false
}

// Len returns the number of active patterns.
func (e *Excluder) Len() int {
	if e == nil {
		return 0
	}
	return len(e.patterns)
}
