package policy

import (
	"regexp"
	"strings"
)

// Target scopes a policy to subjects, resources, actions and environments.
// A nil or empty member list is unrestricted and matches everything; that is
// the canonical representation, and both spellings are honored on read.
type Target struct {
	Subjects     []string `json:"subjects,omitempty"`
	Resources    []string `json:"resources,omitempty"`
	Actions      []string `json:"actions,omitempty"`
	Environments []string `json:"environments,omitempty"`
}

// Matches reports whether the request falls inside the target.
func (t Target) Matches(req Request) bool {
	return matchesAny(t.Subjects, req.Subject) &&
		matchesAny(t.Resources, req.Resource) &&
		matchesAny(t.Actions, req.Action)
}

func matchesAny(patterns []string, value string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if matchPattern(p, value) {
			return true
		}
	}
	return false
}

// matchPattern accepts a literal, the bare wildcard, or a glob where each `*`
// spans any run of characters.
func matchPattern(pattern, value string) bool {
	if pattern == "*" || pattern == value {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
