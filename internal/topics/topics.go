// Package topics implements the hierarchical MQTT topic naming schemes used
// by issued credentials, and the normalization that collapses topic lists
// into their minimal covering set.
package topics

import (
	"sort"
	"strings"
)

const (
	// SingleLevel matches exactly one topic level.
	SingleLevel = "+"
	// MultiLevel matches the remainder of the topic. Trailing only.
	MultiLevel = "#"

	levelSep = "/"
)

// MatchesSubscription reports whether an MQTT subscription pattern covers a
// topic. The topic may itself contain wildcards; they are treated as literal
// levels, which is exactly what coverage testing between two grants needs
// ("a/#" covers "a/+/c"). Topics starting with '$' are never covered by a
// pattern whose first level is a wildcard, per the MQTT spec.
func MatchesSubscription(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	p := strings.Split(pattern, levelSep)
	t := strings.Split(topic, levelSep)

	if strings.HasPrefix(topic, "$") && (p[0] == SingleLevel || p[0] == MultiLevel) {
		return false
	}

	for i, level := range p {
		if level == MultiLevel {
			return true
		}
		if i >= len(t) {
			return false
		}
		if level != SingleLevel && level != t[i] {
			return false
		}
	}
	return len(p) == len(t)
}

// Clean deduplicates and sorts a topic list, then removes every entry
// covered by another retained pattern. Coverage runs both ways: a new
// pattern is dropped when an already-retained one matches it, and it
// evicts retained entries it matches itself ("X/#" sorts after its parent
// "X" but covers it). No retained entry matches another, and Clean is a
// fixed point: running it on its own output returns the same list.
func Clean(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(topics))
	uniq := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	sort.Strings(uniq)

	cleaned := make([]string, 0, len(uniq))
	for _, t := range uniq {
		covered := false
		for _, kept := range cleaned {
			if MatchesSubscription(kept, t) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		n := 0
		for _, kept := range cleaned {
			if !MatchesSubscription(t, kept) {
				cleaned[n] = kept
				n++
			}
		}
		cleaned = cleaned[:n]
		cleaned = append(cleaned, t)
	}
	return cleaned
}
