// Copyright 2026 The Taskvault Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"path"
	"strings"
)

// MatchPattern checks whether an actor name matches a glob pattern
// using the hierarchical namespace conventions:
//
//   - Exact match: "authority/arbiter" matches only "authority/arbiter"
//   - Single-segment wildcard: "agent/*" matches "agent/bob" but not "agent/pool/bob"
//   - Recursive wildcard: "agent/**" matches "agent/bob", "agent/pool/bob", etc.
//   - Universal: "**" matches any name
//   - Interior recursive: "org/**/agent" matches "org/agent", "org/eu/agent", etc.
//   - Character wildcards: "?" matches a single non-slash character
//
// The single-segment wildcard "*" does not match "/" — standard
// path.Match behavior. Use "**" to match across hierarchy boundaries.
//
// Returns false for malformed patterns rather than propagating
// errors — a malformed pattern should never grant access.
func MatchPattern(pattern, name string) bool {
	// Universal match.
	if pattern == "**" {
		return true
	}

	// No ** in the pattern — delegate to path.Match which handles
	// single-segment * and ? correctly (not matching /).
	if !strings.Contains(pattern, "**") {
		matched, err := path.Match(pattern, name)
		if err != nil {
			// Malformed pattern — deny.
			return false
		}
		return matched
	}

	// Pattern contains **. Handle the three cases: suffix, prefix,
	// interior.

	// Suffix: "agent/**" — match the prefix (with glob wildcards),
	// then anything after.
	if strings.HasSuffix(pattern, "/**") {
		prefix := pattern[:len(pattern)-3]
		// ** matches zero additional segments: entire name is the prefix.
		if matchGlob(prefix, name) {
			return true
		}
		// ** matches one or more additional segments.
		return hasMatchingPrefix(prefix, name)
	}

	// Prefix: "**/arbiter" — match anything before, then the suffix
	// (with glob wildcards).
	if strings.HasPrefix(pattern, "**/") {
		suffix := pattern[3:]
		if matchGlob(suffix, name) {
			return true
		}
		return hasMatchingSuffix(suffix, name)
	}

	// Interior: "org/**/agent" — split on the first /**, match prefix
	// and suffix independently with glob wildcards.
	separatorIndex := strings.Index(pattern, "/**/")
	if separatorIndex >= 0 {
		prefix := pattern[:separatorIndex]
		suffix := pattern[separatorIndex+4:]

		// Zero-segment case: ** matches nothing, prefix and suffix
		// are adjacent.
		if matchGlob(prefix+"/"+suffix, name) {
			return true
		}

		// Multi-segment case: prefix matches the start, suffix matches
		// the end, with at least one segment between for ** to consume.
		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(name, "/")

		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}

		prefixCandidate := strings.Join(segments[:prefixDepth], "/")
		if !matchGlob(prefix, prefixCandidate) {
			return false
		}

		suffixCandidate := strings.Join(segments[len(segments)-suffixDepth:], "/")
		if !matchGlob(suffix, suffixCandidate) {
			return false
		}

		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Multiple ** segments or other complex patterns — not supported.
	// Deny by default.
	return false
}

// matchGlob matches a pattern against a string using path.Match
// semantics (wildcards * and ? do not cross / boundaries). Returns
// false for malformed patterns.
func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether the name starts with segments that
// match the given glob pattern, with at least one additional segment
// after the matched portion.
func hasMatchingPrefix(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(name, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[:depth], "/")
	return matchGlob(pattern, candidate)
}

// hasMatchingSuffix reports whether the name ends with segments that
// match the given glob pattern, with at least one additional segment
// before the matched portion.
func hasMatchingSuffix(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(name, "/")
	if len(segments) <= depth {
		return false
	}
	candidate := strings.Join(segments[len(segments)-depth:], "/")
	return matchGlob(pattern, candidate)
}

// MatchAnyPattern checks whether an actor name matches any of the
// given glob patterns. Returns false if the patterns slice is empty
// (default-deny).
func MatchAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}
