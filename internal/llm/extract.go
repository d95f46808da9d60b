package llm

import (
	"encoding/json"
	"strings"
)

// Extraction method names recorded in call metadata.
const (
	MethodStrict   = "strict"
	MethodFenced   = "fenced"
	MethodTagged   = "tagged"
	MethodBalanced = "balanced"
)

// ExtractJSON pulls a JSON object out of a raw model response. The cascade
// is ordered from cheapest to most forgiving; the first success wins:
//
//  1. strict:   the whole trimmed body is a JSON object
//  2. fenced:   the first ```json (or bare ```) code fence
//  3. tagged:   the content of a <json>...</json> block
//  4. balanced: the first brace-balanced object found by a byte scanner
//
// Returns the JSON text and the method that produced it.
func ExtractJSON(body string) (jsonText, method string, ok bool) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", "", false
	}

	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, MethodStrict, true
	}

	if inner, found := extractFenced(trimmed); found && json.Valid([]byte(inner)) {
		return inner, MethodFenced, true
	}

	if inner, found := extractTagged(trimmed); found && json.Valid([]byte(inner)) {
		return inner, MethodTagged, true
	}

	if inner := firstBalancedObject(trimmed); inner != "" && json.Valid([]byte(inner)) {
		return inner, MethodBalanced, true
	}

	return "", "", false
}

// extractFenced returns the content of the first code fence, preferring a
// ```json fence over a bare one.
func extractFenced(s string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(s, marker)
		if start == -1 {
			continue
		}
		rest := s[start+len(marker):]
		// Skip the remainder of the fence line (e.g. a language tag).
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && marker == "```" {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine != "" && !strings.HasPrefix(firstLine, "{") {
				rest = rest[nl+1:]
			}
		}
		end := strings.Index(rest, "```")
		if end == -1 {
			continue
		}
		return strings.TrimSpace(rest[:end]), true
	}
	return "", false
}

// extractTagged returns the content inside the first <json>...</json> block.
func extractTagged(s string) (string, bool) {
	start := strings.Index(s, "<json>")
	if start == -1 {
		return "", false
	}
	rest := s[start+len("<json>"):]
	end := strings.Index(rest, "</json>")
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstBalancedObject scans for the first top-level JSON object, tracking
// brace depth while honoring string boundaries and escape sequences.
// Iterating bytes is safe: the ASCII delimiters {, }, ", and \ never occur
// inside a UTF-8 multi-byte sequence.
func firstBalancedObject(s string) string {
	var depth int
	start := -1
	var inString, escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}
		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			// Quotes only open strings once we are inside an object;
			// prose apostrophes outside braces are irrelevant anyway.
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
