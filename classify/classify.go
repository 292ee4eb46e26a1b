// Package classify assigns roles to historical message records whose
// explicit role markers are missing or contradictory. Records written
// before the role column became reliable carry their intent in one of
// several places, so classification tries typed extraction strategies
// in priority order and always resolves to one of the two roles.
package classify

import "github.com/harborchat/chatd/domain"

// legacyLongContent is the content length above which a nominal user
// turn in legacy data is assumed to be a misfiled generated answer.
const legacyLongContent = 100

// Record is a loosely-shaped historical message row. IsBot comes from
// JSON and may decode as a bool, an integer, or a float.
type Record struct {
	Role    string `json:"role"`
	IsBot   any    `json:"is_bot"`
	Content string `json:"content"`
}

// Classify resolves the role of a historical record. position is the
// record's 0-indexed place in the conversation. First match wins:
//
//  1. explicit assistant-designating role value
//  2. truthy is_bot flag
//  3. legacy alternation: nominal "user" at an odd position
//  4. legacy length: nominal "user" with content over legacyLongContent
//  5. user
//
// Rules 3 and 4 encode assumptions about legacy data (strict user-first
// alternation, long turns being generated answers) and can misclassify
// conversations that break them. They are kept for backward
// compatibility and must not grow new cases.
func Classify(rec Record, position int) domain.Role {
	switch rec.Role {
	case "bot", "assistant":
		return domain.RoleAssistant
	}

	if truthy(rec.IsBot) {
		return domain.RoleAssistant
	}

	if rec.Role == "user" && position%2 == 1 {
		return domain.RoleAssistant
	}

	if rec.Role == "user" && len(rec.Content) > legacyLongContent {
		return domain.RoleAssistant
	}

	return domain.RoleUser
}

// truthy interprets the historical is_bot column across the shapes it
// has been stored in.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	default:
		return false
	}
}
