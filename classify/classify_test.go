package classify

import (
	"strings"
	"testing"

	"github.com/harborchat/chatd/domain"
)

func TestClassifyExplicitRole(t *testing.T) {
	for _, role := range []string{"bot", "assistant"} {
		got := Classify(Record{Role: role, Content: "hi"}, 0)
		if got != domain.RoleAssistant {
			t.Fatalf("role %q: expected assistant, got %s", role, got)
		}
	}
}

func TestClassifyIsBotDominates(t *testing.T) {
	// is_bot=true wins regardless of position or content length.
	cases := []any{true, 1, int64(1), float64(1)}
	for _, flag := range cases {
		got := Classify(Record{Role: "user", IsBot: flag, Content: "ok"}, 0)
		if got != domain.RoleAssistant {
			t.Fatalf("is_bot=%v (%T): expected assistant, got %s", flag, flag, got)
		}
	}
}

func TestClassifyFalsyIsBot(t *testing.T) {
	cases := []any{false, 0, float64(0), nil, "yes"}
	for _, flag := range cases {
		got := Classify(Record{Role: "user", IsBot: flag, Content: "ok"}, 0)
		if got != domain.RoleUser {
			t.Fatalf("is_bot=%v (%T): expected user, got %s", flag, flag, got)
		}
	}
}

func TestClassifyOddPositionAlternation(t *testing.T) {
	if got := Classify(Record{Role: "user", Content: "short"}, 1); got != domain.RoleAssistant {
		t.Fatalf("odd position: expected assistant, got %s", got)
	}
	if got := Classify(Record{Role: "user", Content: "short"}, 2); got != domain.RoleUser {
		t.Fatalf("even position: expected user, got %s", got)
	}
}

func TestClassifyLongContentHeuristic(t *testing.T) {
	long := strings.Repeat("a", legacyLongContent+1)
	if got := Classify(Record{Role: "user", Content: long}, 0); got != domain.RoleAssistant {
		t.Fatalf("long content: expected assistant, got %s", got)
	}
	// Exactly at the threshold stays user.
	exact := strings.Repeat("a", legacyLongContent)
	if got := Classify(Record{Role: "user", Content: exact}, 0); got != domain.RoleUser {
		t.Fatalf("threshold content: expected user, got %s", got)
	}
}

func TestClassifyEvenShortNoMarkers(t *testing.T) {
	got := Classify(Record{Role: "user", Content: "what time is it"}, 4)
	if got != domain.RoleUser {
		t.Fatalf("expected user, got %s", got)
	}
}

func TestClassifyUnknownRoleDefaultsUser(t *testing.T) {
	// Records with no nominal "user" role skip both legacy rules.
	long := strings.Repeat("a", 500)
	if got := Classify(Record{Role: "", Content: long}, 1); got != domain.RoleUser {
		t.Fatalf("expected user, got %s", got)
	}
}
