package session

import (
	"strings"
	"testing"

	"github.com/harborchat/chatd/domain"
)

func TestShouldUpdate(t *testing.T) {
	var advisor TitleAdvisor

	cases := []struct {
		title string
		count int
		want  bool
	}{
		{"Untitled", 3, true},
		{"", 1, true},
		{"My trip to Rome", 4, false},
		{"My trip to Rome", 6, true},
		{"My trip to Rome", 9, true},
	}
	for _, tc := range cases {
		if got := advisor.ShouldUpdate(tc.title, tc.count); got != tc.want {
			t.Fatalf("ShouldUpdate(%q, %d) = %v, want %v", tc.title, tc.count, got, tc.want)
		}
	}
}

func TestSimpleTitleShortPassesThrough(t *testing.T) {
	if got := SimpleTitle("What is the refund policy?"); got != "What is the refund policy?" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestSimpleTitleCollapsesWhitespace(t *testing.T) {
	if got := SimpleTitle("  hello\n\t world  "); got != "hello world" {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestSimpleTitleTruncatesAtWordBoundary(t *testing.T) {
	got := SimpleTitle("please summarize the quarterly report for the finance committee meeting")
	if len([]rune(got)) > 40 {
		t.Fatalf("title too long (%d runes): %q", len([]rune(got)), got)
	}
	if strings.HasSuffix(got, " ") {
		t.Fatalf("trailing space in title: %q", got)
	}
	// Cut lands between words, not inside one.
	if got != "please summarize the quarterly report" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}

func TestSimpleTitleUnbrokenRun(t *testing.T) {
	got := SimpleTitle(strings.Repeat("x", 100))
	if len([]rune(got)) != 40 {
		t.Fatalf("expected hard cut at 40 runes, got %d", len([]rune(got)))
	}
}

func TestProposeTitleUsesFirstUserMessage(t *testing.T) {
	var advisor TitleAdvisor
	messages := []domain.Message{
		{Role: domain.RoleUser, Content: "What is the refund policy?"},
		{Role: domain.RoleAssistant, Content: "The refund policy is 30 days."},
	}
	if got := advisor.ProposeTitle(messages); got != "What is the refund policy?" {
		t.Fatalf("unexpected proposal: %q", got)
	}
}

func TestProposeTitleEmptyConversation(t *testing.T) {
	var advisor TitleAdvisor
	if got := advisor.ProposeTitle(nil); got != "" {
		t.Fatalf("expected empty proposal, got %q", got)
	}
	// Assistant-only history yields nothing either.
	messages := []domain.Message{{Role: domain.RoleAssistant, Content: "hello"}}
	if got := advisor.ProposeTitle(messages); got != "" {
		t.Fatalf("expected empty proposal, got %q", got)
	}
}
