package session

import (
	"strings"
	"unicode"

	"github.com/harborchat/chatd/domain"
)

const (
	// DefaultTitle is what untitled sessions display.
	DefaultTitle = "Untitled"

	// titleMaxRunes bounds derived titles.
	titleMaxRunes = 40

	// retitleMinMessages is the conversation size at which an already
	// meaningful title becomes eligible for recomputation.
	retitleMinMessages = 6
)

// TitleAdvisor decides whether and how a session's display title should
// be recomputed. Title work is advisory: it never blocks or fails a
// message exchange.
type TitleAdvisor struct{}

// ShouldUpdate reports whether a new title proposal may replace the
// current one. A default title is always replaceable; a meaningful one
// is only reconsidered once the conversation has materially grown.
func (TitleAdvisor) ShouldUpdate(currentTitle string, messageCount int) bool {
	if currentTitle == "" || currentTitle == DefaultTitle {
		return true
	}
	return messageCount >= retitleMinMessages
}

// ProposeTitle derives a title from the conversation so far. It uses
// the first user message; if nothing usable is found it returns the
// empty string and the caller keeps what it has.
func (TitleAdvisor) ProposeTitle(messages []domain.Message) string {
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		if title := SimpleTitle(m.Content); title != "" {
			return title
		}
	}
	return ""
}

// SimpleTitle is the deterministic truncation rule used both for the
// synchronous first-exchange title and as the fallback when a proposal
// comes back empty: collapse whitespace, cut to at most titleMaxRunes
// runes, preferring a word boundary.
func SimpleTitle(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= titleMaxRunes {
		return collapsed
	}

	cut := runes[:titleMaxRunes]
	// Back up to the last word boundary unless that would gut the title.
	for i := len(cut) - 1; i > titleMaxRunes/2; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}
