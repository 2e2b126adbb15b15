package codememory

import "regexp"

var (
	workspaceUserRe    = regexp.MustCompile(`/?workspace/user_\d+/Conversation_[A-Za-z0-9_-]+/`)
	conversationOnlyRe = regexp.MustCompile(`Conversation_[A-Za-z0-9_-]+/`)
)

// NewPathSanitizer returns a function that strips conversation-workspace
// path fragments from stored content before it's persisted or shown.
func NewPathSanitizer() func(string) string {
	return func(s string) string {
		s = workspaceUserRe.ReplaceAllString(s, "")
		s = conversationOnlyRe.ReplaceAllString(s, "")
		return s
	}
}
