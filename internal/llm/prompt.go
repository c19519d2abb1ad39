package llm

import (
	"strings"

	"github.com/Rrens/kb-chat/internal/domain"
)

// BuildPrompt renders the transcript followed by the new question:
//
//	User: {u}\nBot: {b}\n   (per turn, oldest first)
//	User: {q}\nBot:         (trailing space, no newline)
//
// Text is inserted verbatim.
func BuildPrompt(transcript domain.Transcript, question string) string {
	var b strings.Builder

	size := len(question) + len("User: \nBot: ")
	for _, t := range transcript {
		size += len(t.User) + len(t.Bot) + len("User: \nBot: \n")
	}
	b.Grow(size)

	for _, t := range transcript {
		b.WriteString("User: ")
		b.WriteString(t.User)
		b.WriteString("\nBot: ")
		b.WriteString(t.Bot)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(question)
	b.WriteString("\nBot: ")

	return b.String()
}

// Window returns the most recent maxTurns turns. maxTurns <= 0 keeps all.
// The result shares the backing array with transcript.
func Window(transcript domain.Transcript, maxTurns int) domain.Transcript {
	if maxTurns <= 0 || len(transcript) <= maxTurns {
		return transcript
	}
	return transcript[len(transcript)-maxTurns:]
}
