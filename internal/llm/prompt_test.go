package llm_test

import (
	"fmt"
	"testing"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name       string
		transcript domain.Transcript
		question   string
		expected   string
	}{
		{
			name:     "empty transcript",
			question: "Hi",
			expected: "User: Hi\nBot: ",
		},
		{
			name:       "one prior turn",
			transcript: domain.Transcript{{User: "Hi", Bot: "Hello"}},
			question:   "What is X?",
			expected:   "User: Hi\nBot: Hello\nUser: What is X?\nBot: ",
		},
		{
			name: "two prior turns in order",
			transcript: domain.Transcript{
				{User: "a", Bot: "1"},
				{User: "b", Bot: "2"},
			},
			question: "c",
			expected: "User: a\nBot: 1\nUser: b\nBot: 2\nUser: c\nBot: ",
		},
		{
			name:       "text is not escaped",
			transcript: domain.Transcript{{User: "line1\nline2", Bot: "Bot: spoof"}},
			question:   "<b>q</b>",
			expected:   "User: line1\nline2\nBot: Bot: spoof\nUser: <b>q</b>\nBot: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llm.BuildPrompt(tt.transcript, tt.question)
			if got != tt.expected {
				t.Errorf("BuildPrompt() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBuildPrompt_DoesNotMutateTranscript(t *testing.T) {
	transcript := domain.Transcript{{User: "Hi", Bot: "Hello"}}
	_ = llm.BuildPrompt(transcript, "again")

	if len(transcript) != 1 || transcript[0].User != "Hi" {
		t.Errorf("transcript changed: %+v", transcript)
	}
}

func TestWindow(t *testing.T) {
	transcript := make(domain.Transcript, 0, 5)
	for i := 0; i < 5; i++ {
		transcript = append(transcript, domain.Turn{User: fmt.Sprintf("q%d", i), Bot: fmt.Sprintf("a%d", i)})
	}

	tests := []struct {
		name      string
		maxTurns  int
		wantLen   int
		wantFirst string
	}{
		{"unlimited", 0, 5, "q0"},
		{"negative is unlimited", -1, 5, "q0"},
		{"larger than transcript", 10, 5, "q0"},
		{"exact", 5, 5, "q0"},
		{"last two", 2, 2, "q3"},
		{"last one", 1, 1, "q4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llm.Window(transcript, tt.maxTurns)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].User != tt.wantFirst {
				t.Errorf("first = %q, want %q", got[0].User, tt.wantFirst)
			}
		})
	}

	if len(transcript) != 5 {
		t.Errorf("stored transcript truncated to %d", len(transcript))
	}
}
