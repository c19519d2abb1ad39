package deepseek

import (
	"github.com/Rrens/kb-chat/internal/llm/openai"
)

const baseURL = "https://api.deepseek.com/v1"

// NewProvider creates a DeepSeek provider on top of the OpenAI-compatible client
func NewProvider(apiKey, defaultModel string) *openai.Provider {
	if defaultModel == "" {
		defaultModel = "deepseek-chat"
	}
	return openai.New(openai.Options{
		Name:         "deepseek",
		APIKey:       apiKey,
		DefaultModel: defaultModel,
		BaseURL:      baseURL,
		Models:       []string{"deepseek-chat", "deepseek-reasoner"},
	})
}
