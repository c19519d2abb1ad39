package domain

// ChatRequest represents a question posted to the chat endpoint
type ChatRequest struct {
	Question string `json:"question" validate:"max=8000"`
}

// SessionView is the browser-facing snapshot of a session
type SessionView struct {
	Authenticated bool       `json:"authenticated"`
	User          *Identity  `json:"user,omitempty"`
	Groups        []string   `json:"groups"`
	History       Transcript `json:"history"`
}

// UploadResult describes a stored reference document
type UploadResult struct {
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}
