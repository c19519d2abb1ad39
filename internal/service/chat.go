package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Rrens/kb-chat/internal/domain"
	"github.com/Rrens/kb-chat/internal/llm"
	"github.com/Rrens/kb-chat/internal/notify"
	"github.com/rs/zerolog/log"
)

// Chat outcomes reported to the ChatObserver
const (
	OutcomeOK           = "ok"
	OutcomeUnauthorized = "unauthorized"
	OutcomeEmpty        = "empty"
	OutcomeBackendError = "backend_error"
	OutcomeError        = "error"
)

// Generator produces answer text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Dispatcher delivers a notification without blocking the caller
type Dispatcher interface {
	Dispatch(text string)
}

// ChatObserver counts finished chat requests
type ChatObserver interface {
	ObserveChat(outcome string)
}

// ChatService answers questions within a session and records each exchange
type ChatService struct {
	sessions        domain.SessionStore
	generator       Generator
	dispatcher      Dispatcher
	observer        ChatObserver
	maxHistoryTurns int
	locks           *keyedMutex
}

// NewChatService creates a new chat service
func NewChatService(
	sessions domain.SessionStore,
	generator Generator,
	dispatcher Dispatcher,
	observer ChatObserver,
	maxHistoryTurns int,
) *ChatService {
	return &ChatService{
		sessions:        sessions,
		generator:       generator,
		dispatcher:      dispatcher,
		observer:        observer,
		maxHistoryTurns: maxHistoryTurns,
		locks:           newKeyedMutex(),
	}
}

// Authorize returns domain.ErrUnauthorized unless the session carries an
// identity. It lets callers refuse a request before reading its body.
func (s *ChatService) Authorize(ctx context.Context, sessionID string) error {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Authenticated() {
		s.observe(domain.ErrUnauthorized)
		return domain.ErrUnauthorized
	}
	return nil
}

// Ask answers question using the session transcript as context.
// The turn is persisted only when generation succeeds.
func (s *ChatService) Ask(ctx context.Context, sessionID, question string) (*domain.Turn, error) {
	turn, err := s.ask(ctx, sessionID, question)
	s.observe(err)
	return turn, err
}

func (s *ChatService) ask(ctx context.Context, sessionID, question string) (*domain.Turn, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Authenticated() {
		return nil, domain.ErrUnauthorized
	}

	q := strings.TrimSpace(question)
	if q == "" {
		return nil, domain.ErrEmptyInput
	}

	unlock, err := s.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Re-read under the lock so the prompt sees every earlier turn
	subject := sess.Identity.Subject
	sess, err = s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if !sess.Authenticated() || sess.Identity.Subject != subject {
		return nil, domain.ErrUnauthorized
	}

	prompt := llm.BuildPrompt(llm.Window(sess.Transcript, s.maxHistoryTurns), q)

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	turn := domain.Turn{User: q, Bot: answer}
	if err := s.sessions.AppendTurn(ctx, sessionID, subject, turn); err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to save turn: %w", err)
	}

	log.Info().
		Str("session_id", sessionID).
		Str("subject", subject).
		Int("history_turns", len(sess.Transcript)).
		Int("answer_len", len(answer)).
		Msg("chat turn completed")

	if s.dispatcher != nil {
		s.dispatcher.Dispatch(notify.FormatChat(sess.Identity.DisplayName(), q, answer))
	}

	return &turn, nil
}

func (s *ChatService) observe(err error) {
	if s.observer == nil {
		return
	}

	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnauthorized):
		outcome = OutcomeUnauthorized
	case errors.Is(err, domain.ErrEmptyInput):
		outcome = OutcomeEmpty
	case errors.Is(err, domain.ErrBackend):
		outcome = OutcomeBackendError
	default:
		outcome = OutcomeError
	}
	s.observer.ObserveChat(outcome)
}

// View returns the browser-facing snapshot of a session
func (s *ChatService) View(ctx context.Context, sessionID string) (*domain.SessionView, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	view := &domain.SessionView{
		Authenticated: sess.Authenticated(),
		Groups:        []string{},
		History:       sess.Transcript.Clone(),
	}
	if sess.Identity != nil {
		view.User = sess.Identity
		if sess.Identity.Groups != nil {
			view.Groups = sess.Identity.Groups
		}
	}
	return view, nil
}
