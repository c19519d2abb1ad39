package security_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Rrens/kb-chat/internal/security"
)

func newSealer(t *testing.T, ttl time.Duration) *security.StateSealer {
	t.Helper()
	enc, err := security.NewEncryptorFromSecret("state-secret", "oauth-state")
	if err != nil {
		t.Fatalf("failed to create encryptor: %v", err)
	}
	return security.NewStateSealer(enc, ttl)
}

func TestStateSealer_RoundTrip(t *testing.T) {
	sealer := newSealer(t, time.Minute)

	state, sealed, err := sealer.New()
	if err != nil {
		t.Fatalf("failed to create state: %v", err)
	}
	if state == "" || sealed == "" {
		t.Fatal("state or sealed value is empty")
	}

	if err := sealer.Verify(sealed, state); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStateSealer_Mismatch(t *testing.T) {
	sealer := newSealer(t, time.Minute)

	_, sealed, _ := sealer.New()
	other, _, _ := sealer.New()

	tests := []struct {
		name   string
		sealed string
		state  string
	}{
		{"different state", sealed, other},
		{"empty state", sealed, ""},
		{"empty cookie", "", other},
		{"garbage cookie", "garbage", other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sealer.Verify(tt.sealed, tt.state)
			if !errors.Is(err, security.ErrStateMismatch) {
				t.Errorf("expected ErrStateMismatch, got %v", err)
			}
		})
	}
}

func TestStateSealer_Expired(t *testing.T) {
	sealer := newSealer(t, time.Nanosecond)

	state, sealed, _ := sealer.New()
	time.Sleep(1100 * time.Millisecond)

	if err := sealer.Verify(sealed, state); !errors.Is(err, security.ErrStateExpired) {
		t.Errorf("expected ErrStateExpired, got %v", err)
	}
}

func TestStateSealer_DefaultTTL(t *testing.T) {
	sealer := newSealer(t, 0)
	if sealer.TTL() != 10*time.Minute {
		t.Errorf("unexpected default ttl: %v", sealer.TTL())
	}
}
