// Package repository holds helpers shared by the session store backends.
package repository

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Purger is implemented by stores that can drop expired sessions
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunJanitor calls PurgeExpired every interval until ctx is done
func RunJanitor(ctx context.Context, p Purger, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to purge expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("count", n).Msg("purged expired sessions")
			}
		}
	}
}
