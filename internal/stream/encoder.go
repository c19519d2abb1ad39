// Package stream paces an answer out to an HTTP client in small flushed chunks.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"
	"unicode/utf8"
)

// Defaults reproduce a typing effect of one character every 20ms
const (
	DefaultChunkSize = 1
	DefaultDelay     = 20 * time.Millisecond
)

// Encoder splits answers into fixed-size rune chunks
type Encoder struct {
	ChunkSize int
	Delay     time.Duration
}

// New returns an encoder, substituting defaults for non-positive chunk sizes
func New(chunkSize int, delay time.Duration) *Encoder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if delay < 0 {
		delay = 0
	}
	return &Encoder{ChunkSize: chunkSize, Delay: delay}
}

// Chunks yields answer in pieces of ChunkSize runes. Concatenating the
// pieces reproduces answer exactly. An empty answer yields nothing.
func (e *Encoder) Chunks(answer string) iter.Seq[string] {
	size := e.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	return func(yield func(string) bool) {
		rest := answer
		for len(rest) > 0 {
			end := 0
			for n := 0; n < size && end < len(rest); n++ {
				_, w := utf8.DecodeRuneInString(rest[end:])
				end += w
			}
			if !yield(rest[:end]) {
				return
			}
			rest = rest[end:]
		}
	}
}

// Stream writes the chunks of answer to w, flushing after each one and
// sleeping Delay between them. It returns the number of bytes written.
// Cancellation of ctx stops the stream and is not reported as an error.
func (e *Encoder) Stream(ctx context.Context, w io.Writer, answer string) (int, error) {
	flusher, _ := w.(http.Flusher)

	var timer *time.Timer
	if e.Delay > 0 {
		timer = time.NewTimer(0)
		<-timer.C
		defer timer.Stop()
	}

	written := 0
	first := true
	for chunk := range e.Chunks(answer) {
		if ctx.Err() != nil {
			return written, nil
		}

		if !first && timer != nil {
			timer.Reset(e.Delay)
			select {
			case <-ctx.Done():
				return written, nil
			case <-timer.C:
			}
		}
		first = false

		n, err := io.WriteString(w, chunk)
		written += n
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return written, nil
			}
			return written, err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return written, nil
}
