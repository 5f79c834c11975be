package imageprocessor

import (
	"context"
	"errors"
)

// ErrEmptyImage is returned when there is nothing to process.
var ErrEmptyImage = errors.New("empty image")

// Result contains the outcome returned by the image processor.
type Result struct {
	// Text is the recognised ingredient list.
	Text string
	// ReadyAfter is the number of status reads before Text is published.
	ReadyAfter int
}

// Client exposes the subset of functionality used by the analysis flow.
type Client interface {
	Process(ctx context.Context, analysisID string, image []byte) (*Result, error)
}

// Scripted is a deterministic processor for local development and tests. It
// returns the same text for every image.
type Scripted struct {
	Text       string
	ReadyAfter int
}

// NewScripted builds a Scripted processor. Negative delays are treated as zero.
func NewScripted(text string, readyAfter int) *Scripted {
	if readyAfter < 0 {
		readyAfter = 0
	}
	return &Scripted{Text: text, ReadyAfter: readyAfter}
}

// Process implements Client.
func (s *Scripted) Process(ctx context.Context, analysisID string, image []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	return &Result{Text: s.Text, ReadyAfter: s.ReadyAfter}, nil
}
