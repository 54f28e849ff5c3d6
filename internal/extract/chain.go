package extract

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Chain tries an ordered list of extraction backends until one succeeds.
// Callers never learn which backend produced the embedding; the chain is
// a single opaque Extractor.
type Chain struct {
	backends []Extractor
}

// NewChain builds a fallback chain over the given backends.
func NewChain(backends ...Extractor) *Chain {
	return &Chain{backends: backends}
}

// Name identifies the chain in logs.
func (c *Chain) Name() string {
	return "chain"
}

// Extract tries each backend in order. A detection failure from every
// backend is reported as ErrNoFaceDetected; a mix of transport errors and
// detection failures still prefers ErrNoFaceDetected, since at least one
// backend did look at the image and found no face.
func (c *Chain) Extract(ctx context.Context, image []byte) ([]float64, error) {
	var lastErr error
	sawDetectionFailure := false

	for _, backend := range c.backends {
		embedding, err := backend.Extract(ctx, image)
		if err == nil {
			return embedding, nil
		}
		if err == ErrNoFaceDetected {
			sawDetectionFailure = true
		}
		log.WithField("backend", backend.Name()).WithError(err).Debug("Extraction backend failed, trying next")
		lastErr = err
	}

	if sawDetectionFailure {
		return nil, ErrNoFaceDetected
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoFaceDetected
}

// Ping succeeds when at least one backend is reachable.
func (c *Chain) Ping(ctx context.Context) error {
	var lastErr error
	for _, backend := range c.backends {
		if err := backend.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
