// Package extract defines the opaque embedding-extraction boundary. The
// core never inspects image bytes itself; it hands them to a backend and
// receives a fixed-length vector or a detection failure.
package extract

import (
	"context"
	"errors"
)

// ErrNoFaceDetected signals that the image was decodable but contained no
// usable face. This is a detection failure, reported distinctly from a
// gallery miss (no match).
var ErrNoFaceDetected = errors.New("no face detected in image")

// Extractor converts an image into an embedding vector.
type Extractor interface {
	// Extract returns the embedding for the dominant face in the image.
	// It returns ErrNoFaceDetected when no face is found.
	Extract(ctx context.Context, image []byte) ([]float64, error)

	// Name identifies the backend for logging and status reporting.
	Name() string

	// Ping checks whether the backend is reachable.
	Ping(ctx context.Context) error
}
