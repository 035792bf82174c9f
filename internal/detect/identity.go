// Package detect turns raw model output into the per-frame observations the proctor acts on.
package detect

import (
	"errors"
	"fmt"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/andresmejia3/proctor/internal/worker"
)

// ErrSkipFrame means the frame could not be analyzed but the session can carry on with the next one.
var ErrSkipFrame = errors.New("frame skipped")

// FaceEncoder localizes and embeds faces. The sidecar worker satisfies it.
type FaceEncoder interface {
	Faces(frame []byte) ([]types.FaceResult, error)
}

// DistanceFunc measures how far apart two embeddings are.
type DistanceFunc func(a, b []float64) float64

// Metric resolves a configured metric name.
func Metric(name string) (DistanceFunc, error) {
	switch name {
	case "", "euclidean":
		return utils.EuclideanDist, nil
	case "cosine":
		return utils.CosineDist, nil
	}
	return nil, fmt.Errorf("unknown distance metric %q", name)
}

// IdentityDetector matches each face in a frame against the enrolled identities.
type IdentityDetector struct {
	encoder   FaceEncoder
	enrolled  []types.Identity
	tolerance float64
	distance  DistanceFunc
}

// NewIdentityDetector holds enrolled by reference; callers must not modify it afterwards.
func NewIdentityDetector(enc FaceEncoder, enrolled []types.Identity, tolerance float64, dist DistanceFunc) *IdentityDetector {
	if dist == nil {
		dist = utils.EuclideanDist
	}
	return &IdentityDetector{encoder: enc, enrolled: enrolled, tolerance: tolerance, distance: dist}
}

// Detect returns one observation per face, in the order the localizer produced them.
// An embedding failure yields ErrSkipFrame.
func (d *IdentityDetector) Detect(frame types.Frame) ([]types.FaceObservation, error) {
	faces, err := d.encoder.Faces(frame.Data)
	if err != nil {
		if errors.Is(err, worker.ErrEncodeFailed) {
			return nil, fmt.Errorf("%w: %v", ErrSkipFrame, err)
		}
		return nil, err
	}

	obs := make([]types.FaceObservation, 0, len(faces))
	for _, f := range faces {
		label, ok := d.Match(f.Vec)
		obs = append(obs, types.FaceObservation{
			Box:       f.Box(),
			Embedding: f.Vec,
			Matched:   ok,
			Label:     label,
		})
	}
	return obs, nil
}

// Match returns the first enrolled identity within tolerance, in enrollment order.
func (d *IdentityDetector) Match(vec []float64) (string, bool) {
	for _, id := range d.enrolled {
		if d.distance(vec, id.Embedding) <= d.tolerance {
			return id.Name, true
		}
	}
	return types.UnknownLabel, false
}

// Enrolled reports how many reference identities are loaded.
func (d *IdentityDetector) Enrolled() int {
	return len(d.enrolled)
}
