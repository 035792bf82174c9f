package detect

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/proctor/internal/types"
)

// DefaultConfidence is the minimum class score for a detection to count.
const DefaultConfidence = 0.5

// CandidateScorer returns raw region proposals with per-class scores. The sidecar worker satisfies it.
type CandidateScorer interface {
	Objects(frame []byte) ([]types.Candidate, error)
}

// ObjectDetector keeps the candidates whose best class is watch-listed and confident enough.
// It holds no state between frames.
type ObjectDetector struct {
	scorer    CandidateScorer
	classes   []string
	watch     map[string]bool
	threshold float64
}

// NewObjectDetector builds a detector over a class-name list (index = class id).
func NewObjectDetector(scorer CandidateScorer, classes []string, watch []string, threshold float64) *ObjectDetector {
	w := make(map[string]bool, len(watch))
	for _, label := range watch {
		w[strings.TrimSpace(label)] = true
	}
	if threshold <= 0 {
		threshold = DefaultConfidence
	}
	return &ObjectDetector{scorer: scorer, classes: classes, watch: w, threshold: threshold}
}

// Detect scores one frame.
func (d *ObjectDetector) Detect(frame types.Frame) ([]types.ObjectDetection, error) {
	cands, err := d.scorer.Objects(frame.Data)
	if err != nil {
		return nil, err
	}
	return d.Filter(cands), nil
}

// Filter applies argmax, the confidence threshold and the watch-list to raw candidates.
func (d *ObjectDetector) Filter(cands []types.Candidate) []types.ObjectDetection {
	var out []types.ObjectDetection
	for _, c := range cands {
		classID, score := argmax(c.Scores)
		if classID < 0 || classID >= len(d.classes) {
			continue
		}
		conf := float64(score)
		if conf < d.threshold {
			continue
		}
		label := d.classes[classID]
		if !d.watch[label] {
			continue
		}
		out = append(out, types.ObjectDetection{Label: label, Confidence: conf, Box: candidateBox(c.Box)})
	}
	return out
}

func argmax(scores []float32) (int, float32) {
	best := -1
	var max float32
	for i, s := range scores {
		if best == -1 || s > max {
			best, max = i, s
		}
	}
	return best, max
}

// candidateBox converts [x, y, w, h] into a rectangle.
func candidateBox(b []int) image.Rectangle {
	if len(b) != 4 {
		return image.Rectangle{}
	}
	return image.Rect(b[0], b[1], b[0]+b[2], b[1]+b[3])
}

// LoadClassNames reads a newline-delimited class list such as coco.names.
func LoadClassNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseClassNames(f)
}

// ParseClassNames reads one class per line, trimming whitespace. Line order is class id order.
func ParseClassNames(r io.Reader) ([]string, error) {
	var classes []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		classes = append(classes, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	// A trailing blank line is not a class
	for len(classes) > 0 && classes[len(classes)-1] == "" {
		classes = classes[:len(classes)-1]
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class list is empty")
	}
	return classes, nil
}
