package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils" // Using the SafeCommand wrapper
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrWorkerTimeout is returned when the sidecar does not answer within the read timeout.
	ErrWorkerTimeout = errors.New("python worker timed out")
	// ErrEncodeFailed means faces were located but an embedding could not be computed for one of them.
	ErrEncodeFailed = errors.New("face encoding failed")
)

// Config controls how the inference sidecar is launched.
type Config struct {
	Script      string // defaults to python/worker.py
	ModelCfg    string // detector topology
	ModelWeight string // detector weights
	ReadTimeout time.Duration
	Debug       bool
}

type request struct {
	Op    string `msgpack:"op"`
	Frame []byte `msgpack:"frame"`
}

type response struct {
	Status      int                `msgpack:"status"`
	Error       string             `msgpack:"error"`
	Faces       []types.FaceResult `msgpack:"faces"`
	EncodeError string             `msgpack:"encode_error"`
	Candidates  []types.Candidate  `msgpack:"candidates"`
	Vec         []float64          `msgpack:"vec"`
}

// PythonWorker owns the sidecar process that runs the face-encoding and object-detection models.
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewPythonWorker starts the sidecar. Models are loaded once by the child and shared
// for the lifetime of the process.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	script := cfg.Script
	if script == "" {
		script = "python/worker.py"
	}
	args := []string{"-u", script, "--cfg", cfg.ModelCfg, "--weights", cfg.ModelWeight}
	if cfg.Debug {
		args = append(args, "--debug")
	}
	py := utils.NewSafeCommandContext(ctx, "python3", args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one length-prefixed message and reads one length-prefixed reply.
// After ErrWorkerTimeout the stream is out of sync and the worker must be closed.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if w.ReadTimeout <= 0 {
		return w.readReply()
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := w.readReply()
		done <- result{body, err}
	}()

	select {
	case res := <-done:
		return res.body, res.err
	case <-time.After(w.ReadTimeout):
		return nil, ErrWorkerTimeout
	}
}

func (w *PythonWorker) readReply() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

func (w *PythonWorker) call(op string, frame []byte) (*response, error) {
	payload, err := msgpack.Marshal(request{Op: op, Frame: frame})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack request: %w", err)
	}
	raw, err := w.Communicate(payload)
	if err != nil {
		return nil, err
	}

	var resp response
	if err := msgpack.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed worker reply: %w", err)
	}
	if resp.Status != 0 {
		return nil, fmt.Errorf("python worker error: %s", resp.Error)
	}
	return &resp, nil
}

// Faces localizes and encodes every face in one JPEG frame, in localization order.
func (w *PythonWorker) Faces(frame []byte) ([]types.FaceResult, error) {
	resp, err := w.call("faces", frame)
	if err != nil {
		return nil, err
	}
	if resp.EncodeError != "" {
		return nil, fmt.Errorf("%w: %s", ErrEncodeFailed, resp.EncodeError)
	}
	return resp.Faces, nil
}

// Objects returns the object detector's raw candidate rows for one JPEG frame.
func (w *PythonWorker) Objects(frame []byte) ([]types.Candidate, error) {
	resp, err := w.call("objects", frame)
	if err != nil {
		return nil, err
	}
	return resp.Candidates, nil
}

// Encode computes the embedding of the first face found in an enrollment image.
func (w *PythonWorker) Encode(image []byte) ([]float64, error) {
	resp, err := w.call("encode", image)
	if err != nil {
		return nil, err
	}
	if len(resp.Vec) == 0 {
		return nil, errors.New("no face found in enrollment image")
	}
	return resp.Vec, nil
}

func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
