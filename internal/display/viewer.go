// Package display renders annotated camera frames in an ffplay window.
package display

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/andresmejia3/proctor/internal/utils"
)

// Viewer pipes annotated MJPEG frames into ffplay. Closing the ffplay window is the user's quit signal.
type Viewer struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}
}

// Open launches the viewer window.
func Open(ctx context.Context, title string, fullscreen bool) (*Viewer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("ffplay not found: %w", err)
	}
	cmd := utils.NewFFplayCmd(ctx, title, fullscreen)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create viewer stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start viewer: %w", err)
	}

	v := &Viewer{cmd: cmd, stdin: stdin, done: make(chan struct{})}
	go func() {
		// The exit status is irrelevant: any exit means the window is gone
		_ = cmd.Wait()
		close(v.done)
	}()
	return v, nil
}

// Show annotates one frame and hands it to the viewer.
func (v *Viewer) Show(frame []byte, ov Overlay) error {
	if v.Closed() {
		return errors.New("viewer closed")
	}
	out, err := Annotate(frame, ov)
	if err != nil {
		return err
	}
	_, err = v.stdin.Write(out)
	return err
}

// Closed reports whether the user has closed the window.
func (v *Viewer) Closed() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

// Close tears the window down. It is safe to call more than once.
func (v *Viewer) Close() error {
	if v.stdin != nil {
		v.stdin.Close()
		v.stdin = nil
	}
	if !v.Closed() && v.cmd.Process != nil {
		_ = v.cmd.Process.Kill()
	}
	<-v.done
	return nil
}

// Headless satisfies the renderer contract without a window, for --no-display runs.
type Headless struct{}

func (Headless) Show([]byte, Overlay) error { return nil }

func (Headless) Closed() bool { return false }

func (Headless) Close() error { return nil }
