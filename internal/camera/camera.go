// Package camera streams JPEG frames from a capture device through an ffmpeg child process.
package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/andresmejia3/proctor/internal/types"
	"github.com/andresmejia3/proctor/internal/utils"
)

const megabyte = 1024 * 1024

// ErrStreamEnded is returned once the capture stream stops producing frames.
var ErrStreamEnded = errors.New("camera stream ended")

// Camera owns the ffmpeg process and the frame splitter reading its stdout.
type Camera struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	out     io.ReadCloser
	scanner *bufio.Scanner
	seq     int
	now     func() time.Time
}

// Open starts capturing from device ("0" is the first camera).
func Open(ctx context.Context, device string) (*Camera, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := utils.NewFFmpegCameraCmd(ctx, device)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create FFmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	c := FromReader(out)
	c.cmd = cmd
	c.stderr = stderr
	return c, nil
}

// FromReader splits an MJPEG byte stream into frames. Close closes r if it is an io.Closer.
func FromReader(r io.Reader) *Camera {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	c := &Camera{scanner: scanner, now: time.Now}
	if rc, ok := r.(io.ReadCloser); ok {
		c.out = rc
	}
	return c
}

// Next blocks until the next complete JPEG arrives.
func (c *Camera) Next() (types.Frame, error) {
	if !c.scanner.Scan() {
		err := c.scanner.Err()
		if err == nil {
			err = ErrStreamEnded
		}
		if c.stderr != nil && c.stderr.Len() > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(c.stderr.String()))
		}
		return types.Frame{}, err
	}
	c.seq++
	// The scanner reuses its buffer, so the frame gets its own copy
	data := make([]byte, len(c.scanner.Bytes()))
	copy(data, c.scanner.Bytes())
	return types.Frame{Seq: c.seq, Data: data, CapturedAt: c.now()}, nil
}

// Close stops the capture process. It is safe to call more than once.
func (c *Camera) Close() error {
	if c.out != nil {
		c.out.Close() // Ensure pipe is closed to prevent leaks/zombies
		c.out = nil
	}
	if c.cmd == nil {
		return nil
	}
	cmd := c.cmd
	c.cmd = nil
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	// ffmpeg was killed on purpose; its exit status carries no information
	_ = cmd.Wait()
	return nil
}
