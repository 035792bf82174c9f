package utils

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (Python logs)
// This ensures we don't lose critical crash information if a worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommandContext initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommandContext(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	detach(cmd)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps Python logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 PROCTOR ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nPYTHON CRASH LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is the unified exit strategy for commands that cannot return an error.
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Camera Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// CameraInput returns the ffmpeg demuxer and input name for a camera selector on this OS.
// A bare index ("0") is expanded to the platform's device naming.
func CameraInput(device string) (format, input string) {
	isIndex := true
	for _, r := range device {
		if r < '0' || r > '9' {
			isIndex = false
			break
		}
	}
	if device == "" {
		device, isIndex = "0", true
	}

	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", device
	case "windows":
		// dshow only addresses devices by name
		return "dshow", "video=" + device
	default:
		if isIndex {
			return "v4l2", "/dev/video" + device
		}
		return "v4l2", device
	}
}

// NewFFmpegCameraCmd creates a live camera decoder pipe.
// It configures FFmpeg to output MJPEG frames to Stdout for ingestion.
func NewFFmpegCameraCmd(ctx context.Context, device string) *exec.Cmd {
	format, input := CameraInput(device)
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	// Added -hide_banner and -loglevel error to prevent memory bloat in stderr buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-f", format, "-i", input, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "3", "-")
	detach(cmd)
	return cmd
}

// NewFFplayCmd creates a viewer that reads an MJPEG stream from Stdin.
func NewFFplayCmd(ctx context.Context, title string, fullscreen bool) *exec.Cmd {
	args := []string{"-hide_banner", "-loglevel", "error", "-window_title", title,
		"-fflags", "nobuffer", "-f", "mjpeg"}
	if fullscreen {
		args = append(args, "-fs")
	}
	args = append(args, "-i", "-")
	cmd := exec.CommandContext(ctx, "ffplay", args...)
	detach(cmd)
	return cmd
}

// --- 3. Embedding Math ---

// CosineDist returns 1 - cos(a, b). Vectors of different length are maximally distant.
func CosineDist(a, b []float64) float64 {
	if len(a) != len(b) {
		return 1.0
	}
	var dot, sumA, sumB float64
	for i := range a {
		dot += a[i] * b[i]
		sumA += a[i] * a[i]
		sumB += b[i] * b[i]
	}
	// Return 1.0 (max distance) if a vector is zero to avoid division by zero
	if sumA == 0 || sumB == 0 {
		return 1.0
	}
	return 1.0 - (dot / (math.Sqrt(sumA) * math.Sqrt(sumB)))
}

// EuclideanDist is the L2 norm of a - b. Vectors of different length are infinitely far apart.
func EuclideanDist(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
