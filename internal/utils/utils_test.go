package utils

import (
	"bufio"
	"bytes"
	"math"
	"runtime"
	"testing"
)

func TestSplitJpeg(t *testing.T) {
	// Construct a stream containing: [Garbage] [JPEG] [Garbage]
	// SOI (Start of Image): FF D8
	// EOI (End of Image):   FF D9

	jpegData := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, 0xD9}

	streamData := []byte{0x00, 0x00} // Garbage at start
	streamData = append(streamData, jpegData...)
	streamData = append(streamData, []byte{0x00, 0x00}...) // Garbage at end

	// Use bufio.Scanner with our custom Split function
	scanner := bufio.NewScanner(bytes.NewReader(streamData))
	scanner.Split(SplitJpeg)

	// Scan() should skip the first garbage bytes and find the JPEG
	if !scanner.Scan() {
		t.Fatal("Expected to find a token, got EOF")
	}

	// Verify the extracted token is exactly the JPEG
	if !bytes.Equal(scanner.Bytes(), jpegData) {
		t.Errorf("Expected %X, got %X", jpegData, scanner.Bytes())
	}

	// Scan() again should return false (EOF) because the trailing garbage is not a JPEG
	if scanner.Scan() {
		t.Error("Expected only one token, found more")
	}
}

func TestSplitJpeg_BackToBack(t *testing.T) {
	a := []byte{0xFF, 0xD8, 0xAA, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 0xBB, 0xBB, 0xFF, 0xD9}
	scanner := bufio.NewScanner(bytes.NewReader(append(append([]byte{}, a...), b...)))
	scanner.Split(SplitJpeg)

	var got [][]byte
	for scanner.Scan() {
		got = append(got, append([]byte{}, scanner.Bytes()...))
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Errorf("Expected two frames, got %X", got)
	}
}

func TestCosineDist(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{"Identical vectors", []float64{1.0, 0.0}, []float64{1.0, 0.0}, 0.0},
		{"Orthogonal vectors", []float64{1.0, 0.0}, []float64{0.0, 1.0}, 1.0},
		{"Opposite vectors", []float64{1.0, 0.0}, []float64{-1.0, 0.0}, 2.0},
		{"B is unnormalized (scaled)", []float64{1.0, 0.0}, []float64{5.0, 0.0}, 0.0},
		{"Empty vectors", []float64{}, []float64{}, 1.0},
		{"Shorter second vector", []float64{1.0, 0.0}, []float64{1.0}, 1.0},
		{"Shorter first vector", []float64{1.0}, []float64{1.0, 0.0}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDist(tt.a, tt.b)
			// Use epsilon for float comparison
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineDist() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEuclideanDist(t *testing.T) {
	if got := EuclideanDist([]float64{0, 0}, []float64{3, 4}); math.Abs(got-5) > 1e-9 {
		t.Errorf("EuclideanDist() = %v, want 5", got)
	}
	if got := EuclideanDist([]float64{1}, []float64{1, 2}); !math.IsInf(got, 1) {
		t.Errorf("Expected +Inf for mismatched lengths, got %v", got)
	}
}

func TestCameraInput(t *testing.T) {
	format, input := CameraInput("")
	switch runtime.GOOS {
	case "darwin":
		if format != "avfoundation" || input != "0" {
			t.Errorf("got %s %s", format, input)
		}
	case "windows":
		if format != "dshow" {
			t.Errorf("got %s", format)
		}
	default:
		if format != "v4l2" || input != "/dev/video0" {
			t.Errorf("got %s %s", format, input)
		}
		if _, in := CameraInput("/dev/video2"); in != "/dev/video2" {
			t.Errorf("Expected explicit path to pass through, got %s", in)
		}
	}
}
