package worker

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockWorker(t *testing.T, reply map[string]interface{}) (*PythonWorker, *MockCloser) {
	t.Helper()
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	body, err := msgpack.Marshal(reply)
	require.NoError(t, err)
	require.NoError(t, binary.Write(dataPipeMock, binary.BigEndian, uint32(len(body))))
	dataPipeMock.Write(body)

	// Cmd is nil because we aren't testing process management, just the protocol
	return &PythonWorker{ID: 1, Stdin: stdinMock, DataPipe: dataPipeMock}, stdinMock
}

func TestFaces(t *testing.T) {
	vec := make([]float64, 128)
	vec[0] = 0.5
	w, stdin := newMockWorker(t, map[string]interface{}{
		"status": 0,
		"faces": []map[string]interface{}{
			{"loc": []int{10, 40, 50, 20}, "vec": vec},
		},
	})

	frame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := w.Faces(frame)
	require.NoError(t, err)

	// Verify Go sent a length-prefixed msgpack request
	sent := stdin.Bytes()
	require.Greater(t, len(sent), 4)
	assert.Equal(t, uint32(len(sent)-4), binary.BigEndian.Uint32(sent[:4]))
	var req request
	require.NoError(t, msgpack.Unmarshal(sent[4:], &req))
	assert.Equal(t, "faces", req.Op)
	assert.Equal(t, frame, req.Frame)

	require.Len(t, faces, 1)
	// Use epsilon for float comparison
	assert.InDelta(t, 0.5, faces[0].Vec[0], 1e-9)
	assert.Equal(t, 20, faces[0].Box().Min.X)
	assert.Equal(t, 10, faces[0].Box().Min.Y)
	assert.Equal(t, 40, faces[0].Box().Max.X)
	assert.Equal(t, 50, faces[0].Box().Max.Y)
}

func TestFaces_EncodeError(t *testing.T) {
	w, _ := newMockWorker(t, map[string]interface{}{
		"status":       0,
		"faces":        []map[string]interface{}{{"loc": []int{0, 1, 1, 0}}},
		"encode_error": "region out of bounds",
	})

	_, err := w.Faces([]byte("frame"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncodeFailed)
	assert.Contains(t, err.Error(), "region out of bounds")
}

func TestObjects(t *testing.T) {
	w, stdin := newMockWorker(t, map[string]interface{}{
		"status": 0,
		"candidates": []map[string]interface{}{
			{"box": []int{1, 2, 3, 4}, "scores": []float32{0.1, 0.9}},
		},
	})

	cands, err := w.Objects([]byte("frame"))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, []int{1, 2, 3, 4}, cands[0].Box)
	assert.InDelta(t, 0.9, cands[0].Scores[1], 1e-6)

	var req request
	require.NoError(t, msgpack.Unmarshal(stdin.Bytes()[4:], &req))
	assert.Equal(t, "objects", req.Op)
}

func TestCall_Error(t *testing.T) {
	errMsg := "Python Exception: Import Error"
	w, _ := newMockWorker(t, map[string]interface{}{
		"status": 1,
		"error":  errMsg,
	})

	_, err := w.Objects([]byte("frame"))
	require.Error(t, err)
	assert.Equal(t, "python worker error: "+errMsg, err.Error())
}

func TestEncode(t *testing.T) {
	w, _ := newMockWorker(t, map[string]interface{}{
		"status": 0,
		"vec":    []float64{0.1, 0.2, 0.3},
	})
	vec, err := w.Encode([]byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)

	w, _ = newMockWorker(t, map[string]interface{}{"status": 0})
	_, err = w.Encode([]byte("jpeg"))
	assert.Error(t, err)
}

// blockingReader never returns, simulating a hung Python process.
type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read(p []byte) (int, error) { <-b.ch; return 0, io.EOF }
func (b blockingReader) Close() error                { return nil }

func TestCommunicate_Timeout(t *testing.T) {
	block := blockingReader{ch: make(chan struct{})}
	defer close(block.ch)

	w := &PythonWorker{
		ID:          1,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    block,
		ReadTimeout: 20 * time.Millisecond,
	}
	_, err := w.Communicate([]byte("x"))
	assert.ErrorIs(t, err, ErrWorkerTimeout)
}
