package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/proctor/internal/config"
	"github.com/andresmejia3/proctor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder returns the first byte of the image as a 1-d embedding.
type fakeEncoder struct {
	err   error
	calls int
}

func (f *fakeEncoder) Encode(image []byte) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float64{float64(image[0])}, nil
}

type fakeRegistry struct {
	ids []types.Identity
	err error
}

func (f fakeRegistry) LoadEnrollments(context.Context) ([]types.Identity, error) {
	return f.ids, f.err
}

func writeImages(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for i, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte{byte(i + 1)}, 0644))
		paths = append(paths, p)
	}
	return paths
}

func TestLoadEnrolled_ImagesKeepOrder(t *testing.T) {
	paths := writeImages(t, "alice.jpg", "bob.png")
	enc := &fakeEncoder{}

	got, err := loadEnrolled(context.Background(), enc, paths, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Name)
	assert.Equal(t, []float64{1}, got[0].Embedding)
	assert.Equal(t, "bob", got[1].Name)
	assert.Equal(t, []float64{2}, got[1].Embedding)
	assert.Equal(t, 2, enc.calls)
}

func TestLoadEnrolled_RegistryAppended(t *testing.T) {
	paths := writeImages(t, "alice.jpg")
	reg := fakeRegistry{ids: []types.Identity{{ID: 7, Name: "carol", Embedding: []float64{9}}}}

	got, err := loadEnrolled(context.Background(), &fakeEncoder{}, paths, reg)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Name)
	assert.Equal(t, "carol", got[1].Name)
}

func TestLoadEnrolled_Errors(t *testing.T) {
	_, err := loadEnrolled(context.Background(), &fakeEncoder{}, nil, nil)
	assert.ErrorIs(t, err, errNoEnrollment)

	_, err = loadEnrolled(context.Background(), &fakeEncoder{}, []string{"/does/not/exist.jpg"}, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	boom := errors.New("no face found in enrollment image")
	_, err = loadEnrolled(context.Background(), &fakeEncoder{err: boom}, writeImages(t, "x.jpg"), nil)
	assert.ErrorIs(t, err, boom)

	regErr := errors.New("connection refused")
	_, err = loadEnrolled(context.Background(), &fakeEncoder{}, nil, fakeRegistry{err: regErr})
	assert.ErrorIs(t, err, regErr)
}

func TestEnrollName(t *testing.T) {
	assert.Equal(t, "jane_doe", enrollName("photos/jane_doe.jpg"))
	assert.Equal(t, "noext", enrollName("noext"))
	assert.Equal(t, "a.b", enrollName("/tmp/a.b.png"))
}

// The monitor flags must not drift from the config defaults, otherwise an
// unset flag would shadow proctor.yaml with a different value.
func TestMonitorFlagDefaultsMatchConfig(t *testing.T) {
	f := monitorCmd.Flags()

	for _, key := range []string{"camera", "cfg", "weights", "names", "worker-script", "metric", "report", "screenshot"} {
		got, err := f.GetString(key)
		require.NoError(t, err, key)
		assert.Equal(t, config.Default(key), got, key)
	}
	for _, key := range []string{"tolerance", "confidence"} {
		got, err := f.GetFloat64(key)
		require.NoError(t, err, key)
		assert.Equal(t, config.Default(key), got, key)
	}
	for _, key := range []string{"phone-delay", "worker-timeout"} {
		got, err := f.GetDuration(key)
		require.NoError(t, err, key)
		want, err := time.ParseDuration(config.Default(key).(string))
		require.NoError(t, err)
		assert.Equal(t, want, got, key)
	}
	watch, err := f.GetStringSlice("watch")
	require.NoError(t, err)
	assert.Equal(t, config.Default("watch"), watch)

	noUser, err := f.GetBool("terminate-on-no-user")
	require.NoError(t, err)
	assert.False(t, noUser)
}

func TestResolveDSN(t *testing.T) {
	t.Setenv("PROCTOR_DB_URL", "")
	t.Setenv("POSTGRES_HOST", "")

	assert.Equal(t, "postgres://flag/db", resolveDSN("postgres://flag/db"))
	assert.Equal(t, "postgres://localhost:5432/proctor", resolveDSN(""))

	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "exams")
	t.Setenv("POSTGRES_PORT", "")
	assert.Equal(t, "postgres://u:p@db.internal:5432/exams", resolveDSN(""))

	t.Setenv("PROCTOR_DB_URL", "postgres://env/db")
	assert.Equal(t, "postgres://env/db", resolveDSN(""))
}
