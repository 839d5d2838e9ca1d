package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringlog/ringlog/format"
)

// plainFormatter renders a Data's RingName as a bare line; it's enough to
// exercise File's write/rotate paths without pulling in the full record
// machinery.
type plainFormatter struct {
	format.NoFraming
}

func (plainFormatter) Process(w io.Writer, d format.Data) error {
	_, err := io.WriteString(w, d.RingName+"\n")
	return err
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestFileWritesAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.#.txt")

	f, err := NewFile(path, plainFormatter{}, Options{
		Perms: 0644, MaxSize: 1 << 20, MaxCount: 8, BufferCapacity: 64,
	})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Process(format.Data{RingName: "svc"}))
	require.NoError(t, f.Flush())

	data, err := os.ReadFile(filepath.Join(dir, "log.0.txt"))
	require.NoError(t, err)
	assert.Equal(t, "svc\n", string(data))

	link := filepath.Join(dir, "log.txt")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "log.0.txt", filepath.Base(target))
}

func TestFileRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.#.txt")

	f, err := NewFile(path, plainFormatter{}, Options{
		Perms: 0644, MaxSize: 1024, MaxCount: 3, BufferCapacity: 64,
	})
	require.NoError(t, err)
	defer f.Close()

	// Post 10kB of text, well past MaxSize=1kB, to force rotation through
	// every available chunk.
	line := fmt.Sprintf("%029d\n", 0) // 30 bytes
	for i := 0; i < 350; i++ {
		require.NoError(t, f.Process(format.Data{RingName: "svc"}))
		_, _ = io.WriteString(f, line)
		require.NoError(t, f.Flush())
	}

	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(filepath.Join(dir, "log.2.txt"))
		return err == nil
	})

	for i := 0; i < 3; i++ {
		_, err := os.Stat(filepath.Join(dir, fmt.Sprintf("log.%d.txt", i)))
		assert.NoError(t, err)
	}

	link := filepath.Join(dir, "log.txt")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Contains(t, []string{"log.0.txt", "log.1.txt", "log.2.txt"}, filepath.Base(target))
}

func TestFileResumesIndexFromSymlink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.#.txt")

	f1, err := NewFile(path, plainFormatter{}, Options{
		Perms: 0644, MaxSize: 1 << 20, MaxCount: 8, BufferCapacity: 64,
	})
	require.NoError(t, err)
	require.NoError(t, f1.Process(format.Data{RingName: "svc"}))
	require.NoError(t, f1.Close())

	link := filepath.Join(dir, "log.txt")
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "log.0.txt", filepath.Base(target))

	f2, err := NewFile(path, plainFormatter{}, Options{
		Perms: 0644, MaxSize: 1 << 20, MaxCount: 8, BufferCapacity: 64,
	})
	require.NoError(t, err)
	defer f2.Close()

	target, err = os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "log.1.txt", filepath.Base(target))
}

func TestFileNoHashStillGetsIndexedChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.log")

	f, err := NewFile(path, plainFormatter{}, Options{
		Perms: 0644, MaxSize: 1 << 20, MaxCount: 4, BufferCapacity: 64,
	})
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Process(format.Data{RingName: "svc"}))
	require.NoError(t, f.Flush())

	link := path
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "plain.log.0", filepath.Base(target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "svc\n", string(data))
}
