package pathmon

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startMonitor(t *testing.T) (*Monitor, *changeRecorder) {
	t.Helper()

	monitor := New(log.NewNopLogger(), WithInterval(5*time.Millisecond))
	recorder := &changeRecorder{}

	done := make(chan struct{})
	go func() {
		monitor.Execute()
		close(done)
	}()
	t.Cleanup(func() {
		monitor.Interrupt(nil)
		<-done
	})

	return monitor, recorder
}

func TestDetectsContentChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0644))

	monitor, recorder := startMonitor(t)
	monitor.Add(path, recorder.record)

	require.NoError(t, os.WriteFile(path, []byte("rotated"), 0644))

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDetectsDeletion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(path, []byte("registered"), 0644))

	monitor, recorder := startMonitor(t)
	monitor.Add(path, recorder.record)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestDetectsCreation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cert.pem")

	monitor, recorder := startMonitor(t)
	monitor.Add(path, recorder.record)

	require.NoError(t, os.WriteFile(path, []byte("registered"), 0644))

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 5*time.Second, 5*time.Millisecond)
}

func TestNoCallbackWithoutChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cert.pem")
	require.NoError(t, os.WriteFile(path, []byte("stable"), 0644))

	monitor, recorder := startMonitor(t)
	monitor.Add(path, recorder.record)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, recorder.count())
}
