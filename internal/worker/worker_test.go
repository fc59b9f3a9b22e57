package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/pkg/domain"
)

type nopCloser struct{ io.ReadWriter }

func (nopCloser) Close() error { return nil }

type recordingDriver struct {
	mu    sync.Mutex
	calls []string
}

func (d *recordingDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *recordingDriver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func newTestWorker(t *testing.T) (*Worker[*recordingDriver], *recordingDriver) {
	t.Helper()
	driver := &recordingDriver{}
	opener := openerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nopCloser{&bytes.Buffer{}}, nil
	})
	w := New("test", opener, func(io.ReadWriteCloser) (*recordingDriver, error) {
		return driver, nil
	}, Hooks[*recordingDriver]{}, Options{PollInterval: time.Millisecond}, nil)
	w.Enable()
	w.Start()
	t.Cleanup(w.Stop)
	return w, driver
}

type openerFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f openerFunc) Open(ctx context.Context) (io.ReadWriteCloser, error) { return f(ctx) }

func TestWorker_SubmitDisabled(t *testing.T) {
	w := New("test", openerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nopCloser{&bytes.Buffer{}}, nil
	}), func(io.ReadWriteCloser) (*recordingDriver, error) {
		return &recordingDriver{}, nil
	}, Hooks[*recordingDriver]{}, Options{}, nil)

	_, err := Submit(w, func(*recordingDriver) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestWorker_ExecutesRequest(t *testing.T) {
	w, _ := newTestWorker(t)

	value, err := Exec(context.Background(), w, func(d *recordingDriver) (int, error) {
		d.record("op")
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestWorker_ErrorPropagation(t *testing.T) {
	w, _ := newTestWorker(t)

	boom := errors.New("division by zero")
	_, err := Exec(context.Background(), w, func(d *recordingDriver) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestWorker_StopOutcome(t *testing.T) {
	w, _ := newTestWorker(t)

	r, err := Submit(w, func(d *recordingDriver) (int, error) {
		return 0, domain.ErrStopRequested
	})
	require.NoError(t, err)
	outcome := r.Get(context.Background())
	assert.Equal(t, domain.OutcomeStopped, outcome.Status)
}

func TestWorker_FIFOOrder(t *testing.T) {
	w, driver := newTestWorker(t)

	const n = 50
	requests := make([]*Request[int], 0, n)
	for i := 0; i < n; i++ {
		i := i
		r, err := Submit(w, func(d *recordingDriver) (int, error) {
			d.record(string(rune('a' + i%26)))
			return i, nil
		})
		require.NoError(t, err)
		requests = append(requests, r)
	}
	for i, r := range requests {
		value, err := r.Get(context.Background()).Unpack()
		require.NoError(t, err)
		assert.Equal(t, i, value)
	}

	calls := driver.Calls()
	require.Len(t, calls, n)
	for i, call := range calls {
		assert.Equal(t, string(rune('a'+i%26)), call, "request %d serviced out of order", i)
	}
}

func TestWorker_NoCrossWorkerOrder(t *testing.T) {
	// Two workers service their own queues independently; both complete,
	// but no relative order is enforced between them.
	w1, d1 := newTestWorker(t)
	w2, d2 := newTestWorker(t)

	r1, err := Submit(w1, func(d *recordingDriver) (int, error) {
		time.Sleep(5 * time.Millisecond)
		d.record("slow")
		return 1, nil
	})
	require.NoError(t, err)
	r2, err := Submit(w2, func(d *recordingDriver) (int, error) {
		d.record("fast")
		return 2, nil
	})
	require.NoError(t, err)

	_, err = r1.Get(context.Background()).Unpack()
	require.NoError(t, err)
	_, err = r2.Get(context.Background()).Unpack()
	require.NoError(t, err)

	assert.Equal(t, []string{"slow"}, d1.Calls())
	assert.Equal(t, []string{"fast"}, d2.Calls())
}

func TestWorker_MonitorHook(t *testing.T) {
	driver := &recordingDriver{}
	opener := openerFunc(func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nopCloser{&bytes.Buffer{}}, nil
	})
	w := New("test", opener, func(io.ReadWriteCloser) (*recordingDriver, error) {
		return driver, nil
	}, Hooks[*recordingDriver]{
		OnMonitor: func(d *recordingDriver) { d.record("monitor") },
	}, Options{PollInterval: time.Millisecond, MonitorInterval: 5 * time.Millisecond}, nil)
	w.Enable()
	w.Start()
	defer w.Stop()

	assert.Eventually(t, func() bool {
		return len(driver.Calls()) >= 2
	}, time.Second, time.Millisecond)
}

func TestRequest_Timeout(t *testing.T) {
	// A request that is never serviced times out close to its deadline.
	r := NewRequest[int]()
	start := time.Now()
	outcome := r.GetTimeout(context.Background(), 20*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, domain.OutcomeFailed, outcome.Status)
	assert.ErrorIs(t, outcome.Err, ErrRequestTimeout)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestRequest_GetAfterReady(t *testing.T) {
	r := NewRequest[string]()
	r.complete("done", nil)

	require.True(t, r.Ready())
	for i := 0; i < 2; i++ {
		value, err := r.Get(context.Background()).Unpack()
		require.NoError(t, err)
		assert.Equal(t, "done", value)
	}
}

func TestWorker_DisableKeepsQueued(t *testing.T) {
	w, _ := newTestWorker(t)
	w.Disable()

	// Requests submitted while enabled but not yet serviced stay queued
	// until re-enabled.
	_, err := Submit(w, func(d *recordingDriver) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, ErrNotEnabled)

	w.Enable()
	value, err := Exec(context.Background(), w, func(d *recordingDriver) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}
