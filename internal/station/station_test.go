package station

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hephy-dd/pqc/internal/measure"
	"github.com/hephy-dd/pqc/internal/worker"
	"github.com/hephy-dd/pqc/pkg/domain"
	"github.com/hephy-dd/pqc/pkg/ports"
)

type nopSource struct{}

func (nopSource) Identify(ctx context.Context) (string, error) { return "nop", nil }
func (nopSource) Reset(ctx context.Context) error              { return nil }
func (nopSource) Clear(ctx context.Context) error              { return nil }
func (nopSource) NextError(ctx context.Context) (ports.InstrumentError, bool, error) {
	return ports.InstrumentError{}, false, nil
}
func (nopSource) SetOutputEnabled(ctx context.Context, enabled bool) error { return nil }
func (nopSource) OutputEnabled(ctx context.Context) (bool, error)          { return false, nil }
func (nopSource) SetVoltage(ctx context.Context, level float64) error      { return nil }
func (nopSource) Voltage(ctx context.Context) (float64, error)             { return 0, nil }
func (nopSource) SetCurrentCompliance(ctx context.Context, limit float64) error {
	return nil
}
func (nopSource) ComplianceTripped(ctx context.Context) (bool, error) { return false, nil }
func (nopSource) ReadCurrent(ctx context.Context) (float64, error)    { return 0, nil }

func TestStation_AcquirePopulatesDeclaredHandles(t *testing.T) {
	hv, v := nopSource{}, nopSource{}
	s := New(WithHVSource(hv), WithVSource(v))

	caps, release, err := s.Acquire(context.Background(), []string{measure.KeyHVSource})
	require.NoError(t, err)
	defer release()

	assert.NotNil(t, caps.HVSource)
	assert.Nil(t, caps.VSource, "undeclared handles stay nil")
	assert.Nil(t, caps.LCR)
}

func TestStation_UnknownKey(t *testing.T) {
	s := New(WithHVSource(nopSource{}))

	_, _, err := s.Acquire(context.Background(), []string{measure.KeyHVSource, measure.KeyLCR})
	require.Error(t, err)
	assert.Contains(t, err.Error(), measure.KeyLCR)

	// The partially taken lock must have been unwound.
	_, release, err := s.Acquire(context.Background(), []string{measure.KeyHVSource})
	require.NoError(t, err)
	release()
}

func TestStation_ExclusiveScope(t *testing.T) {
	s := New(WithHVSource(nopSource{}))
	keys := []string{measure.KeyHVSource}

	_, release, err := s.Acquire(context.Background(), keys)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		_, second, err := s.Acquire(context.Background(), keys)
		assert.NoError(t, err)
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while scope was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire never completed after release")
	}
}

func TestStation_AcquireHonorsContext(t *testing.T) {
	s := New(WithHVSource(nopSource{}))
	keys := []string{measure.KeyHVSource}

	_, release, err := s.Acquire(context.Background(), keys)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = s.Acquire(ctx, keys)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStation_ReleaseIsIdempotent(t *testing.T) {
	s := New(WithHVSource(nopSource{}))
	keys := []string{measure.KeyHVSource}

	_, release, err := s.Acquire(context.Background(), keys)
	require.NoError(t, err)
	release()
	release()

	_, again, err := s.Acquire(context.Background(), keys)
	require.NoError(t, err)
	again()
}

// fakeBox is an in-memory environment box.
type fakeBox struct {
	mu      sync.Mutex
	testLED bool
	light   bool
	climate domain.Climate
	reads   int
}

func (b *fakeBox) SetTestLED(ctx context.Context, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.testLED = on
	return nil
}

func (b *fakeBox) SetBoxLight(ctx context.Context, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.light = on
	return nil
}

func (b *fakeBox) DischargeDecoupling(ctx context.Context) error { return nil }

func (b *fakeBox) ReadClimate(ctx context.Context) (domain.Climate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	return b.climate, nil
}

func (b *fakeBox) readCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

type memOpener struct{}

func (memOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return struct {
		io.Reader
		io.Writer
		io.Closer
	}{new(bytes.Buffer), io.Discard, io.NopCloser(nil)}, nil
}

func newTestEnvironment(t *testing.T, box *fakeBox, opts ...EnvironmentOption) *Environment {
	t.Helper()
	factory := func(io.ReadWriteCloser) (ports.EnvironmentBox, error) { return box, nil }
	opts = append([]EnvironmentOption{
		WithEnvironmentWorkerOptions(worker.Options{
			PollInterval:    time.Millisecond,
			MonitorInterval: 5 * time.Millisecond,
		}),
	}, opts...)
	env := NewEnvironment(memOpener{}, factory, opts...)
	env.Start()
	env.Enable()
	t.Cleanup(env.Stop)
	return env
}

func TestEnvironment_PollCachesClimate(t *testing.T) {
	box := &fakeBox{climate: domain.Climate{ChuckTemperature: 21.5, BoxHumidity: 40}}

	var mu sync.Mutex
	var published []domain.Climate
	hooks := domain.LifecycleHooks{OnClimate: func(c domain.Climate) {
		mu.Lock()
		published = append(published, c)
		mu.Unlock()
	}}
	env := newTestEnvironment(t, box, WithEnvironmentHooks(hooks))

	require.Eventually(t, func() bool {
		_, ok := env.Climate()
		return ok
	}, time.Second, 5*time.Millisecond)

	snapshot, ok := env.Climate()
	require.True(t, ok)
	assert.Equal(t, 21.5, snapshot.ChuckTemperature)
	assert.Equal(t, 40.0, snapshot.BoxHumidity)
	assert.Greater(t, box.readCount(), 0)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, published)
	assert.Equal(t, 21.5, published[0].ChuckTemperature)
}

func TestEnvironment_CommandsFlowThroughWorker(t *testing.T) {
	box := &fakeBox{}
	env := newTestEnvironment(t, box)

	ctx := context.Background()
	require.NoError(t, env.SetTestLED(ctx, true))
	require.NoError(t, env.SetBoxLight(ctx, true))

	box.mu.Lock()
	assert.True(t, box.testLED)
	assert.True(t, box.light)
	box.mu.Unlock()

	snapshot, err := env.ReadClimate(ctx)
	require.NoError(t, err)
	assert.Equal(t, box.climate, snapshot)
}

func TestEnvironment_DisabledRejectsCommands(t *testing.T) {
	box := &fakeBox{}
	factory := func(io.ReadWriteCloser) (ports.EnvironmentBox, error) { return box, nil }
	env := NewEnvironment(memOpener{}, factory)

	err := env.SetTestLED(context.Background(), true)
	require.ErrorIs(t, err, worker.ErrNotEnabled)
}

func TestStation_EnvironmentCapability(t *testing.T) {
	box := &fakeBox{}
	env := newTestEnvironment(t, box)
	s := New(WithEnvironment(env))

	caps, release, err := s.Acquire(context.Background(), []string{measure.KeyEnvironment})
	require.NoError(t, err)
	defer release()

	require.NotNil(t, caps.Environment)
	require.NoError(t, caps.Environment.SetTestLED(context.Background(), true))
	box.mu.Lock()
	assert.True(t, box.testLED)
	box.mu.Unlock()
	assert.Same(t, env, s.Environment())
}
