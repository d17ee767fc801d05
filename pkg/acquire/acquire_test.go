package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/itohio/gosr400/pkg/config"
	"github.com/itohio/gosr400/pkg/reading"
	"github.com/itohio/gosr400/pkg/sr400"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastMock() *sr400.Mock {
	return sr400.NewMock(&config.MockConfig{
		RateA:     1000,
		RateB:     200,
		Seed:      7,
		TimeScale: 0.001,
	})
}

// waitEvent returns the first event of kind, failing after timeout.
func waitEvent(t *testing.T, w *Worker, kind EventKind, timeout time.Duration) (Event, []Event) {
	t.Helper()
	var seen []Event
	deadline := time.After(timeout)
	for {
		select {
		case e := <-w.Events():
			seen = append(seen, e)
			if e.Kind == kind {
				return e, seen
			}
		case <-deadline:
			t.Fatalf("no %s event within %v (seen %v)", kind, timeout, seen)
			return Event{}, seen
		}
	}
}

func drain(q <-chan reading.Reading) []reading.Reading {
	var out []reading.Reading
	for {
		select {
		case r := <-q:
			out = append(out, r)
		default:
			return out
		}
	}
}

func TestExperimentValue(t *testing.T) {
	assert.Equal(t, 15.0, ExperimentValue(10, true, 20, true))
	assert.Equal(t, 10.0, ExperimentValue(10, true, 0, false))
	assert.Equal(t, 20.0, ExperimentValue(0, false, 20, true))
	assert.Equal(t, 0.0, ExperimentValue(0, false, 0, false))
}

func TestWorker_DeviceSessionCompletes(t *testing.T) {
	w := NewWorker(100)
	dev := fastMock()

	src := &DeviceSource{
		Device:      dev,
		Params:      sr400.RunParams{Channel: sr400.ChannelA, Tset: 0.5, Periods: 5, Settle: time.Millisecond},
		Experiments: 3,
		Pause:       time.Millisecond,
	}
	require.NoError(t, w.Start(src))

	_, seen := waitEvent(t, w, Completed, 5*time.Second)
	assert.False(t, w.Running())
	assert.Equal(t, Started, seen[0].Kind)

	var experiments []Event
	for _, e := range seen {
		if e.Kind == Experiment {
			experiments = append(experiments, e)
		}
	}
	require.Len(t, experiments, 3)

	var m reading.RunningMean
	for i, e := range experiments {
		assert.Equal(t, i+1, e.Index)
		assert.Equal(t, 3, e.Total)
		assert.InDelta(t, (e.AvgA+e.AvgB)/2, e.Value, 1e-9)
		assert.InDelta(t, m.Add(e.Value), e.X, 1e-9)
	}

	rows := drain(w.Queue())
	assert.Len(t, rows, 15)
}

func TestWorker_StartWhileRunning(t *testing.T) {
	w := NewWorker(10)
	dev := sr400.NewMock(&config.MockConfig{RateA: 1, RateB: 1, Seed: 1, TimeScale: 1})

	src := &DeviceSource{
		Device:      dev,
		Params:      sr400.RunParams{Tset: 10, Periods: 10},
		Experiments: 1,
	}
	require.NoError(t, w.Start(src))
	assert.True(t, w.Running())
	assert.ErrorIs(t, w.Start(src), ErrRunning)

	w.Stop()
	w.Wait()
	assert.False(t, w.Running())
}

// TestWorker_GracefulShutdown tests that Stop ends a long run promptly and
// reports Stopped rather than Failed.
func TestWorker_GracefulShutdown(t *testing.T) {
	w := NewWorker(10)
	dev := sr400.NewMock(&config.MockConfig{RateA: 1, RateB: 1, Seed: 1, TimeScale: 1})

	require.NoError(t, w.Start(&DeviceSource{
		Device:      dev,
		Params:      sr400.RunParams{Tset: 100, Periods: 100},
		Experiments: 5,
	}))

	time.Sleep(50 * time.Millisecond)
	w.Stop()

	done := make(chan struct{})
	go func() {
		w.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop within timeout")
	}

	e, _ := waitEvent(t, w, Stopped, time.Second)
	assert.NoError(t, e.Err)

	cmds := dev.Commands()
	assert.Equal(t, "CR", cmds[len(cmds)-1])

	// The worker can be started again.
	require.NoError(t, w.Start(&DeviceSource{
		Device:      fastMock(),
		Params:      sr400.RunParams{Tset: 0.1, Periods: 1},
		Experiments: 1,
	}))
	waitEvent(t, w, Completed, 5*time.Second)
}

func TestWorker_Failed(t *testing.T) {
	w := NewWorker(10)
	dev := fastMock()
	require.NoError(t, dev.Close())

	require.NoError(t, w.Start(&DeviceSource{
		Device:      dev,
		Params:      sr400.RunParams{Tset: 0.1, Periods: 1},
		Experiments: 2,
	}))

	e, _ := waitEvent(t, w, Failed, 2*time.Second)
	assert.ErrorIs(t, e.Err, sr400.ErrNotConnected)
	assert.False(t, w.Running())
}

func TestFileSource_Separator(t *testing.T) {
	assert.Equal(t, reading.Comma, (&FileSource{Path: "data.csv"}).Separator())
	assert.Equal(t, reading.Comma, (&FileSource{Path: "DATA.CSV"}).Separator())
	assert.Equal(t, reading.Space, (&FileSource{Path: "data.txt"}).Separator())
}

func TestFileSource_Tail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2\n3,4\n5,"), 0644))

	src := &FileSource{Path: path, Interval: 5 * time.Millisecond}
	out := make(chan reading.Reading, 10)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = src.Run(ctx, out, func(Event) {})
	}()

	r := <-out
	assert.Equal(t, []float64{1, 2}, r.Values)
	r = <-out
	assert.Equal(t, []float64{3, 4}, r.Values)

	// Complete the partial line and append another.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("6\nbad,row\n7,8\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case r = <-out:
		assert.Equal(t, []float64{5, 6}, r.Values)
	case <-time.After(2 * time.Second):
		t.Fatal("appended line not read")
	}
	select {
	case r = <-out:
		assert.Equal(t, []float64{7, 8}, r.Values)
	case <-time.After(2 * time.Second):
		t.Fatal("appended line not read")
	}

	cancel()
	wg.Wait()
	assert.True(t, errors.Is(runErr, context.Canceled))
	assert.Equal(t, int64(len("1,2\n3,4\n5,6\nbad,row\n7,8\n")), src.Offset())
}

func TestFileSource_RestartContinuesFromOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2\n3,4\n"), 0644))

	w := NewWorker(10)
	src := &FileSource{Path: path, Interval: 5 * time.Millisecond}

	require.NoError(t, w.Start(src))
	for _, want := range [][]float64{{1, 2}, {3, 4}} {
		select {
		case r := <-w.Queue():
			assert.Equal(t, want, r.Values)
		case <-time.After(2 * time.Second):
			t.Fatal("initial lines not read")
		}
	}
	w.Stop()
	waitEvent(t, w, Stopped, 2*time.Second)
	w.Wait()
	assert.Equal(t, int64(len("1,2\n3,4\n")), src.Offset())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("5,6\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, w.Start(src))
	select {
	case r := <-w.Queue():
		assert.Equal(t, []float64{5, 6}, r.Values)
	case <-time.After(2 * time.Second):
		t.Fatal("appended line not read after restart")
	}
	w.Stop()
	w.Wait()
	assert.Empty(t, drain(w.Queue()), "rows before the restart must not be read again")
}

func TestFileSource_UndeliveredRowIsReread(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,2\n"), 0644))
	src := &FileSource{Path: path}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.poll(ctx, make(chan reading.Reading))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.Offset())

	out := make(chan reading.Reading, 1)
	n, err := src.poll(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []float64{1, 2}, (<-out).Values)
}

func TestFileSource_SpaceSeparated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("1  2 3\n\n4 5\n"), 0644))

	src := &FileSource{Path: path}
	out := make(chan reading.Reading, 10)
	n, err := src.poll(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1, 2, 3}, (<-out).Values)
	assert.Equal(t, []float64{4, 5}, (<-out).Values)

	// Nothing new: nothing sent.
	n, err = src.poll(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFileSource_Missing(t *testing.T) {
	w := NewWorker(10)
	require.NoError(t, w.Start(&FileSource{Path: filepath.Join(t.TempDir(), "missing.txt")}))

	e, _ := waitEvent(t, w, Failed, 2*time.Second)
	assert.ErrorIs(t, e.Err, os.ErrNotExist)
}

func TestDeviceSource_RowsPrecedeExperiment(t *testing.T) {
	const periods, experiments = 4, 3
	src := &DeviceSource{
		Device:      fastMock(),
		Params:      sr400.RunParams{Channel: sr400.ChannelA, Tset: 0.1, Periods: periods},
		Experiments: experiments,
		Pause:       time.Millisecond,
	}

	out := make(chan reading.Reading, periods*experiments)
	var queued []int
	err := src.Run(context.Background(), out, func(e Event) {
		if e.Kind == Experiment {
			queued = append(queued, len(out))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []int{periods, 2 * periods, 3 * periods}, queued)
}

func TestPoller(t *testing.T) {
	dev := fastMock()
	_, err := dev.Acquire(context.Background(), sr400.RunParams{Tset: 0.1, Periods: 2})
	require.NoError(t, err)
	qa, err := dev.QueryCount(sr400.ChannelA)
	require.NoError(t, err)

	p := NewPoller(dev, 5*time.Millisecond)

	var mu sync.Mutex
	got := map[sr400.Channel][]float64{}
	p.Start(func(ch sr400.Channel, v float64) {
		mu.Lock()
		defer mu.Unlock()
		got[ch] = append(got[ch], v)
	}, sr400.ChannelA, sr400.ChannelB)
	assert.True(t, p.Running())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got[sr400.ChannelA]) >= 2 && len(got[sr400.ChannelB]) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	p.Stop()
	p.Wait()
	assert.False(t, p.Running())

	mu.Lock()
	assert.Equal(t, qa, got[sr400.ChannelA][0])
	n := len(got[sr400.ChannelA])
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, len(got[sr400.ChannelA]), "no updates after Stop")
	mu.Unlock()
}

func TestPoller_StopsWhenClosed(t *testing.T) {
	dev := fastMock()
	require.NoError(t, dev.Close())

	p := NewPoller(dev, time.Millisecond)
	p.Start(func(sr400.Channel, float64) {
		t.Error("unexpected update")
	}, sr400.ChannelA)

	time.Sleep(20 * time.Millisecond)
	p.Stop()
	p.Wait()
}

// returnsWithin fails the test if fn blocks longer than d.
func returnsWithin(t *testing.T, d time.Duration, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked for more than %v", name, d)
	}
}

func TestPoller_RestartWhileInstrumentBusy(t *testing.T) {
	dev := sr400.NewMock(&config.MockConfig{RateA: 1000, RateB: 200, Seed: 7, TimeScale: 1})

	acquired := make(chan error, 1)
	go func() {
		_, err := dev.Acquire(context.Background(), sr400.RunParams{Tset: 0.2, Periods: 3})
		acquired <- err
	}()
	// Let the run take the instrument.
	time.Sleep(50 * time.Millisecond)

	var mu sync.Mutex
	var got []sr400.Channel
	update := func(ch sr400.Channel, v float64) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ch)
	}

	p := NewPoller(dev, 5*time.Millisecond)
	p.Start(update, sr400.ChannelA)
	// The first query is now waiting for the run to finish.
	time.Sleep(20 * time.Millisecond)

	returnsWithin(t, 100*time.Millisecond, "Start", func() {
		p.Start(update, sr400.ChannelB)
	})
	returnsWithin(t, 100*time.Millisecond, "SetInterval", func() {
		p.SetInterval(10 * time.Millisecond)
	})
	returnsWithin(t, 100*time.Millisecond, "Stop", p.Stop)
	assert.False(t, p.Running())

	require.NoError(t, <-acquired)
	p.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, got, "queries of a stopped poller must not report")
}

func TestPoller_SetInterval(t *testing.T) {
	dev := fastMock()
	p := NewPoller(dev, time.Hour)
	p.SetInterval(2 * time.Millisecond)

	var mu sync.Mutex
	n := 0
	p.Start(func(sr400.Channel, float64) {
		mu.Lock()
		defer mu.Unlock()
		n++
	}, sr400.ChannelA)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n >= 3
	}, time.Second, 2*time.Millisecond)

	p.Stop()
	p.Wait()
}
