package location

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conequest/conequest-go/internal/model"
)

type countingSource struct {
	calls  int64
	sample model.LocationSample
	err    error
	delay  time.Duration
}

func (s *countingSource) Current(_ context.Context, _ string) (model.LocationSample, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return model.LocationSample{}, s.err
	}
	return s.sample, nil
}

func sampleAt(lat, lng float64) model.LocationSample {
	return model.LocationSample{Lat: lat, Lng: lng, CapturedAt: time.Now().UTC()}
}

func TestRecordAndLast(t *testing.T) {
	tr := NewTracker(nil, time.Minute)

	if tr.Last("u1") != nil {
		t.Fatal("no sample recorded yet")
	}
	tr.Record("u1", sampleAt(-36.9, 174.7))
	got := tr.Last("u1")
	if got == nil || got.Lat != -36.9 {
		t.Fatalf("last = %+v", got)
	}
	if tr.Last("u2") != nil {
		t.Fatal("samples must not leak across users")
	}
}

func TestRecordDropsInvalidSamples(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.Record("u1", sampleAt(120, 174.7))
	tr.Record("u1", sampleAt(-36.9, 400))
	tr.Record("", sampleAt(-36.9, 174.7))
	if tr.Last("u1") != nil {
		t.Fatal("invalid samples must be dropped")
	}
}

func TestRefreshServesFreshCacheWithoutSourceCall(t *testing.T) {
	src := &countingSource{sample: sampleAt(1, 2)}
	tr := NewTracker(src, time.Minute)
	tr.Record("u1", sampleAt(-36.9, 174.7))

	got, err := tr.Refresh(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Lat != -36.9 {
		t.Fatalf("refresh = %+v", got)
	}
	if atomic.LoadInt64(&src.calls) != 0 {
		t.Fatal("fresh cache should not hit the source")
	}
}

func TestRefreshHitsSourceWhenStale(t *testing.T) {
	src := &countingSource{sample: sampleAt(1, 2)}
	tr := NewTracker(src, time.Minute)
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Record("u1", sampleAt(-36.9, 174.7))
	tr.now = func() time.Time { return base.Add(2 * time.Minute) }

	got, err := tr.Refresh(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Lat != 1 {
		t.Fatalf("refresh = %+v", got)
	}
	if atomic.LoadInt64(&src.calls) != 1 {
		t.Fatalf("source calls = %d", src.calls)
	}
}

func TestRefreshCollapsesConcurrentCalls(t *testing.T) {
	src := &countingSource{sample: sampleAt(1, 2), delay: 20 * time.Millisecond}
	tr := NewTracker(src, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := tr.Refresh(context.Background(), "u1")
			if err != nil || got == nil {
				t.Errorf("refresh: got=%v err=%v", got, err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&src.calls); n != 1 {
		t.Fatalf("source calls = %d, want 1", n)
	}
}

func TestRefreshFallsBackToStaleOnSourceError(t *testing.T) {
	src := &countingSource{err: errors.New("provider down")}
	tr := NewTracker(src, time.Minute)
	base := time.Now()
	tr.now = func() time.Time { return base }
	tr.Record("u1", sampleAt(-36.9, 174.7))
	tr.now = func() time.Time { return base.Add(2 * time.Minute) }

	got, err := tr.Refresh(context.Background(), "u1")
	if err != nil {
		t.Fatal("stale sample should mask the source error")
	}
	if got == nil || got.Lat != -36.9 {
		t.Fatalf("refresh = %+v", got)
	}

	if _, err := tr.Refresh(context.Background(), "u2"); err == nil {
		t.Fatal("no cache and source down should surface the error")
	}
}

type streamingSource struct {
	countingSource
	stream chan model.LocationSample
}

func (s *streamingSource) Watch(_ context.Context, _ string) (<-chan model.LocationSample, error) {
	return s.stream, nil
}

func TestFollowRecordsStreamedSamples(t *testing.T) {
	src := &streamingSource{stream: make(chan model.LocationSample, 2)}
	tr := NewTracker(src, time.Minute)

	src.stream <- sampleAt(-36.9, 174.7)
	src.stream <- sampleAt(-36.8, 174.6)
	close(src.stream)

	if err := tr.Follow(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	got := tr.Last("u1")
	if got == nil || got.Lat != -36.8 {
		t.Fatalf("last = %+v, want final streamed sample", got)
	}
}

func TestFollowWithoutStreamingSource(t *testing.T) {
	tr := NewTracker(&countingSource{}, time.Minute)
	if err := tr.Follow(context.Background(), "u1"); !errors.Is(err, ErrNoStream) {
		t.Fatalf("err = %v, want ErrNoStream", err)
	}
}

func TestForget(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.Record("u1", sampleAt(-36.9, 174.7))
	tr.Forget("u1")
	if tr.Last("u1") != nil {
		t.Fatal("forget should drop the sample")
	}
}
