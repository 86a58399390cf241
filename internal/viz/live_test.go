package viz

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFeedCapsHistory(t *testing.T) {
	f := NewFeed(1)
	for i := 0; i < historyCapacity+50; i++ {
		f.OnDraw(0, i, historyCapacity+50, 40, 0.5)
	}
	snap := f.snapshot()
	if len(snap.sigma[0]) != historyCapacity {
		t.Errorf("expected %d buffered draws, got %d", historyCapacity, len(snap.sigma[0]))
	}
	if snap.iter[0] != historyCapacity+50 {
		t.Errorf("iteration count not tracked: %d", snap.iter[0])
	}
}

func TestFeedConcurrentWriters(t *testing.T) {
	f := NewFeed(4)
	var wg sync.WaitGroup
	for c := 0; c < 4; c++ {
		wg.Add(1)
		go func(chain int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f.OnDraw(chain, i, 200, float64(chain), 0.1)
			}
		}(c)
	}
	wg.Wait()

	snap := f.snapshot()
	for c := 0; c < 4; c++ {
		if len(snap.intercept[c]) != 200 {
			t.Errorf("chain %d: expected 200 draws, got %d", c, len(snap.intercept[c]))
		}
	}
}

func TestFeedIgnoresUnknownChain(t *testing.T) {
	f := NewFeed(2)
	f.OnDraw(5, 0, 10, 1, 1)
	snap := f.snapshot()
	for c := range snap.intercept {
		if len(snap.intercept[c]) != 0 {
			t.Error("draw for unknown chain was recorded")
		}
	}
}

func TestProgressBar(t *testing.T) {
	if got := progressBar(5, 10, 10); got != "[=====-----]" {
		t.Errorf("unexpected bar: %q", got)
	}
	if got := progressBar(0, 0, 4); got != "[----]" {
		t.Errorf("unexpected empty bar: %q", got)
	}
	if got := progressBar(20, 10, 4); got != "[====]" {
		t.Errorf("bar overflowed: %q", got)
	}
}

func TestUpdateRecordsCompletion(t *testing.T) {
	f := NewFeed(1)
	f.OnDraw(0, 99, 100, 40, 0.5)

	done := make(chan error, 1)
	done <- nil

	m := NewModel("posterior sampling", f, done)
	next, _ := m.Update(TickMsg(time.Now()))

	got, ok := next.(Model)
	if !ok {
		t.Fatalf("unexpected model type %T", next)
	}
	if !got.Finished() {
		t.Error("completion not recorded after the sampler signalled")
	}
	if got.Err() != nil {
		t.Errorf("unexpected error: %v", got.Err())
	}
	if got.snap.iter[0] != 100 {
		t.Errorf("final snapshot not taken: iter=%d", got.snap.iter[0])
	}
}

func TestUpdateRecordsSamplerError(t *testing.T) {
	f := NewFeed(1)
	done := make(chan error, 1)
	done <- errors.New("chain diverged")

	m := NewModel("posterior sampling", f, done)
	next, _ := m.Update(TickMsg(time.Now()))

	got := next.(Model)
	if !got.Finished() {
		t.Error("completion not recorded on sampler error")
	}
	if got.Err() == nil {
		t.Error("sampler error was dropped")
	}
}

func TestUpdateKeepsRunningWithoutCompletion(t *testing.T) {
	f := NewFeed(1)
	m := NewModel("posterior sampling", f, make(chan error, 1))

	next, cmd := m.Update(TickMsg(time.Now()))
	got := next.(Model)
	if got.Finished() {
		t.Error("completion reported while the sampler is still running")
	}
	if cmd == nil {
		t.Error("expected the next tick to be scheduled")
	}
}

func TestViewShowsChains(t *testing.T) {
	f := NewFeed(2)
	for i := 0; i < 30; i++ {
		f.OnDraw(0, i, 100, 40+float64(i)/100, 0.5)
		f.OnDraw(1, i, 100, 40, 0.4)
	}

	m := NewModel("posterior sampling", f, make(chan error))
	m.snap = f.snapshot()

	view := m.View()
	for _, want := range []string{"POSTERIOR SAMPLING", "chain 0", "chain 1", "intercept", "sigma"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
