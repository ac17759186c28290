package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruleforge/ruleforge/pkg/core"
)

type fakeProber struct {
	mu       sync.Mutex
	ids      []core.SessionID
	probed   int32
	failFor  core.SessionID
}

func (f *fakeProber) SessionIDs() []core.SessionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.SessionID(nil), f.ids...)
}

func (f *fakeProber) Probe(_ context.Context, id core.SessionID) error {
	atomic.AddInt32(&f.probed, 1)
	if id == f.failFor {
		return context.DeadlineExceeded
	}
	return nil
}

func TestLoop_ProbesEverySession(t *testing.T) {
	prober := &fakeProber{ids: []core.SessionID{"s1", "s2", "s3"}}
	loop := New(prober, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if atomic.LoadInt32(&prober.probed) < 3 {
		t.Errorf("probed = %d, want at least 3", prober.probed)
	}
}

func TestLoop_ContinuesPastFailedProbe(t *testing.T) {
	prober := &fakeProber{ids: []core.SessionID{"s1", "s2"}, failFor: "s1"}
	loop := New(prober, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	loop.Run(ctx)

	if atomic.LoadInt32(&prober.probed) < 2 {
		t.Errorf("probed = %d, want at least 2", prober.probed)
	}
}
