package worker

import (
	"sync"
	"testing"
	"time"
)

func poolCounts(p *jobChannelPool) (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

func TestPoolWarmUp(t *testing.T) {
	p := newJobChannelPool(2, 4, time.Minute, func(Job) {})
	p.warmUp()
	running, idle := poolCounts(p)
	if running != 2 || idle != 2 {
		t.Fatalf("after warmUp: running=%d idle=%d, want 2/2", running, idle)
	}
}

func TestPoolGrowsAndBlocksAtMax(t *testing.T) {
	gate := make(chan struct{})
	var done sync.WaitGroup
	p := newJobChannelPool(1, 3, time.Minute, func(Job) {
		<-gate
		done.Done()
	})
	p.warmUp()

	// Occupy every slot up to max.
	for i := 0; i < 3; i++ {
		done.Add(1)
		p.acquire() <- Job{}
	}
	if running, _ := poolCounts(p); running != 3 {
		t.Fatalf("running = %d, want 3", running)
	}

	// A fourth acquire must block until a worker frees up.
	acquired := make(chan chan Job)
	go func() { acquired <- p.acquire() }()
	select {
	case <-acquired:
		t.Fatalf("acquire returned beyond max workers")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case ch := <-acquired:
		done.Add(1)
		ch <- Job{}
	case <-time.After(time.Second):
		t.Fatalf("acquire did not unblock after release")
	}
	done.Wait()
}

func TestPoolRetiresIdleWorkersDownToMin(t *testing.T) {
	gate := make(chan struct{})
	var done sync.WaitGroup
	p := newJobChannelPool(1, 3, 20*time.Millisecond, func(Job) {
		<-gate
		done.Done()
	})
	p.warmUp()

	for i := 0; i < 3; i++ {
		done.Add(1)
		p.acquire() <- Job{}
	}
	close(gate)
	done.Wait()

	deadline := time.After(2 * time.Second)
	for {
		if running, _ := poolCounts(p); running == 1 {
			return
		}
		select {
		case <-deadline:
			running, _ := poolCounts(p)
			t.Fatalf("running = %d after idle period, want 1", running)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPoolReusesReleasedWorker(t *testing.T) {
	var mu sync.Mutex
	executed := 0
	var done sync.WaitGroup
	p := newJobChannelPool(1, 1, time.Minute, func(Job) {
		mu.Lock()
		executed++
		mu.Unlock()
		done.Done()
	})
	p.warmUp()

	for i := 0; i < 5; i++ {
		done.Add(1)
		p.acquire() <- Job{}
	}
	done.Wait()

	mu.Lock()
	defer mu.Unlock()
	if executed != 5 {
		t.Fatalf("executed = %d, want 5", executed)
	}
	if running, _ := poolCounts(p); running != 1 {
		t.Fatalf("single-worker pool grew to %d", running)
	}
}
