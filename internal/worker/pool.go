package worker

import (
	"sync"
	"time"
)

type workerMeta struct {
	ch       chan Job
	lastUsed time.Time
	idle     bool
}

// jobChannelPool hands out per-worker job channels, growing up to max under
// load and retiring workers that sit idle past the expiry.
type jobChannelPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	min      int
	max      int
	running  int
	expiry   time.Duration
	execFn   func(Job)
}

const defaultWorkerIdle = 30 * time.Second

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration, execFn func(Job)) *jobChannelPool {
	if minWorkers < 1 {
		minWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	p := &jobChannelPool{
		min:    minWorkers,
		max:    maxWorkers,
		expiry: idle,
		execFn: execFn,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// warmUp pre-spawns the minimum worker count.
func (p *jobChannelPool) warmUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.running < p.min {
		m := p.spawnLocked()
		m.idle = true
		p.idle = append(p.idle, m)
	}
}

// acquire returns a worker channel ready to take exactly one job, blocking
// when the pool is saturated.
func (p *jobChannelPool) acquire() chan Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if n := len(p.idle); n > 0 {
			m := p.idle[n-1]
			p.idle = p.idle[:n-1]
			m.idle = false
			return m.ch
		}
		if p.running < p.max {
			return p.spawnLocked().ch
		}
		p.cond.Wait()
	}
}

func (p *jobChannelPool) spawnLocked() *workerMeta {
	m := &workerMeta{ch: make(chan Job)}
	p.running++
	go p.runWorker(m)
	return m
}

func (p *jobChannelPool) runWorker(m *workerMeta) {
	timer := time.NewTimer(p.expiry)
	defer timer.Stop()
	for {
		select {
		case job := <-m.ch:
			p.execFn(job)
			p.release(m)
		case <-timer.C:
			if p.retire(m) {
				return
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.expiry)
	}
}

func (p *jobChannelPool) release(m *workerMeta) {
	p.mu.Lock()
	m.lastUsed = time.Now()
	m.idle = true
	p.idle = append(p.idle, m)
	p.cond.Signal()
	p.mu.Unlock()
}

// retire removes an idle worker beyond the minimum. A worker that was
// acquired between the timeout firing and this check stays alive.
func (p *jobChannelPool) retire(m *workerMeta) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !m.idle || p.running <= p.min {
		return false
	}
	for i, cand := range p.idle {
		if cand == m {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			p.running--
			return true
		}
	}
	return false
}
