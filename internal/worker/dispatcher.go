package worker

import (
	"container/list"
	"context"
	"sync"
	"time"

	"postflow/internal/dialogue"
)

const defaultQueueSize = 64

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher fans inbound chat messages out to the pool. Each user has a
// FIFO queue and users take turns in LRU order, so one chatty user cannot
// starve the rest.
type Dispatcher struct {
	engine   *dialogue.Engine
	pool     *jobChannelPool
	jobQueue chan Job

	mu        sync.Mutex
	queues    map[int64]*userQueue
	ready     *list.List // user ids awaiting dispatch, LRU order
	positions map[int64]*list.Element
}

// NewDispatcher starts the scheduling loop with a warmed pool.
func NewDispatcher(engine *dialogue.Engine, cfg DispatcherConfig) *Dispatcher {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	d := &Dispatcher{
		engine:    engine,
		jobQueue:  make(chan Job, queueSize),
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
	}
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, time.Duration(cfg.WorkerIdleTimeout)*time.Minute, d.execute)
	d.pool.warmUp()

	go d.run()
	return d
}

// Process submits one inbound message and waits for its turn to be handled.
func (d *Dispatcher) Process(ctx context.Context, userID int64, message string) (*dialogue.Reply, error) {
	resultCh := make(chan Result, 1)
	job := Job{Ctx: ctx, UserID: userID, Message: message, resultCh: resultCh}
	select {
	case d.jobQueue <- job:
	default:
		return nil, ErrDispatcherBusy
	}
	res := <-resultCh
	return res.Reply, res.Err
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			// nothing queued: block until a job arrives
			job := <-d.jobQueue
			d.enqueueJob(job)
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	elem := d.ready.PushBack(job.UserID)
	d.positions[job.UserID] = elem
}

// dispatchOne pops the next job of the least recently served user and hands
// it to a pool worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, userID)
		delete(d.queues, userID)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	debugLog("[dispatcher] assign chat job for user %d", userID)
	workerChan <- job
	return true
}

func (d *Dispatcher) execute(job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	reply, err := d.engine.Handle(ctx, job.UserID, job.Message)
	if job.resultCh != nil {
		job.resultCh <- Result{Reply: reply, Err: err}
	}
}
