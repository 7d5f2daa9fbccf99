package queue

import (
	"errors"
	"log"
	"sync"
)

// ErrClosed is returned by EnqueueJob once Shutdown has started.
var ErrClosed = errors.New("request queue: closed")

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager bounds how many requests a server handles at once.
// Callers block in EnqueueJob while the queue is full.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	shutdown sync.Once
}

func NewRequestQueueManager(queueSize int, maxWorkers int) *RequestQueueManager {
	if queueSize < 0 {
		queueSize = 0
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			for job := range rqm.JobQueue {
				err := job.Fn()
				if job.Errc != nil {
					job.Errc <- err
				}
			}
		}(i)
	}
	log.Printf("[queue] %d workers started, queue size %d", rqm.MaxWorkers, cap(rqm.JobQueue))
}

// EnqueueJob hands job to a worker. After Shutdown it fails fast instead
// of sending on a closed channel.
func (rqm *RequestQueueManager) EnqueueJob(job Job) error {
	rqm.mu.RLock()
	defer rqm.mu.RUnlock()
	if rqm.closed {
		return ErrClosed
	}
	rqm.JobQueue <- job
	return nil
}

// Depth is the number of jobs waiting for a worker.
func (rqm *RequestQueueManager) Depth() int {
	return len(rqm.JobQueue)
}

// Shutdown stops accepting jobs and waits for queued ones to finish. It is
// safe to call more than once.
func (rqm *RequestQueueManager) Shutdown() {
	rqm.shutdown.Do(func() {
		rqm.mu.Lock()
		rqm.closed = true
		close(rqm.JobQueue)
		rqm.mu.Unlock()
		rqm.wg.Wait()
		log.Printf("[queue] workers stopped")
	})
}
