package scanner

import (
	"fmt"
	"sync"

	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/errors"
)

// ScanJob represents a scanning job for the worker pool containing the file
// path to load and a result channel for asynchronous communication.
type ScanJob struct {
	filePath string
	result   chan<- ScanResult
}

// ScanResult is the outcome of preparing one file. doc is set when the
// file changed and parsed cleanly.
type ScanResult struct {
	filePath string
	outcome  outcome
	doc      *document.Document
	hash     uint32
	err      error
}

type outcome uint8

const (
	outcomeRegistered outcome = iota
	outcomeUnchanged
)

// WorkerPool runs persistent loader workers fed from a shared job queue.
type WorkerPool struct {
	jobQueue    chan ScanJob
	workerCount int
	stop        chan struct{}
	stopped     bool
	wg          sync.WaitGroup
	mu          sync.Mutex
}

// NewWorkerPool starts workerCount workers that prepare files with load.
func NewWorkerPool(workerCount int, load func(path string) ScanResult) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	pool := &WorkerPool{
		jobQueue:    make(chan ScanJob, workerCount*2),
		workerCount: workerCount,
		stop:        make(chan struct{}),
	}

	pool.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer pool.wg.Done()
			for {
				select {
				case job := <-pool.jobQueue:
					job.result <- safeLoad(load, job.filePath)
				case <-pool.stop:
					return
				}
			}
		}()
	}

	return pool
}

// safeLoad turns a panic while loading path into an internal error so one
// bad file cannot take the workers down.
func safeLoad(load func(path string) ScanResult, path string) (res ScanResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ScanResult{filePath: path, err: errors.NewInternalError(errors.ErrCodeInternalError,
				"panic while loading template", fmt.Errorf("%v", r)).WithFile(path)}
		}
	}()
	return load(path)
}

// submit queues job, reporting false when the queue is full or the pool
// has stopped.
func (p *WorkerPool) submit(job ScanJob) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

// Stop shuts the workers down and waits for them to exit.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.stop)
	p.mu.Unlock()

	p.wg.Wait()
}
