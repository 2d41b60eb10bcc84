package api

import (
	"context"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/etow/task-tracker/domain"
)

type publishJob struct {
	userID string
	events []domain.Event
}

var (
	once           sync.Once
	jobs           chan publishJob
	workerCount    int
	jobBuf         int
	publishTimeout time.Duration
	handoffTimeout time.Duration
	bg             = context.Background()
	globalSink     EventSink
	globalLog      *log.Logger
	workerWG       sync.WaitGroup
)

// shutdownEventSender stops worker goroutines and clears shared state. It is intended for tests.
func shutdownEventSender() {
	if jobs != nil {
		close(jobs)
		jobs = nil
	}

	workerWG.Wait()

	globalSink = nil
	globalLog = nil
	workerCount = 0
	jobBuf = 0
	publishTimeout = 0
	handoffTimeout = 0
	once = sync.Once{}
	workerWG = sync.WaitGroup{}
}

// computeWorkerDefaults sizes the sender pool from the expected queue
// depth and available CPUs, clamped to [32, 192] workers with a buffer
// of 128 jobs per worker.
func computeWorkerDefaults(queueDepth, cpus int) (workers, buffer int) {
	workers = queueDepth * 4
	if byCPU := cpus * 24; byCPU > workers {
		workers = byCPU
	}
	if workers < 32 {
		workers = 32
	}
	if workers > 192 {
		workers = 192
	}
	return workers, workers * 128
}

func initEventSender(sink EventSink, log *log.Logger) {
	once.Do(func() {
		globalSink = sink
		if log == nil {
			panic("Logger is not initialized")
		}
		globalLog = log

		defWorkers, defBuf := computeWorkerDefaults(0, runtime.NumCPU())
		workerCount = envInt("EVENT_WORKERS", defWorkers)
		jobBuf = envInt("EVENT_BUFFER", defBuf)
		publishTimeout = envDur("EVENT_PUBLISH_TIMEOUT", 60*time.Second)
		handoffTimeout = envDur("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond)

		jobs = make(chan publishJob, jobBuf)
		for i := 0; i < workerCount; i++ {
			workerWG.Add(1)
			go worker(i, jobs)
		}
		globalLog.Infof("event sender started, workers: %d, buffer: %d, timeout: %v, handoff: %v", workerCount, jobBuf, publishTimeout, handoffTimeout)
	})
}

func worker(id int, jobCh <-chan publishJob) {
	defer workerWG.Done()
	for j := range jobCh {
		ctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := globalSink.EnqueueEvents(ctx, j.userID, j.events)
		cancel()

		if err != nil {
			globalLog.Errorf("event publish failed, err: %v, user: %s, count: %d, worker: %d", err, j.userID, len(j.events), id)
		}
	}
}

func tryPublishJob(job publishJob) bool {
	if jobs == nil {
		return false
	}

	if ok, closed := trySendNonBlocking(jobs, job); closed {
		return false
	} else if ok {
		return true
	}

	if handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(handoffTimeout)
	defer timer.Stop()

	ok, closed := sendWithTimer(jobs, job, timer.C)
	if closed {
		return false
	}
	return ok
}

func trySendNonBlocking(ch chan publishJob, job publishJob) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan publishJob, job publishJob, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- job:
		return true, false
	case <-timer:
		return false, false
	}
}

// publishTaskEvents hands committed task events to the sender pool and
// falls back to a synchronous publish when the buffer is saturated.
// Delivery is best effort; the board mutation has already been persisted.
func publishTaskEvents(userID, eventType string, tasks ...domain.Task) {
	if len(tasks) == 0 {
		return
	}

	events := make([]domain.Event, 0, len(tasks))
	start := nextTimestampRange(len(tasks))
	for i, task := range tasks {
		ev, err := domain.NewTaskEvent(eventType, userID, task, start+int64(i))
		if err != nil {
			if globalLog != nil {
				globalLog.Errorf("event encode failed, err: %v, task: %s", err, task.ID)
			}
			continue
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return
	}

	job := publishJob{userID: userID, events: events}
	if tryPublishJob(job) {
		return
	}

	if globalSink == nil {
		return
	}
	if globalLog != nil {
		globalLog.Warn("event buffer saturated; publishing inline")
	}

	ctx, cancel := context.WithTimeout(bg, publishTimeout)
	defer cancel()
	if err := globalSink.EnqueueEvents(ctx, userID, job.events); err != nil {
		globalLog.Errorf("inline event publish failed, err: %v, user: %s, count: %d", err, userID, len(job.events))
	}
}
