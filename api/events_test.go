package api

import (
	"sync"
	"testing"
	"time"
)

func TestTryPublishJobWaitsForCapacity(t *testing.T) {
	resetEventSenderForTests()
	t.Cleanup(resetEventSenderForTests)

	jobs = make(chan publishJob, 1)
	handoffTimeout = 50 * time.Millisecond

	jobs <- publishJob{}

	done := make(chan bool, 1)
	go func() {
		done <- tryPublishJob(publishJob{})
	}()

	select {
	case <-done:
		t.Fatal("tryPublishJob returned before capacity was freed")
	case <-time.After(20 * time.Millisecond):
	}

	<-jobs

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("expected successful publish after capacity freed")
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for publish completion")
	}
}

func TestTryPublishJobTimesOut(t *testing.T) {
	resetEventSenderForTests()
	t.Cleanup(resetEventSenderForTests)

	jobs = make(chan publishJob, 1)
	handoffTimeout = 30 * time.Millisecond

	jobs <- publishJob{}

	if tryPublishJob(publishJob{}) {
		t.Fatal("expected publish to fail when timeout elapsed")
	}

	select {
	case <-jobs:
	default:
		t.Fatal("expected channel to remain full after timeout")
	}
}

func TestTryPublishJobReturnsFalseWhenClosed(t *testing.T) {
	resetEventSenderForTests()
	t.Cleanup(resetEventSenderForTests)
	t.Cleanup(func() { jobs = nil })

	jobs = make(chan publishJob)
	close(jobs)

	if tryPublishJob(publishJob{}) {
		t.Fatal("expected publish to fail when channel is closed")
	}
}

func TestTryPublishJobNoWaitWhenZeroTimeout(t *testing.T) {
	resetEventSenderForTests()
	t.Cleanup(resetEventSenderForTests)

	jobs = make(chan publishJob, 1)
	handoffTimeout = 0

	jobs <- publishJob{}

	if tryPublishJob(publishJob{}) {
		t.Fatal("expected publish to fail when buffer full and no timeout")
	}

	<-jobs

	if !tryPublishJob(publishJob{}) {
		t.Fatal("expected publish to succeed when buffer has capacity")
	}
}

func TestTryPublishJobConcurrentWriters(t *testing.T) {
	resetEventSenderForTests()
	t.Cleanup(resetEventSenderForTests)

	jobs = make(chan publishJob, 2)
	handoffTimeout = 100 * time.Millisecond

	jobs <- publishJob{}
	jobs <- publishJob{}

	var wg sync.WaitGroup
	wg.Add(2)
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			results <- tryPublishJob(publishJob{})
		}()
	}

	time.Sleep(20 * time.Millisecond)

	<-jobs
	<-jobs

	wg.Wait()
	close(results)

	successCount := 0
	for r := range results {
		if r {
			successCount++
		}
	}

	if successCount != 2 {
		t.Fatalf("expected both publishes to succeed after capacity freed, got %d", successCount)
	}
}

func TestComputeWorkerDefaultsUsesQueueAndCPU(t *testing.T) {
	tests := []struct {
		name        string
		queue       int
		cpu         int
		wantWorkers int
		wantBuffer  int
	}{
		{name: "fallbacks", queue: 0, cpu: 1, wantWorkers: 32, wantBuffer: 4096},
		{name: "queue scaled", queue: 32, cpu: 4, wantWorkers: 128, wantBuffer: 16384},
		{name: "cpu scaled", queue: 4, cpu: 8, wantWorkers: 192, wantBuffer: 24576},
		{name: "clamped upper", queue: 200, cpu: 32, wantWorkers: 192, wantBuffer: 24576},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workers, buffer := computeWorkerDefaults(tt.queue, tt.cpu)
			if workers != tt.wantWorkers {
				t.Fatalf("workers mismatch: got %d want %d", workers, tt.wantWorkers)
			}
			if buffer != tt.wantBuffer {
				t.Fatalf("buffer mismatch: got %d want %d", buffer, tt.wantBuffer)
			}
		})
	}
}
