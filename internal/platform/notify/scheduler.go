package notify

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler schedules deferred retry attempts. It is injected so tests can
// substitute a deterministic implementation and assert retry counts.
type Scheduler interface {
	ScheduleAfter(delay time.Duration, fn func()) string
	Stop()
}

// TimerScheduler runs scheduled functions on standard library timers.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	nextID  int64
	stopped bool
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[string]*time.Timer)}
}

func (s *TimerScheduler) ScheduleAfter(delay time.Duration, fn func()) string {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ""
	}
	s.nextID++
	id := fmt.Sprintf("timer_%d", s.nextID)
	s.mu.Unlock()

	timer := time.AfterFunc(delay, func() {
		fn()
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
	})

	s.mu.Lock()
	if s.stopped {
		timer.Stop()
	} else {
		s.timers[id] = timer
	}
	s.mu.Unlock()
	return id
}

// Stop cancels every pending timer and rejects new ones.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// ImmediateScheduler executes scheduled functions synchronously. Test double.
type ImmediateScheduler struct {
	mu        sync.Mutex
	Scheduled int
	Delays    []time.Duration
}

func (s *ImmediateScheduler) ScheduleAfter(delay time.Duration, fn func()) string {
	s.mu.Lock()
	s.Scheduled++
	s.Delays = append(s.Delays, delay)
	id := fmt.Sprintf("immediate_%d", s.Scheduled)
	s.mu.Unlock()
	fn()
	return id
}

func (s *ImmediateScheduler) Stop() {}

// DroppingScheduler records scheduled retries without running them. Test
// double for asserting what would have been deferred.
type DroppingScheduler struct {
	mu        sync.Mutex
	Scheduled int
	Delays    []time.Duration
}

func (s *DroppingScheduler) ScheduleAfter(delay time.Duration, fn func()) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Scheduled++
	s.Delays = append(s.Delays, delay)
	return fmt.Sprintf("dropped_%d", s.Scheduled)
}

func (s *DroppingScheduler) Stop() {}
