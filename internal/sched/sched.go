// Package sched is a small repeating-ticker / one-shot task runner, so
// components that need periodic work do not depend on any particular host
// event loop.
package sched

import (
	"sync"
	"time"
)

// Task is the handle to one scheduled job.
type Task struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Stop cancels the task and waits for an in-progress run to finish.
func (t *Task) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Scheduler owns a set of tasks and stops them together.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []*Task
	stopped bool
}

func New() *Scheduler {
	return &Scheduler{}
}

// Every runs fn on a fixed interval until the task or scheduler stops.
// The first run happens after one full interval.
func (s *Scheduler) Every(interval time.Duration, fn func()) *Task {
	t := s.newTask()
	if t == nil {
		return stoppedTask()
	}
	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return t
}

// After runs fn once after the delay, unless stopped first.
func (s *Scheduler) After(delay time.Duration, fn func()) *Task {
	t := s.newTask()
	if t == nil {
		return stoppedTask()
	}
	go func() {
		defer close(t.done)
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-t.stop:
		case <-timer.C:
			fn()
		}
	}()
	return t
}

// Stop cancels every task and waits for them. Tasks scheduled afterwards
// are rejected and never run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		t.Stop()
	}
}

func (s *Scheduler) newTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	t := &Task{stop: make(chan struct{}), done: make(chan struct{})}
	s.tasks = append(s.tasks, t)
	return t
}

func stoppedTask() *Task {
	t := &Task{stop: make(chan struct{}), done: make(chan struct{})}
	t.once.Do(func() { close(t.stop) })
	close(t.done)
	return t
}
