/*
Copyright © 2024 the Pan3D authors.
This file is part of Pan3D.

Pan3D is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Pan3D is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Pan3D.  If not, see <http://www.gnu.org/licenses/>.
*/

package viewer

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Loop runs tasks one at a time, in the order they were dispatched, on
// a single goroutine. All access to a DatasetViewer's state and plotter
// happens on its Loop.
type Loop struct {
	Log logrus.FieldLogger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLoop starts a Loop.
func NewLoop() *Loop {
	l := &Loop{
		Log:  logrus.StandardLogger(),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Dispatch queues fn to run on the loop and returns immediately. It may
// be called from any goroutine, including the loop itself. It returns
// false if the loop has been stopped.
func (l *Loop) Dispatch(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync runs fn on the loop and waits for it to return. It must not be
// called from the loop.
func (l *Loop) Sync(fn func()) {
	finished := make(chan struct{})
	if !l.Dispatch(func() {
		defer close(finished)
		fn()
	}) {
		return
	}
	select {
	case <-finished:
	case <-l.done:
	}
}

// Stop stops the loop. Queued tasks that have not started are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.stopped {
		l.stopped = true
		close(l.done)
	}
}

func (l *Loop) run() {
	for {
		select {
		case <-l.wake:
		case <-l.done:
			return
		}
		for {
			l.mu.Lock()
			if l.stopped || len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.do(fn)
		}
	}
}

func (l *Loop) do(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.Log.WithField("panic", r).Error("viewer: task panicked")
		}
	}()
	fn()
}
