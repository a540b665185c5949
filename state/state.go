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

// Package state holds the flat key-value state shared by a dataset viewer
// and the browser clients connected to it. Writes mark keys as changed,
// and the listeners registered for those keys run after each write or
// after the outermost batch of writes completes.
//
// Writes, listeners, OnChange and Subscribe must all run on one
// goroutine (see viewer.Loop). Reads through Get, the typed getters and
// Snapshot are safe from any goroutine.
package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// maxFlushRounds bounds how many times listeners may re-trigger each
// other within one flush.
const maxFlushRounds = 64

// A Listener is called with the keys that changed, in the order they
// were first written.
type Listener func(changed []string)

type listener struct {
	id   int
	keys map[string]bool // nil matches every key
	fn   Listener
}

// State is a reactive key-value store.
type State struct {
	Log logrus.FieldLogger

	mu     sync.RWMutex
	values map[string]interface{}

	listeners   []listener
	subscribers map[int]func(patch map[string]interface{})
	nextID      int

	depth    int
	flushing bool
	pending  []string
	isDirty  map[string]bool
}

// New returns a State holding a copy of initial.
func New(initial map[string]interface{}) *State {
	s := &State{
		Log:         logrus.StandardLogger(),
		values:      make(map[string]interface{}, len(initial)),
		subscribers: make(map[int]func(map[string]interface{})),
		isDirty:     make(map[string]bool),
	}
	for k, v := range initial {
		s.values[k] = v
	}
	return s
}

// Get returns the value of key, or nil.
func (s *State) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Has returns whether key holds a non-nil value.
func (s *State) Has(key string) bool { return s.Get(key) != nil }

// String returns the value of key converted to a string. Nil is "".
func (s *State) String(key string) string { return cast.ToString(s.Get(key)) }

// Bool returns the value of key converted to a bool.
func (s *State) Bool(key string) bool { return cast.ToBool(s.Get(key)) }

// Int returns the value of key converted to an int.
func (s *State) Int(key string) int { return cast.ToInt(s.Get(key)) }

// Float64 returns the value of key converted to a float64.
func (s *State) Float64(key string) float64 { return cast.ToFloat64(s.Get(key)) }

// Strings returns the value of key converted to a string slice.
func (s *State) Strings(key string) []string { return cast.ToStringSlice(s.Get(key)) }

// Decode stores the value of key in v, which must be a pointer, by
// converting it through JSON. It is used for values written by
// clients, which arrive as generic maps and slices.
func (s *State) Decode(key string, v interface{}) error {
	b, err := json.Marshal(s.Get(key))
	if err != nil {
		return fmt.Errorf("state: encoding %s: %v", key, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("state: decoding %s: %v", key, err)
	}
	return nil
}

// Snapshot returns a shallow copy of all values.
func (s *State) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		o[k] = v
	}
	return o
}

// Set sets key to v. Nothing changes if the current value is deeply
// equal to v.
func (s *State) Set(key string, v interface{}) {
	s.Change(func() { s.set(key, v) })
}

// Update sets several keys at once; listeners run once for the batch.
func (s *State) Update(values map[string]interface{}) {
	s.Change(func() {
		for k, v := range values {
			s.set(k, v)
		}
	})
}

func (s *State) set(key string, v interface{}) {
	s.mu.Lock()
	old, ok := s.values[key]
	if ok && reflect.DeepEqual(old, v) {
		s.mu.Unlock()
		return
	}
	s.values[key] = v
	s.mu.Unlock()
	s.markDirty(key)
}

// Dirty marks keys as changed without writing them, for values that
// were modified in place.
func (s *State) Dirty(keys ...string) {
	s.Change(func() {
		for _, k := range keys {
			s.markDirty(k)
		}
	})
}

func (s *State) markDirty(key string) {
	if !s.isDirty[key] {
		s.isDirty[key] = true
		s.pending = append(s.pending, key)
	}
}

// Change runs fn as a batch: listeners for keys written inside fn run
// once, after the outermost batch returns.
func (s *State) Change(fn func()) {
	s.depth++
	func() {
		defer func() { s.depth-- }()
		fn()
	}()
	if s.depth == 0 && !s.flushing {
		s.flush()
	}
}

// flush calls the listeners for pending keys until no keys are pending.
func (s *State) flush() {
	s.flushing = true
	defer func() { s.flushing = false }()
	for round := 0; len(s.pending) > 0; round++ {
		if round == maxFlushRounds {
			s.Log.WithField("keys", s.pending).Error("state: listeners keep changing state; dropping changes")
			s.pending = nil
			s.isDirty = make(map[string]bool)
			return
		}
		changed := s.pending
		s.pending = nil
		s.isDirty = make(map[string]bool)

		s.publish(changed)
		for _, l := range append([]listener(nil), s.listeners...) {
			if keys := l.match(changed); len(keys) > 0 {
				l.fn(keys)
			}
		}
	}
}

func (l listener) match(changed []string) []string {
	if l.keys == nil {
		return changed
	}
	var o []string
	for _, k := range changed {
		if l.keys[k] {
			o = append(o, k)
		}
	}
	return o
}

func (s *State) publish(changed []string) {
	if len(s.subscribers) == 0 {
		return
	}
	patch := make(map[string]interface{}, len(changed))
	s.mu.RLock()
	for _, k := range changed {
		patch[k] = s.values[k]
	}
	s.mu.RUnlock()
	for _, fn := range s.subscribers {
		fn(patch)
	}
}

// OnChange registers fn to be called when any of keys changes, or when
// any key changes if none are given. The returned function removes it.
func (s *State) OnChange(fn Listener, keys ...string) (remove func()) {
	l := listener{id: s.nextID, fn: fn}
	s.nextID++
	if len(keys) > 0 {
		l.keys = make(map[string]bool, len(keys))
		for _, k := range keys {
			l.keys[k] = true
		}
	}
	s.listeners = append(s.listeners, l)
	return func() {
		for i, x := range s.listeners {
			if x.id == l.id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Subscribe registers fn to receive the changed keys and their new
// values after every batch, before listeners run. fn is called on the
// writing goroutine and must not modify the patch or the state.
func (s *State) Subscribe(fn func(patch map[string]interface{})) (cancel func()) {
	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn
	return func() { delete(s.subscribers, id) }
}
