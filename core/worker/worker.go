// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package worker provides managed background goroutines.
package worker

import "sync"

// Worker is a set of managed background go routines sharing one halt
// signal. The zero value is ready to use.
type Worker struct {
	sync.WaitGroup

	initOnce sync.Once
	haltCh   chan interface{}

	// lock orders Go against Halt so no go routine is added while Halt
	// waits.
	lock   sync.Mutex
	halted bool
}

// Go executes fn in a new go routine. fn is responsible for watching
// HaltCh and returning once it is closed. Go returns false without
// running fn once Halt has been called.
func (w *Worker) Go(fn func()) bool {
	w.initOnce.Do(w.init)
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.halted {
		return false
	}
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
	return true
}

// Halt signals every go routine started under the Worker to terminate
// and waits for them to return. Halt may be called more than once.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	w.lock.Lock()
	if !w.halted {
		w.halted = true
		close(w.haltCh)
	}
	w.lock.Unlock()
	w.Wait()
}

// HaltCh returns the channel that is closed by Halt.
func (w *Worker) HaltCh() <-chan interface{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

// IsHalted returns true once Halt has been called.
func (w *Worker) IsHalted() bool {
	select {
	case <-w.HaltCh():
		return true
	default:
		return false
	}
}

func (w *Worker) init() {
	w.haltCh = make(chan interface{})
}
