/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package concurrent

import (
	"sync"
)

// SerialExecutor runs submitted tasks one at a time, in submission order, on a dedicated
// goroutine. The goroutine starts with the executor and exits after Shutdown once the remaining
// tasks have run.
type SerialExecutor struct {
	queue      *taskQueue
	terminated chan bool
	shutdown   sync.Once
}

var _ Executor = (*SerialExecutor)(nil)

// NewSerialExecutor creates a SerialExecutor and starts its worker goroutine.
func NewSerialExecutor() *SerialExecutor {
	executor := &SerialExecutor{
		queue:      newTaskQueue(),
		terminated: make(chan bool, 1),
	}
	go executor.loop()
	return executor
}

func (executor *SerialExecutor) loop() {
	for {
		task := executor.queue.pop(true)
		if task == nil {
			// Closed and drained.
			executor.terminated <- true
			return
		}
		task.run()
	}
}

// Submit implements Executor.
func (executor *SerialExecutor) Submit(task Task) (TaskHandle, error) {
	t := newQueuedTask(task, executor.queue)
	if err := executor.queue.push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Shutdown implements Executor.
func (executor *SerialExecutor) Shutdown() (<-chan bool, error) {
	executor.shutdown.Do(func() {
		executor.queue.close()
	})
	return executor.terminated, nil
}
