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

// TaskQueueExecutor is a cooperative Executor. Submitted tasks are queued and only run when the
// owner drains the queue with RunNext or RunAll, on the owner's goroutine. It gives tests (and
// hosts with their own event loop) full control over when payloads are applied.
type TaskQueueExecutor struct {
	queue *taskQueue

	// Guards terminated.
	mutex      sync.Mutex
	terminated chan bool
}

var _ Executor = (*TaskQueueExecutor)(nil)

// NewTaskQueueExecutor creates an empty TaskQueueExecutor.
func NewTaskQueueExecutor() *TaskQueueExecutor {
	return &TaskQueueExecutor{
		queue: newTaskQueue(),
	}
}

// Submit implements Executor.
func (executor *TaskQueueExecutor) Submit(task Task) (TaskHandle, error) {
	t := newQueuedTask(task, executor.queue)
	if err := executor.queue.push(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Pending returns the number of tasks waiting to run.
func (executor *TaskQueueExecutor) Pending() int {
	return executor.queue.len()
}

// RunNext runs the oldest queued task. It returns false if there was nothing to run.
func (executor *TaskQueueExecutor) RunNext() bool {
	task := executor.queue.pop(false)
	if task == nil {
		return false
	}
	task.run()
	executor.maybeTerminate()
	return true
}

// RunAll runs queued tasks until the queue is empty, including tasks submitted by the tasks it
// runs. It returns the number of tasks run.
func (executor *TaskQueueExecutor) RunAll() int {
	n := 0
	for executor.RunNext() {
		n++
	}
	return n
}

// Shutdown implements Executor. Queued tasks still run when the queue is drained.
func (executor *TaskQueueExecutor) Shutdown() (<-chan bool, error) {
	executor.mutex.Lock()
	if executor.terminated == nil {
		executor.terminated = make(chan bool, 1)
	}
	terminated := executor.terminated
	executor.mutex.Unlock()

	executor.queue.close()
	executor.maybeTerminate()
	return terminated, nil
}

// maybeTerminate notifies the terminated channel once a shut-down executor has no queued tasks.
func (executor *TaskQueueExecutor) maybeTerminate() {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()

	if executor.terminated == nil || executor.queue.len() > 0 {
		return
	}
	select {
	case executor.terminated <- true:
	default:
	}
}
