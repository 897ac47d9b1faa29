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

package dataloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
)

//===----------------------------------------------------------------------------------------====//
// Task
//===----------------------------------------------------------------------------------------====//

// Task specifies the module reference for BatchLoader to load and provides storage to write the
// document on completion. A task can be completed only once with either Complete or SetError.
type Task struct {
	key Key

	// Guards completion; done is closed once fragment or err is set.
	mutex    sync.Mutex
	done     chan struct{}
	fragment *document.Fragment
	err      error

	// The next task in the list
	next *Task
}

func newTask(key Key) *Task {
	return &Task{
		key:  key,
		done: make(chan struct{}),
	}
}

// Key returns t.key.
func (t *Task) Key() Key {
	return t.key
}

func (t *Task) complete(fragment *document.Fragment, err error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Completed() {
		return graphql.NewError(
			fmt.Sprintf("task loading %v was already completed", t.key),
			graphql.Op("dataloader.Task.complete"),
			graphql.ErrKindInternal)
	}

	t.fragment = fragment
	t.err = err
	close(t.done)
	return nil
}

// Complete the task with the loaded document.
func (t *Task) Complete(fragment *document.Fragment) error {
	return t.complete(fragment, nil)
}

// SetError completes the task with an error value.
func (t *Task) SetError(err error) error {
	return t.complete(nil, err)
}

// Completed returns true if the task has been completed (with either a document or an error.)
func (t *Task) Completed() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the task completes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*document.Fragment, error) {
	if t.Completed() {
		return t.fragment, t.err
	}
	select {
	case <-t.done:
		return t.fragment, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

//===----------------------------------------------------------------------------------------====//
// TaskList
//===----------------------------------------------------------------------------------------====//

// TaskList represents a list of Task's stored in a linked list from begin (included) to the end
// (excluded). It provides an iterator to access the Task's in the list.
type TaskList struct {
	first *Task
	last  *Task
}

// Begin returns an iterator pointing to the first task in the list.
func (tasks *TaskList) Begin() TaskIterator {
	return TaskIterator{tasks.first}
}

// End returns an iterator refers to the pass-to-the-end task in the list.
func (tasks *TaskList) End() TaskIterator {
	if tasks.last != nil {
		return TaskIterator{tasks.last.next}
	}
	return TaskIterator{nil}
}

// Empty returns true if the TaskList doesn't contain any tasks.
func (tasks *TaskList) Empty() bool {
	return tasks.first == nil
}

// Keys returns the keys of the tasks in order.
func (tasks *TaskList) Keys() []Key {
	var keys []Key
	for taskIter, taskEnd := tasks.Begin(), tasks.End(); taskIter != taskEnd; taskIter = taskIter.Next() {
		keys = append(keys, taskIter.Task.Key())
	}
	return keys
}

// push appends a task at the end of the list. This is an internal method make a task list
// externally immutable.
func (tasks *TaskList) push(task *Task) {
	last := tasks.last
	if last == nil {
		tasks.first = task
	} else {
		last.next = task
	}
	tasks.last = task
}

// TaskIterator is used to access Task in a TaskList.
//
// Example:
//
//	for taskIter, taskEnd := tasks.Begin(), tasks.End(); taskIter != taskEnd; taskIter = taskIter.Next() {
//		task := taskIter.Task
//		...
//	}
type TaskIterator struct {
	// The referring task by this iterator
	*Task
}

// Next returns a TaskIterator that refers to the Task next to the one referred by iter in the list.
// Note that it is an undefined behavior if iter doesn't refer to one of the task in the corresponding
// TaskList.
func (iter TaskIterator) Next() TaskIterator {
	return TaskIterator{iter.Task.next}
}
