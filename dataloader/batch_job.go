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

	"github.com/botobag/relay/concurrent"
	"github.com/botobag/relay/graphql"
)

// BatchLoadJob performs a batch load to fetch the documents required by a list of tasks.
type BatchLoadJob struct {
	ctx    context.Context
	loader *DataLoader

	// Tasks processed by this job stored in a linked list
	tasks TaskList
}

var _ concurrent.Task = (*BatchLoadJob)(nil)

// Run implements concurrent.Task, allowing a BatchLoadJob to be executed by a concurrent.Executor.
func (job *BatchLoadJob) Run() (interface{}, error) {
	loader := job.loader
	tasks := &job.tasks

	loader.config.BatchLoader.Load(job.ctx, tasks)

	// Make sure that all tasks were completed. If not, complete it with an error.
	for taskIter, taskEnd := tasks.Begin(), tasks.End(); taskIter != taskEnd; taskIter = taskIter.Next() {
		task := taskIter.Task
		if !task.Completed() {
			// complete only fails when another goroutine completes the task in between.
			task.SetError(graphql.NewError(
				fmt.Sprintf("%T must complete every task it is given but it doesn't complete the task "+
					"loading %v", loader.config.BatchLoader, task.Key()),
				graphql.Op("dataloader.BatchLoadJob.Run"),
				graphql.ErrKindInternal))
		}
		if task.err != nil {
			loader.evict(task)
		}
	}

	return nil, nil
}

// fail completes the tasks of a job that couldn't run.
func (job *BatchLoadJob) fail(err error) {
	tasks := &job.tasks
	for taskIter, taskEnd := tasks.Begin(), tasks.End(); taskIter != taskEnd; taskIter = taskIter.Next() {
		task := taskIter.Task
		task.SetError(err)
		job.loader.evict(task)
	}
}
