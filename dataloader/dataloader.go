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

// Package dataloader loads the normalization documents of @module fragments. A DataLoader collects
// the module references an environment asks for, hands them to a BatchLoader in batches and caches
// the loaded documents, so each document is fetched once no matter how many records select it.
//
// DataLoader implements environment.OperationLoader and environment.OperationPrefetcher: the
// modules found in one payload are prefetched together and loaded by a single batch.
package dataloader

import (
	"context"
	"fmt"
	"sync"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	"github.com/sirupsen/logrus"
)

// Key is an unique identifier of a document loaded by a DataLoader: the reference the server
// returned under a module's operation key. It must be comparable.
type Key interface{}

type taskQueue struct {
	tasks TaskList
}

func (queue *taskQueue) enqueue(cacheMap CacheMap, key Key) *Task {
	// Create a task.
	task := newTask(key)

	// Try to insert it into cache.
	if cacheMap != nil {
		cachedTask := cacheMap.Set(task)
		if cachedTask != task {
			// Task for the given key found in cache which has been enqueued. Return the cache one without
			// enqueuing.
			return cachedTask
		}
	}

	queue.tasks.push(task)
	return task
}

func (queue *taskQueue) Empty() bool {
	return queue.tasks.Empty()
}

// A DataLoader loads documents from a backend with module references.
type DataLoader struct {
	config *Config
	logger logrus.FieldLogger

	// Lock that guard accesses to queue
	queueMutex sync.Mutex

	// Queue containing the pending tasks for loading
	queue *taskQueue

	// cacheMap caches loaded documents. It is nil if the cache is disabled.
	cacheMap CacheMap
}

var errMissingKey = graphql.NewError("must specify the reference of the document to be loaded",
	graphql.Op("dataloader.Load"), graphql.ErrKindDocument)

// New creates a DataLoader instance from given config.
func New(config Config) (*DataLoader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Determine storage for cache.
	cacheMap := config.CacheMap
	if cacheMap == nil {
		cacheMap = &DefaultCacheMap{}
	} else if cacheMap == NoCacheMap {
		cacheMap = nil
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &DataLoader{
		config:   &config,
		logger:   logger,
		queue:    &taskQueue{},
		cacheMap: cacheMap,
	}, nil
}

// BatchLoader returns loader.config.BatchLoader.
func (loader *DataLoader) BatchLoader() BatchLoader {
	return loader.config.BatchLoader
}

// Enqueue returns the task loading the document of key. A key that is neither cached nor queued is
// added to the queue sent by the next Dispatch.
func (loader *DataLoader) Enqueue(key Key) (*Task, error) {
	if key == nil {
		return nil, errMissingKey
	}

	// Check cache.
	cacheMap := loader.cacheMap
	if cacheMap != nil {
		if task := cacheMap.Get(key); task != nil {
			return task, nil
		}
	}

	queueMutex := &loader.queueMutex
	queueMutex.Lock()
	task := loader.queue.enqueue(cacheMap, key)
	queueMutex.Unlock()

	return task, nil
}

// Prefetch queues the document of reference for the next batch. It implements
// environment.OperationPrefetcher.
func (loader *DataLoader) Prefetch(reference interface{}) {
	if _, err := loader.Enqueue(reference); err != nil {
		loader.logger.WithError(err).Warn("dataloader: cannot prefetch the document of a module")
	}
}

// Load returns the document of reference, dispatching the queue when the document isn't loaded yet.
// It implements environment.OperationLoader.
func (loader *DataLoader) Load(ctx context.Context, reference interface{}) (*document.Fragment, error) {
	task, err := loader.Enqueue(reference)
	if err != nil {
		return nil, err
	}

	if !task.Completed() {
		if err := loader.Dispatch(ctx); err != nil {
			return nil, err
		}
	}

	return task.Wait(ctx)
}

// Get returns the document of reference if it has been loaded.
func (loader *DataLoader) Get(reference interface{}) (*document.Fragment, bool) {
	cacheMap := loader.cacheMap
	if cacheMap == nil || reference == nil {
		return nil, false
	}
	task := cacheMap.Get(reference)
	if task == nil || !task.Completed() || task.err != nil {
		return nil, false
	}
	return task.fragment, true
}

// Dispatch sends the tasks in the queue as of the time this function is called to the BatchLoader,
// in batches of at most MaxBatchSize tasks.
func (loader *DataLoader) Dispatch(ctx context.Context) error {
	// Detach the queue from the loader.
	queueMutex := &loader.queueMutex
	queueMutex.Lock()
	queue := loader.queue
	if queue.Empty() {
		queueMutex.Unlock()
		return nil
	}
	loader.queue = &taskQueue{}
	queueMutex.Unlock()

	var firstErr error
	dispatch := func(tasks TaskList) {
		if err := loader.dispatchBatch(ctx, tasks); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	maxBatchSize := loader.config.MaxBatchSize
	if maxBatchSize == 0 {
		dispatch(queue.tasks)
		return firstErr
	}

	var (
		tasks = queue.tasks
		// tasks will be split into some small sub-lists each of which has at most maxBatchSize tasks.
		// firstTask marks the first task of the sub-list in current batch.
		firstTask = tasks.first
		task      = firstTask
		counter   = maxBatchSize
	)

	for task != nil {
		nextTask := task.next

		counter--
		if counter == 0 {
			dispatch(TaskList{
				first: firstTask,
				last:  task,
			})

			// Reset counter.
			counter = maxBatchSize
			// Next batch starts from nextTask.
			firstTask = nextTask
		}

		task = nextTask
	}

	// Dispatch the last batch.
	if firstTask != nil {
		dispatch(TaskList{
			first: firstTask,
			last:  tasks.last,
		})
	}

	return firstErr
}

func (loader *DataLoader) dispatchBatch(ctx context.Context, tasks TaskList) error {
	job := &BatchLoadJob{
		ctx:    ctx,
		loader: loader,
		tasks:  tasks,
	}

	runner := loader.config.Runner
	if runner == nil {
		// Run the job with current goroutine.
		_, err := job.Run()
		return err
	}

	if _, err := runner.Submit(job); err != nil {
		err = graphql.NewError(fmt.Sprintf("cannot schedule the load of %d documents", len(tasks.Keys())),
			graphql.Op("dataloader.Dispatch"), graphql.ErrKindInternal, err)
		job.fail(err)
		return err
	}
	return nil
}

// evict removes a failed task from the cache so that the next load tries again.
func (loader *DataLoader) evict(task *Task) {
	cacheMap := loader.cacheMap
	if cacheMap != nil && cacheMap.Get(task.Key()) == task {
		cacheMap.Delete(task.Key())
	}
}

// Clear the document for the given key from the cache.
func (loader *DataLoader) Clear(key Key) {
	cacheMap := loader.cacheMap
	if cacheMap != nil {
		cacheMap.Delete(key)
	}
}

// ClearAll clears the entire cache.
func (loader *DataLoader) ClearAll() {
	cacheMap := loader.cacheMap
	if cacheMap != nil {
		cacheMap.Clear()
	}
}

// Prime adds the provided key and document to the cache. If the key already exists, no change is
// made.
func (loader *DataLoader) Prime(key Key, fragment *document.Fragment) error {
	if key == nil {
		return errMissingKey
	}

	cacheMap := loader.cacheMap
	if cacheMap != nil {
		task := newTask(key)
		if err := task.Complete(fragment); err != nil {
			return err
		}
		cacheMap.Set(task)
	}

	return nil
}
