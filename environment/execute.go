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

package environment

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/botobag/relay/concurrent"
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/network"
	"github.com/botobag/relay/normalizer"

	"github.com/sirupsen/logrus"
)

// Execute sends request through the network and writes its payloads into the committed records.
// Every payload is passed on to sink after it was written. A query whose data is all in the store
// completes without a request unless request.CacheConfig.Force is set.
//
// Disposing the returned Disposable stops the delivery of payloads. Payloads already written stay.
func (env *Environment) Execute(ctx context.Context, request *network.Request, sink network.Sink) Disposable {
	selector := document.NewOperationSelector(request.Operation, request.Variables)

	if request.Operation.Kind == document.OperationQuery && !request.CacheConfig.Force {
		if result := env.Check(selector); !result.MissingData && len(result.PendingNodeStates) == 0 {
			sink.Complete()
			return DisposableFunc(func() {})
		}
	}

	exec := &execution{
		env:      env,
		ctx:      ctx,
		selector: selector,
		sink:     sink,
		logger:   env.logger.WithField("operation", request.Operation.Name),
	}

	// Payloads must be written with the variables the selector resolved.
	request = &network.Request{
		Operation:   request.Operation,
		Variables:   selector.Variables,
		CacheConfig: request.CacheConfig,
	}
	sub := env.config.Network.Execute(ctx, request).Subscribe(exec)

	exec.mutex.Lock()
	exec.subscription = sub
	exec.mutex.Unlock()
	if exec.disposed.Load() {
		sub.Unsubscribe()
	}
	return exec
}

// execution applies the payloads of one request.
type execution struct {
	env      *Environment
	ctx      context.Context
	selector document.Selector
	sink     network.Sink
	logger   logrus.FieldLogger

	// Guarded by env.mutex.
	placeholders []*normalizer.IncrementalPlaceholder

	disposed atomic.Bool

	mutex          sync.Mutex
	subscription   network.Subscription
	tasks          []concurrent.TaskHandle
	pendingModules int
	completed      bool
	finished       bool
}

var (
	_ network.Sink = (*execution)(nil)
	_ Disposable   = (*execution)(nil)
)

// Next implements network.Sink.
func (exec *execution) Next(payload *network.Payload) {
	exec.schedule(func() {
		exec.processPayload(payload)
	})
}

// Error implements network.Sink.
func (exec *execution) Error(err error) {
	exec.schedule(func() {
		exec.fail(err)
	})
}

// Complete implements network.Sink.
func (exec *execution) Complete() {
	exec.schedule(func() {
		exec.mutex.Lock()
		exec.completed = true
		exec.mutex.Unlock()
		exec.maybeComplete()
	})
}

// Dispose implements Disposable.
func (exec *execution) Dispose() {
	if exec.disposed.Swap(true) {
		return
	}

	exec.mutex.Lock()
	sub := exec.subscription
	tasks := exec.tasks
	exec.tasks = nil
	exec.mutex.Unlock()

	for _, task := range tasks {
		// Tasks already running check disposed.
		task.Cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
}

// schedule runs fn inline or in a task of the configured executor. It returns the handle of the
// task, or nil if fn already ran or could not be scheduled.
func (env *Environment) schedule(fn func(), logger logrus.FieldLogger) concurrent.TaskHandle {
	executor := env.config.Executor
	if executor == nil {
		fn()
		return nil
	}

	handle, err := executor.Submit(concurrent.TaskFunc(func() (interface{}, error) {
		fn()
		return nil, nil
	}))
	if err != nil {
		logger.WithError(err).Warn("environment: cannot schedule the processing of a payload")
		return nil
	}
	return handle
}

func (exec *execution) schedule(fn func()) {
	handle := exec.env.schedule(func() {
		if !exec.disposed.Load() {
			fn()
		}
	}, exec.logger)
	if handle == nil {
		return
	}

	exec.mutex.Lock()
	exec.tasks = append(exec.tasks, handle)
	exec.mutex.Unlock()
}

func (exec *execution) hasPlaceholder(chunk *normalizer.Chunk) bool {
	for _, placeholder := range exec.placeholders {
		if placeholder.Matches(chunk) {
			return true
		}
	}
	return false
}

func (exec *execution) isFinished() bool {
	exec.mutex.Lock()
	defer exec.mutex.Unlock()
	return exec.finished
}

func (exec *execution) processPayload(payload *network.Payload) {
	if exec.disposed.Load() || exec.isFinished() {
		return
	}
	if payload.Errors.HaveOccurred() && payload.Data == nil {
		exec.fail(payload.Errors)
		return
	}

	env := exec.env
	var imports []*normalizer.ModuleImportPayload
	err := env.update(func() error {
		writer := env.newBaseWriter()
		defer env.touch(writer)

		var (
			result *normalizer.Result
			err    error
		)
		if payload.IsIncremental() {
			chunk := &normalizer.Chunk{
				Data:  payload.Data,
				Label: payload.Label,
				Path:  payload.Path,
			}
			if !exec.hasPlaceholder(chunk) {
				env.metrics.DroppedIncrementalPayloads.Inc()
				exec.logger.WithFields(logrus.Fields{
					"label": chunk.Label,
					"path":  chunk.Path.String(),
				}).Warn("environment: incremental payload arrived before its deferred selection was processed; it is ignored")
				return nil
			}
			result, err = normalizer.WriteIncremental(writer, exec.placeholders, chunk, normalizer.Options{
				Logger: exec.logger,
			})
		} else {
			data := payload.DataObject()
			if data == nil {
				return nil
			}
			result, err = normalizer.Write(writer, exec.selector, data, normalizer.Options{
				Logger: exec.logger,
			})
		}

		if result != nil {
			exec.placeholders = append(exec.placeholders, result.IncrementalPlaceholders...)
			imports = result.ModuleImports
		}
		return err
	})
	if err != nil {
		exec.fail(err)
		return
	}

	exec.sink.Next(payload)
	exec.loadModules(imports)
}

// loadModules schedules the writing of the data of @module fragments once their normalization
// documents are loaded.
func (exec *execution) loadModules(imports []*normalizer.ModuleImportPayload) {
	if len(imports) == 0 {
		return
	}

	exec.mutex.Lock()
	exec.pendingModules += len(imports)
	exec.mutex.Unlock()

	if prefetcher, ok := exec.env.config.OperationLoader.(OperationPrefetcher); ok {
		for _, moduleImport := range imports {
			prefetcher.Prefetch(moduleImport.OperationReference)
		}
	}

	for _, moduleImport := range imports {
		moduleImport := moduleImport
		exec.schedule(func() {
			exec.processModule(moduleImport)
		})
	}
}

func (exec *execution) processModule(moduleImport *normalizer.ModuleImportPayload) {
	nested, err := exec.writeModule(moduleImport)

	exec.mutex.Lock()
	exec.pendingModules--
	exec.mutex.Unlock()

	if err != nil {
		exec.fail(err)
		return
	}
	exec.loadModules(nested)
	exec.maybeComplete()
}

func (exec *execution) writeModule(
	moduleImport *normalizer.ModuleImportPayload) ([]*normalizer.ModuleImportPayload, error) {

	logger := exec.logger.WithFields(logrus.Fields{
		"dataID":   moduleImport.DataID,
		"fragment": moduleImport.FragmentName,
	})

	loader := exec.env.config.OperationLoader
	if loader == nil {
		logger.Warn("environment: no operation loader to load the document of a module; its data is ignored")
		return nil, nil
	}

	fragment, err := loader.Load(exec.ctx, moduleImport.OperationReference)
	if err != nil {
		return nil, graphql.NewError("cannot load the document of a module", graphql.Op("environment.Execute"), err)
	}
	if fragment == nil {
		logger.Warn("environment: the loader returned no document for a module; its data is ignored")
		return nil, nil
	}

	env := exec.env
	var nested []*normalizer.ModuleImportPayload
	err = env.update(func() error {
		writer := env.newBaseWriter()
		defer env.touch(writer)

		selector := document.NewFragmentSelector(fragment, moduleImport.DataID, moduleImport.Variables)
		result, err := normalizer.Write(writer, selector, moduleImport.Data, normalizer.Options{
			Logger: exec.logger,
			Path:   moduleImport.Path,
		})
		if result != nil {
			exec.placeholders = append(exec.placeholders, result.IncrementalPlaceholders...)
			nested = result.ModuleImports
		}
		return err
	})
	return nested, err
}

func (exec *execution) maybeComplete() {
	exec.mutex.Lock()
	done := exec.completed && exec.pendingModules == 0 && !exec.finished
	if done {
		exec.finished = true
	}
	exec.mutex.Unlock()

	if done && !exec.disposed.Load() {
		exec.sink.Complete()
	}
}

func (exec *execution) fail(err error) {
	exec.mutex.Lock()
	finished := exec.finished
	exec.finished = true
	sub := exec.subscription
	exec.mutex.Unlock()

	if finished || exec.disposed.Load() {
		return
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	exec.sink.Error(err)
}
