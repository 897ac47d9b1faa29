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
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/leaves"
	"github.com/botobag/relay/normalizer"
	"github.com/botobag/relay/reader"
	"github.com/botobag/relay/store"

	"github.com/sirupsen/logrus"
)

// Disposable is returned by operations whose effects can be released.
type Disposable interface {
	Dispose()
}

// The DisposableFunc type is an adapter to allow the use of ordinary functions as a Disposable.
type DisposableFunc func()

// Dispose implements Disposable. It calls f().
func (f DisposableFunc) Dispose() {
	f()
}

// Environment coordinates the reads and writes of a record store.
type Environment struct {
	config  Config
	logger  logrus.FieldLogger
	metrics *Metrics

	// mutex guards the store, the subscriptions, the touched records and the mutations. Callbacks
	// of subscribers and sinks are never called with it held.
	mutex         sync.Mutex
	store         *store.RecordStore
	subscriptions []*subscription
	touched       store.DataIDSet
	mutations     map[uint64]*Mutation

	// The layers above rebaseAfter are written again before the next publish when rebasePending
	// is set.
	rebasePending bool
	rebaseAfter   uint64
}

// New creates an Environment.
func New(config Config) (*Environment, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := config.Store
	if s == nil {
		s = store.NewRecordStore(store.RecordStoreConfig{
			Logger: config.Logger,
		})
	}

	logger := config.Logger
	if logger == nil {
		logger = s.Logger()
	}

	metrics := newMetrics()
	if config.Registerer != nil {
		if err := metrics.register(config.Registerer); err != nil {
			return nil, graphql.NewError("cannot register environment metrics", graphql.Op("environment.New"), err)
		}
	}

	return &Environment{
		config:    config,
		logger:    logger,
		metrics:   metrics,
		store:     s,
		touched:   store.DataIDSet{},
		mutations: map[uint64]*Mutation{},
	}, nil
}

// Store returns the record store. Writes must go through the Environment so that subscribers are
// notified.
func (env *Environment) Store() *store.RecordStore {
	return env.store
}

// Metrics returns the collectors of the environment.
func (env *Environment) Metrics() *Metrics {
	return env.metrics
}

// Lookup reads the data of selector, including optimistic changes.
func (env *Environment) Lookup(selector document.Selector) *reader.Snapshot {
	env.mutex.Lock()
	defer env.mutex.Unlock()
	return reader.Read(env.store, selector)
}

// Check finds the data of selector that neither the committed records nor the cache can provide.
func (env *Environment) Check(selector document.Selector) leaves.Result {
	env.mutex.Lock()
	defer env.mutex.Unlock()
	return leaves.FindPendingData(leaves.Params{
		Selections: selector.Document.DocumentSelections(),
		DataID:     selector.DataID,
		Variables:  selector.Variables,
		Sources: leaves.Sources{
			Base:           env.store.Base(),
			Cache:          env.store.Cached(),
			BaseRootCalls:  env.store.BaseRootCalls(),
			CacheRootCalls: env.store.CachedRootCalls(),
		},
	})
}

//===----------------------------------------------------------------------------------------====//
// Subscriptions
//===----------------------------------------------------------------------------------------====//

type subscription struct {
	snapshot *reader.Snapshot
	callback func(snapshot *reader.Snapshot)
	disposed atomic.Bool
}

// Subscribe calls callback with a new snapshot whenever the data read by snapshot changes.
func (env *Environment) Subscribe(snapshot *reader.Snapshot, callback func(snapshot *reader.Snapshot)) Disposable {
	sub := &subscription{
		snapshot: snapshot,
		callback: callback,
	}

	env.mutex.Lock()
	env.subscriptions = append(env.subscriptions, sub)
	env.mutex.Unlock()

	return DisposableFunc(func() {
		if sub.disposed.Swap(true) {
			return
		}
		env.mutex.Lock()
		defer env.mutex.Unlock()
		for i, s := range env.subscriptions {
			if s == sub {
				env.subscriptions = append(env.subscriptions[:i:i], env.subscriptions[i+1:]...)
				break
			}
		}
	})
}

//===----------------------------------------------------------------------------------------====//
// Commits
//===----------------------------------------------------------------------------------------====//

// CommitPayload writes payload, the data of selector, into the committed records and publishes the
// changes.
func (env *Environment) CommitPayload(selector document.Selector, payload map[string]interface{}) error {
	return env.update(func() error {
		writer := env.newBaseWriter()
		_, err := normalizer.Write(writer, selector, payload, normalizer.Options{
			Logger: env.logger,
		})
		env.touch(writer)
		return err
	})
}

// CommitUpdate runs updater with a writer of the committed records and publishes the changes.
func (env *Environment) CommitUpdate(updater func(writer *store.RecordWriter) error) error {
	return env.update(func() error {
		writer := env.newBaseWriter()
		err := updater(writer)
		env.touch(writer)
		return err
	})
}

func (env *Environment) newBaseWriter() *store.RecordWriter {
	if env.config.Cache == nil {
		return env.store.NewBaseWriter(nil)
	}
	return env.store.NewBaseWriter(env.config.Cache)
}

// touch records the changes made through writer for the next publish. Must be called with mutex
// held.
func (env *Environment) touch(writer *store.RecordWriter) {
	touched := writer.Touched()
	env.touched.AddAll(touched)
	if !writer.IsOptimistic() && len(touched) > 0 && env.store.Overlay().Len() > 0 {
		env.requestRebase(0)
	}
}

// touchLayer records every record and root call of an optimistic layer for the next publish. Must
// be called with mutex held.
func (env *Environment) touchLayer(layer *store.Layer) {
	env.touched.AddAll(store.NewDataIDSet(layer.Source().IDs()...))
	// Root calls of the layer are not records of its source.
	env.touched.Add(document.RootID)
}

//===----------------------------------------------------------------------------------------====//
// Rebase
//===----------------------------------------------------------------------------------------====//

// requestRebase schedules the layers pushed after seq to be written again before the next publish.
// Must be called with mutex held.
func (env *Environment) requestRebase(seq uint64) {
	if !env.rebasePending || seq < env.rebaseAfter {
		env.rebaseAfter = seq
	}
	env.rebasePending = true
}

// rebase writes the optimistic data of the pending mutations above rebaseAfter again, oldest first,
// on top of what is now below them. A layer copies whole values (a Range, a list of links) from
// the layers below it when it changes them, so the copy must be rebuilt once a lower layer is
// removed or the committed value changes. A mutation whose optimistic data cannot be written again
// is rolled back. Must be called with mutex held.
func (env *Environment) rebase() {
	if !env.rebasePending {
		return
	}
	after := env.rebaseAfter

	var pending []*Mutation
	for _, layer := range env.store.Overlay().Layers() {
		if layer.Seq() <= after {
			continue
		}
		if m, ok := env.mutations[layer.Seq()]; ok {
			env.touchLayer(layer)
			layer.Reset()
			pending = append(pending, m)
		}
	}

	env.store.ReindexConnections()

	// Layers are written oldest first, so the layers above a rolled back one never see its data.
	for _, m := range pending {
		if err := m.writeOptimistic(); err != nil {
			m.logger.WithError(err).Warn("environment: cannot write the optimistic data again and the mutation is rolled back")
			env.removeLayer(m, store.MutationRolledBack)
		}
	}

	env.rebasePending = false
	env.store.ReindexConnections()
}

//===----------------------------------------------------------------------------------------====//
// Publish
//===----------------------------------------------------------------------------------------====//

type notification struct {
	subscription *subscription
	snapshot     *reader.Snapshot
}

// update runs fn with mutex held, publishes what it touched, and then notifies subscribers.
func (env *Environment) update(fn func() error) error {
	env.mutex.Lock()
	err := fn()
	env.rebase()
	notifications := env.publish()
	env.mutex.Unlock()

	env.notify(notifications)
	return err
}

// publish refreshes the snapshots of the subscribers that read a touched record and returns the
// ones whose data changed. Must be called with mutex held.
func (env *Environment) publish() []notification {
	touched := env.touched
	env.touched = store.DataIDSet{}

	if env.config.Cache != nil {
		if err := env.config.Cache.Flush(); err != nil {
			env.logger.WithError(err).Warn("environment: cannot flush the cache")
		}
	}

	if len(touched) == 0 {
		return nil
	}
	env.metrics.Publishes.Inc()

	var notifications []notification
	for _, sub := range env.subscriptions {
		prev := sub.snapshot
		if !prev.SeenRecords.Intersects(touched) {
			continue
		}
		next := reader.Read(env.store, prev.Selector)
		sub.snapshot = next
		if next.IsMissingData == prev.IsMissingData && reflect.DeepEqual(next.Data, prev.Data) {
			continue
		}
		notifications = append(notifications, notification{
			subscription: sub,
			snapshot:     next,
		})
	}
	env.metrics.Notifications.Add(float64(len(notifications)))
	return notifications
}

func (env *Environment) notify(notifications []notification) {
	for _, n := range notifications {
		if !n.subscription.disposed.Load() {
			n.subscription.callback(n.snapshot)
		}
	}
}
