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

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/network"
	"github.com/botobag/relay/normalizer"
	"github.com/botobag/relay/reader"
	"github.com/botobag/relay/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ClientMutationIDKey is the field of the "input" variable that receives the client mutation id.
const ClientMutationIDKey = "clientMutationId"

// MutationConfig specifies a mutation.
type MutationConfig struct {
	Operation *document.Operation
	Variables document.Variables

	// OptimisticResponse is written into the optimistic layer of the mutation as if it were the
	// response data.
	OptimisticResponse map[string]interface{}

	// OptimisticUpdater changes the optimistic layer after OptimisticResponse was written. It runs
	// again, with OptimisticResponse, whenever a lower layer goes away or the committed records
	// change while the mutation is pending.
	OptimisticUpdater func(writer *store.RecordWriter) error

	// Updater changes the committed records after the response data was written.
	Updater func(writer *store.RecordWriter, data map[string]interface{}) error

	// Configs update connections and delete records with both the optimistic and the server data.
	Configs []DeclarativeConfig

	// OnCompleted is called with the data of the mutation once the response is committed.
	OnCompleted func(snapshot *reader.Snapshot, errs graphql.Errors)

	// OnError is called when the request fails. The optimistic layer is already disposed.
	OnError func(err error)
}

// Mutation is an applied mutation. Disposing it before it is committed rolls back its optimistic
// changes.
type Mutation struct {
	env              *Environment
	config           MutationConfig
	selector         document.Selector
	clientMutationID string
	logger           logrus.FieldLogger

	// Guarded by env.mutex.
	layer  *store.Layer
	status store.MutationStatus

	mutex        sync.Mutex
	subscription network.Subscription
	response     *network.Payload
}

var _ Disposable = (*Mutation)(nil)

// Seq returns the sequence number of the optimistic layer of the mutation.
func (m *Mutation) Seq() uint64 {
	return m.layer.Seq()
}

// ClientMutationID returns the id sent with the mutation.
func (m *Mutation) ClientMutationID() string {
	return m.clientMutationID
}

// Status returns the state of the mutation.
func (m *Mutation) Status() store.MutationStatus {
	m.env.mutex.Lock()
	defer m.env.mutex.Unlock()
	return m.status
}

// Dispose implements Disposable. It rolls back the optimistic changes of a mutation that is not
// committed and ignores its response. It is a no-op once the mutation was committed.
func (m *Mutation) Dispose() {
	m.mutex.Lock()
	sub := m.subscription
	m.mutex.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	m.rollback()
}

// MutationStatus returns the state of the mutation with the given sequence number. It returns
// false once the mutation is committed or rolled back.
func (env *Environment) MutationStatus(seq uint64) (store.MutationStatus, bool) {
	env.mutex.Lock()
	defer env.mutex.Unlock()
	if m, ok := env.mutations[seq]; ok {
		return m.status, true
	}
	return store.MutationRolledBack, false
}

// ApplyMutation writes the optimistic data of config into a new optimistic layer and publishes it.
// No request is sent.
func (env *Environment) ApplyMutation(config MutationConfig) (*Mutation, error) {
	return env.applyMutation(config, store.MutationUncommitted)
}

// SendMutation applies the optimistic data of config and sends the mutation. When the response
// arrives, it is written into the committed records and the optimistic layer is removed in the
// same publish. When the request fails, the optimistic layer is removed and config.OnError is
// called.
func (env *Environment) SendMutation(ctx context.Context, config MutationConfig) (*Mutation, error) {
	m, err := env.applyMutation(config, store.MutationCommitting)
	if err != nil {
		return nil, err
	}

	request := &network.Request{
		Operation: config.Operation,
		Variables: m.selector.Variables,
		CacheConfig: network.CacheConfig{
			Force: true,
		},
	}
	sub := env.config.Network.Execute(ctx, request).Subscribe(network.Observer{
		OnNext: func(payload *network.Payload) {
			m.mutex.Lock()
			if m.response == nil {
				m.response = payload
			}
			m.mutex.Unlock()
		},
		OnError: func(err error) {
			env.schedule(func() {
				m.fail(err)
			}, m.logger)
		},
		OnComplete: func() {
			env.schedule(m.commit, m.logger)
		},
	})

	m.mutex.Lock()
	m.subscription = sub
	m.mutex.Unlock()
	return m, nil
}

func (env *Environment) applyMutation(config MutationConfig, status store.MutationStatus) (*Mutation, error) {
	const op = graphql.Op("environment.ApplyMutation")
	if config.Operation == nil {
		return nil, graphql.NewError("mutation requires an operation", op, graphql.ErrKindDocument)
	}

	clientMutationID := uuid.NewString()
	m := &Mutation{
		env:              env,
		config:           config,
		selector:         document.NewOperationSelector(config.Operation, withClientMutationID(config.Variables, clientMutationID)),
		clientMutationID: clientMutationID,
		status:           status,
	}
	m.logger = env.logger.WithFields(logrus.Fields{
		"operation":        config.Operation.Name,
		"clientMutationID": clientMutationID,
	})

	err := env.update(func() error {
		m.layer = env.store.Overlay().Push(clientMutationID)
		m.layer.SetStatus(status)
		env.mutations[m.layer.Seq()] = m
		env.metrics.OptimisticLayers.Inc()

		return m.writeOptimistic()
	})
	if err != nil {
		env.update(func() error {
			env.removeLayer(m, store.MutationRolledBack)
			return nil
		})
		return nil, err
	}
	return m, nil
}

// writeOptimistic writes the optimistic data of the mutation into its layer. Must be called with
// env.mutex held.
func (m *Mutation) writeOptimistic() error {
	writer := m.env.store.NewLayerWriter(m.layer)
	defer m.env.touch(writer)

	config := m.config
	if config.OptimisticResponse != nil {
		if _, err := normalizer.Write(writer, m.selector, config.OptimisticResponse, normalizer.Options{
			Logger: m.logger,
		}); err != nil {
			return err
		}
		if err := applyConfigs(writer, m.selector, config.Configs, config.OptimisticResponse); err != nil {
			return err
		}
	}
	if config.OptimisticUpdater != nil {
		return config.OptimisticUpdater(writer)
	}
	return nil
}

// removeLayer takes the optimistic layer of m out of the store. Must be called with mutex held.
func (env *Environment) removeLayer(m *Mutation, status store.MutationStatus) {
	m.status = status
	m.layer.SetStatus(status)
	if env.store.Overlay().Remove(m.layer.Seq()) == nil {
		return
	}
	delete(env.mutations, m.layer.Seq())
	env.metrics.OptimisticLayers.Dec()

	env.touchLayer(m.layer)
	env.store.ReindexConnections()
	env.requestRebase(m.layer.Seq())

	if status == store.MutationRolledBack {
		env.metrics.MutationsRolledBack.Inc()
	}
}

func (m *Mutation) isPending() bool {
	return m.status == store.MutationUncommitted || m.status == store.MutationCommitting
}

func (m *Mutation) rollback() bool {
	rolledBack := false
	m.env.update(func() error {
		if m.isPending() {
			m.env.removeLayer(m, store.MutationRolledBack)
			rolledBack = true
		}
		return nil
	})
	return rolledBack
}

func (m *Mutation) fail(err error) {
	if m.rollback() && m.config.OnError != nil {
		m.config.OnError(err)
	}
}

func (m *Mutation) commit() {
	m.mutex.Lock()
	payload := m.response
	m.mutex.Unlock()

	if payload == nil {
		m.fail(graphql.NewError("mutation completed without a response", graphql.Op("environment.SendMutation"),
			graphql.ErrKindNetwork))
		return
	}
	if payload.Errors.HaveOccurred() && payload.Data == nil {
		m.fail(payload.Errors)
		return
	}

	env := m.env
	var (
		committed bool
		snapshot  *reader.Snapshot
	)
	err := env.update(func() error {
		if m.status != store.MutationCommitting {
			return nil
		}
		committed = true

		// The layer goes away in the publish that shows the server data.
		env.removeLayer(m, store.MutationCommitted)
		env.metrics.MutationsCommitted.Inc()

		writer := env.newBaseWriter()
		defer env.touch(writer)

		if data := payload.DataObject(); data != nil {
			if _, err := normalizer.Write(writer, m.selector, data, normalizer.Options{
				Logger: m.logger,
			}); err != nil {
				return err
			}
			if err := applyConfigs(writer, m.selector, m.config.Configs, data); err != nil {
				return err
			}
			if m.config.Updater != nil {
				if err := m.config.Updater(writer, data); err != nil {
					return err
				}
			}
		}

		snapshot = reader.Read(env.store, m.selector)
		return nil
	})

	if !committed {
		return
	}
	if err != nil {
		if m.config.OnError != nil {
			m.config.OnError(err)
		}
		return
	}
	if m.config.OnCompleted != nil {
		m.config.OnCompleted(snapshot, payload.Errors)
	}
}

// withClientMutationID returns a copy of vars whose "input" object carries id.
func withClientMutationID(vars document.Variables, id string) document.Variables {
	input, ok := vars["input"].(map[string]interface{})
	if !ok {
		return vars
	}

	result := make(document.Variables, len(vars))
	for name, value := range vars {
		result[name] = value
	}
	withID := make(map[string]interface{}, len(input)+1)
	for name, value := range input {
		withID[name] = value
	}
	withID[ClientMutationIDKey] = id
	result["input"] = withID
	return result
}
