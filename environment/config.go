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

	"github.com/botobag/relay/concurrent"
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/network"
	"github.com/botobag/relay/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Cache receives a copy of the committed changes and is flushed after every publish.
// persist.BoltCache implements it.
type Cache interface {
	store.CacheWriter
	Flush() error
}

// OperationLoader loads the normalization document of a @module fragment. reference is the value
// the server returned under the module's operation key.
type OperationLoader interface {
	Load(ctx context.Context, reference interface{}) (*document.Fragment, error)
}

// The OperationLoaderFunc type is an adapter to allow the use of ordinary functions as an
// OperationLoader.
type OperationLoaderFunc func(ctx context.Context, reference interface{}) (*document.Fragment, error)

var _ OperationLoader = (OperationLoaderFunc)(nil)

// Load implements OperationLoader. It calls f(ctx, reference).
func (f OperationLoaderFunc) Load(ctx context.Context, reference interface{}) (*document.Fragment, error) {
	return f(ctx, reference)
}

// OperationPrefetcher is implemented by operation loaders that batch their loads. The modules
// found in one payload are prefetched together before any of them is loaded.
// dataloader.DataLoader implements it.
type OperationPrefetcher interface {
	Prefetch(reference interface{})
}

// Config specifies options for New.
type Config struct {
	// Network sends the operations. Required.
	Network network.Network

	// Store holds the records. A new empty store is created if nil. Use it to start from records
	// restored by persist.BoltCache.Load.
	Store *store.RecordStore

	// Executor applies payloads. When nil, payloads are applied on the goroutine delivering them.
	Executor concurrent.Executor

	// OperationLoader loads the documents of @module fragments. Without it, the data of module
	// fragments is not written.
	OperationLoader OperationLoader

	// Cache mirrors the committed records. Optional.
	Cache Cache

	// Logger receives warnings. Default to the logger of Store, or logrus.StandardLogger().
	Logger logrus.FieldLogger

	// Registerer receives the metrics of the environment. Metrics are still collected but not
	// exposed when nil.
	Registerer prometheus.Registerer
}

// Validate checks the configuration.
func (config *Config) Validate() error {
	const op = graphql.Op("environment.Config.Validate")
	if config.Network == nil {
		return graphql.NewError("environment requires a network", op)
	}
	return nil
}
