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

package persist

import (
	"os"
	"sync"
	"time"

	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/store"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var (
	recordsBucket   = []byte("records")
	rootCallsBucket = []byte("rootCalls")
)

// BoltConfig specifies options for OpenBolt.
type BoltConfig struct {
	// Path of the database file. Required.
	Path string

	// Mode of the database file when it is created. Default to 0600.
	Mode os.FileMode

	// Timeout to wait for the file lock held by another process. Default to one second.
	Timeout time.Duration

	// Logger receives warnings about records that cannot be restored. Default to
	// logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Validate checks the config.
func (config *BoltConfig) Validate() error {
	if len(config.Path) == 0 {
		return graphql.NewError("path of the cache database is required", graphql.Op("persist.BoltConfig"),
			graphql.ErrKindOther)
	}
	return nil
}

// recordDelta accumulates the changes made to a record since the last flush.
type recordDelta struct {
	// reset is set when the record was created or deleted: the persisted copy is discarded.
	reset   bool
	deleted bool

	typeName string
	set      map[string]interface{}
	unset    map[string]struct{}
}

func newRecordDelta() *recordDelta {
	return &recordDelta{
		set:   map[string]interface{}{},
		unset: map[string]struct{}{},
	}
}

// BoltCache is a store.CacheWriter persisting records in a bbolt database.
type BoltCache struct {
	db     *bbolt.DB
	logger logrus.FieldLogger

	mutex     sync.Mutex
	records   map[store.DataID]*recordDelta
	rootCalls map[string]store.RootCall
}

var _ store.CacheWriter = (*BoltCache)(nil)

// OpenBolt opens (creating if needed) the cache database.
func OpenBolt(config BoltConfig) (*BoltCache, error) {
	const op = graphql.Op("persist.OpenBolt")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	mode := config.Mode
	if mode == 0 {
		mode = 0600
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := bbolt.Open(config.Path, mode, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, graphql.NewError("cannot open the cache database", op, graphql.ErrKindOther, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(rootCallsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, graphql.NewError("cannot initialize the cache database", op, graphql.ErrKindOther, err)
	}

	return &BoltCache{
		db:        db,
		logger:    logger,
		records:   map[store.DataID]*recordDelta{},
		rootCalls: map[string]store.RootCall{},
	}, nil
}

// Close flushes the pending changes and closes the database.
func (cache *BoltCache) Close() error {
	flushErr := cache.Flush()
	if err := cache.db.Close(); err != nil {
		return graphql.NewError("cannot close the cache database", graphql.Op("persist.Close"), err)
	}
	return flushErr
}

// Pending returns the number of records and root calls changed since the last flush.
func (cache *BoltCache) Pending() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	return len(cache.records) + len(cache.rootCalls)
}

func (cache *BoltCache) deltaOf(id store.DataID) *recordDelta {
	delta, exists := cache.records[id]
	if !exists {
		delta = newRecordDelta()
		cache.records[id] = delta
	}
	return delta
}

//===----------------------------------------------------------------------------------------====//
// store.CacheWriter
//===----------------------------------------------------------------------------------------====//

// WriteNode implements store.CacheWriter.
func (cache *BoltCache) WriteNode(id store.DataID, record *store.Record) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	delta := newRecordDelta()
	delta.reset = true
	if record == nil {
		delta.deleted = true
	} else {
		delta.typeName = record.TypeName()
	}
	cache.records[id] = delta
}

// WriteField implements store.CacheWriter.
func (cache *BoltCache) WriteField(id store.DataID, key string, value interface{}, typeName string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	delta := cache.deltaOf(id)
	if len(typeName) > 0 {
		delta.typeName = typeName
	}
	delta.set[key] = value
	delete(delta.unset, key)
}

// DeleteField implements store.CacheWriter.
func (cache *BoltCache) DeleteField(id store.DataID, key string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	delta := cache.deltaOf(id)
	delete(delta.set, key)
	delta.unset[key] = struct{}{}
}

// WriteRootCall implements store.CacheWriter.
func (cache *BoltCache) WriteRootCall(name string, arg string, id store.DataID) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()
	cache.rootCalls[string(rootCallKey(name, arg))] = store.RootCall{Name: name, Arg: arg, ID: id}
}

//===----------------------------------------------------------------------------------------====//
// Flush and Load
//===----------------------------------------------------------------------------------------====//

// Flush writes the buffered changes in one transaction. On failure the changes are kept and retried
// by the next Flush.
func (cache *BoltCache) Flush() error {
	const op = graphql.Op("persist.Flush")

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if len(cache.records) == 0 && len(cache.rootCalls) == 0 {
		return nil
	}

	err := cache.db.Update(func(tx *bbolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		for id, delta := range cache.records {
			if err := applyDelta(records, id, delta); err != nil {
				return err
			}
		}

		rootCalls := tx.Bucket(rootCallsBucket)
		for key, call := range cache.rootCalls {
			if err := rootCalls.Put([]byte(key), []byte(call.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return graphql.NewError("cannot write the cache database", op, graphql.ErrKindOther, err)
	}

	cache.records = map[store.DataID]*recordDelta{}
	cache.rootCalls = map[string]store.RootCall{}
	return nil
}

func applyDelta(bucket *bbolt.Bucket, id store.DataID, delta *recordDelta) error {
	key := []byte(id)

	state := &recordState{}
	if !delta.reset {
		if data := bucket.Get(key); data != nil {
			current, err := decodeRecord(data)
			if err != nil {
				return err
			}
			state = current
		}
	}

	if delta.deleted {
		state = &recordState{Deleted: true}
	} else {
		state.Deleted = false
		if len(delta.typeName) > 0 {
			state.TypeName = delta.typeName
		}
		if state.Fields == nil {
			state.Fields = map[string]fieldState{}
		}
		for key := range delta.unset {
			delete(state.Fields, key)
		}
		for key, value := range delta.set {
			state.Fields[key] = encodeField(value)
		}
	}

	data, err := encodeRecord(state)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

// Load reads the persisted records and root calls. Records that fail to decode are skipped with a
// warning.
func (cache *BoltCache) Load() (*store.RecordSource, *store.RootCallMap, error) {
	const op = graphql.Op("persist.Load")

	source := store.NewRecordSource()
	rootCalls := store.NewRootCallMap()

	err := cache.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			id := store.DataID(k)
			state, err := decodeRecord(v)
			if err == nil && !state.Deleted {
				var record *store.Record
				record, err = toRecord(id, state)
				if err == nil {
					source.Set(record)
				}
			} else if err == nil {
				source.Delete(id)
			}
			if err != nil {
				cache.logger.WithError(err).WithField("dataID", id).
					Warn("persist: cannot decode the persisted record; it is skipped")
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(rootCallsBucket).ForEach(func(k, v []byte) error {
			name, arg, ok := splitRootCallKey(k)
			if ok {
				rootCalls.Put(name, arg, store.DataID(v))
			}
			return nil
		})
	})
	if err != nil {
		return nil, nil, graphql.NewError("cannot read the cache database", op, graphql.ErrKindOther, err)
	}
	return source, rootCalls, nil
}

// Clear drops every persisted record and root call along with the pending changes.
func (cache *BoltCache) Clear() error {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.records = map[store.DataID]*recordDelta{}
	cache.rootCalls = map[string]store.RootCall{}

	err := cache.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, rootCallsBucket} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return graphql.NewError("cannot clear the cache database", graphql.Op("persist.Clear"), graphql.ErrKindOther, err)
	}
	return nil
}
