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

package store

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"

	"github.com/botobag/relay/document"
)

// DataID identifies a record.
type DataID = document.DataID

// RangeKey is the field under which a connection record keeps its Range.
const RangeKey = "__range__"

// Link is the value of a field linking to a single record.
type Link struct {
	ID DataID
}

// Links is the value of a field linking to a list of records. An empty DataID stands for a null
// item.
type Links []DataID

// Record is a flat map of fields for one object. A field holds one of:
//
//   - a scalar value (including nil for an explicit null and lists of scalars);
//   - a Link or a Links;
//   - a *Range (under RangeKey, for connection records).
//
// A field that is absent from the map is undefined, i.e. not known to the store.
type Record struct {
	id       DataID
	typeName string
	fields   map[string]interface{}
}

// NewRecord creates an empty record.
func NewRecord(id DataID, typeName string) *Record {
	return &Record{
		id:       id,
		typeName: typeName,
		fields:   map[string]interface{}{},
	}
}

// ID returns the record's id.
func (record *Record) ID() DataID {
	return record.id
}

// TypeName returns the concrete type of the object, or "" if unknown.
func (record *Record) TypeName() string {
	return record.typeName
}

// Get returns the value stored under key. The second return value is false if the field is
// undefined.
func (record *Record) Get(key string) (interface{}, bool) {
	value, ok := record.fields[key]
	return value, ok
}

// Set stores value under key. Use it to build records outside of a RecordWriter (e.g. when
// restoring a persisted cache).
func (record *Record) Set(key string, value interface{}) {
	record.fields[key] = value
}

// Keys returns the keys of the defined fields in sorted order.
func (record *Record) Keys() []string {
	keys := make([]string, 0, len(record.fields))
	for key := range record.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of defined fields.
func (record *Record) Len() int {
	return len(record.fields)
}

func (record *Record) setTypeName(typeName string) {
	record.typeName = typeName
}

func (record *Record) remove(key string) {
	delete(record.fields, key)
}

// Clone makes a copy of the record. Ranges are copied; other values are shared since they are
// never mutated in place.
func (record *Record) Clone() *Record {
	clone := &Record{
		id:       record.id,
		typeName: record.typeName,
		fields:   make(map[string]interface{}, len(record.fields)),
	}
	for key, value := range record.fields {
		if r, ok := value.(*Range); ok {
			value = r.Clone()
		}
		clone.fields[key] = value
	}
	return clone
}

//===----------------------------------------------------------------------------------------====//
// Value comparison
//===----------------------------------------------------------------------------------------====//

// ValuesEqual reports whether two field values are the same. Numbers compare by value regardless
// of their Go type so re-writing a payload decoded differently doesn't count as a change.
func ValuesEqual(a, b interface{}) bool {
	if fa, ok := numberOf(a); ok {
		fb, ok := numberOf(b)
		return ok && fa == fb
	}

	switch a := a.(type) {
	case nil:
		return b == nil
	case string:
		bs, ok := b.(string)
		return ok && a == bs
	case bool:
		bb, ok := b.(bool)
		return ok && a == bb
	case Link:
		bl, ok := b.(Link)
		return ok && a == bl
	case Links:
		bl, ok := b.(Links)
		if !ok || len(a) != len(bl) {
			return false
		}
		for i := range a {
			if a[i] != bl[i] {
				return false
			}
		}
		return true
	case []interface{}:
		bl, ok := b.([]interface{})
		if !ok || len(a) != len(bl) {
			return false
		}
		for i := range a {
			if !ValuesEqual(a[i], bl[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		bm, ok := b.(map[string]interface{})
		if !ok || len(a) != len(bm) {
			return false
		}
		for key, value := range a {
			other, exists := bm[key]
			if !exists || !ValuesEqual(value, other) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func numberOf(value interface{}) (float64, bool) {
	switch value := value.(type) {
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	case uint32:
		return float64(value), true
	case uint64:
		return float64(value), true
	case float32:
		return float64(value), true
	case float64:
		return value, !math.IsNaN(value)
	case json.Number:
		f, err := value.Float64()
		return f, err == nil
	}
	return 0, false
}

//===----------------------------------------------------------------------------------------====//
// DataIDSet
//===----------------------------------------------------------------------------------------====//

// DataIDSet is a set of record ids.
type DataIDSet map[DataID]struct{}

// NewDataIDSet creates a set containing ids.
func NewDataIDSet(ids ...DataID) DataIDSet {
	set := make(DataIDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Add inserts id into the set.
func (set DataIDSet) Add(id DataID) {
	set[id] = struct{}{}
}

// Has reports whether id is in the set.
func (set DataIDSet) Has(id DataID) bool {
	_, ok := set[id]
	return ok
}

// AddAll inserts every id of other into the set.
func (set DataIDSet) AddAll(other DataIDSet) {
	for id := range other {
		set[id] = struct{}{}
	}
}

// Intersects reports whether the two sets share an id.
func (set DataIDSet) Intersects(other DataIDSet) bool {
	small, large := set, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for id := range small {
		if large.Has(id) {
			return true
		}
	}
	return false
}

// Sorted returns the ids in sorted order.
func (set DataIDSet) Sorted() []DataID {
	ids := make([]DataID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
