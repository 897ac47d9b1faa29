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
	"sort"

	"github.com/botobag/relay/iterator"
)

// RecordState describes what a layer knows about a record.
type RecordState uint8

// Enumeration of RecordState
const (
	// Unknown means nothing is known about the record.
	Unknown RecordState = iota

	// Existent means the record exists (its fields may still be partially known).
	Existent

	// Nonexistent means the record is known not to exist (e.g. the server returned null for it).
	Nonexistent
)

func (state RecordState) String() string {
	switch state {
	case Unknown:
		return "UNKNOWN"
	case Existent:
		return "EXISTENT"
	case Nonexistent:
		return "NONEXISTENT"
	}
	return "INVALID"
}

type recordEntry struct {
	record *Record
	state  RecordState
}

// RecordSource is one layer of records. Besides records, it can hold two kinds of markers: a
// tombstone (Nonexistent) for a record known not to exist, and an explicit Unknown entry for an
// id that was looked up in the layer and not found (used by the persisted cache to remember
// misses).
type RecordSource struct {
	entries map[DataID]recordEntry
}

// NewRecordSource creates an empty RecordSource.
func NewRecordSource() *RecordSource {
	return &RecordSource{
		entries: map[DataID]recordEntry{},
	}
}

// Get returns the record with the given id and its state. The record is nil unless the state is
// Existent.
func (source *RecordSource) Get(id DataID) (*Record, RecordState) {
	entry := source.entries[id]
	return entry.record, entry.state
}

// State returns the state of the record with the given id.
func (source *RecordSource) State(id DataID) RecordState {
	return source.entries[id].state
}

// Has returns true if the layer has an entry (of any state) for id.
func (source *RecordSource) Has(id DataID) bool {
	_, ok := source.entries[id]
	return ok
}

// Set stores a record, replacing any entry with the same id.
func (source *RecordSource) Set(record *Record) {
	source.entries[record.ID()] = recordEntry{record: record, state: Existent}
}

// Delete replaces the entry for id with a tombstone.
func (source *RecordSource) Delete(id DataID) {
	source.entries[id] = recordEntry{state: Nonexistent}
}

// MarkUnknown stores an explicit Unknown entry for id.
func (source *RecordSource) MarkUnknown(id DataID) {
	source.entries[id] = recordEntry{state: Unknown}
}

// Remove drops the entry for id, whatever its state.
func (source *RecordSource) Remove(id DataID) {
	delete(source.entries, id)
}

// Size returns the number of entries.
func (source *RecordSource) Size() int {
	return len(source.entries)
}

// IDs returns the ids of all entries in sorted order.
func (source *RecordSource) IDs() []DataID {
	ids := make([]DataID, 0, len(source.entries))
	for id := range source.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Iterator returns an iterator over the entries in sorted id order.
func (source *RecordSource) Iterator() *RecordSourceIterator {
	return &RecordSourceIterator{
		source: source,
		ids:    source.IDs(),
	}
}

// RecordSourceIterator iterates the entries of a RecordSource.
type RecordSourceIterator struct {
	source *RecordSource
	ids    []DataID
	next   int
}

// Next returns the id, record and state of the next entry. It returns iterator.Done when there are
// no more entries. Entries removed after the iterator was created are skipped.
func (iter *RecordSourceIterator) Next() (DataID, *Record, RecordState, error) {
	for iter.next < len(iter.ids) {
		id := iter.ids[iter.next]
		iter.next++
		if entry, ok := iter.source.entries[id]; ok {
			return id, entry.record, entry.state, nil
		}
	}
	return "", nil, Unknown, iterator.Done
}

//===----------------------------------------------------------------------------------------====//
// RootCallMap
//===----------------------------------------------------------------------------------------====//

// RootCallMap indexes records reached from root fields: (field name, identifying argument value)
// to DataID. Fields without identifying argument use "".
type RootCallMap struct {
	calls map[string]map[string]DataID
}

// NewRootCallMap creates an empty RootCallMap.
func NewRootCallMap() *RootCallMap {
	return &RootCallMap{
		calls: map[string]map[string]DataID{},
	}
}

// Get returns the id for the root call.
func (m *RootCallMap) Get(name string, arg string) (DataID, bool) {
	id, ok := m.calls[name][arg]
	return id, ok
}

// Put maps the root call to id.
func (m *RootCallMap) Put(name string, arg string, id DataID) {
	args, ok := m.calls[name]
	if !ok {
		args = map[string]DataID{}
		m.calls[name] = args
	}
	args[arg] = id
}

// Remove deletes the mapping of the root call.
func (m *RootCallMap) Remove(name string, arg string) {
	if args, ok := m.calls[name]; ok {
		delete(args, arg)
		if len(args) == 0 {
			delete(m.calls, name)
		}
	}
}

// Len returns the number of mappings.
func (m *RootCallMap) Len() int {
	n := 0
	for _, args := range m.calls {
		n += len(args)
	}
	return n
}

// RootCall is one entry of a RootCallMap.
type RootCall struct {
	Name string
	Arg  string
	ID   DataID
}

// Entries returns every mapping sorted by name then argument.
func (m *RootCallMap) Entries() []RootCall {
	entries := make([]RootCall, 0, m.Len())
	for name, args := range m.calls {
		for arg, id := range args {
			entries = append(entries, RootCall{name, arg, id})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].Arg < entries[j].Arg
	})
	return entries
}
