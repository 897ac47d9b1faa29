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

package reader

import (
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/store"

	jsoniter "github.com/json-iterator/go"
)

// Source is the read-only view of records a reader walks. It is implemented by store.RecordStore
// (which includes optimistic layers) and store.RecordWriter (which sees its own pending writes).
type Source interface {
	GetRecordState(id store.DataID) store.RecordState
	GetType(id store.DataID) string
	GetField(id store.DataID, key string) (interface{}, bool)
	GetLinkedRecordID(id store.DataID, key string) (store.DataID, bool)
	GetLinkedRecordIDs(id store.DataID, key string) (store.Links, bool)
	GetRange(connectionID store.DataID) *store.Range
	GetDataID(name string, arg string) (store.DataID, bool)
}

var (
	_ Source = (*store.RecordStore)(nil)
	_ Source = (*store.RecordWriter)(nil)
)

// FragmentReference stands for the data of a fragment spread in the data of its parent. It carries
// what is needed to read the fragment on its own: the fragment and the variables visible inside.
type FragmentReference struct {
	// Fragment is nil for references created by module imports whose fragment is loaded on demand.
	Fragment  *document.Fragment `json:"-"`
	Variables document.Variables `json:"variables,omitempty"`
}

// MissingClientEdge reports a client edge whose target record is not in the store. Operation
// fetches it with the record id as variable "id".
type MissingClientEdge struct {
	Operation *document.Operation
	ID        store.DataID
}

// Snapshot is the result of reading a selector.
type Snapshot struct {
	Selector document.Selector

	// Data is the denormalized data. It is nil when the selector's record is null or unknown. A
	// key absent from a map is data the store doesn't have.
	Data map[string]interface{}

	// IsMissingData is set when any selected data was not found.
	IsMissingData bool

	// SeenRecords contains every record visited, including the ones found missing.
	SeenRecords store.DataIDSet

	MissingClientEdges []MissingClientEdge
}

// MarshalJSON implements json.Marshaler.
func (snapshot *Snapshot) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(struct {
		Data          map[string]interface{} `json:"data"`
		IsMissingData bool                   `json:"isMissingData"`
		SeenRecords   []store.DataID         `json:"seenRecords"`
	}{
		Data:          snapshot.Data,
		IsMissingData: snapshot.IsMissingData,
		SeenRecords:   snapshot.SeenRecords.Sorted(),
	})
}

// FragmentSelector returns the selector to read fragment from the data of a parent that spreads
// it. It returns false if data holds no reference to the fragment.
func FragmentSelector(data map[string]interface{}, fragment *document.Fragment) (document.Selector, bool) {
	id, ok := data[document.IDRefKey].(store.DataID)
	if !ok {
		return document.Selector{}, false
	}
	fragments, ok := data[document.FragmentsKey].(map[string]FragmentReference)
	if !ok {
		return document.Selector{}, false
	}
	ref, ok := fragments[fragment.Name]
	if !ok {
		return document.Selector{}, false
	}
	return document.NewFragmentSelector(fragment, id, ref.Variables), true
}
