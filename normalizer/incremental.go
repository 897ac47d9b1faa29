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

package normalizer

import (
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/store"

	"github.com/sirupsen/logrus"
)

// IncrementalKind distinguishes deferred selections from streamed fields.
type IncrementalKind uint8

// Enumeration of IncrementalKind
const (
	KindDefer IncrementalKind = iota
	KindStream
)

func (kind IncrementalKind) String() string {
	if kind == KindStream {
		return "stream"
	}
	return "defer"
}

// IncrementalPlaceholder records where the data of a later incremental payload goes.
type IncrementalPlaceholder struct {
	Kind  IncrementalKind
	Label string

	// Path is the response path of the deferring object (for KindDefer) or of the streamed list
	// (for KindStream). Streamed items arrive with their index appended.
	Path graphql.ResponsePath

	// DataID is the record of the deferring object or the owner of the streamed list.
	DataID   store.DataID
	TypeName string

	// Selections are the deferred selections (for KindDefer).
	Selections []document.Selection

	// Field is the streamed field (for KindStream).
	Field *document.LinkedField

	Variables document.Variables
}

// Matches reports whether chunk carries data for the placeholder.
func (placeholder *IncrementalPlaceholder) Matches(chunk *Chunk) bool {
	if placeholder.Label != chunk.Label {
		return false
	}
	if placeholder.Kind == KindDefer {
		return pathsEqual(placeholder.Path, chunk.Path)
	}
	_, ok := streamIndex(placeholder.Path, chunk.Path)
	return ok
}

// Chunk is an incremental payload: the data of a deferred fragment or of one streamed item.
type Chunk struct {
	Data  interface{}
	Label string
	Path  graphql.ResponsePath
}

func pathsEqual(a, b graphql.ResponsePath) bool {
	if a.Len() != b.Len() {
		return false
	}
	aKeys, bKeys := a.Keys(), b.Keys()
	for i := range aKeys {
		if aKeys[i] != bKeys[i] {
			return false
		}
	}
	return true
}

// streamIndex returns the index of the streamed item at itemPath in the list at listPath.
func streamIndex(listPath, itemPath graphql.ResponsePath) (int, bool) {
	if itemPath.Len() != listPath.Len()+1 {
		return 0, false
	}
	listKeys, itemKeys := listPath.Keys(), itemPath.Keys()
	for i := range listKeys {
		if listKeys[i] != itemKeys[i] {
			return 0, false
		}
	}
	index, ok := itemKeys[len(itemKeys)-1].(int)
	return index, ok && index >= 0
}

// WriteIncremental normalizes chunk into the records its placeholder points to. A chunk without
// a matching placeholder, or whose placeholder's record no longer exists, is dropped with a
// warning.
func WriteIncremental(
	writer *store.RecordWriter,
	placeholders []*IncrementalPlaceholder,
	chunk *Chunk,
	opts Options) (*Result, error) {

	n := newNormalizer(writer, nil, opts)

	var placeholder *IncrementalPlaceholder
	for _, candidate := range placeholders {
		if candidate.Matches(chunk) {
			placeholder = candidate
			break
		}
	}

	logger := n.logger.WithFields(logrus.Fields{
		"label": chunk.Label,
		"path":  chunk.Path.String(),
	})

	if placeholder == nil {
		logger.Warn("normalizer: no deferred or streamed selection matches the incremental payload; it is ignored")
		return n.result(), nil
	}
	if writer.GetRecordState(placeholder.DataID) != store.Existent {
		logger.WithField("dataID", placeholder.DataID).
			Warn("normalizer: the record of the incremental payload does not exist; it is ignored")
		return n.result(), nil
	}

	n.vars = placeholder.Variables
	typeName := writer.GetType(placeholder.DataID)
	if len(typeName) == 0 {
		typeName = placeholder.TypeName
	}

	var err error
	switch placeholder.Kind {
	case KindDefer:
		data, ok := chunk.Data.(map[string]interface{})
		if !ok {
			if chunk.Data != nil {
				err = payloadError(chunk.Path, "expected an object for deferred payload %q but got %T",
					chunk.Label, chunk.Data)
			}
			break
		}
		err = n.traverse(placeholder.Selections, placeholder.DataID, typeName, data, chunk.Path)

	case KindStream:
		index, _ := streamIndex(placeholder.Path, chunk.Path)
		err = n.writeStreamedItem(placeholder, index, chunk.Data, chunk.Path)
	}

	return n.result(), err
}

func (n *normalizer) writeStreamedItem(
	placeholder *IncrementalPlaceholder,
	index int,
	item interface{},
	path graphql.ResponsePath) error {

	field := placeholder.Field
	parentID := placeholder.DataID
	storageKey := document.StorageKey(field, n.vars)

	if field.Connection || !field.Plural {
		n.logger.WithFields(logrus.Fields{
			"dataID": parentID,
			"field":  field.Name,
		}).Warn("normalizer: only plain plural fields can be streamed; the item is ignored")
		return nil
	}

	id := ""
	if item != nil {
		object, ok := item.(map[string]interface{})
		if !ok {
			return payloadError(path, "expected an object in streamed list %q but got %T", field.ResponseKey(), item)
		}
		var err error
		id, err = n.writeObject(field, object, document.ClientIndexID(parentID, storageKey, index), path)
		if err != nil {
			return err
		}
	}

	current, _ := n.writer.GetLinkedRecordIDs(parentID, storageKey)
	size := len(current)
	if index >= size {
		size = index + 1
	}
	links := make(store.Links, size)
	copy(links, current)
	links[index] = id
	return n.writer.PutLinkedRecordIDs(parentID, storageKey, links)
}
