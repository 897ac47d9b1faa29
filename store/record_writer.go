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
	"fmt"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	"github.com/sirupsen/logrus"
)

// CacheWriter receives a copy of every change made to the committed records. It is a write-behind
// mirror: the store never reads through it.
type CacheWriter interface {
	// WriteNode is called when a record is created (with an empty copy of it) or deleted (with nil).
	WriteNode(id DataID, record *Record)

	// WriteField is called when a field of a record changes.
	WriteField(id DataID, key string, value interface{}, typeName string)

	// DeleteField is called when a field of a record becomes undefined.
	DeleteField(id DataID, key string)

	// WriteRootCall is called when a root call is mapped to a record.
	WriteRootCall(name string, arg string, id DataID)
}

// fieldTombstone marks a field deleted by an optimistic layer.
type fieldTombstone struct{}

// RecordWriter mutates one layer of a RecordStore: the base layer or an optimistic layer. It
// remembers which records it created and which existing records it changed.
type RecordWriter struct {
	store       *RecordStore
	source      *RecordSource
	rootCalls   *RootCallMap
	layer       *Layer
	cacheWriter CacheWriter

	created DataIDSet
	updated DataIDSet
}

// NewBaseWriter returns a writer for the committed records. cacheWriter may be nil.
func (s *RecordStore) NewBaseWriter(cacheWriter CacheWriter) *RecordWriter {
	return &RecordWriter{
		store:       s,
		source:      s.base,
		rootCalls:   s.baseRootCalls,
		cacheWriter: cacheWriter,
		created:     DataIDSet{},
		updated:     DataIDSet{},
	}
}

// NewLayerWriter returns a writer for an optimistic layer.
func (s *RecordStore) NewLayerWriter(layer *Layer) *RecordWriter {
	return &RecordWriter{
		store:     s,
		source:    layer.source,
		rootCalls: layer.rootCalls,
		layer:     layer,
		created:   DataIDSet{},
		updated:   DataIDSet{},
	}
}

// Store returns the store being written.
func (w *RecordWriter) Store() *RecordStore {
	return w.store
}

// Layer returns the optimistic layer being written, or nil for a base writer.
func (w *RecordWriter) Layer() *Layer {
	return w.layer
}

// IsOptimistic returns true if the writer writes an optimistic layer.
func (w *RecordWriter) IsOptimistic() bool {
	return w.layer != nil
}

// Logger returns the logger of the store.
func (w *RecordWriter) Logger() logrus.FieldLogger {
	return w.store.logger
}

// Created returns the records created through the writer.
func (w *RecordWriter) Created() DataIDSet {
	return w.created
}

// Updated returns the existing records changed through the writer.
func (w *RecordWriter) Updated() DataIDSet {
	return w.updated
}

// Touched returns every record created or changed through the writer.
func (w *RecordWriter) Touched() DataIDSet {
	touched := make(DataIDSet, len(w.created)+len(w.updated))
	touched.AddAll(w.created)
	touched.AddAll(w.updated)
	return touched
}

func invariantError(op string, format string, args ...interface{}) error {
	return graphql.NewError(fmt.Sprintf(format, args...), graphql.Op(op), graphql.ErrKindInvariant)
}

//===----------------------------------------------------------------------------------------====//
// Reads
//===----------------------------------------------------------------------------------------====//

// view returns the sources visible to the writer. A base writer ignores optimistic layers; a layer
// writer ignores the layers pushed after its own.
func (w *RecordWriter) view() []*RecordSource {
	if w.layer != nil {
		return w.store.sourcesUnder(w.layer)
	}
	return w.store.sources(false)
}

// GetRecordState returns the state of the record as seen by the writer.
func (w *RecordWriter) GetRecordState(id DataID) RecordState {
	return recordStateIn(w.view(), id)
}

// GetType returns the type of the record as seen by the writer.
func (w *RecordWriter) GetType(id DataID) string {
	return typeIn(w.view(), id)
}

// GetField returns the value of a field as seen by the writer.
func (w *RecordWriter) GetField(id DataID, key string) (interface{}, bool) {
	return fieldIn(w.view(), id, key)
}

// GetLinkedRecordID returns the id of the record linked by a field as seen by the writer.
func (w *RecordWriter) GetLinkedRecordID(id DataID, key string) (DataID, bool) {
	value, ok := w.GetField(id, key)
	if !ok {
		return "", false
	}
	switch value := value.(type) {
	case nil:
		return "", true
	case Link:
		return value.ID, true
	}
	return "", false
}

// GetLinkedRecordIDs returns the ids of the records linked by a plural field as seen by the writer.
func (w *RecordWriter) GetLinkedRecordIDs(id DataID, key string) (Links, bool) {
	value, ok := w.GetField(id, key)
	if !ok {
		return nil, false
	}
	switch value := value.(type) {
	case nil:
		return nil, true
	case Links:
		return value, true
	}
	return nil, false
}

// GetRange returns the Range of a connection record as seen by the writer.
func (w *RecordWriter) GetRange(connectionID DataID) *Range {
	value, ok := w.GetField(connectionID, RangeKey)
	if !ok {
		return nil
	}
	r, _ := value.(*Range)
	return r
}

// GetDataID resolves a root call as seen by the writer.
func (w *RecordWriter) GetDataID(name string, arg string) (DataID, bool) {
	if w.layer != nil {
		return w.store.dataIDUnder(w.layer.seq, name, arg)
	}
	if id, ok := w.store.cachedRootCalls.Get(name, arg); ok {
		return id, true
	}
	return w.store.baseRootCalls.Get(name, arg)
}

//===----------------------------------------------------------------------------------------====//
// Records
//===----------------------------------------------------------------------------------------====//

// PutRecord creates the record if it doesn't exist. Calling it on an existing record is a no-op,
// except that it sets the type of a record whose type is still unknown. Changing a known type is
// an invariant violation.
func (w *RecordWriter) PutRecord(id DataID, typeName string) error {
	const op = "store.PutRecord"

	if len(id) == 0 {
		return invariantError(op, "cannot create a record with an empty id")
	}

	if w.GetRecordState(id) == Existent {
		current := w.GetType(id)
		if len(current) > 0 {
			if len(typeName) > 0 && current != typeName {
				return invariantError(op, "record %q has type %q and cannot be changed to %q", id, current,
					typeName)
			}
			return nil
		}
		if len(typeName) == 0 {
			return nil
		}

		record, err := w.recordForWrite(op, id)
		if err != nil {
			return err
		}
		record.setTypeName(typeName)
		w.markUpdated(id)
		w.mirrorField(id, document.TypenameKey, typeName)
		return nil
	}

	record := NewRecord(id, typeName)
	w.source.Set(record)
	if w.layer == nil {
		w.store.cached.Remove(id)
	}
	w.created.Add(id)
	if w.cacheWriter != nil && w.layer == nil {
		w.cacheWriter.WriteNode(id, NewRecord(id, typeName))
	}
	return nil
}

// DeleteRecord marks the record as nonexistent.
func (w *RecordWriter) DeleteRecord(id DataID) error {
	if len(id) == 0 {
		return invariantError("store.DeleteRecord", "cannot delete a record with an empty id")
	}

	prev := w.GetRecordState(id)
	w.source.Delete(id)
	if w.layer == nil {
		w.store.cached.Remove(id)
	}
	if prev != Nonexistent {
		delete(w.created, id)
		w.updated.Add(id)
	}
	if w.cacheWriter != nil && w.layer == nil {
		w.cacheWriter.WriteNode(id, nil)
	}
	return nil
}

// recordForWrite returns the record of the writer's layer that receives writes for id. A record
// only visible in the cached layer is moved to the base layer; an optimistic layer gets a partial
// record holding only the fields it writes.
func (w *RecordWriter) recordForWrite(op string, id DataID) (*Record, error) {
	if record, state := w.source.Get(id); state == Existent {
		return record, nil
	}
	if w.GetRecordState(id) != Existent {
		return nil, invariantError(op, "record %q does not exist", id)
	}

	if w.layer == nil {
		if cached, state := w.store.cached.Get(id); state == Existent {
			promoted := cached.Clone()
			w.source.Set(promoted)
			w.store.cached.Remove(id)
			return promoted, nil
		}
	}

	partial := NewRecord(id, "")
	w.source.Set(partial)
	return partial, nil
}

func (w *RecordWriter) markUpdated(id DataID) {
	if !w.created.Has(id) {
		w.updated.Add(id)
	}
}

func (w *RecordWriter) mirrorField(id DataID, key string, value interface{}) {
	if w.cacheWriter == nil || w.layer != nil {
		return
	}
	if r, ok := value.(*Range); ok {
		value = r.Clone()
	}
	w.cacheWriter.WriteField(id, key, value, w.GetType(id))
}

//===----------------------------------------------------------------------------------------====//
// Fields
//===----------------------------------------------------------------------------------------====//

// putValue writes a field. The record is reported as updated only if the value changed. An
// optimistic layer always records the value so it keeps shadowing lower layers.
func (w *RecordWriter) putValue(op string, id DataID, key string, value interface{}) error {
	old, defined := w.GetField(id, key)
	unchanged := defined && ValuesEqual(old, value)
	if unchanged && w.layer == nil {
		if w.GetRecordState(id) != Existent {
			return invariantError(op, "record %q does not exist", id)
		}
		return nil
	}

	record, err := w.recordForWrite(op, id)
	if err != nil {
		return err
	}
	record.Set(key, value)

	if !unchanged {
		w.markUpdated(id)
		w.mirrorField(id, key, value)
	}
	return nil
}

// PutField writes a scalar field.
func (w *RecordWriter) PutField(id DataID, key string, value interface{}) error {
	return w.putValue("store.PutField", id, key, value)
}

// DeleteField makes a field undefined.
func (w *RecordWriter) DeleteField(id DataID, key string) error {
	const op = "store.DeleteField"

	_, defined := w.GetField(id, key)
	record, err := w.recordForWrite(op, id)
	if err != nil {
		return err
	}

	if w.layer != nil {
		record.Set(key, fieldTombstone{})
	} else {
		record.remove(key)
	}

	if defined {
		w.markUpdated(id)
		if w.cacheWriter != nil && w.layer == nil {
			w.cacheWriter.DeleteField(id, key)
		}
	}
	return nil
}

// PutLinkedRecordID links a field to another record. An empty targetID writes a null link.
func (w *RecordWriter) PutLinkedRecordID(id DataID, key string, targetID DataID) error {
	const op = "store.PutLinkedRecordID"

	if len(targetID) == 0 {
		return w.putValue(op, id, key, nil)
	}
	if w.GetRecordState(targetID) != Existent {
		return invariantError(op, "cannot link %q.%s to record %q which does not exist", id, key, targetID)
	}
	return w.putValue(op, id, key, Link{targetID})
}

// PutLinkedRecordIDs links a plural field to a list of records. A nil list writes null; empty ids
// in the list are null items.
func (w *RecordWriter) PutLinkedRecordIDs(id DataID, key string, targetIDs Links) error {
	const op = "store.PutLinkedRecordIDs"

	if targetIDs == nil {
		return w.putValue(op, id, key, nil)
	}

	for _, targetID := range targetIDs {
		if len(targetID) > 0 && w.GetRecordState(targetID) != Existent {
			return invariantError(op, "cannot link %q.%s to record %q which does not exist", id, key,
				targetID)
		}
	}

	links := make(Links, len(targetIDs))
	copy(links, targetIDs)
	return w.putValue(op, id, key, links)
}

// PutDataID maps a root call to a record.
func (w *RecordWriter) PutDataID(name string, arg string, id DataID) error {
	if len(id) == 0 {
		return invariantError("store.PutDataID", "cannot map root call %s(%s) to an empty id", name, arg)
	}

	old, exists := w.GetDataID(name, arg)
	w.rootCalls.Put(name, arg, id)
	if w.layer == nil {
		w.store.cachedRootCalls.Remove(name, arg)
	}

	if !exists || old != id {
		w.markUpdated(document.RootID)
		if w.cacheWriter != nil && w.layer == nil {
			w.cacheWriter.WriteRootCall(name, arg, id)
		}
	}
	return nil
}

//===----------------------------------------------------------------------------------------====//
// Ranges
//===----------------------------------------------------------------------------------------====//

// PutRange initializes the Range of a connection record stored under fieldName of parentID. It is
// a no-op if the record already has one.
func (w *RecordWriter) PutRange(
	connectionID DataID,
	parentID DataID,
	fieldName string,
	calls []document.Call) error {
	const op = "store.PutRange"

	if w.GetRecordState(connectionID) != Existent {
		return invariantError(op, "connection record %q does not exist", connectionID)
	}
	if w.GetRange(connectionID) != nil {
		return nil
	}

	_, filterCalls := document.SplitCalls(calls)
	r := NewRange(filterCalls)
	r.parentID = parentID
	r.fieldName = fieldName
	return w.putValue(op, connectionID, RangeKey, r)
}

func (w *RecordWriter) rangeForUpdate(op string, connectionID DataID) (*Range, error) {
	r := w.GetRange(connectionID)
	if r == nil {
		return nil, invariantError(op, "record %q is not a connection", connectionID)
	}
	return r.Clone(), nil
}

func (w *RecordWriter) replaceRange(op string, connectionID DataID, r *Range) error {
	record, err := w.recordForWrite(op, connectionID)
	if err != nil {
		return err
	}
	record.Set(RangeKey, r)
	w.markUpdated(connectionID)
	w.mirrorField(connectionID, RangeKey, r)
	return nil
}

// PutRangeEdges merges a page of edges fetched with calls into the Range of the connection. Edge
// records (with their node links) must be written before.
func (w *RecordWriter) PutRangeEdges(
	connectionID DataID,
	calls []document.Call,
	pageInfo PageInfo,
	edges []RangeEdge) error {
	const op = "store.PutRangeEdges"

	for _, edge := range edges {
		if w.GetRecordState(edge.ID) != Existent {
			return invariantError(op, "edge record %q does not exist", edge.ID)
		}
	}

	r, err := w.rangeForUpdate(op, connectionID)
	if err != nil {
		return err
	}

	changed, placed := r.AddItems(calls, edges, pageInfo)
	if !placed {
		w.store.logger.WithFields(logrus.Fields{
			"dataID": connectionID,
			"calls":  document.CallsSignature(calls),
		}).Warn("store: the page does not connect to the known edges of the connection and is dropped")
		return nil
	}

	for _, edge := range edges {
		w.store.indexEdge(connectionID, edge.ID)
	}

	if !changed {
		return nil
	}
	return w.replaceRange(op, connectionID, r)
}

// ApplyRangeUpdate adds an edge at the start (RangePrepend) or the end (RangeAppend) of a
// connection, or removes it (RangeRemove). Removal also applies to the connections stored under
// the same field of the same record with different filter calls.
func (w *RecordWriter) ApplyRangeUpdate(connectionID DataID, edgeID DataID, operation RangeOperation) error {
	const op = "store.ApplyRangeUpdate"

	r, err := w.rangeForUpdate(op, connectionID)
	if err != nil {
		return err
	}

	switch operation {
	case RangeAppend, RangePrepend:
		if w.GetRecordState(edgeID) != Existent {
			return invariantError(op, "edge record %q does not exist", edgeID)
		}
		edge := RangeEdge{ID: edgeID}
		if cursor, ok := w.GetField(edgeID, CursorKey); ok {
			edge.Cursor, _ = cursor.(string)
		}
		if operation == RangeAppend {
			r.AppendEdge(edge)
		} else {
			r.PrependEdge(edge)
		}
		if err := w.replaceRange(op, connectionID, r); err != nil {
			return err
		}
		w.store.indexEdge(connectionID, edgeID)
		return nil

	case RangeRemove:
		if r.RemoveEdge(edgeID) {
			if err := w.replaceRange(op, connectionID, r); err != nil {
				return err
			}
		}

		nodeID, ok := w.GetLinkedRecordID(edgeID, NodeKey)
		if !ok || len(nodeID) == 0 {
			return nil
		}
		w.store.unindexNode(nodeID, connectionID)

		parentID, fieldName := r.Owner()
		for _, siblingID := range w.store.GetConnectionIDsForRecord(nodeID) {
			sibling := w.GetRange(siblingID)
			if sibling == nil {
				continue
			}
			if owner, field := sibling.Owner(); owner != parentID || field != fieldName {
				continue
			}
			if err := w.removeNodeFromConnection(op, siblingID, sibling, nodeID); err != nil {
				return err
			}
		}
		return nil
	}

	return invariantError(op, "unknown range operation %d", operation)
}

// RemoveRecordFromConnections removes every edge to the node from every connection.
func (w *RecordWriter) RemoveRecordFromConnections(nodeID DataID) error {
	const op = "store.RemoveRecordFromConnections"

	for _, connectionID := range w.store.GetConnectionIDsForRecord(nodeID) {
		r := w.GetRange(connectionID)
		if r == nil {
			w.store.unindexNode(nodeID, connectionID)
			continue
		}
		if err := w.removeNodeFromConnection(op, connectionID, r, nodeID); err != nil {
			return err
		}
	}
	return nil
}

func (w *RecordWriter) removeNodeFromConnection(op string, connectionID DataID, r *Range, nodeID DataID) error {
	next := r.Clone()
	removed := false
	for _, edgeID := range w.store.edgesToNode(r, nodeID) {
		if next.RemoveEdge(edgeID) {
			removed = true
		}
	}
	w.store.unindexNode(nodeID, connectionID)
	if !removed {
		return nil
	}
	return w.replaceRange(op, connectionID, next)
}
