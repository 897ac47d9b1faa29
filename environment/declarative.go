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
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/store"

	"github.com/sirupsen/logrus"
)

// DeclarativeConfig describes a change the data of a mutation implies on records the mutation
// doesn't select: adding an edge to a connection, or removing a record.
type DeclarativeConfig interface {
	// apply runs the change with data, the response data of selector.
	apply(writer *store.RecordWriter, selector document.Selector, data map[string]interface{}) error
}

// RangeAdd adds the edge returned by a mutation to the connections stored under ConnectionName of
// ParentID.
type RangeAdd struct {
	ParentID       store.DataID
	ConnectionName string

	// EdgeName is the response key of the new edge in the mutation's payload object.
	EdgeName string

	// RangeBehavior is RangeAppend (the default) or RangePrepend.
	RangeBehavior store.RangeOperation
}

// RangeDelete removes the node whose id is returned by a mutation from the connections stored
// under ConnectionName of ParentID.
type RangeDelete struct {
	ParentID       store.DataID
	ConnectionName string

	// DeletedIDFieldName is the response key of the deleted id in the mutation's payload object.
	DeletedIDFieldName string
}

// NodeDelete deletes the record whose id is returned by a mutation and removes it from every
// connection.
type NodeDelete struct {
	// DeletedIDFieldName is the response key of the deleted id (or list of ids) in the mutation's
	// payload object.
	DeletedIDFieldName string
}

var (
	_ DeclarativeConfig = (*RangeAdd)(nil)
	_ DeclarativeConfig = (*RangeDelete)(nil)
	_ DeclarativeConfig = (*NodeDelete)(nil)
)

func applyConfigs(
	writer *store.RecordWriter,
	selector document.Selector,
	configs []DeclarativeConfig,
	data map[string]interface{}) error {

	for _, config := range configs {
		if err := config.apply(writer, selector, data); err != nil {
			return err
		}
	}
	return nil
}

// payloadField returns the root field of a mutation: its first linked field.
func payloadField(selector document.Selector) *document.LinkedField {
	for _, selection := range selector.Document.DocumentSelections() {
		if field, ok := selection.(*document.LinkedField); ok {
			return field
		}
	}
	return nil
}

// payloadObject returns the data of the root field of a mutation.
func payloadObject(selector document.Selector, data map[string]interface{}) map[string]interface{} {
	field := payloadField(selector)
	if field == nil {
		return nil
	}
	object, _ := data[field.ResponseKey()].(map[string]interface{})
	return object
}

// deletedIDs reads the ids under key of a mutation's payload object.
func deletedIDs(selector document.Selector, data map[string]interface{}, key string) []store.DataID {
	object := payloadObject(selector, data)
	if object == nil {
		return nil
	}
	switch value := object[key].(type) {
	case []interface{}:
		ids := make([]store.DataID, 0, len(value))
		for _, item := range value {
			if id, ok := document.IDOf(item); ok {
				ids = append(ids, id)
			}
		}
		return ids
	default:
		if id, ok := document.IDOf(value); ok {
			return []store.DataID{id}
		}
	}
	return nil
}

func findLinkedField(selections []document.Selection, responseKey string) *document.LinkedField {
	for _, selection := range selections {
		switch selection := selection.(type) {
		case *document.LinkedField:
			if selection.ResponseKey() == responseKey {
				return selection
			}
		case *document.InlineFragment:
			if field := findLinkedField(selection.Selections, responseKey); field != nil {
				return field
			}
		}
	}
	return nil
}

func (config *RangeAdd) apply(
	writer *store.RecordWriter,
	selector document.Selector,
	data map[string]interface{}) error {

	logger := writer.Logger().WithFields(logrus.Fields{
		"dataID":     config.ParentID,
		"connection": config.ConnectionName,
	})

	field := payloadField(selector)
	if field == nil || payloadObject(selector, data) == nil {
		return nil
	}
	arg, ok := document.RootCallArgument(field, selector.Variables)
	if !ok {
		logger.Warn("environment: the payload of the mutation has no identifying argument")
		return nil
	}
	payloadID, ok := writer.GetDataID(field.Name, arg)
	if !ok {
		logger.Warn("environment: cannot find the payload of the mutation to add an edge")
		return nil
	}

	edgeKey := config.EdgeName
	if edgeField := findLinkedField(field.Selections, config.EdgeName); edgeField != nil {
		edgeKey = document.StorageKey(edgeField, selector.Variables)
	}
	edgeID, ok := writer.GetLinkedRecordID(payloadID, edgeKey)
	if !ok || len(edgeID) == 0 {
		logger.WithField("edge", config.EdgeName).Warn("environment: the mutation returned no edge to add")
		return nil
	}
	nodeID, ok := writer.GetLinkedRecordID(edgeID, store.NodeKey)
	if !ok || len(nodeID) == 0 {
		logger.WithField("edge", edgeID).Warn("environment: the edge returned by the mutation has no node")
		return nil
	}
	cursor, hasCursor := writer.GetField(edgeID, store.CursorKey)

	for _, connectionID := range writer.Store().GetConnectionIDsForField(config.ParentID, config.ConnectionName) {
		// The edge is copied under the connection so that connections of the same field with
		// different filters don't share it.
		connectionEdgeID := document.ClientEdgeID(connectionID, nodeID)
		if err := writer.PutRecord(connectionEdgeID, writer.GetType(edgeID)); err != nil {
			return err
		}
		if hasCursor {
			if err := writer.PutField(connectionEdgeID, store.CursorKey, cursor); err != nil {
				return err
			}
		}
		if err := writer.PutLinkedRecordID(connectionEdgeID, store.NodeKey, nodeID); err != nil {
			return err
		}
		if err := writer.ApplyRangeUpdate(connectionID, connectionEdgeID, config.RangeBehavior); err != nil {
			return err
		}
	}
	return nil
}

func (config *RangeDelete) apply(
	writer *store.RecordWriter,
	selector document.Selector,
	data map[string]interface{}) error {

	for _, nodeID := range deletedIDs(selector, data, config.DeletedIDFieldName) {
		for _, connectionID := range writer.Store().GetConnectionIDsForField(config.ParentID, config.ConnectionName) {
			r := writer.GetRange(connectionID)
			if r == nil {
				continue
			}
			for _, edgeID := range r.EdgeIDs() {
				if id, _ := writer.GetLinkedRecordID(edgeID, store.NodeKey); id != nodeID {
					continue
				}
				if err := writer.ApplyRangeUpdate(connectionID, edgeID, store.RangeRemove); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (config *NodeDelete) apply(
	writer *store.RecordWriter,
	selector document.Selector,
	data map[string]interface{}) error {

	for _, id := range deletedIDs(selector, data, config.DeletedIDFieldName) {
		if err := writer.RemoveRecordFromConnections(id); err != nil {
			return err
		}
		if err := writer.DeleteRecord(id); err != nil {
			return err
		}
	}
	return nil
}
