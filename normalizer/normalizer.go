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
	"fmt"
	"strconv"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/store"

	"github.com/sirupsen/logrus"
)

// Options configures a write.
type Options struct {
	// Logger receives warnings. Default to the logger of the store being written.
	Logger logrus.FieldLogger

	// Path is the response path of the selector's record in the operation's response. It locates
	// the placeholders of incremental payloads.
	Path graphql.ResponsePath
}

// Result reports the effects of a write.
type Result struct {
	// Created contains the records created by the writer.
	Created store.DataIDSet

	// Updated contains the existing records the writer changed.
	Updated store.DataIDSet

	// IncrementalPlaceholders are the deferred and streamed selections whose data arrives in later
	// payloads.
	IncrementalPlaceholders []*IncrementalPlaceholder

	// ModuleImports are the objects that selected a @module fragment whose normalization document
	// must be loaded before their data can be written.
	ModuleImports []*ModuleImportPayload
}

// ModuleImportPayload is the data of an object selecting a @module fragment.
type ModuleImportPayload struct {
	DataID           store.DataID
	TypeName         string
	Path             graphql.ResponsePath
	Data             map[string]interface{}
	Variables        document.Variables
	DocumentName     string
	FragmentName     string
	FragmentPropName string

	// OperationReference is the value of the module's operation key in the response: the name of the
	// normalization document to load.
	OperationReference interface{}
}

// Write normalizes payload, the response data for selector, into the layer of writer.
func Write(
	writer *store.RecordWriter,
	selector document.Selector,
	payload map[string]interface{},
	opts Options) (*Result, error) {

	n := newNormalizer(writer, selector.Variables, opts)

	dataID := selector.DataID
	typeName := writer.GetType(dataID)
	if t, ok := payload[document.TypenameKey].(string); ok {
		typeName = t
	}
	if dataID != document.RootID {
		if err := n.putRecord(dataID, typeName); err != nil {
			return n.result(), err
		}
		typeName = writer.GetType(dataID)
	}

	err := n.traverse(selector.Document.DocumentSelections(), dataID, typeName, payload, opts.Path)
	return n.result(), err
}

// connectionContext collects the edges and page info of a connection while its selections are
// traversed.
type connectionContext struct {
	id           store.DataID
	edges        []store.RangeEdge
	hasEdges     bool
	pageInfo     store.PageInfo
	seenPageInfo bool
}

type normalizer struct {
	writer *store.RecordWriter
	vars   document.Variables
	logger logrus.FieldLogger

	connection *connectionContext

	placeholders  []*IncrementalPlaceholder
	moduleImports []*ModuleImportPayload
}

func newNormalizer(writer *store.RecordWriter, vars document.Variables, opts Options) *normalizer {
	logger := opts.Logger
	if logger == nil {
		logger = writer.Logger()
	}
	return &normalizer{
		writer: writer,
		vars:   vars,
		logger: logger,
	}
}

func (n *normalizer) result() *Result {
	created := make(store.DataIDSet, len(n.writer.Created()))
	created.AddAll(n.writer.Created())
	updated := make(store.DataIDSet, len(n.writer.Updated()))
	updated.AddAll(n.writer.Updated())
	return &Result{
		Created:                 created,
		Updated:                 updated,
		IncrementalPlaceholders: n.placeholders,
		ModuleImports:           n.moduleImports,
	}
}

func payloadError(path graphql.ResponsePath, format string, args ...interface{}) error {
	return graphql.NewError(fmt.Sprintf(format, args...),
		graphql.Op("normalizer.Write"), graphql.ErrKindPayload, path.Clone())
}

//===----------------------------------------------------------------------------------------====//
// Traversal
//===----------------------------------------------------------------------------------------====//

func (n *normalizer) traverse(
	selections []document.Selection,
	dataID store.DataID,
	typeName string,
	data map[string]interface{},
	path graphql.ResponsePath) error {

	for _, selection := range selections {
		var err error

		switch selection := selection.(type) {
		case *document.ScalarField:
			err = n.writeScalar(selection, dataID, data)

		case *document.LinkedField:
			err = n.writeLinkedField(selection, dataID, data, path)

		case *document.InlineFragment:
			var matches bool
			matches, err = n.matches(selection, dataID, typeName, data)
			if err == nil && matches {
				err = n.traverse(selection.Selections, dataID, typeName, data, path)
			}

		case *document.FragmentSpread:
			vars := n.vars
			n.vars = vars.ForSpread(selection)
			err = n.traverse(selection.Fragment.Selections, dataID, typeName, data, path)
			n.vars = vars

		case *document.Condition:
			if selection.Passes(n.vars) {
				err = n.traverse(selection.Selections, dataID, typeName, data, path)
			}

		case *document.ClientExtension:
			err = n.traverse(selection.Selections, dataID, typeName, data, path)

		case *document.ClientEdgeToServerObject:
			err = n.writeLinkedField(selection.Field, dataID, data, path)

		case *document.Defer:
			if selection.Enabled(n.vars) {
				n.placeholders = append(n.placeholders, &IncrementalPlaceholder{
					Kind:       KindDefer,
					Label:      selection.Label,
					Path:       path.Clone(),
					DataID:     dataID,
					TypeName:   typeName,
					Selections: selection.Selections,
					Variables:  n.vars,
				})
			} else {
				err = n.traverse(selection.Selections, dataID, typeName, data, path)
			}

		case *document.Stream:
			err = n.writeLinkedField(selection.Field, dataID, data, path)
			if err == nil && selection.Enabled(n.vars) {
				n.placeholders = append(n.placeholders, &IncrementalPlaceholder{
					Kind:      KindStream,
					Label:     selection.Label,
					Path:      path.WithFieldName(selection.Field.ResponseKey()),
					DataID:    dataID,
					TypeName:  typeName,
					Field:     selection.Field,
					Variables: n.vars,
				})
			}

		case *document.ModuleImport:
			err = n.writeModuleImport(selection, dataID, typeName, data, path)

		default:
			err = graphql.NewError(fmt.Sprintf("unsupported selection %T", selection),
				graphql.Op("normalizer.Write"), graphql.ErrKindDocument)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// matches decides whether an inline fragment applies to the object. Besides the concrete type, an
// abstract fragment can be matched by the presence of its abstract key in the payload, which is
// then remembered on the record.
func (n *normalizer) matches(
	fragment *document.InlineFragment,
	dataID store.DataID,
	typeName string,
	data map[string]interface{}) (bool, error) {

	if fragment.Matches(typeName) {
		return true, nil
	}

	if len(fragment.AbstractKey) > 0 {
		if value, present := data[fragment.AbstractKey]; present {
			implements := value != nil
			if err := n.writer.PutField(dataID, fragment.AbstractKey, implements); err != nil {
				return false, err
			}
			return implements, nil
		}
	}

	if len(typeName) == 0 {
		n.logger.WithFields(logrus.Fields{
			"dataID":   dataID,
			"fragment": fragment.Type,
		}).Warn("normalizer: cannot determine the type of the record; type-conditioned selections are skipped")
	}
	return false, nil
}

func (n *normalizer) putRecord(id store.DataID, typeName string) error {
	current := n.writer.GetType(id)
	if len(current) > 0 && len(typeName) > 0 && current != typeName {
		n.logger.WithFields(logrus.Fields{
			"dataID":   id,
			"typeName": typeName,
			"current":  current,
		}).Warn("normalizer: the payload changes the type of the record; the known type is kept")
		typeName = current
	}
	return n.writer.PutRecord(id, typeName)
}

func (n *normalizer) ensureRoot() error {
	if n.writer.GetRecordState(document.RootID) == store.Existent {
		return nil
	}
	return n.writer.PutRecord(document.RootID, "")
}

func (n *normalizer) writeScalar(field *document.ScalarField, dataID store.DataID, data map[string]interface{}) error {
	value, present := data[field.ResponseKey()]
	if !present || field.Name == document.TypenameKey {
		return nil
	}
	if dataID == document.RootID {
		if err := n.ensureRoot(); err != nil {
			return err
		}
	}
	return n.writer.PutField(dataID, document.StorageKey(field, n.vars), value)
}

func (n *normalizer) writeLinkedField(
	field *document.LinkedField,
	parentID store.DataID,
	data map[string]interface{},
	path graphql.ResponsePath) error {

	key := field.ResponseKey()
	value, present := data[key]
	if !present {
		return nil
	}
	fieldPath := path.WithFieldName(key)

	if ctx := n.connection; ctx != nil && ctx.id == parentID {
		switch field.Name {
		case store.EdgesKey:
			return n.collectEdges(ctx, field, value, fieldPath)
		case store.PageInfoKey:
			return n.collectPageInfo(ctx, value, fieldPath)
		}
	}

	if field.Connection {
		return n.writeConnection(field, parentID, value, fieldPath)
	}

	if parentID == document.RootID && !field.Plural {
		return n.writeRootField(field, value, fieldPath)
	}

	if parentID == document.RootID {
		if err := n.ensureRoot(); err != nil {
			return err
		}
	}

	storageKey := document.StorageKey(field, n.vars)
	if field.Plural {
		return n.writePlural(field, parentID, storageKey, value, fieldPath)
	}

	if value == nil {
		return n.writer.PutLinkedRecordID(parentID, storageKey, "")
	}
	object, ok := value.(map[string]interface{})
	if !ok {
		return payloadError(fieldPath, "expected an object for field %q but got %T", key, value)
	}
	childID, err := n.writeObject(field, object, document.ClientID(parentID, storageKey), fieldPath)
	if err != nil {
		return err
	}
	return n.writer.PutLinkedRecordID(parentID, storageKey, childID)
}

// typeOf returns the concrete type of an object: its __typename, or the field's concrete type.
func typeOf(field *document.LinkedField, object map[string]interface{}) string {
	if typeName, ok := object[document.TypenameKey].(string); ok && len(typeName) > 0 {
		return typeName
	}
	return field.ConcreteType
}

// writeObject writes the object of a linked field to its record: the one named by its id, or
// fallbackID for objects without one. It returns the record's id.
func (n *normalizer) writeObject(
	field *document.LinkedField,
	object map[string]interface{},
	fallbackID store.DataID,
	path graphql.ResponsePath) (store.DataID, error) {

	id := fallbackID
	if serverID, ok := document.IDOf(object[document.IDKey]); ok {
		id = serverID
	}

	if err := n.putRecord(id, typeOf(field, object)); err != nil {
		return "", err
	}
	if err := n.traverse(field.Selections, id, n.writer.GetType(id), object, path); err != nil {
		return "", err
	}
	return id, nil
}

func (n *normalizer) writePlural(
	field *document.LinkedField,
	parentID store.DataID,
	storageKey string,
	value interface{},
	path graphql.ResponsePath) error {

	if value == nil {
		return n.writer.PutLinkedRecordIDs(parentID, storageKey, nil)
	}
	items, ok := value.([]interface{})
	if !ok {
		return payloadError(path, "expected a list for field %q but got %T", field.ResponseKey(), value)
	}

	ids := make(store.Links, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		object, ok := item.(map[string]interface{})
		if !ok {
			return payloadError(path.WithIndex(i), "expected an object in list %q but got %T",
				field.ResponseKey(), item)
		}
		id, err := n.writeObject(field, object, document.ClientIndexID(parentID, storageKey, i), path.WithIndex(i))
		if err != nil {
			return err
		}
		ids[i] = id
	}

	return n.writer.PutLinkedRecordIDs(parentID, storageKey, ids)
}

// writeRootField writes a singular linked field of the root record. The record it links to is
// found through the root-call index so that repeated queries of the same root call share it.
func (n *normalizer) writeRootField(field *document.LinkedField, value interface{}, path graphql.ResponsePath) error {
	name := field.Name
	arg, ok := document.RootCallArgument(field, n.vars)
	if !ok {
		return graphql.NewError(
			fmt.Sprintf("root field %q requires a value for argument %q", field.ResponseKey(), field.IdentifyingArgument),
			graphql.Op("normalizer.Write"), graphql.ErrKindInvariant, path.Clone())
	}
	storageKey := document.StorageKey(field, n.vars)

	id, mapped := n.writer.GetDataID(name, arg)
	if value != nil {
		object, ok := value.(map[string]interface{})
		if !ok {
			return payloadError(path, "expected an object for field %q but got %T", field.ResponseKey(), value)
		}
		if serverID, ok := document.IDOf(object[document.IDKey]); ok {
			id = serverID
		} else if !mapped {
			id = rootFieldFallbackID(field, arg, storageKey)
		}

		if err := n.putRecord(id, typeOf(field, object)); err != nil {
			return err
		}
		if err := n.writer.PutDataID(name, arg, id); err != nil {
			return err
		}
		return n.traverse(field.Selections, id, n.writer.GetType(id), object, path)
	}

	// A null root object: the record the root call identifies does not exist.
	if !mapped {
		id = rootFieldFallbackID(field, arg, storageKey)
	}
	if err := n.writer.DeleteRecord(id); err != nil {
		return err
	}
	return n.writer.PutDataID(name, arg, id)
}

func rootFieldFallbackID(field *document.LinkedField, arg string, storageKey string) store.DataID {
	if field.IdentifyingArgument == document.IDKey && len(arg) > 0 {
		return arg
	}
	return document.ClientID(document.RootID, storageKey)
}

//===----------------------------------------------------------------------------------------====//
// Connections
//===----------------------------------------------------------------------------------------====//

func (n *normalizer) writeConnection(
	field *document.LinkedField,
	parentID store.DataID,
	value interface{},
	path graphql.ResponsePath) error {

	if parentID == document.RootID {
		if err := n.ensureRoot(); err != nil {
			return err
		}
	}

	storageKey := document.ConnectionStorageKey(field, n.vars)
	if value == nil {
		return n.writer.PutLinkedRecordID(parentID, storageKey, "")
	}
	object, ok := value.(map[string]interface{})
	if !ok {
		return payloadError(path, "expected an object for connection %q but got %T", field.ResponseKey(), value)
	}

	connectionID := document.ClientID(parentID, storageKey)
	if serverID, ok := document.IDOf(object[document.IDKey]); ok {
		connectionID = serverID
	}
	if err := n.putRecord(connectionID, typeOf(field, object)); err != nil {
		return err
	}

	calls := document.Calls(field, n.vars)
	if err := n.writer.PutRange(connectionID, parentID, field.Name, calls); err != nil {
		return err
	}
	if err := n.writer.PutLinkedRecordID(parentID, storageKey, connectionID); err != nil {
		return err
	}

	ctx := &connectionContext{id: connectionID}
	outer := n.connection
	n.connection = ctx
	err := n.traverse(field.Selections, connectionID, n.writer.GetType(connectionID), object, path)
	n.connection = outer
	if err != nil {
		return err
	}

	if !ctx.hasEdges {
		return nil
	}
	pageInfo := ctx.pageInfo
	if !ctx.seenPageInfo {
		// Without page info nothing is known about either end.
		pageInfo.HasNextPage = true
		pageInfo.HasPreviousPage = true
	}
	return n.writer.PutRangeEdges(connectionID, calls, pageInfo, ctx.edges)
}

func (n *normalizer) collectEdges(
	ctx *connectionContext,
	field *document.LinkedField,
	value interface{},
	path graphql.ResponsePath) error {

	ctx.hasEdges = true
	if value == nil {
		return nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return payloadError(path, "expected a list of edges but got %T", value)
	}

	for i, item := range items {
		if item == nil {
			continue
		}
		edge, ok := item.(map[string]interface{})
		if !ok {
			return payloadError(path.WithIndex(i), "expected an edge object but got %T", item)
		}

		cursor, _ := edge[store.CursorKey].(string)
		key := ""
		if node, ok := edge[store.NodeKey].(map[string]interface{}); ok {
			key, _ = document.IDOf(node[document.IDKey])
		}
		if len(key) == 0 {
			key = cursor
		}
		if len(key) == 0 {
			key = strconv.Itoa(len(ctx.edges))
		}

		edgeID, err := n.writeObject(field, edge, document.ClientEdgeID(ctx.id, key), path.WithIndex(i))
		if err != nil {
			return err
		}
		ctx.edges = append(ctx.edges, store.RangeEdge{ID: edgeID, Cursor: cursor})
	}
	return nil
}

func (n *normalizer) collectPageInfo(ctx *connectionContext, value interface{}, path graphql.ResponsePath) error {
	if value == nil {
		return nil
	}
	object, ok := value.(map[string]interface{})
	if !ok {
		return payloadError(path, "expected a page info object but got %T", value)
	}

	ctx.seenPageInfo = true
	ctx.pageInfo.HasNextPage, _ = object[store.HasNextPageKey].(bool)
	ctx.pageInfo.HasPreviousPage, _ = object[store.HasPreviousPageKey].(bool)
	ctx.pageInfo.StartCursor, _ = object[store.StartCursorKey].(string)
	ctx.pageInfo.EndCursor, _ = object[store.EndCursorKey].(string)
	return nil
}

//===----------------------------------------------------------------------------------------====//
// Modules
//===----------------------------------------------------------------------------------------====//

func (n *normalizer) writeModuleImport(
	module *document.ModuleImport,
	dataID store.DataID,
	typeName string,
	data map[string]interface{},
	path graphql.ResponsePath) error {

	if component, present := data[module.ComponentKey()]; present {
		if err := n.writer.PutField(dataID, module.ComponentKey(), component); err != nil {
			return err
		}
	}

	operation, present := data[module.OperationKey()]
	if !present {
		return nil
	}
	if err := n.writer.PutField(dataID, module.OperationKey(), operation); err != nil {
		return err
	}
	if operation == nil {
		return nil
	}

	n.moduleImports = append(n.moduleImports, &ModuleImportPayload{
		DataID:             dataID,
		TypeName:           typeName,
		Path:               path.Clone(),
		Data:               data,
		Variables:          n.vars,
		DocumentName:       module.DocumentName,
		FragmentName:       module.FragmentName,
		FragmentPropName:   module.FragmentPropName,
		OperationReference: operation,
	})
	return nil
}
