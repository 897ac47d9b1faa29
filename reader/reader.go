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
)

// Read resolves the data of selector from source.
func Read(source Source, selector document.Selector) *Snapshot {
	r := &reader{
		source: source,
		vars:   selector.Variables,
		seen:   store.NewDataIDSet(),
	}

	snapshot := &Snapshot{
		Selector: selector,
	}

	dataID := selector.DataID
	r.seen.Add(dataID)
	switch source.GetRecordState(dataID) {
	case store.Existent:
		data := map[string]interface{}{}
		r.readSelections(selector.Document.DocumentSelections(), dataID, data)
		snapshot.Data = data

	case store.Unknown:
		// The root record exists implicitly; its fields are missing like any other.
		if dataID == document.RootID {
			data := map[string]interface{}{}
			r.readSelections(selector.Document.DocumentSelections(), dataID, data)
			snapshot.Data = data
		} else {
			r.markMissing()
		}
	}

	snapshot.IsMissingData = r.missing
	snapshot.SeenRecords = r.seen
	snapshot.MissingClientEdges = r.missingClientEdges
	return snapshot
}

type connectionContext struct {
	id   store.DataID
	info store.RangeInfo
}

type reader struct {
	source Source
	vars   document.Variables

	missing            bool
	clientExtension    int
	seen               store.DataIDSet
	missingClientEdges []MissingClientEdge

	connection *connectionContext
}

func (r *reader) markMissing() {
	if r.clientExtension == 0 {
		r.missing = true
	}
}

func (r *reader) readSelections(selections []document.Selection, dataID store.DataID, data map[string]interface{}) {
	for _, selection := range selections {
		switch selection := selection.(type) {
		case *document.ScalarField:
			r.readScalar(selection, dataID, data)

		case *document.LinkedField:
			r.readLinkedField(selection, dataID, data)

		case *document.InlineFragment:
			if r.matches(selection, dataID) {
				r.readSelections(selection.Selections, dataID, data)
			}

		case *document.FragmentSpread:
			if selection.Unmask {
				vars := r.vars
				r.vars = vars.ForSpread(selection)
				r.readSelections(selection.Fragment.Selections, dataID, data)
				r.vars = vars
			} else {
				addFragmentReference(data, dataID, selection.Fragment.Name, FragmentReference{
					Fragment:  selection.Fragment,
					Variables: r.vars.ForSpread(selection),
				})
			}

		case *document.Condition:
			if selection.Passes(r.vars) {
				r.readSelections(selection.Selections, dataID, data)
			}

		case *document.ClientExtension:
			r.clientExtension++
			r.readSelections(selection.Selections, dataID, data)
			r.clientExtension--

		case *document.ClientEdgeToServerObject:
			r.readClientEdge(selection, dataID, data)

		case *document.Defer:
			r.readSelections(selection.Selections, dataID, data)

		case *document.Stream:
			r.readLinkedField(selection.Field, dataID, data)

		case *document.ModuleImport:
			r.readModuleImport(selection, dataID, data)
		}
	}
}

func addFragmentReference(data map[string]interface{}, dataID store.DataID, name string, ref FragmentReference) {
	fragments, ok := data[document.FragmentsKey].(map[string]FragmentReference)
	if !ok {
		fragments = map[string]FragmentReference{}
		data[document.FragmentsKey] = fragments
	}
	fragments[name] = ref
	data[document.IDRefKey] = dataID
}

// matches decides whether an inline fragment applies to a record. A record whose type is not
// known cannot be matched and makes the data missing.
func (r *reader) matches(fragment *document.InlineFragment, dataID store.DataID) bool {
	typeName := r.source.GetType(dataID)
	if fragment.Matches(typeName) {
		return true
	}

	if len(fragment.AbstractKey) > 0 {
		value, ok := r.source.GetField(dataID, fragment.AbstractKey)
		if !ok {
			r.markMissing()
			return false
		}
		implements, _ := value.(bool)
		return implements
	}

	if len(typeName) == 0 {
		r.markMissing()
	}
	return false
}

func (r *reader) readScalar(field *document.ScalarField, dataID store.DataID, data map[string]interface{}) {
	key := field.ResponseKey()
	if field.Name == document.TypenameKey {
		if typeName := r.source.GetType(dataID); len(typeName) > 0 {
			data[key] = typeName
		} else {
			r.markMissing()
		}
		return
	}

	value, ok := r.source.GetField(dataID, document.StorageKey(field, r.vars))
	if !ok {
		r.markMissing()
		return
	}
	data[key] = value
}

func (r *reader) readLinkedField(field *document.LinkedField, dataID store.DataID, data map[string]interface{}) {
	key := field.ResponseKey()

	if ctx := r.connection; ctx != nil && ctx.id == dataID {
		switch field.Name {
		case store.EdgesKey:
			r.readEdges(ctx, field, data)
			return
		case store.PageInfoKey:
			r.readPageInfo(ctx, field, data)
			return
		}
	}

	if field.Connection {
		r.readConnection(field, dataID, data)
		return
	}

	if dataID == document.RootID && !field.Plural {
		arg, ok := document.RootCallArgument(field, r.vars)
		if !ok {
			r.markMissing()
			return
		}
		id, ok := r.source.GetDataID(field.Name, arg)
		if !ok {
			r.markMissing()
			return
		}
		if value, defined := r.readObject(field.Selections, id); defined {
			data[key] = value
		}
		return
	}

	storageKey := document.StorageKey(field, r.vars)
	if field.Plural {
		ids, ok := r.source.GetLinkedRecordIDs(dataID, storageKey)
		if !ok {
			r.markMissing()
			return
		}
		if ids == nil {
			data[key] = nil
			return
		}
		items := make([]interface{}, len(ids))
		for i, id := range ids {
			if len(id) == 0 {
				continue
			}
			// An undefined item stays nil in the list.
			items[i], _ = r.readObject(field.Selections, id)
		}
		data[key] = items
		return
	}

	id, ok := r.source.GetLinkedRecordID(dataID, storageKey)
	if !ok {
		r.markMissing()
		return
	}
	if len(id) == 0 {
		data[key] = nil
		return
	}
	if value, defined := r.readObject(field.Selections, id); defined {
		data[key] = value
	}
}

// readObject reads selections from the record id. It returns false when the record is unknown.
func (r *reader) readObject(selections []document.Selection, id store.DataID) (interface{}, bool) {
	r.seen.Add(id)
	switch r.source.GetRecordState(id) {
	case store.Nonexistent:
		return nil, true
	case store.Unknown:
		r.markMissing()
		return nil, false
	}

	data := map[string]interface{}{}
	r.readSelections(selections, id, data)
	return data, true
}

//===----------------------------------------------------------------------------------------====//
// Connections
//===----------------------------------------------------------------------------------------====//

func (r *reader) readConnection(field *document.LinkedField, dataID store.DataID, data map[string]interface{}) {
	key := field.ResponseKey()

	connectionID, ok := r.source.GetLinkedRecordID(dataID, document.ConnectionStorageKey(field, r.vars))
	if !ok {
		r.markMissing()
		return
	}
	if len(connectionID) == 0 {
		data[key] = nil
		return
	}

	r.seen.Add(connectionID)
	switch r.source.GetRecordState(connectionID) {
	case store.Nonexistent:
		data[key] = nil
		return
	case store.Unknown:
		r.markMissing()
		return
	}

	rng := r.source.GetRange(connectionID)
	if rng == nil {
		r.markMissing()
		return
	}
	info := rng.RetrieveRangeInfo(document.Calls(field, r.vars))
	if len(info.DiffCalls) > 0 {
		r.markMissing()
	}

	outer := r.connection
	r.connection = &connectionContext{id: connectionID, info: info}
	connection := map[string]interface{}{}
	r.readSelections(field.Selections, connectionID, connection)
	r.connection = outer

	data[key] = connection
}

func (r *reader) readEdges(ctx *connectionContext, field *document.LinkedField, data map[string]interface{}) {
	edges := make([]interface{}, 0, len(ctx.info.RequestedEdgeIDs))
	for _, edgeID := range ctx.info.RequestedEdgeIDs {
		edge, defined := r.readObject(field.Selections, edgeID)
		if !defined || edge == nil {
			continue
		}
		edges = append(edges, edge)
	}
	data[field.ResponseKey()] = edges
}

func (r *reader) readPageInfo(ctx *connectionContext, field *document.LinkedField, data map[string]interface{}) {
	pageInfo := ctx.info.PageInfo
	values := map[string]interface{}{
		store.HasNextPageKey:     pageInfo.HasNextPage,
		store.HasPreviousPageKey: pageInfo.HasPreviousPage,
		store.StartCursorKey:     nullableCursor(pageInfo.StartCursor),
		store.EndCursorKey:       nullableCursor(pageInfo.EndCursor),
	}

	result := map[string]interface{}{}
	for _, selection := range field.Selections {
		scalar, ok := selection.(*document.ScalarField)
		if !ok {
			continue
		}
		if value, known := values[scalar.Name]; known {
			result[scalar.ResponseKey()] = value
		}
	}
	data[field.ResponseKey()] = result
}

func nullableCursor(cursor string) interface{} {
	if len(cursor) == 0 {
		return nil
	}
	return cursor
}

//===----------------------------------------------------------------------------------------====//
// Client edges and modules
//===----------------------------------------------------------------------------------------====//

func (r *reader) readClientEdge(edge *document.ClientEdgeToServerObject, dataID store.DataID, data map[string]interface{}) {
	field := edge.Field
	key := field.ResponseKey()

	// The link is client data; not having it is not missing server data.
	id, ok := r.source.GetLinkedRecordID(dataID, document.StorageKey(field, r.vars))
	if !ok {
		return
	}
	if len(id) == 0 {
		data[key] = nil
		return
	}

	if r.source.GetRecordState(id) == store.Unknown {
		r.missingClientEdges = append(r.missingClientEdges, MissingClientEdge{
			Operation: edge.Operation,
			ID:        id,
		})
	}
	if value, defined := r.readObject(field.Selections, id); defined {
		data[key] = value
	}
}

func (r *reader) readModuleImport(module *document.ModuleImport, dataID store.DataID, data map[string]interface{}) {
	component, ok := r.source.GetField(dataID, module.ComponentKey())
	if !ok {
		r.markMissing()
		return
	}
	if component == nil {
		return
	}

	addFragmentReference(data, dataID, module.FragmentName, FragmentReference{Variables: r.vars})
	data[document.FragmentPropNameKey] = module.FragmentPropName
	data[document.ModuleComponentKey] = component
}
