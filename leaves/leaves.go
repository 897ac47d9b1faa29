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

package leaves

import (
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/store"
)

// Sources are the records a diff consults: the committed records and the records restored from a
// persisted cache. An explicit Unknown entry in Cache marks an id the cache was asked for and
// doesn't have.
type Sources struct {
	Base           *store.RecordSource
	Cache          *store.RecordSource
	BaseRootCalls  *store.RootCallMap
	CacheRootCalls *store.RootCallMap
}

// Params specifies a diff.
type Params struct {
	// Selections are checked against the record DataID.
	Selections []document.Selection
	DataID     store.DataID

	// Path locates DataID for refetches. Default to a path starting at DataID.
	Path *QueryPath

	// RangeCalls are the pagination calls to check when DataID is a connection record.
	RangeCalls []document.Call

	Variables document.Variables
	Sources   Sources
}

// PendingNodeState is a selection whose data must be fetched.
type PendingNodeState struct {
	// DataID is the record the selection applies to.
	DataID store.DataID

	// Node is the selection.
	Node document.Selection

	// Path locates DataID for the refetch.
	Path *QueryPath

	// RangeCalls are the calls to fetch when Node is a connection (its missing page), or nil.
	RangeCalls []document.Call
}

// Result is the outcome of a diff.
type Result struct {
	// PendingNodeStates are listed in document order. The same field of different records is
	// not merged.
	PendingNodeStates []PendingNodeState

	// MissingData is set when some data is neither available nor fetchable piecewise: the cache
	// was asked for a record and doesn't have it.
	MissingData bool
}

// FindPendingData finds the parts of params.Selections that neither the committed records nor the
// cache can provide.
func FindPendingData(params Params) Result {
	sources := params.Sources
	if sources.Base == nil {
		sources.Base = store.NewRecordSource()
	}
	if sources.Cache == nil {
		sources.Cache = store.NewRecordSource()
	}
	if sources.BaseRootCalls == nil {
		sources.BaseRootCalls = store.NewRootCallMap()
	}
	if sources.CacheRootCalls == nil {
		sources.CacheRootCalls = store.NewRootCallMap()
	}

	f := &finder{
		sources: sources,
		vars:    params.Variables,
	}

	path := params.Path
	if path == nil {
		path = NewQueryPath(params.DataID)
	}

	if len(params.RangeCalls) > 0 {
		f.visitRange(params.Selections, nil, params.DataID, path, params.RangeCalls)
	} else if params.DataID == document.RootID {
		f.traverse(params.Selections, params.DataID, path)
	} else {
		f.visitRecord(params.Selections, nil, params.DataID, path)
	}

	return Result{
		PendingNodeStates: f.pending,
		MissingData:       f.missingData,
	}
}

type finder struct {
	sources     Sources
	vars        document.Variables
	pending     []PendingNodeState
	missingData bool
}

// state returns the state of a record, the committed records taking precedence over the cache.
func (f *finder) state(id store.DataID) store.RecordState {
	if state := f.sources.Base.State(id); state != store.Unknown {
		return state
	}
	return f.sources.Cache.State(id)
}

func (f *finder) field(id store.DataID, key string) (interface{}, bool) {
	for _, source := range []*store.RecordSource{f.sources.Base, f.sources.Cache} {
		if record, state := source.Get(id); state == store.Existent {
			if value, ok := record.Get(key); ok {
				return value, true
			}
		}
	}
	return nil, false
}

func (f *finder) typeName(id store.DataID) string {
	for _, source := range []*store.RecordSource{f.sources.Base, f.sources.Cache} {
		if record, state := source.Get(id); state == store.Existent && len(record.TypeName()) > 0 {
			return record.TypeName()
		}
	}
	return ""
}

// handleMissing records that node of the record dataID must be fetched. A record the cache has
// already failed to find poisons the result instead: it cannot be completed piece by piece.
func (f *finder) handleMissing(node document.Selection, dataID store.DataID, path *QueryPath, rangeCalls []document.Call) {
	if f.sources.Cache.Has(dataID) && f.sources.Cache.State(dataID) == store.Unknown {
		f.missingData = true
		return
	}
	f.pending = append(f.pending, PendingNodeState{
		DataID:     dataID,
		Node:       node,
		Path:       path,
		RangeCalls: rangeCalls,
	})
}

// visitRecord checks selections against the record id reached through node (nil for the record a
// diff starts at).
func (f *finder) visitRecord(selections []document.Selection, node document.Selection, id store.DataID, path *QueryPath) {
	switch f.state(id) {
	case store.Existent:
		f.traverse(selections, id, path)

	case store.Unknown:
		if node == nil {
			node = &document.InlineFragment{Selections: selections}
		}
		f.handleMissing(node, id, path, nil)
	}
}

func (f *finder) traverse(selections []document.Selection, id store.DataID, path *QueryPath) {
	for _, selection := range selections {
		switch selection := selection.(type) {
		case *document.ScalarField:
			f.visitScalar(selection, id, path)

		case *document.LinkedField:
			f.visitLinkedField(selection, id, path)

		case *document.InlineFragment:
			typeName := f.typeName(id)
			if len(typeName) == 0 || selection.Matches(typeName) {
				f.traverse(selection.Selections, id, path)
			} else if len(selection.AbstractKey) > 0 {
				if implements, _ := f.field(id, selection.AbstractKey); implements == true {
					f.traverse(selection.Selections, id, path)
				}
			}

		case *document.FragmentSpread:
			vars := f.vars
			f.vars = vars.ForSpread(selection)
			f.traverse(selection.Fragment.Selections, id, path)
			f.vars = vars

		case *document.Condition:
			if selection.Passes(f.vars) {
				f.traverse(selection.Selections, id, path)
			}

		case *document.Defer:
			f.traverse(selection.Selections, id, path)

		case *document.Stream:
			f.visitLinkedField(selection.Field, id, path)

		case *document.ModuleImport:
			if _, ok := f.field(id, selection.ComponentKey()); !ok {
				f.handleMissing(selection, id, path, nil)
			}

		case *document.ClientExtension, *document.ClientEdgeToServerObject:
			// Client data is never fetched.
		}
	}
}

func (f *finder) visitScalar(field *document.ScalarField, id store.DataID, path *QueryPath) {
	if field.Name == document.TypenameKey {
		if len(f.typeName(id)) == 0 {
			f.handleMissing(field, id, path, nil)
		}
		return
	}
	if _, ok := f.field(id, document.StorageKey(field, f.vars)); !ok {
		f.handleMissing(field, id, path, nil)
	}
}

func (f *finder) visitLinkedField(field *document.LinkedField, id store.DataID, path *QueryPath) {
	if field.Connection {
		f.visitConnection(field, id, path)
		return
	}

	if id == document.RootID && !field.Plural {
		arg, ok := document.RootCallArgument(field, f.vars)
		if !ok {
			// The root call cannot be identified, let alone fetched piece by piece.
			f.missingData = true
			return
		}
		childID, ok := f.sources.BaseRootCalls.Get(field.Name, arg)
		if !ok {
			childID, ok = f.sources.CacheRootCalls.Get(field.Name, arg)
		}
		if !ok {
			f.handleMissing(field, id, path, nil)
			return
		}
		f.visitRecord(field.Selections, field, childID, path.Child(field, childID))
		return
	}

	value, ok := f.field(id, document.StorageKey(field, f.vars))
	if !ok {
		f.handleMissing(field, id, path, nil)
		return
	}

	switch value := value.(type) {
	case store.Link:
		f.visitRecord(field.Selections, field, value.ID, path.Child(field, value.ID))
	case store.Links:
		for _, childID := range value {
			if len(childID) > 0 {
				f.visitRecord(field.Selections, field, childID, path.Child(field, childID))
			}
		}
	}
}

//===----------------------------------------------------------------------------------------====//
// Connections
//===----------------------------------------------------------------------------------------====//

func (f *finder) visitConnection(field *document.LinkedField, id store.DataID, path *QueryPath) {
	value, ok := f.field(id, document.ConnectionStorageKey(field, f.vars))
	if !ok {
		f.handleMissing(field, id, path, nil)
		return
	}
	link, ok := value.(store.Link)
	if !ok {
		return
	}

	f.visitRange(field.Selections, field, link.ID, path.Child(field, link.ID), document.Calls(field, f.vars))
}

// visitRange checks the page described by calls of the connection record connectionID. The part
// of the page not in the range is fetched from the connection with the range's diff calls; the
// edges already known are checked like any other record.
func (f *finder) visitRange(
	selections []document.Selection,
	field *document.LinkedField,
	connectionID store.DataID,
	path *QueryPath,
	calls []document.Call) {

	node := document.Selection(field)
	if field == nil {
		node = &document.InlineFragment{Selections: selections}
	}

	switch f.state(connectionID) {
	case store.Nonexistent:
		return
	case store.Unknown:
		f.handleMissing(node, connectionID, path, calls)
		return
	}

	value, _ := f.field(connectionID, store.RangeKey)
	rng, ok := value.(*store.Range)
	if !ok {
		f.handleMissing(node, connectionID, path, calls)
		return
	}

	info := rng.RetrieveRangeInfo(calls)
	if len(info.DiffCalls) > 0 {
		f.handleMissing(node, connectionID, path, info.DiffCalls)
	}

	f.traverseConnection(selections, connectionID, path, info.RequestedEdgeIDs)
}

func (f *finder) traverseConnection(
	selections []document.Selection,
	connectionID store.DataID,
	path *QueryPath,
	edgeIDs []store.DataID) {

	for _, selection := range selections {
		switch selection := selection.(type) {
		case *document.LinkedField:
			switch selection.Name {
			case store.EdgesKey:
				for _, edgeID := range edgeIDs {
					f.visitRecord(selection.Selections, selection, edgeID, path.Child(selection, edgeID))
				}
			case store.PageInfoKey:
				// Derived from the range.
			default:
				f.visitLinkedField(selection, connectionID, path)
			}

		case *document.InlineFragment:
			typeName := f.typeName(connectionID)
			if len(typeName) == 0 || selection.Matches(typeName) {
				f.traverseConnection(selection.Selections, connectionID, path, edgeIDs)
			}

		case *document.Condition:
			if selection.Passes(f.vars) {
				f.traverseConnection(selection.Selections, connectionID, path, edgeIDs)
			}

		default:
			f.traverse([]document.Selection{selection}, connectionID, path)
		}
	}
}
