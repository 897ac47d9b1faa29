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
	"strings"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/store"
)

// QueryPath locates a record for a refetch. A record with a server id is refetched directly (by
// node(id:)); any other record is reached from the closest such record or the root through a
// chain of linked fields.
type QueryPath struct {
	parent *QueryPath
	field  *document.LinkedField
	dataID store.DataID
}

// NewQueryPath creates a path starting at the record dataID.
func NewQueryPath(dataID store.DataID) *QueryPath {
	return &QueryPath{dataID: dataID}
}

// Child returns the path of the record reached by following field from the record of path.
func (path *QueryPath) Child(field *document.LinkedField, dataID store.DataID) *QueryPath {
	if len(dataID) > 0 && !document.IsClientID(dataID) {
		return &QueryPath{field: field, dataID: dataID}
	}
	return &QueryPath{parent: path, field: field, dataID: dataID}
}

// DataID returns the id of the record the path leads to.
func (path *QueryPath) DataID() store.DataID {
	return path.dataID
}

// Parent returns the path of the previous record, or nil if the path starts here.
func (path *QueryPath) Parent() *QueryPath {
	return path.parent
}

// Field returns the field followed to reach the record, or nil at the start of a path.
func (path *QueryPath) Field() *document.LinkedField {
	return path.field
}

// Start returns the id of the record the path starts at.
func (path *QueryPath) Start() store.DataID {
	for path.parent != nil {
		path = path.parent
	}
	return path.dataID
}

// Fields returns the fields to follow from the start of the path.
func (path *QueryPath) Fields() []*document.LinkedField {
	var fields []*document.LinkedField
	for ; path.parent != nil; path = path.parent {
		fields = append(fields, path.field)
	}
	for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
		fields[i], fields[j] = fields[j], fields[i]
	}
	return fields
}

// String formats the path as the start record followed by the response keys, e.g.
// "client:root.viewer.friends".
func (path *QueryPath) String() string {
	var b strings.Builder
	b.WriteString(path.Start())
	for _, field := range path.Fields() {
		b.WriteRune('.')
		b.WriteString(field.ResponseKey())
	}
	return b.String()
}
