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

package persist

import (
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/store"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fieldKind string

const (
	scalarField fieldKind = "scalar"
	linkField   fieldKind = "link"
	linksField  fieldKind = "links"
	rangeField  fieldKind = "range"
)

// fieldState is the persisted form of a field value.
type fieldState struct {
	Kind  fieldKind         `json:"kind"`
	Value interface{}       `json:"value,omitempty"`
	Link  store.DataID      `json:"link,omitempty"`
	Links store.Links       `json:"links,omitempty"`
	Range *store.RangeState `json:"range,omitempty"`
}

// recordState is the persisted form of a record. A deleted record is kept as a tombstone so the
// restored layer still knows it doesn't exist.
type recordState struct {
	Deleted  bool                  `json:"deleted,omitempty"`
	TypeName string                `json:"typeName,omitempty"`
	Fields   map[string]fieldState `json:"fields,omitempty"`
}

func encodeField(value interface{}) fieldState {
	switch value := value.(type) {
	case store.Link:
		return fieldState{Kind: linkField, Link: value.ID}
	case store.Links:
		return fieldState{Kind: linksField, Links: value}
	case *store.Range:
		state := value.State()
		return fieldState{Kind: rangeField, Range: &state}
	default:
		return fieldState{Kind: scalarField, Value: value}
	}
}

func decodeField(state fieldState) (interface{}, error) {
	switch state.Kind {
	case scalarField:
		return state.Value, nil
	case linkField:
		return store.Link{ID: state.Link}, nil
	case linksField:
		if state.Links == nil {
			return store.Links{}, nil
		}
		return state.Links, nil
	case rangeField:
		if state.Range == nil {
			return nil, graphql.NewError("persisted range field has no range", graphql.ErrKindPayload)
		}
		return store.RangeFromState(*state.Range), nil
	}
	return nil, graphql.NewError("unknown kind of persisted field: "+string(state.Kind), graphql.ErrKindPayload)
}

func encodeRecord(state *recordState) ([]byte, error) {
	return json.Marshal(state)
}

func decodeRecord(data []byte) (*recordState, error) {
	var state recordState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// toRecord restores a record from its persisted form.
func toRecord(id store.DataID, state *recordState) (*store.Record, error) {
	record := store.NewRecord(id, state.TypeName)
	for key, field := range state.Fields {
		if key == document.TypenameKey {
			continue
		}
		value, err := decodeField(field)
		if err != nil {
			return nil, err
		}
		record.Set(key, value)
	}
	return record, nil
}

// rootCallKey joins the field name and the identifying argument of a root call. Field names never
// contain a NUL byte.
func rootCallKey(name string, arg string) []byte {
	key := make([]byte, 0, len(name)+1+len(arg))
	key = append(key, name...)
	key = append(key, 0)
	return append(key, arg...)
}

func splitRootCallKey(key []byte) (string, string, bool) {
	for i, b := range key {
		if b == 0 {
			return string(key[:i]), string(key[i+1:]), true
		}
	}
	return "", "", false
}
