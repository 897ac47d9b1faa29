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

package document

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Composite argument values whose encoding exceeds this length are replaced by their hash in
// storage keys.
const maxInlineArgumentLength = 64

// ClientIDPrefix starts every client-generated DataID.
const ClientIDPrefix = "client:"

// StorageKey computes the key under which field's value is stored in its parent record: the field
// name, followed by the non-null arguments sorted by name, e.g. `profilePicture(size:32)`.
func StorageKey(field Field, vars Variables) string {
	if key := field.precomputedStorageKey(); len(key) > 0 {
		return key
	}
	return formatStorageKey(field.FieldName(), Calls(field, vars))
}

// ConnectionStorageKey computes the storage key of a connection field. Range calls are excluded so
// that every page of a connection shares one record.
func ConnectionStorageKey(field *LinkedField, vars Variables) string {
	_, filterCalls := SplitCalls(Calls(field, vars))
	return formatStorageKey(field.Name, filterCalls)
}

// FieldStorageKey returns ConnectionStorageKey for connection fields and StorageKey otherwise.
func FieldStorageKey(field Field, vars Variables) string {
	if linked, ok := field.(*LinkedField); ok && linked.Connection {
		return ConnectionStorageKey(linked, vars)
	}
	return StorageKey(field, vars)
}

// PrecomputeStorageKey returns the storage key of a field whose arguments contain no variable, or
// "" if they do.
func PrecomputeStorageKey(name string, args []Argument) string {
	calls := make([]Call, 0, len(args))
	for _, arg := range args {
		if hasVariable(arg.Value) {
			return ""
		}
		value := ResolveValue(arg.Value, nil)
		if value == nil {
			continue
		}
		calls = append(calls, Call{arg.Name, value})
	}
	return formatStorageKey(name, calls)
}

func hasVariable(value Value) bool {
	switch value := value.(type) {
	case Variable:
		return true
	case ObjectValue:
		for _, field := range value.Fields {
			if hasVariable(field.Value) {
				return true
			}
		}
	case ListValue:
		for _, item := range value.Items {
			if hasVariable(item) {
				return true
			}
		}
	}
	return false
}

func formatStorageKey(name string, calls []Call) string {
	if len(calls) == 0 {
		return name
	}

	sorted := make([]Call, len(calls))
	copy(sorted, calls)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, call := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(call.Name)
		b.WriteByte(':')
		b.WriteString(formatArgumentValue(call.Value))
	}
	b.WriteByte(')')
	return b.String()
}

// formatArgumentValue encodes a resolved argument value as canonical JSON. Long composite values
// are replaced by "#" followed by the base-36 xxhash of their encoding.
func formatArgumentValue(value interface{}) string {
	encoded, err := canonicalJSON.MarshalToString(normalizeNumbers(value))
	if err != nil {
		encoded = fmt.Sprintf("%v", value)
	}

	switch value.(type) {
	case map[string]interface{}, []interface{}:
		if len(encoded) > maxInlineArgumentLength {
			return "#" + strconv.FormatUint(xxhash.Sum64String(encoded), 36)
		}
	}
	return encoded
}

// normalizeNumbers converts integral floats to int64 (and json.Number to its numeric value) so that
// 10 and 10.0 produce the same key.
func normalizeNumbers(value interface{}) interface{} {
	switch value := value.(type) {
	case float64:
		if value == math.Trunc(value) && math.Abs(value) < 1<<53 {
			return int64(value)
		}
		return value
	case float32:
		return normalizeNumbers(float64(value))
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i
		}
		if f, err := value.Float64(); err == nil {
			return normalizeNumbers(f)
		}
		return string(value)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(value))
		for k, v := range value {
			result[k] = normalizeNumbers(v)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(value))
		for i, v := range value {
			result[i] = normalizeNumbers(v)
		}
		return result
	}
	return value
}

// toInt converts a decoded JSON number to int.
func toInt(value interface{}) (int, bool) {
	switch value := value.(type) {
	case int:
		return value, true
	case int32:
		return int(value), true
	case int64:
		return int(value), true
	case float64:
		return int(value), value == math.Trunc(value)
	case json.Number:
		i, err := value.Int64()
		return int(i), err == nil
	}
	return 0, false
}

//===----------------------------------------------------------------------------------------====//
// Client IDs
//===----------------------------------------------------------------------------------------====//

// IsClientID returns true if id was generated by the client.
func IsClientID(id DataID) bool {
	return strings.HasPrefix(id, ClientIDPrefix)
}

// ClientID generates the id of an id-less object stored under storageKey of parentID. The result
// is deterministic so writing the same payload twice reuses the record.
func ClientID(parentID DataID, storageKey string) DataID {
	key := parentID + ":" + storageKey
	if !IsClientID(key) {
		key = ClientIDPrefix + key
	}
	return key
}

// ClientIndexID generates the id of the index-th id-less object in a plural field.
func ClientIndexID(parentID DataID, storageKey string, index int) DataID {
	return ClientID(parentID, storageKey) + ":" + strconv.Itoa(index)
}

// ClientEdgeID generates the id of the edge record linking connectionID to nodeID.
func ClientEdgeID(connectionID DataID, nodeID DataID) DataID {
	return ClientID(connectionID, nodeID)
}

// IDOf extracts a DataID from a response value (a string or a number id). It returns false if the
// value cannot serve as an id.
func IDOf(value interface{}) (DataID, bool) {
	switch value := value.(type) {
	case string:
		return value, len(value) > 0
	case json.Number:
		return value.String(), true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	}
	return "", false
}

// RootCallArgument returns the value identifying a root field in the root-call index. Fields with
// an identifying argument (e.g. node(id:)) use that argument's value; other fields use their
// formatted arguments, or "" when they have none. The second return value is false if the
// identifying argument is given but resolves to null, for example from an unbound variable.
func RootCallArgument(field *LinkedField, vars Variables) (string, bool) {
	if len(field.IdentifyingArgument) > 0 {
		for _, arg := range field.Args {
			if arg.Name != field.IdentifyingArgument {
				continue
			}
			value := ResolveValue(arg.Value, vars)
			if value == nil {
				return "", false
			}
			if id, ok := IDOf(value); ok {
				return id, true
			}
			return formatArgumentValue(value), true
		}
		return "", true
	}

	calls := Calls(field, vars)
	if field.Connection {
		_, calls = SplitCalls(calls)
	}
	if len(calls) == 0 {
		return "", true
	}
	return formatStorageKey("", calls), true
}
