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
	"sort"
	"strings"
)

// Value is the value of an argument: a Literal, a Variable reference, or an ObjectValue/ListValue
// that may contain variable references.
type Value interface {
	// resolve evaluates the value against the variables.
	resolve(vars Variables) interface{}
}

var (
	_ Value = Literal{}
	_ Value = Variable{}
	_ Value = ObjectValue{}
	_ Value = ListValue{}
)

// Literal is a constant value.
type Literal struct {
	Value interface{}
}

func (literal Literal) resolve(Variables) interface{} {
	return literal.Value
}

// Variable refers to a variable by name.
type Variable struct {
	Name string
}

func (variable Variable) resolve(vars Variables) interface{} {
	return vars[variable.Name]
}

// ObjectValue is an input object whose fields may contain variables.
type ObjectValue struct {
	Fields []Argument
}

func (object ObjectValue) resolve(vars Variables) interface{} {
	result := make(map[string]interface{}, len(object.Fields))
	for _, field := range object.Fields {
		result[field.Name] = ResolveValue(field.Value, vars)
	}
	return result
}

// ListValue is a list whose items may contain variables.
type ListValue struct {
	Items []Value
}

func (list ListValue) resolve(vars Variables) interface{} {
	result := make([]interface{}, len(list.Items))
	for i, item := range list.Items {
		result[i] = ResolveValue(item, vars)
	}
	return result
}

// ResolveValue evaluates value against vars. A nil value resolves to nil.
func ResolveValue(value Value, vars Variables) interface{} {
	if value == nil {
		return nil
	}
	return value.resolve(vars)
}

// Argument is a named argument of a field or a fragment spread.
type Argument struct {
	Name  string
	Value Value
}

// ResolveArguments evaluates args against vars into a map.
func ResolveArguments(args []Argument, vars Variables) map[string]interface{} {
	result := make(map[string]interface{}, len(args))
	for _, arg := range args {
		result[arg.Name] = ResolveValue(arg.Value, vars)
	}
	return result
}

//===----------------------------------------------------------------------------------------====//
// Calls
//===----------------------------------------------------------------------------------------====//

// Names of the pagination arguments of a connection field.
const (
	CallFirst  = "first"
	CallLast   = "last"
	CallAfter  = "after"
	CallBefore = "before"
)

// IsRangeCall returns true if name is one of the pagination arguments.
func IsRangeCall(name string) bool {
	switch name {
	case CallFirst, CallLast, CallAfter, CallBefore:
		return true
	}
	return false
}

// Call is an argument with its resolved value. A connection's arguments are split into range calls
// (pagination) and filter calls (everything else).
type Call struct {
	Name  string
	Value interface{}
}

// String formats the call as name(value).
func (call Call) String() string {
	return call.Name + "(" + formatArgumentValue(call.Value) + ")"
}

// Calls returns the resolved non-null arguments of field in declaration order.
func Calls(field Field, vars Variables) []Call {
	args := field.Arguments()
	calls := make([]Call, 0, len(args))
	for _, arg := range args {
		value := ResolveValue(arg.Value, vars)
		if value == nil {
			continue
		}
		calls = append(calls, Call{arg.Name, value})
	}
	return calls
}

// SplitCalls partitions calls into range calls and filter calls.
func SplitCalls(calls []Call) (rangeCalls []Call, filterCalls []Call) {
	for _, call := range calls {
		if IsRangeCall(call.Name) {
			rangeCalls = append(rangeCalls, call)
		} else {
			filterCalls = append(filterCalls, call)
		}
	}
	return
}

// CallsSignature returns a string identifying a set of filter calls, e.g. `orderby("name")`. The
// order of calls doesn't matter.
func CallsSignature(calls []Call) string {
	if len(calls) == 0 {
		return ""
	}
	parts := make([]string, len(calls))
	for i, call := range calls {
		parts[i] = call.String()
	}
	sort.Strings(parts)
	return strings.Join(parts, ".")
}

// CallValue returns the value of the call with the given name.
func CallValue(calls []Call, name string) (interface{}, bool) {
	for _, call := range calls {
		if call.Name == name {
			return call.Value, true
		}
	}
	return nil, false
}

// CallInt returns the value of the call with the given name as an int.
func CallInt(calls []Call, name string) (int, bool) {
	value, ok := CallValue(calls, name)
	if !ok {
		return 0, false
	}
	return toInt(value)
}

// CallString returns the value of the call with the given name as a string.
func CallString(calls []Call, name string) (string, bool) {
	value, ok := CallValue(calls, name)
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
