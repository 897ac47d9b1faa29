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
	jsoniter "github.com/json-iterator/go"
)

// DataID identifies a record in the store: a server-provided global id or a client-generated one.
type DataID = string

// Well-known ids and keys.
const (
	// RootID is the id of the record holding root fields.
	RootID DataID = "client:root"

	// TypenameKey is the field holding an object's concrete type.
	TypenameKey = "__typename"

	// IDKey is the field holding an object's global id.
	IDKey = "id"

	// FragmentsKey is the key under which read results carry fragment references.
	FragmentsKey = "__fragments"

	// IDRefKey is the key under which read results carry the id of the record they were read from.
	IDRefKey = "__id"

	// ModuleComponentKeyPrefix and ModuleOperationKeyPrefix prefix the response keys of a
	// ModuleImport.
	ModuleComponentKeyPrefix = "__module_component_"
	ModuleOperationKeyPrefix = "__module_operation_"

	// ModuleComponentKey and FragmentPropNameKey are the keys a read result of a ModuleImport uses.
	ModuleComponentKey  = "__module_component"
	FragmentPropNameKey = "__fragmentPropName"
)

// Document is a unit of selections that can be read or written against a record: an Operation
// (rooted at RootID) or a Fragment (rooted at any record of its type).
type Document interface {
	// DocumentName returns the name of the operation or fragment.
	DocumentName() string

	// DocumentSelections returns the top-level selections.
	DocumentSelections() []Selection

	// document is a special mark to indicate a Document.
	document()
}

var (
	_ Document = (*Operation)(nil)
	_ Document = (*Fragment)(nil)
)

// OperationKind is the type of an operation.
type OperationKind uint8

// Enumeration of OperationKind
const (
	OperationQuery OperationKind = iota
	OperationMutation
	OperationSubscription
)

func (kind OperationKind) String() string {
	switch kind {
	case OperationQuery:
		return "query"
	case OperationMutation:
		return "mutation"
	case OperationSubscription:
		return "subscription"
	}
	return "unknown"
}

// VariableDefinition declares an operation variable.
type VariableDefinition struct {
	Name string

	// DefaultValue is used when the variable is not provided. nil means no default.
	DefaultValue interface{}
}

// Operation is a query, mutation or subscription.
type Operation struct {
	Name string
	Kind OperationKind

	// Text is the GraphQL source sent to the server.
	Text string

	// ID identifies a persisted query; it is sent instead of Text when set.
	ID string

	VariableDefinitions []VariableDefinition
	Selections          []Selection
}

func (*Operation) document() {}

// DocumentName implements Document.
func (operation *Operation) DocumentName() string {
	return operation.Name
}

// DocumentSelections implements Document.
func (operation *Operation) DocumentSelections() []Selection {
	return operation.Selections
}

// Variables returns vars completed with the operation's default values. Variables not declared by
// the operation are dropped.
func (operation *Operation) Variables(vars Variables) Variables {
	result := make(Variables, len(operation.VariableDefinitions))
	for _, definition := range operation.VariableDefinitions {
		if value, exists := vars[definition.Name]; exists {
			result[definition.Name] = value
		} else if definition.DefaultValue != nil {
			result[definition.Name] = definition.DefaultValue
		}
	}
	return result
}

// ArgumentDefinition declares a fragment argument (a variable local to the fragment).
type ArgumentDefinition struct {
	Name         string
	DefaultValue interface{}
}

// Fragment is a named, reusable set of selections on a type.
type Fragment struct {
	Name          string
	TypeCondition string

	ArgumentDefinitions []ArgumentDefinition
	Selections          []Selection
}

func (*Fragment) document() {}

// DocumentName implements Document.
func (fragment *Fragment) DocumentName() string {
	return fragment.Name
}

// DocumentSelections implements Document.
func (fragment *Fragment) DocumentSelections() []Selection {
	return fragment.Selections
}

// Variables is a map from variable name to value. Values are the Go representation of JSON values
// (nil, bool, float64 or int, string, []interface{}, map[string]interface{}).
type Variables map[string]interface{}

// ForSpread computes the variables visible inside the fragment included by spread: the parent
// variables overridden by the fragment's argument defaults and then by the spread's arguments
// (evaluated against the parent variables).
func (vars Variables) ForSpread(spread *FragmentSpread) Variables {
	fragment := spread.Fragment
	if len(fragment.ArgumentDefinitions) == 0 && len(spread.Args) == 0 {
		return vars
	}

	result := make(Variables, len(vars)+len(fragment.ArgumentDefinitions))
	for name, value := range vars {
		result[name] = value
	}
	for _, definition := range fragment.ArgumentDefinitions {
		if definition.DefaultValue != nil {
			result[definition.Name] = definition.DefaultValue
		} else {
			delete(result, definition.Name)
		}
	}
	for _, arg := range spread.Args {
		result[arg.Name] = ResolveValue(arg.Value, vars)
	}
	return result
}

// Selector identifies the data of a document rooted at a record under a set of variables.
type Selector struct {
	DataID    DataID
	Document  Document
	Variables Variables
}

// NewOperationSelector creates a selector for an operation rooted at RootID with the operation's
// default variable values applied.
func NewOperationSelector(operation *Operation, vars Variables) Selector {
	return Selector{
		DataID:    RootID,
		Document:  operation,
		Variables: operation.Variables(vars),
	}
}

// NewFragmentSelector creates a selector for a fragment rooted at dataID.
func NewFragmentSelector(fragment *Fragment, dataID DataID, vars Variables) Selector {
	return Selector{
		DataID:    dataID,
		Document:  fragment,
		Variables: vars,
	}
}

// ID returns a string identifying the selector. Two selectors with equal ids select the same data.
func (selector Selector) ID() string {
	vars, err := canonicalJSON.MarshalToString(selector.Variables)
	if err != nil {
		vars = "{}"
	}
	return selector.DataID + "{" + selector.Document.DocumentName() + "}" + vars
}

// canonicalJSON sorts map keys so that equal values encode to equal strings.
var canonicalJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()
