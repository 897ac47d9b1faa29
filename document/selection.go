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

// Selection is the sealed sum of selection node kinds. Code dispatching on a Selection uses a type
// switch over the concrete types below; the unexported marker keeps other packages from adding
// kinds the traversals would not know about.
type Selection interface {
	// selectionNode is a special mark to indicate a Selection node.
	selectionNode()
}

// Field is implemented by ScalarField and LinkedField.
type Field interface {
	Selection

	// FieldName returns the schema name of the field.
	FieldName() string

	// ResponseKey returns the key under which the field appears in a response: the alias if there's
	// one, or the field name.
	ResponseKey() string

	// Arguments returns the arguments applied to the field.
	Arguments() []Argument

	// precomputedStorageKey returns the storage key computed ahead of time (when the arguments
	// don't reference variables), or "".
	precomputedStorageKey() string
}

var (
	_ Field     = (*ScalarField)(nil)
	_ Field     = (*LinkedField)(nil)
	_ Selection = (*InlineFragment)(nil)
	_ Selection = (*FragmentSpread)(nil)
	_ Selection = (*Condition)(nil)
	_ Selection = (*Defer)(nil)
	_ Selection = (*Stream)(nil)
	_ Selection = (*ClientExtension)(nil)
	_ Selection = (*ClientEdgeToServerObject)(nil)
	_ Selection = (*ModuleImport)(nil)
)

//===----------------------------------------------------------------------------------------====//
// Fields
//===----------------------------------------------------------------------------------------====//

// ScalarField selects a leaf value (scalar, enum or a list of them).
type ScalarField struct {
	Alias string
	Name  string
	Args  []Argument

	// StorageKey is the precomputed storage key when Args contain no variables. Leave empty to have
	// it computed at runtime.
	StorageKey string
}

func (*ScalarField) selectionNode() {}

// FieldName implements Field.
func (field *ScalarField) FieldName() string {
	return field.Name
}

// ResponseKey implements Field.
func (field *ScalarField) ResponseKey() string {
	if len(field.Alias) > 0 {
		return field.Alias
	}
	return field.Name
}

// Arguments implements Field.
func (field *ScalarField) Arguments() []Argument {
	return field.Args
}

func (field *ScalarField) precomputedStorageKey() string {
	return field.StorageKey
}

// LinkedField selects an object (or a list of objects) whose data is stored in its own record.
type LinkedField struct {
	Alias string
	Name  string
	Args  []Argument

	// StorageKey is the precomputed storage key when Args contain no variables.
	StorageKey string

	// ConcreteType is the type name of the linked object when the field's type is an object type.
	// It is empty for interfaces and unions.
	ConcreteType string

	// Plural is true when the field returns a list of objects.
	Plural bool

	// Connection is true when the field is a paginated connection. Its records are indexed by a
	// Range and its "edges" and "pageInfo" are derived from the range on read.
	Connection bool

	// IdentifyingArgument names the argument whose value identifies a root field in the root-call
	// index (e.g. "id" for node(id:), "name" for username(name:)). Only meaningful for fields
	// selected on the root record.
	IdentifyingArgument string

	Selections []Selection
}

func (*LinkedField) selectionNode() {}

// FieldName implements Field.
func (field *LinkedField) FieldName() string {
	return field.Name
}

// ResponseKey implements Field.
func (field *LinkedField) ResponseKey() string {
	if len(field.Alias) > 0 {
		return field.Alias
	}
	return field.Name
}

// Arguments implements Field.
func (field *LinkedField) Arguments() []Argument {
	return field.Args
}

func (field *LinkedField) precomputedStorageKey() string {
	return field.StorageKey
}

//===----------------------------------------------------------------------------------------====//
// Fragments
//===----------------------------------------------------------------------------------------====//

// InlineFragment applies its selections only to objects matching a type condition.
type InlineFragment struct {
	// Type is the type condition.
	Type string

	// AbstractKey names a field that, when present on the object, marks it as implementing the
	// abstract Type. Empty for concrete type conditions.
	AbstractKey string

	// PossibleTypes lists the concrete types satisfying an abstract Type, when known.
	PossibleTypes []string

	Selections []Selection
}

func (*InlineFragment) selectionNode() {}

// Matches returns true if an object with the given concrete type satisfies the type condition. It
// returns false when typeName is empty.
func (fragment *InlineFragment) Matches(typeName string) bool {
	if len(typeName) == 0 {
		return false
	}
	if fragment.Type == typeName {
		return true
	}
	for _, possibleType := range fragment.PossibleTypes {
		if possibleType == typeName {
			return true
		}
	}
	return false
}

// IsAbstract returns true if the type condition names an interface or union.
func (fragment *InlineFragment) IsAbstract() bool {
	return len(fragment.AbstractKey) > 0 || len(fragment.PossibleTypes) > 0
}

// FragmentSpread includes a named fragment.
type FragmentSpread struct {
	Fragment *Fragment

	// Args are the values given to the fragment's argument definitions.
	Args []Argument

	// Unmask reads the fragment's data into the parent instead of producing a fragment reference.
	Unmask bool
}

func (*FragmentSpread) selectionNode() {}

//===----------------------------------------------------------------------------------------====//
// Conditional and incremental selections
//===----------------------------------------------------------------------------------------====//

// Condition includes its selections only when the variable equals PassingValue. It represents
// @include(if: $var) (PassingValue true) and @skip(if: $var) (PassingValue false).
type Condition struct {
	Variable     string
	PassingValue bool
	Selections   []Selection
}

func (*Condition) selectionNode() {}

// Passes reports whether the condition holds for vars. A missing variable counts as false.
func (condition *Condition) Passes(vars Variables) bool {
	value, _ := vars[condition.Variable].(bool)
	return value == condition.PassingValue
}

// Defer marks selections the server may deliver in a later payload identified by Label and the
// response path of the enclosing object.
type Defer struct {
	Label string

	// If names a variable controlling whether the selections are deferred. Empty means always.
	If string

	Selections []Selection
}

func (*Defer) selectionNode() {}

// Enabled reports whether the selections are deferred under vars.
func (d *Defer) Enabled(vars Variables) bool {
	return incrementalEnabled(d.If, vars)
}

// Stream marks a plural field whose items beyond the first InitialCount may arrive one per later
// payload, each identified by Label and the item's response path.
type Stream struct {
	Label        string
	If           string
	InitialCount int
	Field        *LinkedField
}

func (*Stream) selectionNode() {}

// Enabled reports whether the field is streamed under vars.
func (s *Stream) Enabled(vars Variables) bool {
	return incrementalEnabled(s.If, vars)
}

func incrementalEnabled(variable string, vars Variables) bool {
	if len(variable) == 0 {
		return true
	}
	value, ok := vars[variable].(bool)
	return !ok || value
}

//===----------------------------------------------------------------------------------------====//
// Client-only selections
//===----------------------------------------------------------------------------------------====//

// ClientExtension wraps selections on fields that exist only in the client schema. They are never
// fetched, so their absence is not reported as missing data.
type ClientExtension struct {
	Selections []Selection
}

func (*ClientExtension) selectionNode() {}

// ClientEdgeToServerObject is a client-side field linking to a server object. The link itself is
// client data; the object behind it is fetched by Operation (which takes the object's id in the
// variable "id") when it is not in the store.
type ClientEdgeToServerObject struct {
	Operation *Operation
	Field     *LinkedField
}

func (*ClientEdgeToServerObject) selectionNode() {}

// ModuleImport stands for a fragment whose normalization document is loaded on demand
// (@module). The server names the component and the normalization document in two response
// fields derived from DocumentName.
type ModuleImport struct {
	DocumentName     string
	FragmentName     string
	FragmentPropName string
}

func (*ModuleImport) selectionNode() {}

// ComponentKey returns the response key holding the module's component reference.
func (module *ModuleImport) ComponentKey() string {
	return ModuleComponentKeyPrefix + module.DocumentName
}

// OperationKey returns the response key holding the name of the module's normalization document.
func (module *ModuleImport) OperationKey() string {
	return ModuleOperationKeyPrefix + module.DocumentName
}
