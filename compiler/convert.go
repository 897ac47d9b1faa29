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

package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/botobag/relay/document"

	"github.com/vektah/gqlparser/v2/ast"
)

// Directives that only the client understands. They are removed from the text sent to the server.
var clientDirectives = map[string]bool{
	"connection":          true,
	"relay":               true,
	"arguments":           true,
	"argumentDefinitions": true,
}

// pageInfoFields are the fields of PageInfo the store keeps for a connection.
var pageInfoFields = []string{"endCursor", "hasNextPage", "hasPreviousPage", "startCursor"}

// clientEdge is the refetch query generated for a client field pointing to a server object.
type clientEdge struct {
	operation  *document.Operation
	definition *ast.OperationDefinition
}

// compilation holds the state of one Compile call.
type compilation struct {
	*Compiler

	fragmentDefs map[string]*ast.FragmentDefinition
	fragments    map[string]*document.Fragment
	compiling    map[string]bool

	// clientFields are the fields the server schema doesn't define.
	clientFields map[*ast.Field]bool

	clientEdges []clientEdge

	// labels counts the generated @defer and @stream labels per document.
	labels map[string]int
}

func newCompilation(compiler *Compiler, doc *ast.QueryDocument) *compilation {
	c := &compilation{
		Compiler:     compiler,
		fragmentDefs: make(map[string]*ast.FragmentDefinition, len(doc.Fragments)),
		fragments:    make(map[string]*document.Fragment, len(doc.Fragments)),
		compiling:    map[string]bool{},
		clientFields: map[*ast.Field]bool{},
		labels:       map[string]int{},
	}
	for _, fragment := range doc.Fragments {
		c.fragmentDefs[fragment.Name] = fragment
	}
	return c
}

//===----------------------------------------------------------------------------------------====//
// Documents
//===----------------------------------------------------------------------------------------====//

func (c *compilation) compileOperation(def *ast.OperationDefinition) (*document.Operation, error) {
	if len(def.Name) == 0 {
		return nil, documentError(def.Position, "operations must be named")
	}

	var (
		root *ast.Definition
		kind document.OperationKind
	)
	switch def.Operation {
	case ast.Query:
		root, kind = c.schema.Query, document.OperationQuery
	case ast.Mutation:
		root, kind = c.schema.Mutation, document.OperationMutation
	case ast.Subscription:
		root, kind = c.schema.Subscription, document.OperationSubscription
	}
	if root == nil {
		return nil, documentError(def.Position, "schema does not support %s operations", def.Operation)
	}

	operation := &document.Operation{
		Name: def.Name,
		Kind: kind,
	}
	for _, variable := range def.VariableDefinitions {
		defaultValue, err := constValue(variable.DefaultValue)
		if err != nil {
			return nil, err
		}
		operation.VariableDefinitions = append(operation.VariableDefinitions, document.VariableDefinition{
			Name:         variable.Variable,
			DefaultValue: defaultValue,
		})
	}

	selections, err := c.convertSelections(def.Name, def.SelectionSet, root)
	if err != nil {
		return nil, err
	}
	operation.Selections = selections
	return operation, nil
}

func (c *compilation) compileFragment(name string, pos *ast.Position) (*document.Fragment, error) {
	if fragment, exists := c.fragments[name]; exists {
		return fragment, nil
	}

	def, exists := c.fragmentDefs[name]
	if !exists {
		return nil, documentError(pos, "unknown fragment %q", name)
	}
	if c.compiling[name] {
		return nil, documentError(pos, "fragment %q spreads itself", name)
	}
	c.compiling[name] = true
	defer delete(c.compiling, name)

	typeDef := c.schema.Types[def.TypeCondition]
	if typeDef == nil {
		return nil, documentError(def.Position, "unknown type %q in fragment %q", def.TypeCondition, name)
	}

	fragment := &document.Fragment{
		Name:          name,
		TypeCondition: def.TypeCondition,
	}

	if directive := def.Directives.ForName("argumentDefinitions"); directive != nil {
		for _, arg := range directive.Arguments {
			var defaultValue interface{}
			if arg.Value != nil && arg.Value.Kind == ast.ObjectValue {
				for _, child := range arg.Value.Children {
					if child.Name != "defaultValue" {
						continue
					}
					value, err := constValue(child.Value)
					if err != nil {
						return nil, err
					}
					defaultValue = value
				}
			}
			fragment.ArgumentDefinitions = append(fragment.ArgumentDefinitions, document.ArgumentDefinition{
				Name:         arg.Name,
				DefaultValue: defaultValue,
			})
		}
	}

	selections, err := c.convertSelections(name, def.SelectionSet, typeDef)
	if err != nil {
		return nil, err
	}
	fragment.Selections = selections

	c.fragments[name] = fragment
	return fragment, nil
}

//===----------------------------------------------------------------------------------------====//
// Selections
//===----------------------------------------------------------------------------------------====//

func (c *compilation) convertSelections(
	docName string,
	set ast.SelectionSet,
	parent *ast.Definition) ([]document.Selection, error) {

	selections := make([]document.Selection, 0, len(set))
	for _, selection := range set {
		var (
			converted document.Selection
			err       error
		)
		switch selection := selection.(type) {
		case *ast.Field:
			converted, err = c.convertField(docName, selection, parent)
		case *ast.InlineFragment:
			converted, err = c.convertInlineFragment(docName, selection, parent)
		case *ast.FragmentSpread:
			converted, err = c.convertFragmentSpread(docName, selection, parent)
		}
		if err != nil {
			return nil, err
		}
		// nil for selections excluded by a constant @include or @skip.
		if converted != nil {
			selections = append(selections, converted)
		}
	}
	return selections, nil
}

func aliasOf(field *ast.Field) string {
	if field.Alias == field.Name {
		return ""
	}
	return field.Alias
}

func (c *compilation) convertField(
	docName string,
	field *ast.Field,
	parent *ast.Definition) (document.Selection, error) {

	if field.Name == document.TypenameKey {
		return c.withConditions(field.Directives, &document.ScalarField{
			Alias: aliasOf(field),
			Name:  field.Name,
		})
	}

	definition := parent.Fields.ForName(field.Name)
	if definition == nil {
		return nil, documentError(field.Position, "cannot query field %q on type %q", field.Name, parent.Name)
	}
	target := c.schema.Types[definition.Type.Name()]
	if target == nil {
		return nil, documentError(field.Position, "unknown type %q of field %q", definition.Type.Name(), field.Name)
	}

	isClient := c.isClientField(parent.Name, field.Name)
	if isClient {
		c.clientFields[field] = true
	}

	args, err := convertArguments(field.Arguments)
	if err != nil {
		return nil, err
	}

	if target.Kind == ast.Scalar || target.Kind == ast.Enum {
		if len(field.SelectionSet) > 0 {
			return nil, documentError(field.Position, "field %q of type %q must not have a selection", field.Name,
				target.Name)
		}
		if field.Directives.ForName("stream") != nil {
			return nil, documentError(field.Position, "@stream is only supported on plural object fields")
		}
		var selection document.Selection = &document.ScalarField{
			Alias:      aliasOf(field),
			Name:       field.Name,
			Args:       args,
			StorageKey: storageKey(field.Name, args),
		}
		if isClient {
			selection = &document.ClientExtension{Selections: []document.Selection{selection}}
		}
		return c.withConditions(field.Directives, selection)
	}

	if len(field.SelectionSet) == 0 {
		return nil, documentError(field.Position, "field %q of type %q must have a selection of subfields",
			field.Name, target.Name)
	}

	linked := &document.LinkedField{
		Alias:  aliasOf(field),
		Name:   field.Name,
		Args:   args,
		Plural: isList(definition.Type),
	}
	if target.Kind == ast.Object {
		linked.ConcreteType = target.Name
	}

	if field.Directives.ForName("connection") != nil {
		if err := c.completeConnection(field, target); err != nil {
			return nil, err
		}
		linked.Connection = true
	} else {
		linked.StorageKey = storageKey(field.Name, args)
	}

	if c.schema.Query != nil && parent.Name == c.schema.Query.Name && !linked.Connection && len(definition.Arguments) == 1 {
		linked.IdentifyingArgument = definition.Arguments[0].Name
	}

	c.addIdentifyingFields(field, target)
	linked.Selections, err = c.convertSelections(docName, field.SelectionSet, target)
	if err != nil {
		return nil, err
	}

	var selection document.Selection = linked
	if directive := field.Directives.ForName("stream"); directive != nil {
		selection, err = c.convertStream(docName, directive, linked)
		if err != nil {
			return nil, err
		}
	}

	if isClient {
		if c.canRefetch(target) {
			selection = &document.ClientEdgeToServerObject{
				Operation: c.clientEdgeQuery(docName, field, linked),
				Field:     linked,
			}
		} else {
			selection = &document.ClientExtension{Selections: []document.Selection{selection}}
		}
	}

	return c.withConditions(field.Directives, selection)
}

// storageKey precomputes the storage key of fields with constant arguments.
func storageKey(name string, args []document.Argument) string {
	if len(args) == 0 {
		return ""
	}
	return document.PrecomputeStorageKey(name, args)
}

func isList(t *ast.Type) bool {
	for ; t != nil; t = t.Elem {
		if t.Elem != nil {
			return true
		}
	}
	return false
}

// isClientField returns true if the field is only defined by the client schema.
func (c *compilation) isClientField(typeName string, fieldName string) bool {
	server := c.server.Types[typeName]
	return server == nil || server.Fields.ForName(fieldName) == nil
}

// canRefetch returns true if objects of the type can be fetched by id with the node root field.
func (c *compilation) canRefetch(target *ast.Definition) bool {
	if c.server.Types[target.Name] == nil || target.Fields.ForName(document.IDKey) == nil {
		return false
	}
	return c.server.Query != nil && c.server.Query.Fields.ForName("node") != nil
}

func (c *compilation) convertInlineFragment(
	docName string,
	fragment *ast.InlineFragment,
	parent *ast.Definition) (document.Selection, error) {

	typeDef := parent
	if len(fragment.TypeCondition) > 0 {
		typeDef = c.schema.Types[fragment.TypeCondition]
		if typeDef == nil {
			return nil, documentError(fragment.Position, "unknown type %q", fragment.TypeCondition)
		}
	}

	selections, err := c.convertSelections(docName, fragment.SelectionSet, typeDef)
	if err != nil {
		return nil, err
	}

	inline := &document.InlineFragment{
		Type:       typeDef.Name,
		Selections: selections,
	}
	if isAbstract(typeDef) {
		inline.PossibleTypes = c.possibleTypes(typeDef)
		if typeDef.Kind == ast.Interface {
			inline.AbstractKey = "__is" + typeDef.Name
			// The server answers for the abstract type by aliasing __typename.
			fragment.SelectionSet = append(fragment.SelectionSet, &ast.Field{
				Alias:    inline.AbstractKey,
				Name:     document.TypenameKey,
				Position: fragment.Position,
			})
		}
	}

	var selection document.Selection = inline
	if directive := fragment.Directives.ForName("defer"); directive != nil {
		selection, err = c.convertDefer(docName, directive, selection)
		if err != nil {
			return nil, err
		}
	}
	return c.withConditions(fragment.Directives, selection)
}

func (c *compilation) convertFragmentSpread(
	docName string,
	spread *ast.FragmentSpread,
	parent *ast.Definition) (document.Selection, error) {

	fragment, err := c.compileFragment(spread.Name, spread.Position)
	if err != nil {
		return nil, err
	}

	var selection document.Selection
	if directive := spread.Directives.ForName("module"); directive != nil {
		if arg := directive.Arguments.ForName("name"); arg == nil || arg.Value.Kind != ast.StringValue {
			return nil, documentError(spread.Position, "@module on %q requires a name", spread.Name)
		}
		selection = &document.ModuleImport{
			DocumentName:     docName,
			FragmentName:     spread.Name,
			FragmentPropName: fragmentPropName(spread.Name),
		}
	} else {
		var args []document.Argument
		if directive := spread.Directives.ForName("arguments"); directive != nil {
			args, err = convertArguments(directive.Arguments)
			if err != nil {
				return nil, err
			}
		}
		unmask := false
		if directive := spread.Directives.ForName("relay"); directive != nil {
			if arg := directive.Arguments.ForName("mask"); arg != nil && arg.Value.Kind == ast.BooleanValue {
				unmask = arg.Value.Raw == "false"
			}
		}
		selection = &document.FragmentSpread{
			Fragment: fragment,
			Args:     args,
			Unmask:   unmask,
		}
	}

	// Spreads of fragments on another type only apply to the objects of that type.
	if fragment.TypeCondition != parent.Name {
		typeDef := c.schema.Types[fragment.TypeCondition]
		inline := &document.InlineFragment{
			Type:       typeDef.Name,
			Selections: []document.Selection{selection},
		}
		if isAbstract(typeDef) {
			inline.PossibleTypes = c.possibleTypes(typeDef)
		}
		selection = inline
	}

	if directive := spread.Directives.ForName("defer"); directive != nil {
		selection, err = c.convertDefer(docName, directive, selection)
		if err != nil {
			return nil, err
		}
	}
	return c.withConditions(spread.Directives, selection)
}

// fragmentPropName follows the <Module>_<prop> naming of fragments.
func fragmentPropName(fragmentName string) string {
	if i := strings.LastIndexByte(fragmentName, '_'); i >= 0 && i < len(fragmentName)-1 {
		return fragmentName[i+1:]
	}
	return fragmentName
}

func isAbstract(def *ast.Definition) bool {
	return def.Kind == ast.Interface || def.Kind == ast.Union
}

func (c *compilation) possibleTypes(def *ast.Definition) []string {
	var names []string
	for _, possibleType := range c.schema.GetPossibleTypes(def) {
		names = append(names, possibleType.Name)
	}
	sort.Strings(names)
	return names
}

//===----------------------------------------------------------------------------------------====//
// Directives
//===----------------------------------------------------------------------------------------====//

// withConditions wraps selection in the Conditions of @skip and @include. It returns nil if a
// constant condition excludes the selection.
func (c *compilation) withConditions(
	directives ast.DirectiveList,
	selection document.Selection) (document.Selection, error) {

	for _, name := range []string{"skip", "include"} {
		directive := directives.ForName(name)
		if directive == nil {
			continue
		}
		passing := name == "include"

		arg := directive.Arguments.ForName("if")
		if arg == nil || arg.Value == nil {
			return nil, documentError(directive.Position, "@%s requires an if argument", name)
		}
		switch arg.Value.Kind {
		case ast.Variable:
			selection = &document.Condition{
				Variable:     arg.Value.Raw,
				PassingValue: passing,
				Selections:   []document.Selection{selection},
			}
		case ast.BooleanValue:
			if (arg.Value.Raw == "true") != passing {
				return nil, nil
			}
		default:
			return nil, documentError(directive.Position, "the if argument of @%s must be a Boolean", name)
		}
	}
	return selection, nil
}

// incrementalArguments reads the label and if arguments shared by @defer and @stream. A label is
// generated (and added to the directive so the server echoes it) when not given. enabled is false
// when the directive is turned off by a constant.
func (c *compilation) incrementalArguments(
	docName string,
	kind string,
	directive *ast.Directive) (label string, variable string, enabled bool, err error) {

	if arg := directive.Arguments.ForName("if"); arg != nil && arg.Value != nil {
		switch arg.Value.Kind {
		case ast.Variable:
			variable = arg.Value.Raw
		case ast.BooleanValue:
			if arg.Value.Raw == "false" {
				return "", "", false, nil
			}
		default:
			return "", "", false, documentError(directive.Position, "the if argument of @%s must be a Boolean", kind)
		}
	}

	if arg := directive.Arguments.ForName("label"); arg != nil && arg.Value != nil {
		if arg.Value.Kind != ast.StringValue {
			return "", "", false, documentError(directive.Position, "the label of @%s must be a string", kind)
		}
		return arg.Value.Raw, variable, true, nil
	}

	label = fmt.Sprintf("%s$%s$%d", docName, kind, c.labels[docName])
	c.labels[docName]++
	directive.Arguments = append(directive.Arguments, &ast.Argument{
		Name: "label",
		Value: &ast.Value{
			Kind: ast.StringValue,
			Raw:  label,
		},
		Position: directive.Position,
	})
	return label, variable, true, nil
}

func (c *compilation) convertDefer(
	docName string,
	directive *ast.Directive,
	selection document.Selection) (document.Selection, error) {

	label, variable, enabled, err := c.incrementalArguments(docName, "defer", directive)
	if err != nil || !enabled {
		return selection, err
	}
	return &document.Defer{
		Label:      label,
		If:         variable,
		Selections: []document.Selection{selection},
	}, nil
}

func (c *compilation) convertStream(
	docName string,
	directive *ast.Directive,
	field *document.LinkedField) (document.Selection, error) {

	if !field.Plural {
		return nil, documentError(directive.Position, "@stream is only supported on plural object fields")
	}

	initialCount := 0
	if arg := directive.Arguments.ForName("initialCount"); arg != nil && arg.Value != nil {
		value, err := constValue(arg.Value)
		if err != nil {
			return nil, err
		}
		count, ok := value.(int)
		if !ok || count < 0 {
			return nil, documentError(directive.Position, "the initialCount of @stream must be a non-negative Int")
		}
		initialCount = count
	}

	label, variable, enabled, err := c.incrementalArguments(docName, "stream", directive)
	if err != nil || !enabled {
		return field, err
	}
	return &document.Stream{
		Label:        label,
		If:           variable,
		InitialCount: initialCount,
		Field:        field,
	}, nil
}

//===----------------------------------------------------------------------------------------====//
// Generated selections
//===----------------------------------------------------------------------------------------====//

func selectedField(set ast.SelectionSet, name string) *ast.Field {
	for _, selection := range set {
		if field, ok := selection.(*ast.Field); ok && field.Name == name && field.Alias == name {
			return field
		}
	}
	return nil
}

func ensureField(set *ast.SelectionSet, name string, pos *ast.Position) *ast.Field {
	if field := selectedField(*set, name); field != nil {
		return field
	}
	field := &ast.Field{
		Alias:    name,
		Name:     name,
		Position: pos,
	}
	*set = append(*set, field)
	return field
}

// addIdentifyingFields selects the fields the store names records by: id when the type has one,
// and __typename for abstract types.
func (c *compilation) addIdentifyingFields(field *ast.Field, target *ast.Definition) {
	if target.Fields.ForName(document.IDKey) != nil {
		ensureField(&field.SelectionSet, document.IDKey, field.Position)
	}
	if isAbstract(target) {
		ensureField(&field.SelectionSet, document.TypenameKey, field.Position)
	}
}

// completeConnection selects the cursor of the edges and the page info of a connection.
func (c *compilation) completeConnection(field *ast.Field, target *ast.Definition) error {
	edgesDef := target.Fields.ForName("edges")
	if edgesDef == nil {
		return documentError(field.Position, "@connection field %q has no edges", field.Name)
	}
	edges := selectedField(field.SelectionSet, "edges")
	if edges == nil {
		return documentError(field.Position, "@connection field %q must select edges", field.Name)
	}
	if edgeType := c.schema.Types[edgesDef.Type.Name()]; edgeType != nil && edgeType.Fields.ForName("cursor") != nil {
		ensureField(&edges.SelectionSet, "cursor", edges.Position)
	}

	if target.Fields.ForName("pageInfo") != nil {
		pageInfo := ensureField(&field.SelectionSet, "pageInfo", field.Position)
		for _, name := range pageInfoFields {
			ensureField(&pageInfo.SelectionSet, name, field.Position)
		}
	}
	return nil
}

// clientEdgeQuery generates the query fetching the server object a client field points to.
func (c *compilation) clientEdgeQuery(
	docName string,
	field *ast.Field,
	linked *document.LinkedField) *document.Operation {

	name := fmt.Sprintf("ClientEdgeQuery_%s_%s", docName, field.Alias)

	nodeField := &ast.Field{
		Alias: "node",
		Name:  "node",
		Arguments: ast.ArgumentList{{
			Name:  document.IDKey,
			Value: &ast.Value{Kind: ast.Variable, Raw: document.IDKey},
		}},
		SelectionSet: append(ast.SelectionSet{&ast.Field{
			Alias: document.TypenameKey,
			Name:  document.TypenameKey,
		}}, field.SelectionSet...),
		Position: field.Position,
	}

	operation := &document.Operation{
		Name: name,
		Kind: document.OperationQuery,
		VariableDefinitions: []document.VariableDefinition{
			{Name: document.IDKey},
		},
		Selections: []document.Selection{
			&document.LinkedField{
				Name:                "node",
				Args:                []document.Argument{{Name: document.IDKey, Value: document.Variable{Name: document.IDKey}}},
				IdentifyingArgument: document.IDKey,
				Selections: append([]document.Selection{
					&document.ScalarField{Name: document.TypenameKey},
				}, linked.Selections...),
			},
		},
	}

	c.clientEdges = append(c.clientEdges, clientEdge{
		operation: operation,
		definition: &ast.OperationDefinition{
			Operation: ast.Query,
			Name:      name,
			VariableDefinitions: ast.VariableDefinitionList{{
				Variable: document.IDKey,
				Type:     &ast.Type{NamedType: "ID", NonNull: true},
			}},
			SelectionSet: ast.SelectionSet{nodeField},
			Position:     field.Position,
		},
	})
	return operation
}
