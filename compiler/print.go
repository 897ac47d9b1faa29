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
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// printer renders the text of an operation sent to the server: client fields and client
// directives are removed, and spreads of fragments taking arguments are inlined with the
// arguments substituted.
type printer struct {
	*compilation

	fragments ast.FragmentDefinitionList
	included  map[string]bool
}

func (c *compilation) print(def *ast.OperationDefinition) string {
	p := &printer{
		compilation: c,
		included:    map[string]bool{},
	}

	operation := *def
	operation.Directives = p.directives(def.Directives, nil)
	operation.SelectionSet = p.selections(def.SelectionSet, nil)

	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{&operation},
		Fragments:  p.fragments,
	})
	return buf.String()
}

func (p *printer) directives(directives ast.DirectiveList, subst map[string]*ast.Value) ast.DirectiveList {
	var result ast.DirectiveList
	for _, directive := range directives {
		if clientDirectives[directive.Name] {
			continue
		}
		if len(subst) > 0 {
			clone := *directive
			clone.Arguments = substituteArguments(directive.Arguments, subst)
			directive = &clone
		}
		result = append(result, directive)
	}
	return result
}

func (p *printer) selections(set ast.SelectionSet, subst map[string]*ast.Value) ast.SelectionSet {
	result := make(ast.SelectionSet, 0, len(set))
	for _, selection := range set {
		switch selection := selection.(type) {
		case *ast.Field:
			if p.clientFields[selection] {
				continue
			}
			field := *selection
			field.Arguments = substituteArguments(selection.Arguments, subst)
			field.Directives = p.directives(selection.Directives, subst)
			if len(selection.SelectionSet) > 0 {
				field.SelectionSet = p.selections(selection.SelectionSet, subst)
				if len(field.SelectionSet) == 0 {
					// Only client fields were selected.
					field.SelectionSet = ast.SelectionSet{&ast.Field{Alias: "__typename", Name: "__typename"}}
				}
			}
			result = append(result, &field)

		case *ast.InlineFragment:
			fragment := *selection
			fragment.Directives = p.directives(selection.Directives, subst)
			fragment.SelectionSet = p.selections(selection.SelectionSet, subst)
			if len(fragment.SelectionSet) > 0 {
				result = append(result, &fragment)
			}

		case *ast.FragmentSpread:
			def := p.fragmentDefs[selection.Name]
			args := selection.Directives.ForName("arguments")
			argDefs := def.Directives.ForName("argumentDefinitions")
			if args == nil && argDefs == nil {
				spread := *selection
				spread.Directives = p.directives(selection.Directives, subst)
				result = append(result, &spread)
				p.include(def)
				continue
			}

			inline := &ast.InlineFragment{
				TypeCondition: def.TypeCondition,
				Directives:    p.directives(selection.Directives, subst),
				SelectionSet:  p.selections(def.SelectionSet, fragmentArguments(args, argDefs, subst)),
				Position:      selection.Position,
			}
			if len(inline.SelectionSet) > 0 {
				result = append(result, inline)
			}
		}
	}
	return result
}

// include adds a fragment definition to the printed document once.
func (p *printer) include(def *ast.FragmentDefinition) {
	if p.included[def.Name] {
		return
	}
	p.included[def.Name] = true

	fragment := *def
	fragment.Directives = p.directives(def.Directives, nil)
	p.fragments = append(p.fragments, &fragment)
	fragment.SelectionSet = p.selections(def.SelectionSet, nil)
}

// fragmentArguments returns the values of the arguments of a spread fragment: the values given by
// @arguments, otherwise the defaults from @argumentDefinitions, otherwise null.
func fragmentArguments(args *ast.Directive, argDefs *ast.Directive, outer map[string]*ast.Value) map[string]*ast.Value {
	values := map[string]*ast.Value{}
	if argDefs != nil {
		for _, def := range argDefs.Arguments {
			value := &ast.Value{Kind: ast.NullValue, Raw: "null"}
			if def.Value != nil && def.Value.Kind == ast.ObjectValue {
				for _, child := range def.Value.Children {
					if child.Name == "defaultValue" {
						value = child.Value
					}
				}
			}
			values[def.Name] = value
		}
	}
	if args != nil {
		for _, arg := range args.Arguments {
			values[arg.Name] = substituteValue(arg.Value, outer)
		}
	}
	return values
}
