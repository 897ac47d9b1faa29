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
	"strconv"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	"github.com/vektah/gqlparser/v2/ast"
)

func documentError(pos *ast.Position, format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)
	if pos == nil {
		return graphql.NewError(message, graphql.Op("compiler.Compile"), graphql.ErrKindDocument)
	}
	return graphql.NewError(message, graphql.Op("compiler.Compile"), graphql.ErrKindDocument, graphql.ErrorLocation{
		Line:   uint(pos.Line),
		Column: uint(pos.Column),
	})
}

// convertArguments converts field or directive arguments.
func convertArguments(args ast.ArgumentList) ([]document.Argument, error) {
	if len(args) == 0 {
		return nil, nil
	}
	result := make([]document.Argument, 0, len(args))
	for _, arg := range args {
		value, err := convertValue(arg.Value)
		if err != nil {
			return nil, err
		}
		result = append(result, document.Argument{
			Name:  arg.Name,
			Value: value,
		})
	}
	return result, nil
}

func convertValue(value *ast.Value) (document.Value, error) {
	switch value.Kind {
	case ast.Variable:
		return document.Variable{Name: value.Raw}, nil

	case ast.ListValue:
		items := make([]document.Value, 0, len(value.Children))
		for _, child := range value.Children {
			item, err := convertValue(child.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return document.ListValue{Items: items}, nil

	case ast.ObjectValue:
		fields := make([]document.Argument, 0, len(value.Children))
		for _, child := range value.Children {
			field, err := convertValue(child.Value)
			if err != nil {
				return nil, err
			}
			fields = append(fields, document.Argument{
				Name:  child.Name,
				Value: field,
			})
		}
		return document.ObjectValue{Fields: fields}, nil
	}

	literal, err := scalarValue(value)
	if err != nil {
		return nil, err
	}
	return document.Literal{Value: literal}, nil
}

func scalarValue(value *ast.Value) (interface{}, error) {
	switch value.Kind {
	case ast.IntValue:
		if n, err := strconv.Atoi(value.Raw); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(value.Raw, 64)
		if err != nil {
			return nil, documentError(value.Position, "invalid integer %s", value.Raw)
		}
		return f, nil

	case ast.FloatValue:
		f, err := strconv.ParseFloat(value.Raw, 64)
		if err != nil {
			return nil, documentError(value.Position, "invalid float %s", value.Raw)
		}
		return f, nil

	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return value.Raw, nil

	case ast.BooleanValue:
		return value.Raw == "true", nil

	case ast.NullValue:
		return nil, nil
	}
	return nil, documentError(value.Position, "unexpected value %q", value.Raw)
}

// constValue converts a value that cannot refer to variables, such as a default value.
func constValue(value *ast.Value) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch value.Kind {
	case ast.Variable:
		return nil, documentError(value.Position, "unexpected variable $%s in constant value", value.Raw)

	case ast.ListValue:
		items := make([]interface{}, 0, len(value.Children))
		for _, child := range value.Children {
			item, err := constValue(child.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil

	case ast.ObjectValue:
		fields := make(map[string]interface{}, len(value.Children))
		for _, child := range value.Children {
			field, err := constValue(child.Value)
			if err != nil {
				return nil, err
			}
			fields[child.Name] = field
		}
		return fields, nil
	}

	return scalarValue(value)
}

// substituteValue replaces the variables named in subst.
func substituteValue(value *ast.Value, subst map[string]*ast.Value) *ast.Value {
	if value == nil || len(subst) == 0 {
		return value
	}
	if value.Kind == ast.Variable {
		if replacement, exists := subst[value.Raw]; exists {
			return replacement
		}
		return value
	}
	if len(value.Children) == 0 {
		return value
	}

	clone := *value
	clone.Children = make(ast.ChildValueList, len(value.Children))
	for i, child := range value.Children {
		clone.Children[i] = &ast.ChildValue{
			Name:     child.Name,
			Value:    substituteValue(child.Value, subst),
			Position: child.Position,
		}
	}
	return &clone
}

func substituteArguments(args ast.ArgumentList, subst map[string]*ast.Value) ast.ArgumentList {
	if len(subst) == 0 || len(args) == 0 {
		return args
	}
	result := make(ast.ArgumentList, len(args))
	for i, arg := range args {
		result[i] = &ast.Argument{
			Name:     arg.Name,
			Value:    substituteValue(arg.Value, subst),
			Position: arg.Position,
		}
	}
	return result
}
