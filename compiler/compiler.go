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
	"errors"
	"strconv"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// DefaultCacheSize is the number of compiled sources kept by a Compiler by default.
const DefaultCacheSize = 128

// Config specifies options for New.
type Config struct {
	// Schema is the SDL of the server schema. Required.
	Schema string

	// ClientSchema extends the server schema with client-only types and fields (typically with
	// "extend type" definitions).
	ClientSchema string

	// CacheSize bounds the number of compiled sources kept in memory. Default to DefaultCacheSize.
	CacheSize int

	// PersistedQueries sets the ID of every operation to a hash of its text, for servers that
	// accept persisted queries.
	PersistedQueries bool
}

// Validate checks the config.
func (config *Config) Validate() error {
	if len(config.Schema) == 0 {
		return graphql.NewError("server schema is required", graphql.Op("compiler.Config"), graphql.ErrKindDocument)
	}
	if config.CacheSize < 0 {
		return graphql.NewError("cache size must not be negative", graphql.Op("compiler.Config"), graphql.ErrKindDocument)
	}
	return nil
}

// Documents are the operations and fragments compiled from one source.
type Documents struct {
	Operations map[string]*document.Operation
	Fragments  map[string]*document.Fragment
}

// Operation returns the named operation or nil.
func (docs *Documents) Operation(name string) *document.Operation {
	return docs.Operations[name]
}

// Fragment returns the named fragment or nil.
func (docs *Documents) Fragment(name string) *document.Fragment {
	return docs.Fragments[name]
}

type cacheEntry struct {
	source    string
	documents *Documents
}

// Compiler compiles GraphQL documents against a schema. It is safe for concurrent use.
type Compiler struct {
	// server is the schema of the server alone; schema includes the client extensions.
	server *ast.Schema
	schema *ast.Schema

	persistedQueries bool
	cache            *lru.Cache[uint64, *cacheEntry]
}

// New loads the schemas and creates a Compiler.
func New(config Config) (*Compiler, error) {
	const op = graphql.Op("compiler.New")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	serverSource := &ast.Source{Name: "schema.graphql", Input: config.Schema}
	server, loadErr := gqlparser.LoadSchema(serverSource)
	if loadErr != nil {
		return nil, graphql.NewError("invalid server schema", op, graphql.ErrKindDocument, loadErr)
	}

	schema := server
	if len(config.ClientSchema) > 0 {
		extended, loadErr := gqlparser.LoadSchema(serverSource, &ast.Source{
			Name:  "client-schema.graphql",
			Input: config.ClientSchema,
		})
		if loadErr != nil {
			return nil, graphql.NewError("invalid client schema", op, graphql.ErrKindDocument, loadErr)
		}
		schema = extended
	}

	size := config.CacheSize
	if size == 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[uint64, *cacheEntry](size)
	if err != nil {
		return nil, graphql.NewError("cannot create the document cache", op, graphql.ErrKindInternal, err)
	}

	return &Compiler{
		server:           server,
		schema:           schema,
		persistedQueries: config.PersistedQueries,
		cache:            cache,
	}, nil
}

// Compile compiles every operation and fragment in source. Results are cached by source text; the
// returned documents are shared and must not be modified.
func (compiler *Compiler) Compile(source string) (*Documents, error) {
	key := xxhash.Sum64String(source)
	if entry, ok := compiler.cache.Get(key); ok && entry.source == source {
		return entry.documents, nil
	}

	documents, err := compiler.compile(source)
	if err != nil {
		return nil, err
	}
	compiler.cache.Add(key, &cacheEntry{
		source:    source,
		documents: documents,
	})
	return documents, nil
}

func (compiler *Compiler) compile(source string) (*Documents, error) {
	doc, parseErr := parser.ParseQuery(&ast.Source{Name: "document.graphql", Input: source})
	if parseErr != nil {
		return nil, graphql.NewError("invalid document", graphql.Op("compiler.Compile"), syntaxError(parseErr))
	}

	c := newCompilation(compiler, doc)
	documents := &Documents{
		Operations: make(map[string]*document.Operation, len(doc.Operations)),
		Fragments:  make(map[string]*document.Fragment, len(doc.Fragments)),
	}

	for _, def := range doc.Fragments {
		if _, exists := documents.Fragments[def.Name]; exists {
			return nil, documentError(def.Position, "fragment %q is defined more than once", def.Name)
		}
		fragment, err := c.compileFragment(def.Name, def.Position)
		if err != nil {
			return nil, err
		}
		documents.Fragments[def.Name] = fragment
	}

	operations := make([]*document.Operation, 0, len(doc.Operations))
	for _, def := range doc.Operations {
		if _, exists := documents.Operations[def.Name]; exists {
			return nil, documentError(def.Position, "operation %q is defined more than once", def.Name)
		}
		operation, err := c.compileOperation(def)
		if err != nil {
			return nil, err
		}
		documents.Operations[def.Name] = operation
		operations = append(operations, operation)
	}

	// Conversion adds generated fields and labels to the syntax tree, so texts are printed once
	// every document is converted.
	for i, def := range doc.Operations {
		compiler.setText(operations[i], c.print(def))
	}
	for _, edge := range c.clientEdges {
		compiler.setText(edge.operation, c.print(edge.definition))
	}

	return documents, nil
}

// syntaxError converts an error of the parser, keeping the positions it reports.
func syntaxError(err error) error {
	var parseErr *gqlerror.Error
	if !errors.As(err, &parseErr) {
		return graphql.NewSyntaxError(err.Error())
	}
	locations := make([]graphql.ErrorLocation, 0, len(parseErr.Locations))
	for _, location := range parseErr.Locations {
		locations = append(locations, graphql.ErrorLocation{
			Line:   uint(location.Line),
			Column: uint(location.Column),
		})
	}
	return graphql.NewSyntaxError(parseErr.Message, locations...)
}

func (compiler *Compiler) setText(operation *document.Operation, text string) {
	operation.Text = text
	if compiler.persistedQueries {
		operation.ID = strconv.FormatUint(xxhash.Sum64String(text), 16)
	}
}
