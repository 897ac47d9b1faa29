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

package compiler_test

import (
	"github.com/botobag/relay/compiler"
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/internal/testutil"
	"github.com/botobag/relay/normalizer"
	"github.com/botobag/relay/reader"
	"github.com/botobag/relay/store"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

const schema = `
type Query {
  me: User
  node(id: ID!): Node
  search(text: String!): [SearchResult]
}

type Mutation {
  likeStory(storyID: ID!): Story
}

interface Node {
  id: ID!
}

type User implements Node {
  id: ID!
  name: String
  username: String
  profilePicture(size: Int): Image
  friends(first: Int, after: String, orderBy: String): FriendsConnection
}

type Story implements Node {
  id: ID!
  title: String
  likeCount: Int
}

type Image {
  uri: String
}

union SearchResult = User | Story

type FriendsConnection {
  count: Int
  edges: [FriendsEdge]
  pageInfo: PageInfo
}

type FriendsEdge {
  cursor: String
  node: User
}

type PageInfo {
  hasNextPage: Boolean!
  hasPreviousPage: Boolean!
  startCursor: String
  endCursor: String
}
`

const clientSchema = `
extend type User {
  isSelected: Boolean
  bestFriend: User
}
`

// names lists the fields of selections by name and the other selections by their type.
func names(selections []document.Selection) []string {
	result := make([]string, len(selections))
	for i, selection := range selections {
		switch selection := selection.(type) {
		case *document.ScalarField:
			result[i] = selection.Name
		case *document.LinkedField:
			result[i] = selection.Name
		case *document.InlineFragment:
			result[i] = "... on " + selection.Type
		default:
			result[i] = "?"
		}
	}
	return result
}

func linked(selection document.Selection) *document.LinkedField {
	field, ok := selection.(*document.LinkedField)
	Expect(ok).Should(BeTrue(), "expected a linked field, got %T", selection)
	return field
}

// reparse parses a printed operation text.
func reparse(text string) *ast.QueryDocument {
	doc, err := parser.ParseQuery(&ast.Source{Input: text})
	Expect(err).Should(BeNil())
	return doc
}

func astField(set ast.SelectionSet, name string) *ast.Field {
	for _, selection := range set {
		if field, ok := selection.(*ast.Field); ok && field.Alias == name {
			return field
		}
	}
	return nil
}

var _ = Describe("Compiler", func() {
	var c *compiler.Compiler

	BeforeEach(func() {
		var err error
		c, err = compiler.New(compiler.Config{
			Schema:       schema,
			ClientSchema: clientSchema,
		})
		Expect(err).ShouldNot(HaveOccurred())
	})

	compile := func(source string) *compiler.Documents {
		docs, err := c.Compile(source)
		Expect(err).ShouldNot(HaveOccurred())
		return docs
	}

	compileError := func(source string) error {
		_, err := c.Compile(source)
		Expect(err).Should(HaveOccurred())
		return err
	}

	Describe("New", func() {
		It("requires a schema", func() {
			_, err := compiler.New(compiler.Config{})
			Expect(graphql.IsKind(err, graphql.ErrKindDocument)).Should(BeTrue())
		})

		It("rejects an invalid schema", func() {
			_, err := compiler.New(compiler.Config{Schema: "type Query { me: Unknown }"})
			Expect(err).Should(testutil.MatchGraphQLError(
				testutil.MessageEqual("invalid server schema"),
				testutil.KindIs(graphql.ErrKindDocument),
			))
		})
	})

	Describe("fields", func() {
		It("resolves scalar and linked fields against the schema", func() {
			operation := compile(`query MeQuery { me { name profilePicture(size: 32) { uri } } }`).Operation("MeQuery")
			Expect(operation.Kind).Should(Equal(document.OperationQuery))
			Expect(operation.Selections).Should(HaveLen(1))

			me := linked(operation.Selections[0])
			Expect(me.Name).Should(Equal("me"))
			Expect(me.ConcreteType).Should(Equal("User"))
			Expect(me.Plural).Should(BeFalse())
			Expect(me.IdentifyingArgument).Should(BeEmpty())
			Expect(names(me.Selections)).Should(Equal([]string{"name", "profilePicture", "id"}))

			picture := linked(me.Selections[1])
			Expect(picture.StorageKey).Should(Equal("profilePicture(size:32)"))
			Expect(picture.ConcreteType).Should(Equal("Image"))
			Expect(names(picture.Selections)).Should(Equal([]string{"uri"}))

			printedMe := astField(reparse(operation.Text).Operations[0].SelectionSet, "me")
			Expect(printedMe).ShouldNot(BeNil())
			Expect(astField(printedMe.SelectionSet, "id")).ShouldNot(BeNil())
		})

		It("identifies root fields by their only argument", func() {
			operation := compile(`
				query NodeQuery($id: ID!) {
				  node(id: $id) { ... on User { name } }
				}
			`).Operation("NodeQuery")
			Expect(operation.VariableDefinitions).Should(Equal([]document.VariableDefinition{{Name: "id"}}))

			node := linked(operation.Selections[0])
			Expect(node.IdentifyingArgument).Should(Equal("id"))
			Expect(node.ConcreteType).Should(BeEmpty())
			Expect(node.StorageKey).Should(BeEmpty())
			Expect(node.Args).Should(Equal([]document.Argument{{Name: "id", Value: document.Variable{Name: "id"}}}))
			Expect(names(node.Selections)).Should(Equal([]string{"... on User", "id", "__typename"}))
		})

		It("keeps variables and their defaults", func() {
			operation := compile(`
				query PictureQuery($size: Int = 64) {
				  me { profilePicture(size: $size) { uri } }
				}
			`).Operation("PictureQuery")
			Expect(operation.VariableDefinitions).Should(Equal([]document.VariableDefinition{
				{Name: "size", DefaultValue: 64},
			}))

			picture := linked(linked(operation.Selections[0]).Selections[0])
			Expect(picture.StorageKey).Should(BeEmpty())
			Expect(picture.Args).Should(Equal([]document.Argument{
				{Name: "size", Value: document.Variable{Name: "size"}},
			}))
		})

		It("turns @include and @skip into conditions", func() {
			operation := compile(`
				query ConditionQuery($withName: Boolean!) {
				  me { name @include(if: $withName) username @skip(if: true) }
				}
			`).Operation("ConditionQuery")

			me := linked(operation.Selections[0])
			Expect(me.Selections).Should(HaveLen(2))
			Expect(me.Selections[0]).Should(Equal(&document.Condition{
				Variable:     "withName",
				PassingValue: true,
				Selections:   []document.Selection{&document.ScalarField{Name: "name"}},
			}))
		})

		It("rejects unknown fields", func() {
			err := compileError(`query Q { me { age } }`)
			Expect(err).Should(testutil.MatchGraphQLError(
				testutil.MessageEqual(`cannot query field "age" on type "User"`),
				testutil.KindIs(graphql.ErrKindDocument),
			))
		})

		It("reports syntax errors with their position", func() {
			err := compileError(`query Q { me { name }`)
			Expect(err).Should(testutil.MatchGraphQLError(
				testutil.MessageEqual("invalid document"),
				testutil.KindIs(graphql.ErrKindDocument),
			))
			Expect(err.(*graphql.Error).Locations).ShouldNot(BeEmpty())
			Expect(err.Error()).Should(ContainSubstring("Syntax Error"))
		})

		It("rejects anonymous operations", func() {
			err := compileError(`{ me { name } }`)
			Expect(err).Should(testutil.MatchGraphQLError(testutil.MessageEqual("operations must be named")))
		})
	})

	Describe("type conditions", func() {
		It("records the possible types of abstract conditions", func() {
			operation := compile(`query Q { me { ... on Node { id } } }`).Operation("Q")

			inline, ok := linked(operation.Selections[0]).Selections[0].(*document.InlineFragment)
			Expect(ok).Should(BeTrue())
			Expect(inline.Type).Should(Equal("Node"))
			Expect(inline.AbstractKey).Should(Equal("__isNode"))
			Expect(inline.PossibleTypes).Should(Equal([]string{"Story", "User"}))

			printed := reparse(operation.Text)
			me := astField(printed.Operations[0].SelectionSet, "me")
			printedInline, ok := me.SelectionSet[0].(*ast.InlineFragment)
			Expect(ok).Should(BeTrue())
			isNode := astField(printedInline.SelectionSet, "__isNode")
			Expect(isNode).ShouldNot(BeNil())
			Expect(isNode.Name).Should(Equal("__typename"))
		})

		It("selects __typename of abstract fields", func() {
			operation := compile(`query Q { search(text: "a") { ... on Story { title } } }`).Operation("Q")

			search := linked(operation.Selections[0])
			Expect(search.Plural).Should(BeTrue())
			Expect(search.StorageKey).Should(Equal(`search(text:"a")`))
			Expect(names(search.Selections)).Should(Equal([]string{"... on Story", "__typename"}))
		})
	})

	Describe("fragments", func() {
		It("compiles spreads", func() {
			docs := compile(`
				query Q {
				  me { ...UserName ...UserPicture @relay(mask: false) }
				  node(id: "4") { ...UserName }
				}
				fragment UserName on User { name }
				fragment UserPicture on User { profilePicture(size: 32) { uri } }
			`)
			operation := docs.Operation("Q")
			Expect(docs.Fragments).Should(HaveLen(2))

			me := linked(operation.Selections[0])
			Expect(me.Selections[0]).Should(Equal(&document.FragmentSpread{Fragment: docs.Fragment("UserName")}))
			Expect(me.Selections[1]).Should(Equal(&document.FragmentSpread{
				Fragment: docs.Fragment("UserPicture"),
				Unmask:   true,
			}))

			node := linked(operation.Selections[1])
			Expect(node.StorageKey).Should(Equal(`node(id:"4")`))
			Expect(node.Selections[0]).Should(Equal(&document.InlineFragment{
				Type: "User",
				Selections: []document.Selection{
					&document.FragmentSpread{Fragment: docs.Fragment("UserName")},
				},
			}))

			printed := reparse(operation.Text)
			Expect(printed.Fragments).Should(HaveLen(2))
			for _, selection := range astField(printed.Operations[0].SelectionSet, "me").SelectionSet {
				if spread, ok := selection.(*ast.FragmentSpread); ok {
					Expect(spread.Directives).Should(BeEmpty())
				}
			}
		})

		It("inlines fragments with arguments in the printed text", func() {
			docs := compile(`
				query Q { me { ...UserPicture @arguments(size: 64) } }
				fragment UserPicture on User @argumentDefinitions(size: {type: "Int", defaultValue: 32}) {
				  profilePicture(size: $size) { uri }
				}
			`)
			fragment := docs.Fragment("UserPicture")
			Expect(fragment.ArgumentDefinitions).Should(Equal([]document.ArgumentDefinition{
				{Name: "size", DefaultValue: 32},
			}))

			me := linked(docs.Operation("Q").Selections[0])
			Expect(me.Selections[0]).Should(Equal(&document.FragmentSpread{
				Fragment: fragment,
				Args:     []document.Argument{{Name: "size", Value: document.Literal{Value: 64}}},
			}))

			printed := reparse(docs.Operation("Q").Text)
			Expect(printed.Fragments).Should(BeEmpty())
			inline, ok := astField(printed.Operations[0].SelectionSet, "me").SelectionSet[0].(*ast.InlineFragment)
			Expect(ok).Should(BeTrue())
			Expect(inline.TypeCondition).Should(Equal("User"))
			picture := astField(inline.SelectionSet, "profilePicture")
			Expect(picture).ShouldNot(BeNil())
			Expect(picture.Arguments.ForName("size").Value.Raw).Should(Equal("64"))
		})

		It("rejects unknown and cyclic fragments", func() {
			err := compileError(`query Q { me { ...Missing } }`)
			Expect(err).Should(testutil.MatchGraphQLError(testutil.MessageEqual(`unknown fragment "Missing"`)))

			err = compileError(`
				fragment A on User { ...B }
				fragment B on User { ...A }
			`)
			Expect(err).Should(testutil.MatchGraphQLError(testutil.MessageContainSubstring("spreads itself")))
		})

		It("compiles module imports", func() {
			docs := compile(`
				query Q { me { ...UserRenderer_user @module(name: "UserRenderer.react") } }
				fragment UserRenderer_user on User { name }
			`)
			me := linked(docs.Operation("Q").Selections[0])
			Expect(me.Selections[0]).Should(Equal(&document.ModuleImport{
				DocumentName:     "Q",
				FragmentName:     "UserRenderer_user",
				FragmentPropName: "user",
			}))

			spread, ok := astField(reparse(docs.Operation("Q").Text).Operations[0].SelectionSet, "me").
				SelectionSet[0].(*ast.FragmentSpread)
			Expect(ok).Should(BeTrue())
			Expect(spread.Directives.ForName("module")).ShouldNot(BeNil())
		})
	})

	Describe("connections", func() {
		It("completes the edges and the page info", func() {
			operation := compile(`
				query Q {
				  me {
				    friends(first: 10, orderBy: "name") @connection(key: "Friends_friends") {
				      edges { node { name } }
				    }
				  }
				}
			`).Operation("Q")

			friends := linked(linked(operation.Selections[0]).Selections[0])
			Expect(friends.Connection).Should(BeTrue())
			Expect(friends.StorageKey).Should(BeEmpty())
			Expect(friends.ConcreteType).Should(Equal("FriendsConnection"))
			Expect(names(friends.Selections)).Should(Equal([]string{"edges", "pageInfo"}))

			edges := linked(friends.Selections[0])
			Expect(edges.Plural).Should(BeTrue())
			Expect(names(edges.Selections)).Should(Equal([]string{"node", "cursor"}))
			Expect(names(linked(edges.Selections[0]).Selections)).Should(Equal([]string{"name", "id"}))
			Expect(names(linked(friends.Selections[1]).Selections)).Should(Equal([]string{
				"endCursor", "hasNextPage", "hasPreviousPage", "startCursor",
			}))

			printed := astField(astField(reparse(operation.Text).Operations[0].SelectionSet, "me").SelectionSet, "friends")
			Expect(printed.Directives).Should(BeEmpty())
			Expect(astField(printed.SelectionSet, "pageInfo")).ShouldNot(BeNil())
		})

		It("requires the edges to be selected", func() {
			err := compileError(`query Q { me { friends(first: 1) @connection(key: "F") { count } } }`)
			Expect(err).Should(testutil.MatchGraphQLError(testutil.MessageContainSubstring("must select edges")))
		})
	})

	Describe("incremental delivery", func() {
		It("labels deferred and streamed selections", func() {
			docs := compile(`
				query Q {
				  me { ...UserName @defer }
				  search(text: "a") @stream(initialCount: 1) { ... on Story { title } }
				}
				fragment UserName on User { name }
			`)
			operation := docs.Operation("Q")

			me := linked(operation.Selections[0])
			Expect(me.Selections[0]).Should(Equal(&document.Defer{
				Label: "Q$defer$0",
				Selections: []document.Selection{
					&document.FragmentSpread{Fragment: docs.Fragment("UserName")},
				},
			}))

			stream, ok := operation.Selections[1].(*document.Stream)
			Expect(ok).Should(BeTrue())
			Expect(stream.Label).Should(Equal("Q$stream$1"))
			Expect(stream.InitialCount).Should(Equal(1))
			Expect(stream.Field.Name).Should(Equal("search"))

			printed := reparse(operation.Text).Operations[0].SelectionSet
			spread := astField(printed, "me").SelectionSet[0].(*ast.FragmentSpread)
			Expect(spread.Directives.ForName("defer").Arguments.ForName("label").Value.Raw).Should(Equal("Q$defer$0"))
			Expect(astField(printed, "search").Directives.ForName("stream").Arguments.ForName("label").Value.Raw).
				Should(Equal("Q$stream$1"))
		})

		It("follows the if argument", func() {
			operation := compile(`
				query Q($deferName: Boolean) {
				  me {
				    ... on User @defer(if: $deferName, label: "name") { name }
				    ... on User @defer(if: false) { username }
				  }
				}
			`).Operation("Q")

			me := linked(operation.Selections[0])
			deferred, ok := me.Selections[0].(*document.Defer)
			Expect(ok).Should(BeTrue())
			Expect(deferred.Label).Should(Equal("name"))
			Expect(deferred.If).Should(Equal("deferName"))
			Expect(me.Selections[1]).Should(BeAssignableToTypeOf(&document.InlineFragment{}))
		})

		It("only streams plural object fields", func() {
			err := compileError(`query Q { me @stream(initialCount: 0) { name } }`)
			Expect(graphql.IsKind(err, graphql.ErrKindDocument)).Should(BeTrue())
		})
	})

	Describe("client schema", func() {
		It("marks client fields and strips them from the printed text", func() {
			operation := compile(`query Q { me { isSelected bestFriend { name } } }`).Operation("Q")

			me := linked(operation.Selections[0])
			Expect(me.Selections[0]).Should(Equal(&document.ClientExtension{
				Selections: []document.Selection{&document.ScalarField{Name: "isSelected"}},
			}))

			edge, ok := me.Selections[1].(*document.ClientEdgeToServerObject)
			Expect(ok).Should(BeTrue())
			Expect(edge.Field.Name).Should(Equal("bestFriend"))
			Expect(edge.Operation.Name).Should(Equal("ClientEdgeQuery_Q_bestFriend"))
			Expect(edge.Operation.Kind).Should(Equal(document.OperationQuery))

			refetch := reparse(edge.Operation.Text).Operations[0]
			Expect(refetch.Name).Should(Equal("ClientEdgeQuery_Q_bestFriend"))
			node := astField(refetch.SelectionSet, "node")
			Expect(node).ShouldNot(BeNil())
			Expect(astField(node.SelectionSet, "name")).ShouldNot(BeNil())

			printedMe := astField(reparse(operation.Text).Operations[0].SelectionSet, "me")
			Expect(printedMe.SelectionSet).Should(HaveLen(1))
			Expect(astField(printedMe.SelectionSet, "id")).ShouldNot(BeNil())
		})
	})

	Describe("Compile", func() {
		It("caches compiled sources", func() {
			source := `query Q { me { name } }`
			Expect(compile(source)).Should(BeIdenticalTo(compile(source)))
		})

		It("hashes the text of persisted queries", func() {
			persisted, err := compiler.New(compiler.Config{Schema: schema, PersistedQueries: true})
			Expect(err).ShouldNot(HaveOccurred())
			docs, err := persisted.Compile(`query Q { me { name } }`)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(docs.Operation("Q").ID).ShouldNot(BeEmpty())
			Expect(compile(`query Q { me { name } }`).Operation("Q").ID).Should(BeEmpty())
		})

		It("produces documents the store can write and read", func() {
			operation := compile(`
				query FriendsQuery {
				  me {
				    name
				    friends(first: 2) @connection(key: "Friends_friends") {
				      edges { node { name } }
				    }
				  }
				}
			`).Operation("FriendsQuery")

			s := store.NewRecordStore(store.RecordStoreConfig{})
			selector := document.NewOperationSelector(operation, nil)
			_, err := normalizer.Write(s.NewBaseWriter(nil), selector, map[string]interface{}{
				"me": map[string]interface{}{
					"id":   "4",
					"name": "Zuck",
					"friends": map[string]interface{}{
						"edges": []interface{}{
							map[string]interface{}{
								"cursor": "c1",
								"node":   map[string]interface{}{"id": "1", "name": "Ann"},
							},
							map[string]interface{}{
								"cursor": "c2",
								"node":   map[string]interface{}{"id": "2", "name": "Bob"},
							},
						},
						"pageInfo": map[string]interface{}{
							"endCursor":       "c2",
							"hasNextPage":     true,
							"hasPreviousPage": false,
							"startCursor":     "c1",
						},
					},
				},
			}, normalizer.Options{})
			Expect(err).ShouldNot(HaveOccurred())

			snapshot := reader.Read(s, selector)
			Expect(snapshot.IsMissingData).Should(BeFalse())
			me := snapshot.Data["me"].(map[string]interface{})
			Expect(me["name"]).Should(Equal("Zuck"))
			edges := me["friends"].(map[string]interface{})["edges"].([]interface{})
			Expect(edges).Should(HaveLen(2))
			Expect(edges[1].(map[string]interface{})["node"]).Should(Equal(map[string]interface{}{
				"id":   "2",
				"name": "Bob",
			}))
		})
	})
})
