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

package normalizer_test

import (
	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/normalizer"
	"github.com/botobag/relay/store"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func scalar(name string) *document.ScalarField {
	return &document.ScalarField{Name: name}
}

func literal(name string, value interface{}) document.Argument {
	return document.Argument{Name: name, Value: document.Literal{Value: value}}
}

func query(selections ...document.Selection) *document.Operation {
	return &document.Operation{
		Name:       "TestQuery",
		Kind:       document.OperationQuery,
		Selections: selections,
	}
}

func nodeField(id string, selections ...document.Selection) *document.LinkedField {
	return &document.LinkedField{
		Name:                "node",
		Args:                []document.Argument{literal("id", id)},
		IdentifyingArgument: "id",
		Selections:          selections,
	}
}

var _ = Describe("Write", func() {
	var (
		s      *store.RecordStore
		logger *logrus.Logger
		hook   *test.Hook
	)

	BeforeEach(func() {
		logger, hook = test.NewNullLogger()
		s = store.NewRecordStore(store.RecordStoreConfig{Logger: logger})
	})

	write := func(operation *document.Operation, vars document.Variables, payload map[string]interface{}) *normalizer.Result {
		result, err := normalizer.Write(s.NewBaseWriter(nil),
			document.NewOperationSelector(operation, vars), payload, normalizer.Options{})
		Expect(err).ShouldNot(HaveOccurred())
		return result
	}

	field := func(id store.DataID, key string) interface{} {
		value, _ := s.GetField(id, key)
		return value
	}

	It("writes a root object under its server id", func() {
		result := write(query(&document.LinkedField{
			Name:       "me",
			Selections: []document.Selection{scalar("id")},
		}), nil, map[string]interface{}{
			"me": map[string]interface{}{"id": "123"},
		})

		Expect(result.Created.Sorted()).Should(Equal([]store.DataID{"123"}))
		Expect(field("123", "id")).Should(Equal("123"))

		id, ok := s.GetDataID("me", "")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(Equal("123"))
	})

	It("reports no updates when the same payload is written twice", func() {
		operation := query(
			nodeField("4",
				scalar("id"),
				scalar("__typename"),
				&document.ScalarField{Name: "profilePicture", Args: []document.Argument{literal("size", 32)}},
				&document.LinkedField{
					Name:         "address",
					ConcreteType: "Address",
					Selections:   []document.Selection{scalar("city")},
				},
				&document.LinkedField{
					Name:         "emails",
					Plural:       true,
					ConcreteType: "Email",
					Selections:   []document.Selection{scalar("address")},
				},
			),
			scalar("viewerCount"),
		)
		payload := map[string]interface{}{
			"node": map[string]interface{}{
				"id":             "4",
				"__typename":     "User",
				"profilePicture": "https://example.com/4.jpg",
				"address":        map[string]interface{}{"city": "Taipei"},
				"emails": []interface{}{
					map[string]interface{}{"address": "a@example.com"},
					map[string]interface{}{"address": "b@example.com"},
				},
			},
			"viewerCount": float64(1),
		}

		first := write(operation, nil, payload)
		Expect(first.Created.Sorted()).Should(ConsistOf(
			document.RootID,
			"4",
			"client:4:address",
			"client:4:emails:0",
			"client:4:emails:1",
		))

		second := write(operation, nil, payload)
		Expect(second.Created).Should(BeEmpty())
		Expect(second.Updated).Should(BeEmpty())
	})

	It("reports only the records whose fields change", func() {
		operation := query(nodeField("4", scalar("id"), scalar("name")))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "name": "Zuck"},
		})

		result := write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "name": "Mark"},
		})
		Expect(result.Updated.Sorted()).Should(Equal([]store.DataID{"4"}))
		Expect(field("4", "name")).Should(Equal("Mark"))
	})

	It("keeps fields with different arguments apart", func() {
		operation := query(nodeField("4",
			scalar("id"),
			&document.ScalarField{Alias: "small", Name: "profilePicture", Args: []document.Argument{literal("size", 32)}},
			&document.ScalarField{Alias: "large", Name: "profilePicture", Args: []document.Argument{literal("size", 64)}},
		))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "small": "32.jpg", "large": "64.jpg"},
		})

		Expect(field("4", "profilePicture(size:32)")).Should(Equal("32.jpg"))
		Expect(field("4", "profilePicture(size:64)")).Should(Equal("64.jpg"))
	})

	It("resolves node(id:) root calls to the same record", func() {
		operation := query(nodeField("123", scalar("id"), scalar("name")))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "123", "name": "A"},
		})
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "123", "name": "B"},
		})

		id, _ := s.GetDataID("node", "123")
		Expect(id).Should(Equal("123"))
		Expect(field("123", "name")).Should(Equal("B"))
	})

	It("reuses the client id of an id-less root object", func() {
		operation := query(&document.LinkedField{
			Name:         "viewer",
			ConcreteType: "Viewer",
			Selections:   []document.Selection{scalar("name")},
		})
		write(operation, nil, map[string]interface{}{
			"viewer": map[string]interface{}{"name": "A"},
		})
		firstID, _ := s.GetDataID("viewer", "")

		result := write(operation, nil, map[string]interface{}{
			"viewer": map[string]interface{}{"name": "B"},
		})
		secondID, _ := s.GetDataID("viewer", "")

		Expect(firstID).Should(Equal("client:root:viewer"))
		Expect(secondID).Should(Equal(firstID))
		Expect(result.Created).Should(BeEmpty())
		Expect(s.GetType(firstID)).Should(Equal("Viewer"))
	})

	It("remaps a root call to the new record without deleting the old one", func() {
		operation := query(&document.LinkedField{
			Name:                "username",
			Args:                []document.Argument{literal("name", "yuzhi")},
			IdentifyingArgument: "name",
			Selections:          []document.Selection{scalar("id")},
		})
		write(operation, nil, map[string]interface{}{
			"username": map[string]interface{}{"id": "1055790163"},
		})
		write(operation, nil, map[string]interface{}{
			"username": map[string]interface{}{"id": "123"},
		})

		id, _ := s.GetDataID("username", "yuzhi")
		Expect(id).Should(Equal("123"))
		Expect(s.GetRecordState("1055790163")).Should(Equal(store.Existent))
	})

	It("deletes the record of a null root object", func() {
		operation := query(nodeField("123", scalar("id")))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "123"},
		})
		Expect(s.GetRecordState("123")).Should(Equal(store.Existent))

		result := write(operation, nil, map[string]interface{}{"node": nil})
		Expect(s.GetRecordState("123")).Should(Equal(store.Nonexistent))
		Expect(result.Updated.Has("123")).Should(BeTrue())
	})

	It("rejects a root call whose identifying argument has no value", func() {
		operation := query(&document.LinkedField{
			Name:                "node",
			Args:                []document.Argument{{Name: "id", Value: document.Variable{Name: "id"}}},
			IdentifyingArgument: "id",
			Selections:          []document.Selection{scalar("name")},
		})
		_, err := normalizer.Write(s.NewBaseWriter(nil), document.NewOperationSelector(operation, nil),
			map[string]interface{}{
				"node": map[string]interface{}{"name": "x"},
			}, normalizer.Options{})
		Expect(graphql.IsKind(err, graphql.ErrKindInvariant)).Should(BeTrue())
		Expect(err.(*graphql.Error).Path.String()).Should(Equal("node"))

		Expect(s.GetRecordState("null")).Should(Equal(store.Unknown))
		_, ok := s.GetDataID("node", "null")
		Expect(ok).Should(BeFalse())
	})

	It("writes null links for null nested objects", func() {
		operation := query(nodeField("4", scalar("id"), &document.LinkedField{
			Name:       "address",
			Selections: []document.Selection{scalar("city")},
		}))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "address": map[string]interface{}{"city": "Taipei"}},
		})
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "address": nil},
		})

		id, ok := s.GetLinkedRecordID("4", "address")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(BeEmpty())
	})

	It("leaves fields absent from the payload untouched", func() {
		operation := query(nodeField("4", scalar("id"), scalar("name"), scalar("bio")))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "name": "Zuck", "bio": "Hi"},
		})
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "bio": nil},
		})

		Expect(field("4", "name")).Should(Equal("Zuck"))
		value, ok := s.GetField("4", "bio")
		Expect(ok).Should(BeTrue())
		Expect(value).Should(BeNil())
	})

	It("keeps the order and null items of plural fields", func() {
		operation := query(nodeField("4", scalar("id"), &document.LinkedField{
			Name:       "friends",
			Plural:     true,
			Selections: []document.Selection{scalar("id")},
		}))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{
				"id": "4",
				"friends": []interface{}{
					map[string]interface{}{"id": "2"},
					nil,
					map[string]interface{}{"id": "1"},
				},
			},
		})

		ids, ok := s.GetLinkedRecordIDs("4", "friends")
		Expect(ok).Should(BeTrue())
		Expect(ids).Should(Equal(store.Links{"2", "", "1"}))
	})

	It("applies inline fragments matching the concrete type", func() {
		operation := query(nodeField("4",
			scalar("id"),
			scalar("__typename"),
			&document.InlineFragment{Type: "User", Selections: []document.Selection{scalar("name")}},
			&document.InlineFragment{Type: "Page", Selections: []document.Selection{scalar("likers")}},
		))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "__typename": "User", "name": "Zuck", "likers": float64(3)},
		})

		Expect(s.GetType("4")).Should(Equal("User"))
		Expect(field("4", "name")).Should(Equal("Zuck"))
		_, ok := s.GetField("4", "likers")
		Expect(ok).Should(BeFalse())
	})

	It("records abstract types found in the payload", func() {
		operation := query(nodeField("4",
			scalar("id"),
			scalar("__typename"),
			&document.InlineFragment{
				Type:        "Actor",
				AbstractKey: "__isActor",
				Selections:  []document.Selection{scalar("name")},
			},
		))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "__typename": "User", "__isActor": "User", "name": "Zuck"},
		})

		Expect(field("4", "__isActor")).Should(Equal(true))
		Expect(field("4", "name")).Should(Equal("Zuck"))
	})

	It("warns and keeps the known type when the payload disagrees", func() {
		operation := query(nodeField("4", scalar("id"), scalar("__typename"), scalar("name")))
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "__typename": "User", "name": "Zuck"},
		})
		write(operation, nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "__typename": "Page", "name": "Facebook"},
		})

		Expect(s.GetType("4")).Should(Equal("User"))
		Expect(field("4", "name")).Should(Equal("Facebook"))
		Expect(hook.LastEntry()).ShouldNot(BeNil())
		Expect(hook.LastEntry().Level).Should(Equal(logrus.WarnLevel))
	})

	It("evaluates conditions and fragment arguments against the variables", func() {
		fragment := &document.Fragment{
			Name:          "UserPicture",
			TypeCondition: "User",
			ArgumentDefinitions: []document.ArgumentDefinition{
				{Name: "size", DefaultValue: 16},
			},
			Selections: []document.Selection{
				&document.ScalarField{
					Name: "profilePicture",
					Args: []document.Argument{{Name: "size", Value: document.Variable{Name: "size"}}},
				},
			},
		}
		operation := &document.Operation{
			Name: "TestQuery",
			VariableDefinitions: []document.VariableDefinition{
				{Name: "withBio"},
			},
			Selections: []document.Selection{nodeField("4",
				scalar("id"),
				&document.Condition{Variable: "withBio", PassingValue: true, Selections: []document.Selection{scalar("bio")}},
				&document.FragmentSpread{
					Fragment: fragment,
					Args:     []document.Argument{literal("size", 32)},
				},
			)},
		}

		write(operation, document.Variables{"withBio": false}, map[string]interface{}{
			"node": map[string]interface{}{"id": "4", "bio": "Hi", "profilePicture": "32.jpg"},
		})

		_, ok := s.GetField("4", "bio")
		Expect(ok).Should(BeFalse())
		Expect(field("4", "profilePicture(size:32)")).Should(Equal("32.jpg"))
	})

	It("writes connection pages into the range", func() {
		friends := &document.LinkedField{
			Name:         "friends",
			Args:         []document.Argument{literal("first", 2)},
			Connection:   true,
			ConcreteType: "FriendsConnection",
			Selections: []document.Selection{
				&document.LinkedField{
					Name:         "edges",
					Plural:       true,
					ConcreteType: "FriendsEdge",
					Selections: []document.Selection{
						scalar("cursor"),
						&document.LinkedField{
							Name:         "node",
							ConcreteType: "User",
							Selections:   []document.Selection{scalar("id")},
						},
					},
				},
				&document.LinkedField{
					Name:       "pageInfo",
					Selections: []document.Selection{scalar("hasNextPage"), scalar("endCursor")},
				},
			},
		}
		operation := query(nodeField("4", scalar("id"), friends))
		payload := map[string]interface{}{
			"node": map[string]interface{}{
				"id": "4",
				"friends": map[string]interface{}{
					"edges": []interface{}{
						map[string]interface{}{"cursor": "c1", "node": map[string]interface{}{"id": "1"}},
						map[string]interface{}{"cursor": "c2", "node": map[string]interface{}{"id": "2"}},
					},
					"pageInfo": map[string]interface{}{"hasNextPage": true, "endCursor": "c2"},
				},
			},
		}
		write(operation, nil, payload)

		connectionID, ok := s.GetLinkedRecordID("4", "friends")
		Expect(ok).Should(BeTrue())
		Expect(connectionID).Should(Equal("client:4:friends"))
		Expect(s.GetType(connectionID)).Should(Equal("FriendsConnection"))

		info, ok := s.GetRangeMetadata(connectionID, []document.Call{{Name: "first", Value: 5}})
		Expect(ok).Should(BeTrue())
		Expect(info.RequestedEdgeIDs).Should(Equal([]store.DataID{
			"client:4:friends:1",
			"client:4:friends:2",
		}))
		Expect(info.DiffCalls).Should(Equal([]document.Call{
			{Name: "first", Value: 3},
			{Name: "after", Value: "c2"},
		}))

		nodeID, _ := s.GetLinkedRecordID(info.RequestedEdgeIDs[0], "node")
		Expect(nodeID).Should(Equal("1"))
		Expect(s.GetConnectionIDsForRecord("2")).Should(Equal([]store.DataID{connectionID}))

		second := write(operation, nil, payload)
		Expect(second.Updated).Should(BeEmpty())
	})

	It("fails on payloads of the wrong shape", func() {
		operation := query(nodeField("4", scalar("id"), &document.LinkedField{
			Name:       "friends",
			Plural:     true,
			Selections: []document.Selection{scalar("id")},
		}))
		_, err := normalizer.Write(s.NewBaseWriter(nil), document.NewOperationSelector(operation, nil),
			map[string]interface{}{
				"node": map[string]interface{}{"id": "4", "friends": "not a list"},
			}, normalizer.Options{})
		Expect(graphql.IsKind(err, graphql.ErrKindPayload)).Should(BeTrue())
		Expect(err.(*graphql.Error).Path.String()).Should(Equal("node.friends"))
	})

	It("writes fragment selectors against their record", func() {
		write(query(nodeField("4", scalar("id"))), nil, map[string]interface{}{
			"node": map[string]interface{}{"id": "4"},
		})

		fragment := &document.Fragment{
			Name:          "UserName",
			TypeCondition: "User",
			Selections:    []document.Selection{scalar("name")},
		}
		result, err := normalizer.Write(s.NewBaseWriter(nil), document.NewFragmentSelector(fragment, "4", nil),
			map[string]interface{}{"name": "Zuck"}, normalizer.Options{})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(result.Updated.Sorted()).Should(Equal([]store.DataID{"4"}))
		Expect(field("4", "name")).Should(Equal("Zuck"))
	})

	Describe("modules", func() {
		It("reports the objects selecting a module fragment", func() {
			module := &document.ModuleImport{
				DocumentName:     "NameRenderer_name",
				FragmentName:     "MarkdownName_name",
				FragmentPropName: "name",
			}
			operation := query(nodeField("4", scalar("id"), &document.LinkedField{
				Name: "nameRenderer",
				Selections: []document.Selection{
					scalar("__typename"),
					&document.InlineFragment{Type: "MarkdownName", Selections: []document.Selection{module}},
				},
			}))

			result := write(operation, nil, map[string]interface{}{
				"node": map[string]interface{}{
					"id": "4",
					"nameRenderer": map[string]interface{}{
						"__typename":                           "MarkdownName",
						"__module_component_NameRenderer_name": "MarkdownName.react",
						"__module_operation_NameRenderer_name": "MarkdownName_name$normalization.graphql",
						"markdown":                             "**Zuck**",
					},
				},
			})

			Expect(result.ModuleImports).Should(HaveLen(1))
			payload := result.ModuleImports[0]
			Expect(payload.DataID).Should(Equal("client:4:nameRenderer"))
			Expect(payload.TypeName).Should(Equal("MarkdownName"))
			Expect(payload.FragmentName).Should(Equal("MarkdownName_name"))
			Expect(payload.OperationReference).Should(Equal("MarkdownName_name$normalization.graphql"))
			Expect(payload.Path.String()).Should(Equal("node.nameRenderer"))
			Expect(field("client:4:nameRenderer", "__module_component_NameRenderer_name")).Should(
				Equal("MarkdownName.react"))

			// The module's own fields wait for its normalization document.
			_, ok := s.GetField("client:4:nameRenderer", "markdown")
			Expect(ok).Should(BeFalse())
		})
	})

	Describe("incremental payloads", func() {
		var deferred *document.Operation

		BeforeEach(func() {
			deferred = query(nodeField("4",
				scalar("id"),
				&document.Defer{Label: "TestQuery$defer$UserName", Selections: []document.Selection{scalar("name")}},
			))
		})

		It("applies deferred data to the deferring record", func() {
			result := write(deferred, nil, map[string]interface{}{
				"node": map[string]interface{}{"id": "4"},
			})
			Expect(result.IncrementalPlaceholders).Should(HaveLen(1))
			placeholder := result.IncrementalPlaceholders[0]
			Expect(placeholder.Kind).Should(Equal(normalizer.KindDefer))
			Expect(placeholder.DataID).Should(Equal("4"))
			Expect(placeholder.Path.String()).Should(Equal("node"))

			chunk := &normalizer.Chunk{
				Data:  map[string]interface{}{"name": "Zuck"},
				Label: "TestQuery$defer$UserName",
				Path:  graphql.NewResponsePath("node"),
			}
			incremental, err := normalizer.WriteIncremental(s.NewBaseWriter(nil), result.IncrementalPlaceholders,
				chunk, normalizer.Options{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(incremental.Updated.Sorted()).Should(Equal([]store.DataID{"4"}))
			Expect(field("4", "name")).Should(Equal("Zuck"))
		})

		It("writes deferred selections inline when deferral is disabled", func() {
			operation := query(nodeField("4",
				scalar("id"),
				&document.Defer{Label: "D", If: "shouldDefer", Selections: []document.Selection{scalar("name")}},
			))
			operation.VariableDefinitions = []document.VariableDefinition{{Name: "shouldDefer"}}

			result := write(operation, document.Variables{"shouldDefer": false}, map[string]interface{}{
				"node": map[string]interface{}{"id": "4", "name": "Zuck"},
			})
			Expect(result.IncrementalPlaceholders).Should(BeEmpty())
			Expect(field("4", "name")).Should(Equal("Zuck"))
		})

		It("ignores chunks without a matching placeholder", func() {
			result := write(deferred, nil, map[string]interface{}{
				"node": map[string]interface{}{"id": "4"},
			})

			chunk := &normalizer.Chunk{
				Data:  map[string]interface{}{"name": "Zuck"},
				Label: "TestQuery$defer$UserName",
				Path:  graphql.NewResponsePath("viewer"),
			}
			incremental, err := normalizer.WriteIncremental(s.NewBaseWriter(nil), result.IncrementalPlaceholders,
				chunk, normalizer.Options{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(incremental.Updated).Should(BeEmpty())
			Expect(hook.LastEntry().Level).Should(Equal(logrus.WarnLevel))
			_, ok := s.GetField("4", "name")
			Expect(ok).Should(BeFalse())
		})

		It("ignores chunks whose record is gone", func() {
			result := write(deferred, nil, map[string]interface{}{
				"node": map[string]interface{}{"id": "4"},
			})
			write(deferred, nil, map[string]interface{}{"node": nil})

			chunk := &normalizer.Chunk{
				Data:  map[string]interface{}{"name": "Zuck"},
				Label: "TestQuery$defer$UserName",
				Path:  graphql.NewResponsePath("node"),
			}
			incremental, err := normalizer.WriteIncremental(s.NewBaseWriter(nil), result.IncrementalPlaceholders,
				chunk, normalizer.Options{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(incremental.Created).Should(BeEmpty())
			Expect(incremental.Updated).Should(BeEmpty())
			Expect(s.GetRecordState("4")).Should(Equal(store.Nonexistent))
			Expect(hook.LastEntry().Message).Should(ContainSubstring("does not exist"))
		})

		It("appends streamed items to the list", func() {
			operation := query(&document.LinkedField{
				Name:         "viewer",
				ConcreteType: "Viewer",
				Selections: []document.Selection{
					&document.Stream{
						Label:        "TestQuery$stream$friends",
						InitialCount: 1,
						Field: &document.LinkedField{
							Name:         "friends",
							Plural:       true,
							ConcreteType: "User",
							Selections:   []document.Selection{scalar("id"), scalar("name")},
						},
					},
				},
			})
			result := write(operation, nil, map[string]interface{}{
				"viewer": map[string]interface{}{
					"friends": []interface{}{
						map[string]interface{}{"id": "1", "name": "A"},
					},
				},
			})
			Expect(result.IncrementalPlaceholders).Should(HaveLen(1))
			Expect(result.IncrementalPlaceholders[0].Path.String()).Should(Equal("viewer.friends"))

			chunk := &normalizer.Chunk{
				Data:  map[string]interface{}{"id": "2", "name": "B"},
				Label: "TestQuery$stream$friends",
				Path:  graphql.NewResponsePath("viewer", "friends", 1),
			}
			incremental, err := normalizer.WriteIncremental(s.NewBaseWriter(nil), result.IncrementalPlaceholders,
				chunk, normalizer.Options{})
			Expect(err).ShouldNot(HaveOccurred())
			Expect(incremental.Created.Sorted()).Should(Equal([]store.DataID{"2"}))

			ids, _ := s.GetLinkedRecordIDs("client:root:viewer", "friends")
			Expect(ids).Should(Equal(store.Links{"1", "2"}))
			Expect(field("2", "name")).Should(Equal("B"))
		})
	})
})

var _ = Describe("ParsePayload", func() {
	It("decodes response data", func() {
		payload, err := normalizer.ParsePayload([]byte(`{"me":{"id":"123","age":3}}`))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(payload).Should(Equal(map[string]interface{}{
			"me": map[string]interface{}{"id": "123", "age": float64(3)},
		}))
	})

	It("rejects malformed data", func() {
		_, err := normalizer.ParsePayload([]byte(`{"me":`))
		Expect(graphql.IsKind(err, graphql.ErrKindPayload)).Should(BeTrue())

		_, err = normalizer.ParsePayload([]byte(`null`))
		Expect(graphql.IsKind(err, graphql.ErrKindPayload)).Should(BeTrue())
	})

	It("decodes incremental chunks", func() {
		chunk, err := normalizer.ParseChunk([]byte(`{"data":{"name":"Zuck"},"label":"D","path":["viewer","friends",1]}`))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(chunk.Label).Should(Equal("D"))
		Expect(chunk.Path.Keys()).Should(Equal([]interface{}{"viewer", "friends", 1}))
		Expect(chunk.Data).Should(Equal(map[string]interface{}{"name": "Zuck"}))
	})
})
