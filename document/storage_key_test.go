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

package document_test

import (
	"strings"

	"github.com/botobag/relay/document"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StorageKey", func() {
	It("is the field name when there are no arguments", func() {
		Expect(document.StorageKey(&document.ScalarField{Name: "name"}, nil)).Should(Equal("name"))
	})

	It("ignores aliases", func() {
		field := &document.ScalarField{Alias: "fullName", Name: "name"}
		Expect(document.StorageKey(field, nil)).Should(Equal("name"))
	})

	It("sorts arguments by name and resolves variables", func() {
		field := &document.LinkedField{
			Name: "profilePicture",
			Args: []document.Argument{
				{Name: "size", Value: document.Variable{Name: "size"}},
				{Name: "crop", Value: document.Literal{Value: true}},
			},
		}
		key := document.StorageKey(field, document.Variables{"size": float64(32)})
		Expect(key).Should(Equal(`profilePicture(crop:true,size:32)`))
	})

	It("drops null arguments", func() {
		field := &document.ScalarField{
			Name: "friendsCount",
			Args: []document.Argument{
				{Name: "status", Value: document.Variable{Name: "status"}},
			},
		}
		Expect(document.StorageKey(field, document.Variables{})).Should(Equal("friendsCount"))
	})

	It("produces the same key for integral floats and ints", func() {
		field := &document.ScalarField{
			Name: "items",
			Args: []document.Argument{
				{Name: "count", Value: document.Variable{Name: "count"}},
			},
		}
		Expect(document.StorageKey(field, document.Variables{"count": 10})).Should(
			Equal(document.StorageKey(field, document.Variables{"count": 10.0})))
	})

	It("encodes object arguments canonically regardless of key order", func() {
		field := &document.ScalarField{
			Name: "search",
			Args: []document.Argument{
				{Name: "input", Value: document.Variable{Name: "input"}},
			},
		}
		a := document.StorageKey(field, document.Variables{
			"input": map[string]interface{}{"b": "2", "a": "1"},
		})
		b := document.StorageKey(field, document.Variables{
			"input": map[string]interface{}{"a": "1", "b": "2"},
		})
		Expect(a).Should(Equal(b))
		Expect(a).Should(Equal(`search(input:{"a":"1","b":"2"})`))
	})

	It("hashes long composite arguments", func() {
		field := &document.ScalarField{
			Name: "search",
			Args: []document.Argument{
				{Name: "input", Value: document.Variable{Name: "input"}},
			},
		}
		key := document.StorageKey(field, document.Variables{
			"input": map[string]interface{}{"text": strings.Repeat("x", 100)},
		})
		Expect(key).Should(HavePrefix("search(input:#"))
		Expect(len(key)).Should(BeNumerically("<", 40))
	})

	It("uses the precomputed key", func() {
		args := []document.Argument{{Name: "size", Value: document.Literal{Value: 32}}}
		key := document.PrecomputeStorageKey("profilePicture", args)
		Expect(key).Should(Equal("profilePicture(size:32)"))

		withVariable := []document.Argument{{Name: "size", Value: document.Variable{Name: "size"}}}
		Expect(document.PrecomputeStorageKey("profilePicture", withVariable)).Should(BeEmpty())
	})

	It("excludes range calls from connection keys", func() {
		field := &document.LinkedField{
			Name:       "friends",
			Connection: true,
			Args: []document.Argument{
				{Name: "first", Value: document.Literal{Value: 10}},
				{Name: "after", Value: document.Literal{Value: "cursor1"}},
				{Name: "orderby", Value: document.Literal{Value: "name"}},
			},
		}
		Expect(document.FieldStorageKey(field, nil)).Should(Equal(`friends(orderby:"name")`))
	})
})

var _ = Describe("Calls", func() {
	It("splits range calls from filter calls", func() {
		field := &document.LinkedField{
			Name: "friends",
			Args: []document.Argument{
				{Name: "orderby", Value: document.Literal{Value: "name"}},
				{Name: "first", Value: document.Variable{Name: "count"}},
			},
		}
		rangeCalls, filterCalls := document.SplitCalls(document.Calls(field, document.Variables{"count": 5}))
		Expect(rangeCalls).Should(Equal([]document.Call{{Name: "first", Value: 5}}))
		Expect(filterCalls).Should(Equal([]document.Call{{Name: "orderby", Value: "name"}}))

		first, ok := document.CallInt(rangeCalls, document.CallFirst)
		Expect(ok).Should(BeTrue())
		Expect(first).Should(Equal(5))

		Expect(document.CallsSignature(filterCalls)).Should(Equal(`orderby("name")`))
	})
})

var _ = Describe("Client IDs", func() {
	It("derives ids from the parent and storage key", func() {
		Expect(document.ClientID(document.RootID, "viewer")).Should(Equal("client:root:viewer"))
		Expect(document.ClientID("123", "address")).Should(Equal("client:123:address"))
		Expect(document.ClientIndexID("123", "emails", 2)).Should(Equal("client:123:emails:2"))
		Expect(document.IsClientID("client:123:address")).Should(BeTrue())
		Expect(document.IsClientID("123")).Should(BeFalse())
	})

	It("accepts string and numeric ids", func() {
		id, ok := document.IDOf("4")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(Equal("4"))

		id, ok = document.IDOf(float64(4))
		Expect(ok).Should(BeTrue())
		Expect(id).Should(Equal("4"))

		_, ok = document.IDOf(nil)
		Expect(ok).Should(BeFalse())
	})
})

var _ = Describe("Variables", func() {
	It("applies operation defaults", func() {
		operation := &document.Operation{
			Name: "FriendsQuery",
			VariableDefinitions: []document.VariableDefinition{
				{Name: "count", DefaultValue: 10},
				{Name: "orderby"},
			},
		}
		vars := operation.Variables(document.Variables{"orderby": "name", "unused": true})
		Expect(vars).Should(Equal(document.Variables{"count": 10, "orderby": "name"}))
	})

	It("computes fragment variables for a spread", func() {
		fragment := &document.Fragment{
			Name:          "UserProfile",
			TypeCondition: "User",
			ArgumentDefinitions: []document.ArgumentDefinition{
				{Name: "size", DefaultValue: 32},
				{Name: "crop"},
			},
		}
		spread := &document.FragmentSpread{
			Fragment: fragment,
			Args: []document.Argument{
				{Name: "crop", Value: document.Variable{Name: "shouldCrop"}},
			},
		}
		vars := document.Variables{"shouldCrop": true}.ForSpread(spread)
		Expect(vars).Should(Equal(document.Variables{"shouldCrop": true, "size": 32, "crop": true}))
	})

	It("evaluates conditions", func() {
		include := &document.Condition{Variable: "cond", PassingValue: true}
		skip := &document.Condition{Variable: "cond", PassingValue: false}
		Expect(include.Passes(document.Variables{"cond": true})).Should(BeTrue())
		Expect(skip.Passes(document.Variables{"cond": true})).Should(BeFalse())
		Expect(skip.Passes(document.Variables{})).Should(BeTrue())
	})
})

var _ = Describe("InlineFragment", func() {
	It("matches concrete and possible types", func() {
		fragment := &document.InlineFragment{Type: "Actor", PossibleTypes: []string{"User", "Page"}}
		Expect(fragment.Matches("Actor")).Should(BeTrue())
		Expect(fragment.Matches("Page")).Should(BeTrue())
		Expect(fragment.Matches("Comment")).Should(BeFalse())
		Expect(fragment.Matches("")).Should(BeFalse())
		Expect(fragment.IsAbstract()).Should(BeTrue())
	})
})
