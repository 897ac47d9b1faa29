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

// Package document defines the precompiled, immutable form of GraphQL operations and fragments
// that the writer, the reader and the pending-data diff traverse.
//
// A document is a tree of Selection nodes. The set of node kinds is closed: fields (ScalarField,
// LinkedField), fragments (InlineFragment, FragmentSpread), conditional and incremental selections
// (Condition, Defer, Stream), and client-only selections (ClientExtension,
// ClientEdgeToServerObject, ModuleImport). Traversals dispatch with a type switch.
//
// Documents are normally produced by package compiler from GraphQL source, but they are plain
// structs and can be written by hand:
//
//	query := &document.Operation{
//		Name: "ViewerQuery",
//		Selections: []document.Selection{
//			&document.LinkedField{
//				Name:         "viewer",
//				ConcreteType: "User",
//				Selections: []document.Selection{
//					&document.ScalarField{Name: "id"},
//					&document.ScalarField{Name: "name"},
//				},
//			},
//		},
//	}
//
// The package also owns the naming rules of the store: storage keys of fields with arguments and
// the ids generated for objects that have no server id.
package document
