/**
 * Copyright (c) 2018, The Artemis Authors.
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

// Package graphql holds the pieces shared by every layer of the client cache that speak about
// GraphQL responses rather than about records: the Error type reported for store invariant
// violations, malformed payloads and failed operations, and ResponsePath which locates a value
// inside a response payload.
//
// Errors are built with NewError in the manner of upspin.io/errors: pass a message followed by any
// of an Op, an ErrKind, a ResponsePath, ErrorExtensions or an underlying error.
//
//	return graphql.NewError(
//		fmt.Sprintf(`record "%s" does not exist`, id),
//		graphql.Op("store.PutField"),
//		graphql.ErrKindInvariant)
package graphql
