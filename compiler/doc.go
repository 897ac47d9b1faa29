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

// Package compiler turns GraphQL operation and fragment text into the selector documents used by
// the normalizer, the reader and the environment.
//
// Documents are resolved against a server schema and an optional client schema extension. Fields
// the server doesn't know become client extensions, connection fields (@connection) get their
// edges and page info completed, and the fields the store needs to identify records (id and
// __typename) are added. Each operation also gets the text sent to the server, printed with the
// client-only parts removed.
//
// The directives understood are @include, @skip, @defer, @stream, @connection, @module,
// @relay(mask: false), @arguments and @argumentDefinitions.
package compiler
