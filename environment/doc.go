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

// Package environment ties the record store to the network. An Environment owns a RecordStore with
// its optimistic overlay, writes the payloads of the operations it executes, and tells subscribers
// when the data they read changes.
//
// Every change made by one synchronous step (a payload, a commit, the application or disposal of
// an optimistic mutation) is followed by one publish. A publish re-reads the snapshot of each
// subscriber that saw one of the changed records and calls it back at most once, and only when its
// data is different.
//
// When an Executor is configured, payloads are applied in tasks submitted to it in arrival order.
// Work discovered while applying a payload, such as loading the normalization document of a
// @module fragment, is submitted behind the payloads already queued. An incremental payload whose
// deferred selection is not known yet when its task runs is dropped with a warning.
package environment
