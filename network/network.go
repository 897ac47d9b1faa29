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

package network

import (
	"context"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	jsoniter "github.com/json-iterator/go"
)

// CacheConfig controls how an environment uses the store for a request.
type CacheConfig struct {
	// Force sends the request even if the store has all the data.
	Force bool

	// Metadata is passed through to the network unchanged.
	Metadata map[string]interface{}
}

// Request is an operation to execute with its variables.
type Request struct {
	Operation   *document.Operation
	Variables   document.Variables
	CacheConfig CacheConfig
}

// Network executes requests. It is the only way the cache reaches a server.
type Network interface {
	// Execute sends request and returns the stream of its payloads. The request is sent when the
	// observable is subscribed; unsubscribing abandons it.
	Execute(ctx context.Context, request *Request) Observable
}

// The Func type is an adapter to allow the use of ordinary functions as a Network.
type Func func(ctx context.Context, request *Request) Observable

var _ Network = (Func)(nil)

// Execute implements Network. It calls f(ctx, request).
func (f Func) Execute(ctx context.Context, request *Request) Observable {
	return f(ctx, request)
}

// Payload is one response of a request: the complete data of an operation, or one incremental
// chunk (identified by Label and Path) of a deferred fragment or a streamed list item.
type Payload struct {
	Data       interface{}
	Errors     graphql.Errors
	Label      string
	Path       graphql.ResponsePath
	HasNext    bool
	Extensions map[string]interface{}
}

// IsIncremental returns true for deferred and streamed chunks.
func (payload *Payload) IsIncremental() bool {
	return len(payload.Label) > 0 || !payload.Path.Empty()
}

// DataObject returns the data as an object, or nil if it is not one.
func (payload *Payload) DataObject() map[string]interface{} {
	data, _ := payload.Data.(map[string]interface{})
	return data
}

type rawError struct {
	Message    string                 `json:"message"`
	Path       []interface{}          `json:"path"`
	Extensions map[string]interface{} `json:"extensions"`
}

type rawPayload struct {
	Data       interface{}            `json:"data"`
	Errors     []rawError             `json:"errors"`
	Label      string                 `json:"label"`
	Path       []interface{}          `json:"path"`
	HasNext    bool                   `json:"hasNext"`
	Extensions map[string]interface{} `json:"extensions"`
}

func (raw *rawPayload) payload() (*Payload, error) {
	path, err := graphql.ResponsePathOf(raw.Path)
	if err != nil {
		return nil, err
	}

	payload := &Payload{
		Data:       raw.Data,
		Label:      raw.Label,
		Path:       path,
		HasNext:    raw.HasNext,
		Extensions: raw.Extensions,
	}
	for _, e := range raw.Errors {
		args := []interface{}{graphql.ErrKindNetwork}
		if errPath, err := graphql.ResponsePathOf(e.Path); err == nil && !errPath.Empty() {
			args = append(args, errPath)
		}
		if e.Extensions != nil {
			args = append(args, graphql.ErrorExtensions(e.Extensions))
		}
		payload.Errors.Emplace(e.Message, args...)
	}
	return payload, nil
}

// ParseResponse decodes a response body: a single payload object, or an array of payloads (the
// initial one followed by incremental chunks).
func ParseResponse(body []byte) ([]*Payload, error) {
	const op = graphql.Op("network.ParseResponse")

	var raws []rawPayload
	iter := jsoniter.ConfigCompatibleWithStandardLibrary.BorrowIterator(body)
	defer jsoniter.ConfigCompatibleWithStandardLibrary.ReturnIterator(iter)

	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		var raw rawPayload
		iter.ReadVal(&raw)
		raws = append(raws, raw)
	case jsoniter.ArrayValue:
		iter.ReadVal(&raws)
	default:
		return nil, graphql.NewError("response is neither an object nor an array", op, graphql.ErrKindPayload)
	}
	if iter.Error != nil {
		return nil, graphql.NewError("malformed response", op, graphql.ErrKindPayload, iter.Error)
	}

	payloads := make([]*Payload, 0, len(raws))
	for i := range raws {
		payload, err := raws[i].payload()
		if err != nil {
			return nil, graphql.NewError("malformed response", op, err)
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}
