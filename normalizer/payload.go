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

package normalizer

import (
	"github.com/botobag/relay/graphql"

	jsoniter "github.com/json-iterator/go"
)

// ParsePayload decodes the JSON object of a response's data.
func ParsePayload(data []byte) (map[string]interface{}, error) {
	const op = graphql.Op("normalizer.ParsePayload")

	var payload map[string]interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &payload); err != nil {
		return nil, graphql.NewError("malformed response payload", op, graphql.ErrKindPayload, err)
	}
	if payload == nil {
		return nil, graphql.NewError("response payload is not an object", op, graphql.ErrKindPayload)
	}
	return payload, nil
}

// ParseChunk decodes an incremental payload of the form {"data": ..., "label": ..., "path": [...]}.
func ParseChunk(data []byte) (*Chunk, error) {
	const op = graphql.Op("normalizer.ParseChunk")

	var raw struct {
		Data  interface{}   `json:"data"`
		Label string        `json:"label"`
		Path  []interface{} `json:"path"`
	}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &raw); err != nil {
		return nil, graphql.NewError("malformed incremental payload", op, graphql.ErrKindPayload, err)
	}

	path, err := graphql.ResponsePathOf(raw.Path)
	if err != nil {
		return nil, graphql.NewError("malformed path in incremental payload", op, err)
	}
	return &Chunk{
		Data:  raw.Data,
		Label: raw.Label,
		Path:  path,
	}, nil
}
