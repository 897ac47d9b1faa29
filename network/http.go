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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/graphql"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// HTTPConfig configures an HTTP network.
type HTTPConfig struct {
	// Endpoint is the URL of the GraphQL server.
	Endpoint string

	// Client sends the requests. Default to http.DefaultClient.
	Client *http.Client

	// Header is added to every request.
	Header http.Header

	// NewBackOff creates the retry policy of a request. Requests are not retried when it is nil.
	// Only transport failures and 5xx responses are retried.
	NewBackOff func() backoff.BackOff

	// Logger receives a warning for every retried failure. Default to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// Validate checks the configuration.
func (config *HTTPConfig) Validate() error {
	if len(config.Endpoint) == 0 {
		return graphql.NewError("HTTP network requires an endpoint", graphql.Op("network.NewHTTP"))
	}
	return nil
}

// HTTP is a Network posting operations as JSON to a GraphQL endpoint. Identical queries in flight
// at the same time share one request.
type HTTP struct {
	config HTTPConfig
	group  singleflight.Group
}

var _ Network = (*HTTP)(nil)

// NewHTTP creates an HTTP network.
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &HTTP{config: config}, nil
}

type requestBody struct {
	Query         string             `json:"query,omitempty"`
	ID            string             `json:"id,omitempty"`
	OperationName string             `json:"operationName,omitempty"`
	Variables     document.Variables `json:"variables"`
}

// Execute implements Network.
func (h *HTTP) Execute(ctx context.Context, request *Request) Observable {
	return ObservableFunc(func(sink Sink) func() {
		ctx, cancel := context.WithCancel(ctx)
		go func() {
			payloads, err := h.fetch(ctx, request)
			if err != nil {
				sink.Error(err)
				return
			}
			for _, payload := range payloads {
				sink.Next(payload)
			}
			sink.Complete()
		}()
		return cancel
	})
}

func (h *HTTP) fetch(ctx context.Context, request *Request) ([]*Payload, error) {
	const op = graphql.Op("network.HTTP")

	operation := request.Operation
	variables := request.Variables
	if variables == nil {
		variables = document.Variables{}
	}
	body, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(requestBody{
		Query:         operation.Text,
		ID:            operation.ID,
		OperationName: operation.Name,
		Variables:     variables,
	})
	if err != nil {
		return nil, graphql.NewError("cannot encode request", op, graphql.ErrKindNetwork, err)
	}

	// Mutations have side effects and are never shared.
	if operation.Kind == document.OperationMutation {
		return h.post(ctx, body)
	}

	// The shared request outlives the caller that started it; every caller still stops waiting when
	// its own context is done.
	result := h.group.DoChan(string(body), func() (interface{}, error) {
		return h.post(context.WithoutCancel(ctx), body)
	})
	select {
	case <-ctx.Done():
		return nil, graphql.NewError("request cancelled", op, graphql.ErrKindNetwork, ctx.Err())
	case r := <-result:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]*Payload), nil
	}
}

func (h *HTTP) post(ctx context.Context, body []byte) ([]*Payload, error) {
	const op = graphql.Op("network.HTTP")

	var payloads []*Payload
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for key, values := range h.config.Header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		resp, err := h.config.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server responded with status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// A GraphQL server may still describe the failure in a JSON body.
			if parsed, parseErr := ParseResponse(data); parseErr == nil && len(parsed) > 0 && parsed[0].Errors.HaveOccurred() {
				payloads = parsed
				return nil
			}
			return backoff.Permanent(fmt.Errorf("server responded with status %d", resp.StatusCode))
		}

		payloads, err = ParseResponse(data)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	var err error
	if h.config.NewBackOff == nil {
		err = attempt()
		if permanent, ok := err.(*backoff.PermanentError); ok {
			err = permanent.Err
		}
	} else {
		policy := backoff.WithContext(h.config.NewBackOff(), ctx)
		err = backoff.RetryNotify(attempt, policy, func(err error, wait time.Duration) {
			h.config.Logger.WithFields(logrus.Fields{
				"endpoint": h.config.Endpoint,
				"wait":     wait,
			}).WithError(err).Warn("network: request failed; retrying")
		})
	}
	if err != nil {
		return nil, graphql.NewError("request failed", op, graphql.ErrKindNetwork, err)
	}
	return payloads, nil
}
