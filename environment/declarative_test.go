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

package environment_test

import (
	"context"

	"github.com/botobag/relay/document"
	"github.com/botobag/relay/environment"
	"github.com/botobag/relay/network"
	"github.com/botobag/relay/store"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Declarative mutation configs", func() {
	const connectionID = "client:4:friends"

	var (
		net *fakeNetwork
		env *environment.Environment
	)

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

	edges := func() []store.DataID {
		info, ok := env.Store().GetRangeMetadata(connectionID, []document.Call{{Name: "first", Value: 10}})
		Expect(ok).Should(BeTrue())
		return info.RequestedEdgeIDs
	}

	addFriend := mutation("AddFriendMutation", "addFriend",
		&document.LinkedField{
			Name:         "friendEdge",
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
	)

	addFriendResponseFor := func(id string) map[string]interface{} {
		return map[string]interface{}{
			"addFriend": map[string]interface{}{
				"friendEdge": map[string]interface{}{
					"cursor": "c" + id,
					"node":   map[string]interface{}{"id": id},
				},
			},
		}
	}

	addFriendResponse := addFriendResponseFor("3")

	removeFriend := mutation("RemoveFriendMutation", "removeFriend", scalar("deletedFriendId"))

	removeFriendResponse := func(id string) map[string]interface{} {
		return map[string]interface{}{
			"removeFriend": map[string]interface{}{"deletedFriendId": id},
		}
	}

	friendsSelector := document.NewOperationSelector(query("FriendsQuery", nodeField("4", scalar("id"), friends)), nil)

	BeforeEach(func() {
		net = &fakeNetwork{}
		var err error
		env, err = environment.New(environment.Config{
			Network: net,
		})
		Expect(err).ShouldNot(HaveOccurred())

		Expect(env.CommitPayload(
			friendsSelector,
			map[string]interface{}{
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
			})).Should(Succeed())
		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:1", "client:4:friends:2"}))
	})

	rangeAdd := []environment.DeclarativeConfig{
		&environment.RangeAdd{
			ParentID:       "4",
			ConnectionName: "friends",
			EdgeName:       "friendEdge",
			RangeBehavior:  store.RangePrepend,
		},
	}

	It("adds edges optimistically", func() {
		m, err := env.ApplyMutation(environment.MutationConfig{
			Operation:          addFriend,
			Variables:          document.Variables{"input": map[string]interface{}{"friendId": "3"}},
			OptimisticResponse: addFriendResponse,
			Configs:            rangeAdd,
		})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(edges()).Should(Equal([]store.DataID{
			"client:4:friends:3",
			"client:4:friends:1",
			"client:4:friends:2",
		}))
		Expect(env.Store().GetConnectionIDsForRecord("3")).Should(Equal([]store.DataID{connectionID}))

		m.Dispose()
		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:1", "client:4:friends:2"}))
		Expect(env.Store().GetConnectionIDsForRecord("3")).Should(BeEmpty())
	})

	optimisticAdd := func(id string) environment.MutationConfig {
		return environment.MutationConfig{
			Operation:          addFriend,
			Variables:          document.Variables{"input": map[string]interface{}{"friendId": id}},
			OptimisticResponse: addFriendResponseFor(id),
			Configs:            rangeAdd,
		}
	}

	It("removes only the edge of a disposed mutation from stacked optimistic edges", func() {
		first, err := env.ApplyMutation(optimisticAdd("3"))
		Expect(err).ShouldNot(HaveOccurred())
		second, err := env.ApplyMutation(optimisticAdd("5"))
		Expect(err).ShouldNot(HaveOccurred())
		Expect(edges()).Should(Equal([]store.DataID{
			"client:4:friends:5",
			"client:4:friends:3",
			"client:4:friends:1",
			"client:4:friends:2",
		}))

		first.Dispose()
		Expect(edges()).Should(Equal([]store.DataID{
			"client:4:friends:5",
			"client:4:friends:1",
			"client:4:friends:2",
		}))
		Expect(env.Store().GetRecordState("client:4:friends:3")).Should(Equal(store.Unknown))
		Expect(env.Store().GetConnectionIDsForRecord("3")).Should(BeEmpty())
		Expect(env.Store().GetConnectionIDsForRecord("5")).Should(Equal([]store.DataID{connectionID}))
		Expect(env.Lookup(friendsSelector).IsMissingData).Should(BeFalse())
		Expect(second.Status()).Should(Equal(store.MutationUncommitted))

		second.Dispose()
		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:1", "client:4:friends:2"}))
		Expect(env.Lookup(friendsSelector).IsMissingData).Should(BeFalse())
	})

	It("keeps optimistic edges on top of committed changes to the connection", func() {
		m, err := env.ApplyMutation(optimisticAdd("3"))
		Expect(err).ShouldNot(HaveOccurred())

		Expect(env.CommitUpdate(func(writer *store.RecordWriter) error {
			return writer.ApplyRangeUpdate(connectionID, "client:4:friends:1", store.RangeRemove)
		})).Should(Succeed())
		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:3", "client:4:friends:2"}))

		m.Dispose()
		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:2"}))
	})

	It("adds the edge returned by the server", func() {
		net.respond(network.FromPayloads(&network.Payload{Data: addFriendResponse}))
		m, err := env.SendMutation(context.Background(), environment.MutationConfig{
			Operation: addFriend,
			Variables: document.Variables{"input": map[string]interface{}{"friendId": "3"}},
			Configs:   rangeAdd,
		})
		Expect(err).ShouldNot(HaveOccurred())
		Expect(m.Status()).Should(Equal(store.MutationCommitted))

		Expect(edges()).Should(Equal([]store.DataID{
			"client:4:friends:3",
			"client:4:friends:1",
			"client:4:friends:2",
		}))
		cursor, _ := env.Store().GetField("client:4:friends:3", store.CursorKey)
		Expect(cursor).Should(Equal("c3"))
	})

	It("removes deleted nodes from the connection", func() {
		net.respond(network.FromPayloads(&network.Payload{Data: removeFriendResponse("1")}))
		_, err := env.SendMutation(context.Background(), environment.MutationConfig{
			Operation: removeFriend,
			Variables: document.Variables{"input": map[string]interface{}{"friendId": "1"}},
			Configs: []environment.DeclarativeConfig{
				&environment.RangeDelete{
					ParentID:           "4",
					ConnectionName:     "friends",
					DeletedIDFieldName: "deletedFriendId",
				},
			},
		})
		Expect(err).ShouldNot(HaveOccurred())

		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:2"}))
		Expect(env.Store().GetRecordState("1")).Should(Equal(store.Existent))
	})

	It("deletes nodes", func() {
		net.respond(network.FromPayloads(&network.Payload{Data: removeFriendResponse("2")}))
		_, err := env.SendMutation(context.Background(), environment.MutationConfig{
			Operation: removeFriend,
			Variables: document.Variables{"input": map[string]interface{}{"friendId": "2"}},
			Configs: []environment.DeclarativeConfig{
				&environment.NodeDelete{DeletedIDFieldName: "deletedFriendId"},
			},
		})
		Expect(err).ShouldNot(HaveOccurred())

		Expect(edges()).Should(Equal([]store.DataID{"client:4:friends:1"}))
		Expect(env.Store().GetRecordState("2")).Should(Equal(store.Nonexistent))
	})
})
