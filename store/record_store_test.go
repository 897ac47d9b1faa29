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

package store_test

import (
	"fmt"

	"github.com/botobag/relay/graphql"
	"github.com/botobag/relay/iterator"
	"github.com/botobag/relay/store"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type recordingCacheWriter struct {
	events []string
}

func (w *recordingCacheWriter) WriteNode(id store.DataID, record *store.Record) {
	if record == nil {
		w.events = append(w.events, fmt.Sprintf("node %s deleted", id))
	} else {
		w.events = append(w.events, fmt.Sprintf("node %s %s", id, record.TypeName()))
	}
}

func (w *recordingCacheWriter) WriteField(id store.DataID, key string, value interface{}, typeName string) {
	w.events = append(w.events, fmt.Sprintf("field %s.%s=%v", id, key, value))
}

func (w *recordingCacheWriter) DeleteField(id store.DataID, key string) {
	w.events = append(w.events, fmt.Sprintf("field %s.%s deleted", id, key))
}

func (w *recordingCacheWriter) WriteRootCall(name string, arg string, id store.DataID) {
	w.events = append(w.events, fmt.Sprintf("root %s(%s)=%s", name, arg, id))
}

var _ = Describe("RecordStore", func() {
	var (
		s *store.RecordStore
		w *store.RecordWriter
	)

	BeforeEach(func() {
		s = store.NewRecordStore(store.RecordStoreConfig{})
		w = s.NewBaseWriter(nil)
	})

	It("reports unknown records", func() {
		Expect(s.GetRecordState("123")).Should(Equal(store.Unknown))
		_, ok := s.GetField("123", "name")
		Expect(ok).Should(BeFalse())
	})

	It("creates records and writes fields", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutField("123", "name", "Joe")).Should(Succeed())

		Expect(s.GetRecordState("123")).Should(Equal(store.Existent))
		Expect(s.GetType("123")).Should(Equal("User"))

		value, ok := s.GetField("123", "name")
		Expect(ok).Should(BeTrue())
		Expect(value).Should(Equal("Joe"))

		Expect(w.Created().Has("123")).Should(BeTrue())
		Expect(w.Updated()).Should(BeEmpty())
	})

	It("fails to write fields of a missing record", func() {
		err := w.PutField("123", "name", "Joe")
		Expect(err).Should(HaveOccurred())
		Expect(graphql.IsKind(err, graphql.ErrKindInvariant)).Should(BeTrue())
		Expect(err.Error()).Should(ContainSubstring("store.PutField"))
	})

	It("refuses to change the type of a record", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutRecord("123", "User")).Should(Succeed())

		err := w.PutRecord("123", "Page")
		Expect(graphql.IsKind(err, graphql.ErrKindInvariant)).Should(BeTrue())
		Expect(s.GetType("123")).Should(Equal("User"))
	})

	It("sets the type of a record whose type is unknown", func() {
		Expect(w.PutRecord("123", "")).Should(Succeed())
		Expect(s.GetType("123")).Should(BeEmpty())

		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(s.GetType("123")).Should(Equal("User"))
	})

	It("only reports real changes", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutField("123", "name", "Joe")).Should(Succeed())
		Expect(w.PutField("123", "count", float64(1))).Should(Succeed())

		second := s.NewBaseWriter(nil)
		Expect(second.PutRecord("123", "User")).Should(Succeed())
		Expect(second.PutField("123", "name", "Joe")).Should(Succeed())
		Expect(second.PutField("123", "count", 1)).Should(Succeed())
		Expect(second.Created()).Should(BeEmpty())
		Expect(second.Updated()).Should(BeEmpty())

		Expect(second.PutField("123", "name", "Jane")).Should(Succeed())
		Expect(second.Updated().Has("123")).Should(BeTrue())
	})

	It("links records", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutRecord("456", "User")).Should(Succeed())

		Expect(w.PutLinkedRecordID("123", "bestFriend", "456")).Should(Succeed())
		id, ok := s.GetLinkedRecordID("123", "bestFriend")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(Equal("456"))

		Expect(w.PutLinkedRecordIDs("123", "friends", store.Links{"456", ""})).Should(Succeed())
		ids, ok := s.GetLinkedRecordIDs("123", "friends")
		Expect(ok).Should(BeTrue())
		Expect(ids).Should(Equal(store.Links{"456", ""}))

		err := w.PutLinkedRecordID("123", "enemy", "789")
		Expect(graphql.IsKind(err, graphql.ErrKindInvariant)).Should(BeTrue())
	})

	It("writes null links", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutLinkedRecordID("123", "bestFriend", "")).Should(Succeed())

		id, ok := s.GetLinkedRecordID("123", "bestFriend")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(BeEmpty())
	})

	It("deletes records and fields", func() {
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutField("123", "name", "Joe")).Should(Succeed())
		Expect(w.PutField("123", "age", 30)).Should(Succeed())

		Expect(w.DeleteField("123", "age")).Should(Succeed())
		_, ok := s.GetField("123", "age")
		Expect(ok).Should(BeFalse())

		Expect(w.DeleteRecord("123")).Should(Succeed())
		Expect(s.GetRecordState("123")).Should(Equal(store.Nonexistent))
		_, ok = s.GetField("123", "name")
		Expect(ok).Should(BeFalse())
	})

	It("maps root calls to records", func() {
		Expect(w.PutRecord("1055790163", "User")).Should(Succeed())
		Expect(w.PutDataID("username", "yuzhi", "1055790163")).Should(Succeed())
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutDataID("username", "yuzhi", "123")).Should(Succeed())

		id, ok := s.GetDataID("username", "yuzhi")
		Expect(ok).Should(BeTrue())
		Expect(id).Should(Equal("123"))
		Expect(s.GetRecordState("1055790163")).Should(Equal(store.Existent))
	})

	It("iterates records in id order", func() {
		Expect(w.PutRecord("b", "User")).Should(Succeed())
		Expect(w.PutRecord("a", "User")).Should(Succeed())
		Expect(w.DeleteRecord("c")).Should(Succeed())

		var ids []string
		var states []store.RecordState
		iter := s.Base().Iterator()
		for {
			id, _, state, err := iter.Next()
			if err == iterator.Done {
				break
			}
			Expect(err).ShouldNot(HaveOccurred())
			ids = append(ids, id)
			states = append(states, state)
		}
		Expect(ids).Should(Equal([]string{"a", "b", "c"}))
		Expect(states).Should(Equal([]store.RecordState{store.Existent, store.Existent, store.Nonexistent}))
	})

	Context("with a cached layer", func() {
		BeforeEach(func() {
			cached := store.NewRecordSource()
			record := store.NewRecord("123", "User")
			record.Set("name", "Cached")
			record.Set("age", 30)
			cached.Set(record)
			cached.MarkUnknown("999")

			rootCalls := store.NewRootCallMap()
			rootCalls.Put("me", "", "123")

			s = store.NewRecordStore(store.RecordStoreConfig{
				Cached:          cached,
				CachedRootCalls: rootCalls,
			})
			w = s.NewBaseWriter(nil)
		})

		It("reads through the cached layer", func() {
			Expect(s.GetRecordState("123")).Should(Equal(store.Existent))
			value, ok := s.GetField("123", "name")
			Expect(ok).Should(BeTrue())
			Expect(value).Should(Equal("Cached"))

			id, ok := s.GetDataID("me", "")
			Expect(ok).Should(BeTrue())
			Expect(id).Should(Equal("123"))
		})

		It("moves records written by the base layer out of the cached layer", func() {
			Expect(w.PutField("123", "name", "Fresh")).Should(Succeed())

			Expect(s.Cached().Has("123")).Should(BeFalse())
			Expect(s.Base().Has("123")).Should(BeTrue())

			value, _ := s.GetField("123", "name")
			Expect(value).Should(Equal("Fresh"))
			value, _ = s.GetField("123", "age")
			Expect(value).Should(Equal(30))
		})

		It("keeps explicit unknown entries", func() {
			Expect(s.Cached().Has("999")).Should(BeTrue())
			Expect(s.GetRecordState("999")).Should(Equal(store.Unknown))
		})
	})

	Context("with optimistic layers", func() {
		BeforeEach(func() {
			Expect(w.PutRecord("123", "User")).Should(Succeed())
			Expect(w.PutField("123", "name", "Joe")).Should(Succeed())
		})

		It("prefers the newest layer and peels layers independently", func() {
			first := s.Overlay().Push("m1")
			Expect(s.NewLayerWriter(first).PutField("123", "name", "A")).Should(Succeed())
			second := s.Overlay().Push("m2")
			Expect(s.NewLayerWriter(second).PutField("123", "name", "B")).Should(Succeed())

			value, _ := s.GetField("123", "name")
			Expect(value).Should(Equal("B"))

			status := s.GetRecordStatus("123")
			Expect(status.IsOptimistic()).Should(BeTrue())
			Expect(status.Seq()).Should(Equal(second.Seq()))
			Expect(s.GetClientMutationIDs("123")).Should(Equal([]string{"m1", "m2"}))

			Expect(s.Overlay().Remove(first.Seq())).Should(Equal(first))
			value, _ = s.GetField("123", "name")
			Expect(value).Should(Equal("B"))

			Expect(s.Overlay().Remove(second.Seq())).Should(Equal(second))
			value, _ = s.GetField("123", "name")
			Expect(value).Should(Equal("Joe"))
			Expect(s.HasOptimisticUpdate("123")).Should(BeFalse())
		})

		It("never writes optimistic records to the base layer", func() {
			layer := s.Overlay().Push("m1")
			lw := s.NewLayerWriter(layer)
			Expect(lw.PutRecord("456", "User")).Should(Succeed())
			Expect(lw.PutLinkedRecordID("123", "bestFriend", "456")).Should(Succeed())

			Expect(s.Base().Has("456")).Should(BeFalse())
			Expect(s.GetRecordState("456")).Should(Equal(store.Existent))
			Expect(s.GetType("123")).Should(Equal("User"))

			s.Overlay().Remove(layer.Seq())
			Expect(s.GetRecordState("456")).Should(Equal(store.Unknown))
			_, ok := s.GetLinkedRecordID("123", "bestFriend")
			Expect(ok).Should(BeFalse())
		})

		It("deletes fields and records optimistically", func() {
			layer := s.Overlay().Push("m1")
			lw := s.NewLayerWriter(layer)
			Expect(lw.DeleteField("123", "name")).Should(Succeed())
			_, ok := s.GetField("123", "name")
			Expect(ok).Should(BeFalse())

			Expect(lw.DeleteRecord("123")).Should(Succeed())
			Expect(s.GetRecordState("123")).Should(Equal(store.Nonexistent))

			s.Overlay().Remove(layer.Seq())
			value, _ := s.GetField("123", "name")
			Expect(value).Should(Equal("Joe"))
		})

		It("writes a layer against the layers pushed before it", func() {
			first := s.Overlay().Push("m1")
			second := s.Overlay().Push("m2")
			Expect(s.NewLayerWriter(second).PutField("123", "name", "B")).Should(Succeed())
			Expect(s.NewLayerWriter(second).PutDataID("username", "joe", "123")).Should(Succeed())

			lw := s.NewLayerWriter(first)
			value, _ := lw.GetField("123", "name")
			Expect(value).Should(Equal("Joe"))
			_, ok := lw.GetDataID("username", "joe")
			Expect(ok).Should(BeFalse())

			value, _ = s.NewLayerWriter(second).GetField("123", "name")
			Expect(value).Should(Equal("B"))
		})

		It("resets a layer", func() {
			layer := s.Overlay().Push("m1")
			lw := s.NewLayerWriter(layer)
			Expect(lw.PutRecord("456", "User")).Should(Succeed())
			Expect(lw.PutDataID("username", "joe", "456")).Should(Succeed())

			layer.Reset()
			Expect(layer.Source().Size()).Should(Equal(0))
			Expect(s.GetRecordState("456")).Should(Equal(store.Unknown))
			_, ok := s.GetDataID("username", "joe")
			Expect(ok).Should(BeFalse())
			Expect(s.Overlay().Len()).Should(Equal(1))
		})

		It("reports committing layers", func() {
			layer := s.Overlay().Push("m1")
			Expect(s.NewLayerWriter(layer).PutField("123", "name", "A")).Should(Succeed())
			Expect(s.GetRecordStatus("123").IsCommitting()).Should(BeFalse())

			layer.SetStatus(store.MutationCommitting)
			Expect(s.GetRecordStatus("123").IsCommitting()).Should(BeTrue())
		})
	})

	It("mirrors base writes to the cache writer", func() {
		cacheWriter := &recordingCacheWriter{}
		w = s.NewBaseWriter(cacheWriter)
		Expect(w.PutRecord("123", "User")).Should(Succeed())
		Expect(w.PutField("123", "name", "Joe")).Should(Succeed())
		Expect(w.PutField("123", "name", "Joe")).Should(Succeed())
		Expect(w.PutDataID("me", "", "123")).Should(Succeed())
		Expect(w.DeleteField("123", "name")).Should(Succeed())
		Expect(w.DeleteRecord("123")).Should(Succeed())

		layer := s.Overlay().Push("m1")
		Expect(s.NewLayerWriter(layer).PutRecord("456", "User")).Should(Succeed())

		Expect(cacheWriter.events).Should(Equal([]string{
			"node 123 User",
			"field 123.name=Joe",
			"root me()=123",
			"field 123.name deleted",
			"node 123 deleted",
		}))
	})
})
