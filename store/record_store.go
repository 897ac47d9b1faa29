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

package store

import (
	"math"
	"sort"

	"github.com/botobag/relay/document"

	"github.com/sirupsen/logrus"
)

// RecordStore is the layered view over the committed records (base), the records restored from a
// persisted cache (cached) and the optimistic layers. Reads resolve each field from the newest
// optimistic layer defining it, then the cached layer, then the base layer.
//
// RecordStore is not safe for concurrent use. The owner (usually an Environment) serializes
// access.
type RecordStore struct {
	base            *RecordSource
	cached          *RecordSource
	baseRootCalls   *RootCallMap
	cachedRootCalls *RootCallMap
	overlay         *Overlay

	// nodeConnections maps a node to the connections whose ranges have an edge to it.
	nodeConnections map[DataID]DataIDSet

	logger logrus.FieldLogger
}

// RecordStoreConfig specifies options for NewRecordStore.
type RecordStoreConfig struct {
	// Base holds the committed records. An empty source is used if nil.
	Base *RecordSource

	// Cached holds records restored from a persisted cache. An empty source is used if nil.
	Cached *RecordSource

	// BaseRootCalls and CachedRootCalls are the root-call indices of the two layers.
	BaseRootCalls   *RootCallMap
	CachedRootCalls *RootCallMap

	// Logger receives warnings. Default to logrus.StandardLogger().
	Logger logrus.FieldLogger
}

// NewRecordStore creates a RecordStore.
func NewRecordStore(config RecordStoreConfig) *RecordStore {
	s := &RecordStore{
		base:            config.Base,
		cached:          config.Cached,
		baseRootCalls:   config.BaseRootCalls,
		cachedRootCalls: config.CachedRootCalls,
		overlay:         NewOverlay(),
		nodeConnections: map[DataID]DataIDSet{},
		logger:          config.Logger,
	}
	if s.base == nil {
		s.base = NewRecordSource()
	}
	if s.cached == nil {
		s.cached = NewRecordSource()
	}
	if s.baseRootCalls == nil {
		s.baseRootCalls = NewRootCallMap()
	}
	if s.cachedRootCalls == nil {
		s.cachedRootCalls = NewRootCallMap()
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.ReindexConnections()
	return s
}

// Base returns the source of committed records.
func (s *RecordStore) Base() *RecordSource {
	return s.base
}

// Cached returns the source of records restored from a persisted cache.
func (s *RecordStore) Cached() *RecordSource {
	return s.cached
}

// BaseRootCalls returns the committed root-call index.
func (s *RecordStore) BaseRootCalls() *RootCallMap {
	return s.baseRootCalls
}

// CachedRootCalls returns the root-call index restored from a persisted cache.
func (s *RecordStore) CachedRootCalls() *RootCallMap {
	return s.cachedRootCalls
}

// Overlay returns the optimistic layers.
func (s *RecordStore) Overlay() *Overlay {
	return s.overlay
}

// Logger returns the logger of the store.
func (s *RecordStore) Logger() logrus.FieldLogger {
	return s.logger
}

// MergeCached adds records and root calls restored from a persisted cache. Entries already known to
// the base layer are skipped so restored data never shadows committed data.
func (s *RecordStore) MergeCached(source *RecordSource, rootCalls *RootCallMap) {
	if source != nil {
		iter := source.Iterator()
		for {
			id, record, state, err := iter.Next()
			if err != nil {
				break
			}
			if s.base.Has(id) {
				continue
			}
			switch state {
			case Existent:
				s.cached.Set(record)
			case Nonexistent:
				s.cached.Delete(id)
			default:
				s.cached.MarkUnknown(id)
			}
		}
	}
	if rootCalls != nil {
		for _, call := range rootCalls.Entries() {
			if _, exists := s.baseRootCalls.Get(call.Name, call.Arg); !exists {
				s.cachedRootCalls.Put(call.Name, call.Arg, call.ID)
			}
		}
	}
	s.ReindexConnections()
}

//===----------------------------------------------------------------------------------------====//
// Layered lookups
//===----------------------------------------------------------------------------------------====//

// sources returns the sources to consult, highest priority first.
func (s *RecordStore) sources(includeLayers bool) []*RecordSource {
	var layers []*Layer
	if includeLayers {
		layers = s.overlay.layers
	}
	sources := make([]*RecordSource, 0, len(layers)+2)
	for i := len(layers) - 1; i >= 0; i-- {
		sources = append(sources, layers[i].source)
	}
	return append(sources, s.cached, s.base)
}

// sourcesUnder returns the sources visible from top: top itself and the layers pushed before it,
// then the cached and base sources. Layers pushed after top are ignored.
func (s *RecordStore) sourcesUnder(top *Layer) []*RecordSource {
	layers := s.overlay.layers
	sources := make([]*RecordSource, 0, len(layers)+2)
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].seq <= top.seq {
			sources = append(sources, layers[i].source)
		}
	}
	return append(sources, s.cached, s.base)
}

func recordStateIn(sources []*RecordSource, id DataID) RecordState {
	for _, source := range sources {
		if state := source.State(id); state != Unknown {
			return state
		}
	}
	return Unknown
}

func typeIn(sources []*RecordSource, id DataID) string {
	for _, source := range sources {
		record, state := source.Get(id)
		if state == Nonexistent {
			return ""
		}
		if state == Existent && len(record.TypeName()) > 0 {
			return record.TypeName()
		}
	}
	return ""
}

func fieldIn(sources []*RecordSource, id DataID, key string) (interface{}, bool) {
	for _, source := range sources {
		record, state := source.Get(id)
		if state == Nonexistent {
			return nil, false
		}
		if state == Existent {
			if value, ok := record.Get(key); ok {
				if _, deleted := value.(fieldTombstone); deleted {
					return nil, false
				}
				return value, true
			}
		}
	}
	return nil, false
}

// GetRecordState returns whether the record exists.
func (s *RecordStore) GetRecordState(id DataID) RecordState {
	return recordStateIn(s.sources(true), id)
}

// GetType returns the concrete type of the record, or "" if unknown.
func (s *RecordStore) GetType(id DataID) string {
	return typeIn(s.sources(true), id)
}

// GetField returns the value of a field. The second return value is false if the field is
// undefined in every layer (or the record doesn't exist).
func (s *RecordStore) GetField(id DataID, key string) (interface{}, bool) {
	return fieldIn(s.sources(true), id, key)
}

// GetLinkedRecordID returns the id of the record linked by a field, or "" for a null link. The
// second return value is false if the field is undefined or not a singular link.
func (s *RecordStore) GetLinkedRecordID(id DataID, key string) (DataID, bool) {
	value, ok := s.GetField(id, key)
	if !ok {
		return "", false
	}
	switch value := value.(type) {
	case nil:
		return "", true
	case Link:
		return value.ID, true
	}
	return "", false
}

// GetLinkedRecordIDs returns the ids of the records linked by a plural field, or nil for a null
// list. The second return value is false if the field is undefined or not a plural link.
func (s *RecordStore) GetLinkedRecordIDs(id DataID, key string) (Links, bool) {
	value, ok := s.GetField(id, key)
	if !ok {
		return nil, false
	}
	switch value := value.(type) {
	case nil:
		return nil, true
	case Links:
		return value, true
	}
	return nil, false
}

// GetRange returns the Range of a connection record, or nil.
func (s *RecordStore) GetRange(connectionID DataID) *Range {
	value, ok := s.GetField(connectionID, RangeKey)
	if !ok {
		return nil
	}
	r, _ := value.(*Range)
	return r
}

// HasRange returns true if the record is a connection with a Range.
func (s *RecordStore) HasRange(connectionID DataID) bool {
	return s.GetRange(connectionID) != nil
}

// GetRangeMetadata looks up a page of a connection. The second return value is false if the
// record has no Range.
func (s *RecordStore) GetRangeMetadata(connectionID DataID, calls []document.Call) (RangeInfo, bool) {
	r := s.GetRange(connectionID)
	if r == nil {
		return RangeInfo{}, false
	}
	return r.RetrieveRangeInfo(calls), true
}

// GetDataID resolves a root call through the optimistic layers, the cached index and the base
// index.
func (s *RecordStore) GetDataID(name string, arg string) (DataID, bool) {
	return s.dataIDUnder(math.MaxUint64, name, arg)
}

// dataIDUnder resolves a root call ignoring the layers whose sequence number exceeds maxSeq.
func (s *RecordStore) dataIDUnder(maxSeq uint64, name string, arg string) (DataID, bool) {
	layers := s.overlay.layers
	for i := len(layers) - 1; i >= 0; i-- {
		if layers[i].seq > maxSeq {
			continue
		}
		if id, ok := layers[i].rootCalls.Get(name, arg); ok {
			return id, true
		}
	}
	if id, ok := s.cachedRootCalls.Get(name, arg); ok {
		return id, true
	}
	return s.baseRootCalls.Get(name, arg)
}

// GetConnectionIDsForRecord returns the connections having an edge to the node, sorted.
func (s *RecordStore) GetConnectionIDsForRecord(nodeID DataID) []DataID {
	connections, ok := s.nodeConnections[nodeID]
	if !ok {
		return nil
	}
	return connections.Sorted()
}

// GetConnectionIDsForField returns the connections stored under fieldName of the record (one per
// distinct set of filter calls), sorted.
func (s *RecordStore) GetConnectionIDsForField(parentID DataID, fieldName string) []DataID {
	set := DataIDSet{}
	for _, source := range s.sources(true) {
		for _, id := range source.IDs() {
			record, state := source.Get(id)
			if state != Existent {
				continue
			}
			if value, ok := record.Get(RangeKey); ok {
				if r, ok := value.(*Range); ok {
					if owner, field := r.Owner(); owner == parentID && field == fieldName {
						set.Add(id)
					}
				}
			}
		}
	}
	return set.Sorted()
}

// GetRecordStatus returns the optimistic status of the record.
func (s *RecordStore) GetRecordStatus(id DataID) RecordStatus {
	layers := s.overlay.layers
	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		if !layer.source.Has(id) {
			continue
		}
		status := StatusOptimistic | RecordStatus(layer.seq<<statusSeqShift)
		if layer.status == MutationCommitting {
			status |= StatusCommitting
		}
		return status
	}
	return 0
}

// HasOptimisticUpdate returns true if any optimistic layer has written the record.
func (s *RecordStore) HasOptimisticUpdate(id DataID) bool {
	return s.GetRecordStatus(id).IsOptimistic()
}

// GetClientMutationIDs returns the ids of the mutations whose layers have written the record,
// oldest first.
func (s *RecordStore) GetClientMutationIDs(id DataID) []string {
	var ids []string
	for _, layer := range s.overlay.layers {
		if layer.source.Has(id) && len(layer.clientMutationID) > 0 {
			ids = append(ids, layer.clientMutationID)
		}
	}
	return ids
}

//===----------------------------------------------------------------------------------------====//
// Connection index
//===----------------------------------------------------------------------------------------====//

func (s *RecordStore) indexEdge(connectionID DataID, edgeID DataID) {
	nodeID, ok := s.GetLinkedRecordID(edgeID, NodeKey)
	if !ok || len(nodeID) == 0 {
		return
	}
	connections, ok := s.nodeConnections[nodeID]
	if !ok {
		connections = DataIDSet{}
		s.nodeConnections[nodeID] = connections
	}
	connections.Add(connectionID)
}

func (s *RecordStore) unindexNode(nodeID DataID, connectionID DataID) {
	if connections, ok := s.nodeConnections[nodeID]; ok {
		delete(connections, connectionID)
		if len(connections) == 0 {
			delete(s.nodeConnections, nodeID)
		}
	}
}

// ReindexConnections rebuilds the node to connections index from the ranges of every layer.
func (s *RecordStore) ReindexConnections() {
	s.nodeConnections = map[DataID]DataIDSet{}
	seen := DataIDSet{}
	for _, source := range s.sources(true) {
		for _, id := range source.IDs() {
			if seen.Has(id) {
				continue
			}
			seen.Add(id)
			r := s.GetRange(id)
			if r == nil {
				continue
			}
			for _, edgeID := range r.EdgeIDs() {
				s.indexEdge(id, edgeID)
			}
		}
	}
}

// edgesToNode returns the edges of the range whose node is nodeID.
func (s *RecordStore) edgesToNode(r *Range, nodeID DataID) []DataID {
	var edges []DataID
	for _, edgeID := range r.EdgeIDs() {
		if node, ok := s.GetLinkedRecordID(edgeID, NodeKey); ok && node == nodeID {
			edges = append(edges, edgeID)
		}
	}
	sort.Strings(edges)
	return edges
}
