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

// MutationStatus is the state of a mutation owning an optimistic layer.
type MutationStatus uint8

// Enumeration of MutationStatus
const (
	// MutationUncommitted means the optimistic data was applied but no request was sent.
	MutationUncommitted MutationStatus = iota

	// MutationCommitting means the request was sent and its response is pending.
	MutationCommitting

	// MutationCommitted means the server response was written to the base layer.
	MutationCommitted

	// MutationRolledBack means the optimistic data was discarded.
	MutationRolledBack
)

func (status MutationStatus) String() string {
	switch status {
	case MutationUncommitted:
		return "UNCOMMITTED"
	case MutationCommitting:
		return "COMMITTING"
	case MutationCommitted:
		return "COMMITTED"
	case MutationRolledBack:
		return "ROLLED_BACK"
	}
	return "INVALID"
}

// RecordStatus is a bitmask describing the optimistic state of a record. The low bits are flags;
// the sequence number of the newest layer that wrote the record is stored above statusSeqShift.
type RecordStatus uint64

// Flags of RecordStatus
const (
	// StatusOptimistic is set when an optimistic layer has written the record.
	StatusOptimistic RecordStatus = 1 << iota

	// StatusCommitting is set when the newest layer writing the record belongs to a mutation whose
	// request is in flight.
	StatusCommitting
)

const statusSeqShift = 8

// IsOptimistic returns true if StatusOptimistic is set.
func (status RecordStatus) IsOptimistic() bool {
	return status&StatusOptimistic != 0
}

// IsCommitting returns true if StatusCommitting is set.
func (status RecordStatus) IsCommitting() bool {
	return status&StatusCommitting != 0
}

// Seq returns the sequence number of the newest layer that wrote the record.
func (status RecordStatus) Seq() uint64 {
	return uint64(status) >> statusSeqShift
}

// Layer holds the records written by one optimistic mutation. Records in a layer are partial:
// they contain only the fields the mutation wrote.
type Layer struct {
	seq              uint64
	clientMutationID string
	status           MutationStatus
	source           *RecordSource
	rootCalls        *RootCallMap
}

// Seq returns the sequence number of the layer. Later layers have larger numbers.
func (layer *Layer) Seq() uint64 {
	return layer.seq
}

// ClientMutationID returns the id of the mutation owning the layer.
func (layer *Layer) ClientMutationID() string {
	return layer.clientMutationID
}

// Status returns the status of the mutation owning the layer.
func (layer *Layer) Status() MutationStatus {
	return layer.status
}

// SetStatus updates the status of the mutation owning the layer.
func (layer *Layer) SetStatus(status MutationStatus) {
	layer.status = status
}

// Reset drops the records and root calls written to the layer so that its mutation can write them
// again on top of the current lower layers.
func (layer *Layer) Reset() {
	layer.source = NewRecordSource()
	layer.rootCalls = NewRootCallMap()
}

// Source returns the records of the layer.
func (layer *Layer) Source() *RecordSource {
	return layer.source
}

// Overlay is the ordered stack of optimistic layers on top of the committed data.
type Overlay struct {
	layers  []*Layer
	nextSeq uint64
}

// NewOverlay creates an empty Overlay.
func NewOverlay() *Overlay {
	return &Overlay{
		nextSeq: 1,
	}
}

// Push adds a layer on top of the stack.
func (overlay *Overlay) Push(clientMutationID string) *Layer {
	layer := &Layer{
		seq:              overlay.nextSeq,
		clientMutationID: clientMutationID,
		status:           MutationUncommitted,
		source:           NewRecordSource(),
		rootCalls:        NewRootCallMap(),
	}
	overlay.nextSeq++
	overlay.layers = append(overlay.layers, layer)
	return layer
}

// Get returns the layer with the given sequence number, or nil.
func (overlay *Overlay) Get(seq uint64) *Layer {
	for _, layer := range overlay.layers {
		if layer.seq == seq {
			return layer
		}
	}
	return nil
}

// Remove takes the layer with the given sequence number out of the stack, wherever it is. Layers
// above it are kept. It returns the removed layer, or nil.
func (overlay *Overlay) Remove(seq uint64) *Layer {
	for i, layer := range overlay.layers {
		if layer.seq == seq {
			layers := make([]*Layer, 0, len(overlay.layers)-1)
			layers = append(layers, overlay.layers[:i]...)
			overlay.layers = append(layers, overlay.layers[i+1:]...)
			return layer
		}
	}
	return nil
}

// Layers returns the layers, oldest first.
func (overlay *Overlay) Layers() []*Layer {
	layers := make([]*Layer, len(overlay.layers))
	copy(layers, overlay.layers)
	return layers
}

// Len returns the number of layers.
func (overlay *Overlay) Len() int {
	return len(overlay.layers)
}
