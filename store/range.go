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
	"github.com/botobag/relay/document"
)

// Field names of the connection shape.
const (
	EdgesKey           = "edges"
	NodeKey            = "node"
	CursorKey          = "cursor"
	PageInfoKey        = "pageInfo"
	HasNextPageKey     = "hasNextPage"
	HasPreviousPageKey = "hasPreviousPage"
	StartCursorKey     = "startCursor"
	EndCursorKey       = "endCursor"
)

// PageInfo describes the boundaries of a page of a connection. Cursors are "" when unknown.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     string
	EndCursor       string
}

// RangeEdge is an edge record added to a Range.
type RangeEdge struct {
	ID     DataID
	Cursor string
}

// RangeOperation is an edit applied to a Range by a mutation.
type RangeOperation uint8

// Enumeration of RangeOperation
const (
	RangeAppend RangeOperation = iota
	RangePrepend
	RangeRemove
)

func (op RangeOperation) String() string {
	switch op {
	case RangeAppend:
		return "APPEND"
	case RangePrepend:
		return "PREPEND"
	case RangeRemove:
		return "REMOVE"
	}
	return "INVALID"
}

// RangeInfo is the result of looking up a page in a Range.
type RangeInfo struct {
	// RequestedEdgeIDs contains the ids of the edge records of the page that are known.
	RequestedEdgeIDs []DataID

	// DiffCalls are the calls (filter calls included) to fetch the part of the page that is not
	// known. It is empty when the whole page is in the range.
	DiffCalls []document.Call

	// FilterCalls are the non-pagination arguments of the connection.
	FilterCalls []document.Call

	// PageInfo is derived from RequestedEdgeIDs and what the range knows about both ends.
	PageInfo PageInfo
}

// Range keeps the ordered edges of a connection as it is fetched page by page. It holds up to two
// contiguous segments: the head, starting at the first edge of the connection, and the tail,
// ending at its last edge. When the two meet (or a page says there is nothing more on its side)
// the range is complete and the head holds the whole list.
type Range struct {
	// parentID and fieldName locate the connection field holding the range.
	parentID    DataID
	fieldName   string
	filterCalls []document.Call

	head []DataID
	tail []DataID

	// headAnchored is set once the head is known to start at the first edge (even when empty).
	headAnchored bool
	// tailAnchored is set once the tail is known to end at the last edge.
	tailAnchored bool
	complete     bool

	cursors    map[DataID]string
	forceIndex int
}

// NewRange creates an empty range for a connection with the given filter calls.
func NewRange(filterCalls []document.Call) *Range {
	return &Range{
		filterCalls: filterCalls,
		cursors:     map[DataID]string{},
	}
}

// Owner returns the record and the name of the connection field holding the range.
func (r *Range) Owner() (DataID, string) {
	return r.parentID, r.fieldName
}

// FilterCalls returns the non-pagination arguments of the connection.
func (r *Range) FilterCalls() []document.Call {
	return r.filterCalls
}

// ForceIndex returns a counter that increments on every change to the range. It is kept with the
// persisted state of the range for inspection; layers never compare it.
func (r *Range) ForceIndex() int {
	return r.forceIndex
}

// IsComplete returns true if the range holds every edge of the connection.
func (r *Range) IsComplete() bool {
	return r.complete
}

// EdgeIDs returns every edge known to the range, head first.
func (r *Range) EdgeIDs() []DataID {
	ids := make([]DataID, 0, len(r.head)+len(r.tail))
	ids = append(ids, r.head...)
	ids = append(ids, r.tail...)
	return ids
}

// Contains returns true if edgeID is in the range.
func (r *Range) Contains(edgeID DataID) bool {
	return indexOf(r.head, edgeID) >= 0 || indexOf(r.tail, edgeID) >= 0
}

// Cursor returns the cursor of the edge.
func (r *Range) Cursor(edgeID DataID) string {
	return r.cursors[edgeID]
}

// Clone returns an independent copy of the range.
func (r *Range) Clone() *Range {
	clone := &Range{
		parentID:     r.parentID,
		fieldName:    r.fieldName,
		filterCalls:  r.filterCalls,
		head:         copyIDs(r.head),
		tail:         copyIDs(r.tail),
		headAnchored: r.headAnchored,
		tailAnchored: r.tailAnchored,
		complete:     r.complete,
		cursors:      make(map[DataID]string, len(r.cursors)),
		forceIndex:   r.forceIndex,
	}
	for id, cursor := range r.cursors {
		clone.cursors[id] = cursor
	}
	return clone
}

//===----------------------------------------------------------------------------------------====//
// Lookup
//===----------------------------------------------------------------------------------------====//

// RetrieveRangeInfo looks up the page described by calls (first/after or last/before).
func (r *Range) RetrieveRangeInfo(calls []document.Call) RangeInfo {
	rangeCalls, _ := document.SplitCalls(calls)
	info := RangeInfo{
		FilterCalls: r.filterCalls,
	}

	if first, ok := document.CallInt(rangeCalls, document.CallFirst); ok {
		r.retrieveForward(&info, rangeCalls, first)
	} else if last, ok := document.CallInt(rangeCalls, document.CallLast); ok {
		r.retrieveBackward(&info, rangeCalls, last)
	} else if r.complete {
		info.RequestedEdgeIDs = copyIDs(r.head)
		info.PageInfo = r.pageInfoOf(info.RequestedEdgeIDs, false, false)
	} else {
		info.DiffCalls = r.withFilterCalls(rangeCalls)
	}

	return info
}

func (r *Range) retrieveForward(info *RangeInfo, rangeCalls []document.Call, count int) {
	after, hasAfter := document.CallString(rangeCalls, document.CallAfter)

	var (
		list       []DataID
		reachesEnd bool
		found      bool
	)
	if !hasAfter {
		if r.complete || r.headAnchored {
			list, reachesEnd, found = r.head, r.complete, true
		}
	} else if i := r.indexOfCursor(r.head, after); i >= 0 && (r.complete || r.headAnchored) {
		list, reachesEnd, found = r.head[i+1:], r.complete, true
	} else if i := r.indexOfCursor(r.tail, after); i >= 0 {
		list, reachesEnd, found = r.tail[i+1:], true, true
	}

	if !found {
		info.DiffCalls = r.withFilterCalls(rangeCalls)
		info.PageInfo.HasNextPage = true
		return
	}

	var (
		requested   []DataID
		hasNextPage bool
	)
	switch {
	case len(list) >= count:
		requested = list[:count]
		hasNextPage = len(list) > count || !reachesEnd

	case reachesEnd:
		requested = list

	default:
		requested = list
		hasNextPage = true

		cursor := after
		if len(list) > 0 {
			cursor = r.cursors[list[len(list)-1]]
		}
		if len(list) > 0 && len(cursor) == 0 {
			info.DiffCalls = r.withFilterCalls(rangeCalls)
		} else {
			diff := []document.Call{{Name: document.CallFirst, Value: count - len(list)}}
			if len(cursor) > 0 {
				diff = append(diff, document.Call{Name: document.CallAfter, Value: cursor})
			}
			info.DiffCalls = r.withFilterCalls(diff)
		}
	}

	info.RequestedEdgeIDs = copyIDs(requested)
	info.PageInfo = r.pageInfoOf(info.RequestedEdgeIDs, hasNextPage, false)
}

func (r *Range) retrieveBackward(info *RangeInfo, rangeCalls []document.Call, count int) {
	before, hasBefore := document.CallString(rangeCalls, document.CallBefore)

	endList, endAnchored := r.tail, r.tailAnchored
	if r.complete {
		endList, endAnchored = r.head, true
	}

	var (
		list         []DataID
		reachesStart bool
		found        bool
	)
	if !hasBefore {
		if endAnchored {
			list, reachesStart, found = endList, r.complete, true
		}
	} else if i := r.indexOfCursor(endList, before); i >= 0 && endAnchored {
		list, reachesStart, found = endList[:i], r.complete, true
	} else if !r.complete && r.headAnchored {
		if i := r.indexOfCursor(r.head, before); i >= 0 {
			list, reachesStart, found = r.head[:i], true, true
		}
	}

	if !found {
		info.DiffCalls = r.withFilterCalls(rangeCalls)
		info.PageInfo.HasPreviousPage = true
		return
	}

	var (
		requested       []DataID
		hasPreviousPage bool
	)
	switch {
	case len(list) >= count:
		requested = list[len(list)-count:]
		hasPreviousPage = len(list) > count || !reachesStart

	case reachesStart:
		requested = list

	default:
		requested = list
		hasPreviousPage = true

		cursor := before
		if len(list) > 0 {
			cursor = r.cursors[list[0]]
		}
		if len(list) > 0 && len(cursor) == 0 {
			info.DiffCalls = r.withFilterCalls(rangeCalls)
		} else {
			diff := []document.Call{{Name: document.CallLast, Value: count - len(list)}}
			if len(cursor) > 0 {
				diff = append(diff, document.Call{Name: document.CallBefore, Value: cursor})
			}
			info.DiffCalls = r.withFilterCalls(diff)
		}
	}

	info.RequestedEdgeIDs = copyIDs(requested)
	info.PageInfo = r.pageInfoOf(info.RequestedEdgeIDs, false, hasPreviousPage)
}

func (r *Range) pageInfoOf(edgeIDs []DataID, hasNextPage bool, hasPreviousPage bool) PageInfo {
	pageInfo := PageInfo{
		HasNextPage:     hasNextPage,
		HasPreviousPage: hasPreviousPage,
	}
	if len(edgeIDs) > 0 {
		pageInfo.StartCursor = r.cursors[edgeIDs[0]]
		pageInfo.EndCursor = r.cursors[edgeIDs[len(edgeIDs)-1]]
	}
	return pageInfo
}

func (r *Range) withFilterCalls(calls []document.Call) []document.Call {
	result := make([]document.Call, 0, len(r.filterCalls)+len(calls))
	result = append(result, r.filterCalls...)
	return append(result, calls...)
}

//===----------------------------------------------------------------------------------------====//
// Updates
//===----------------------------------------------------------------------------------------====//

// AddItems merges a page fetched with calls into the range. The first result reports whether the
// range changed; the second is false if the page couldn't be placed (e.g. its "after" cursor is
// not in the range), in which case the range is left untouched.
func (r *Range) AddItems(calls []document.Call, edges []RangeEdge, pageInfo PageInfo) (bool, bool) {
	prev := r.Clone()

	ids := make([]DataID, 0, len(edges))
	seen := make(map[DataID]bool, len(edges))
	for _, edge := range edges {
		if len(edge.ID) == 0 || seen[edge.ID] {
			continue
		}
		seen[edge.ID] = true
		ids = append(ids, edge.ID)
	}

	rangeCalls, _ := document.SplitCalls(calls)
	_, hasFirst := document.CallInt(rangeCalls, document.CallFirst)
	_, hasLast := document.CallInt(rangeCalls, document.CallLast)

	var placed bool
	switch {
	case hasFirst:
		after, hasAfter := document.CallString(rangeCalls, document.CallAfter)
		placed = r.addForward(ids, after, hasAfter, pageInfo.HasNextPage)

	case hasLast:
		before, hasBefore := document.CallString(rangeCalls, document.CallBefore)
		placed = r.addBackward(ids, before, hasBefore, pageInfo.HasPreviousPage)

	default:
		r.setComplete(ids)
		placed = true
	}

	if !placed {
		return false, false
	}

	for _, edge := range edges {
		if len(edge.ID) > 0 && len(edge.Cursor) > 0 {
			r.cursors[edge.ID] = edge.Cursor
		}
	}
	r.tryJoin()

	changed := !r.sameAs(prev)
	if changed {
		r.forceIndex++
	}
	return changed, true
}

func (r *Range) addForward(ids []DataID, after string, hasAfter bool, hasNextPage bool) bool {
	if !hasAfter {
		if !hasNextPage {
			r.setComplete(ids)
			return true
		}

		var prev []DataID
		if r.complete || r.headAnchored {
			prev = r.head
		}
		list, joined := mergeForward(ids, prev)
		r.head = list
		r.headAnchored = true
		if r.complete && !joined {
			r.uncompleteHead()
		}
		return true
	}

	if r.complete || r.headAnchored {
		if i := r.indexOfCursor(r.head, after); i >= 0 {
			prefix := without(r.head[:i+1], ids)
			if !hasNextPage {
				r.setComplete(concatIDs(prefix, ids))
				return true
			}
			rest, joined := mergeForward(ids, r.head[i+1:])
			r.head = concatIDs(prefix, rest)
			if r.complete && !joined {
				r.uncompleteHead()
			}
			return true
		}
	}

	if !r.complete {
		if i := r.indexOfCursor(r.tail, after); i >= 0 {
			prefix := without(r.tail[:i+1], ids)
			if !hasNextPage {
				r.tail = concatIDs(prefix, ids)
				return true
			}
			rest, joined := mergeForward(ids, r.tail[i+1:])
			if !joined {
				return false
			}
			r.tail = concatIDs(prefix, rest)
			return true
		}
	}

	return false
}

func (r *Range) addBackward(ids []DataID, before string, hasBefore bool, hasPreviousPage bool) bool {
	if !hasBefore {
		if !hasPreviousPage {
			r.setComplete(ids)
			return true
		}

		var prev []DataID
		if r.complete {
			prev = r.head
		} else if r.tailAnchored {
			prev = r.tail
		}
		list, joined := mergeBackward(ids, prev)
		r.setEnd(list, joined)
		return true
	}

	endList, endAnchored := r.tail, r.tailAnchored
	if r.complete {
		endList, endAnchored = r.head, true
	}
	if endAnchored {
		if i := r.indexOfCursor(endList, before); i >= 0 {
			suffix := without(endList[i:], ids)
			if !hasPreviousPage {
				r.setComplete(concatIDs(ids, suffix))
				return true
			}
			prefix, joined := mergeBackward(ids, endList[:i])
			r.setEnd(concatIDs(prefix, suffix), joined)
			return true
		}
	}

	if !r.complete && r.headAnchored {
		if i := r.indexOfCursor(r.head, before); i >= 0 {
			suffix := without(r.head[i:], ids)
			if !hasPreviousPage {
				r.head = concatIDs(ids, suffix)
				return true
			}
			prefix, joined := mergeBackward(ids, r.head[:i])
			if !joined {
				return false
			}
			r.head = concatIDs(prefix, suffix)
			return true
		}
	}

	return false
}

// setEnd replaces the segment ending at the last edge.
func (r *Range) setEnd(list []DataID, joined bool) {
	if r.complete {
		if joined {
			r.head = list
			return
		}
		r.complete = false
		r.head = nil
		r.headAnchored = false
	}
	r.tail = list
	r.tailAnchored = true
}

func (r *Range) setComplete(ids []DataID) {
	r.head = copyIDs(ids)
	r.tail = nil
	r.headAnchored = true
	r.tailAnchored = true
	r.complete = true
}

// uncompleteHead drops the knowledge that the head reaches the end.
func (r *Range) uncompleteHead() {
	r.complete = false
	r.tail = nil
	r.tailAnchored = false
}

// tryJoin merges the head and the tail when they overlap.
func (r *Range) tryJoin() {
	if r.complete || !r.headAnchored || !r.tailAnchored || len(r.head) == 0 || len(r.tail) == 0 {
		return
	}

	if k := indexOf(r.head, r.tail[0]); k >= 0 {
		r.setComplete(concatIDs(without(r.head[:k], r.tail), r.tail))
		return
	}

	if k := indexOf(r.tail, r.head[len(r.head)-1]); k >= 0 {
		r.setComplete(concatIDs(r.head, without(r.tail[k+1:], r.head)))
	}
}

// PrependEdge inserts the edge at the start of the connection.
func (r *Range) PrependEdge(edge RangeEdge) {
	r.removeID(edge.ID)
	r.setCursor(edge)
	if r.complete || r.headAnchored {
		r.head = concatIDs([]DataID{edge.ID}, r.head)
	} else {
		r.head = []DataID{edge.ID}
		r.headAnchored = true
	}
	r.tryJoin()
	r.forceIndex++
}

// AppendEdge inserts the edge at the end of the connection.
func (r *Range) AppendEdge(edge RangeEdge) {
	r.removeID(edge.ID)
	r.setCursor(edge)
	if r.complete {
		r.head = concatIDs(r.head, []DataID{edge.ID})
	} else {
		r.tail = concatIDs(r.tail, []DataID{edge.ID})
		r.tailAnchored = true
	}
	r.tryJoin()
	r.forceIndex++
}

// RemoveEdge removes the edge from the range. It returns false if the edge was not in the range.
func (r *Range) RemoveEdge(edgeID DataID) bool {
	if !r.removeID(edgeID) {
		return false
	}
	delete(r.cursors, edgeID)
	r.forceIndex++
	return true
}

func (r *Range) setCursor(edge RangeEdge) {
	if len(edge.Cursor) > 0 {
		r.cursors[edge.ID] = edge.Cursor
	}
}

func (r *Range) removeID(id DataID) bool {
	removed := false
	if i := indexOf(r.head, id); i >= 0 {
		r.head = concatIDs(r.head[:i], r.head[i+1:])
		removed = true
	}
	if i := indexOf(r.tail, id); i >= 0 {
		r.tail = concatIDs(r.tail[:i], r.tail[i+1:])
		removed = true
	}
	return removed
}

func (r *Range) indexOfCursor(list []DataID, cursor string) int {
	for i, id := range list {
		if r.cursors[id] == cursor {
			return i
		}
	}
	return -1
}

func (r *Range) sameAs(other *Range) bool {
	if r.complete != other.complete ||
		r.headAnchored != other.headAnchored ||
		r.tailAnchored != other.tailAnchored ||
		!equalIDs(r.head, other.head) ||
		!equalIDs(r.tail, other.tail) ||
		len(r.cursors) != len(other.cursors) {
		return false
	}
	for id, cursor := range r.cursors {
		if other.cursors[id] != cursor {
			return false
		}
	}
	return true
}

//===----------------------------------------------------------------------------------------====//
// Persistence
//===----------------------------------------------------------------------------------------====//

// RangeState is the serializable form of a Range.
type RangeState struct {
	ParentID     DataID            `json:"parentID,omitempty"`
	FieldName    string            `json:"fieldName,omitempty"`
	FilterCalls  []document.Call   `json:"filterCalls,omitempty"`
	Head         []DataID          `json:"head,omitempty"`
	Tail         []DataID          `json:"tail,omitempty"`
	HeadAnchored bool              `json:"headAnchored,omitempty"`
	TailAnchored bool              `json:"tailAnchored,omitempty"`
	Complete     bool              `json:"complete,omitempty"`
	Cursors      map[DataID]string `json:"cursors,omitempty"`
	ForceIndex   int               `json:"forceIndex,omitempty"`
}

// State returns the serializable form of the range.
func (r *Range) State() RangeState {
	clone := r.Clone()
	return RangeState{
		ParentID:     clone.parentID,
		FieldName:    clone.fieldName,
		FilterCalls:  clone.filterCalls,
		Head:         clone.head,
		Tail:         clone.tail,
		HeadAnchored: clone.headAnchored,
		TailAnchored: clone.tailAnchored,
		Complete:     clone.complete,
		Cursors:      clone.cursors,
		ForceIndex:   clone.forceIndex,
	}
}

// RangeFromState restores a range.
func RangeFromState(state RangeState) *Range {
	cursors := state.Cursors
	if cursors == nil {
		cursors = map[DataID]string{}
	}
	return &Range{
		parentID:     state.ParentID,
		fieldName:    state.FieldName,
		filterCalls:  state.FilterCalls,
		head:         state.Head,
		tail:         state.Tail,
		headAnchored: state.HeadAnchored,
		tailAnchored: state.TailAnchored,
		complete:     state.Complete,
		cursors:      cursors,
		forceIndex:   state.ForceIndex,
	}
}

//===----------------------------------------------------------------------------------------====//
// Helpers
//===----------------------------------------------------------------------------------------====//

// mergeForward puts ids in front of rest. They are joined if the last of ids appears in rest,
// otherwise rest is discarded since nothing relates it to the new page.
func mergeForward(ids []DataID, rest []DataID) ([]DataID, bool) {
	if len(ids) == 0 {
		return copyIDs(rest), true
	}
	if j := indexOf(rest, ids[len(ids)-1]); j >= 0 {
		return concatIDs(ids, without(rest[j+1:], ids)), true
	}
	return copyIDs(ids), false
}

// mergeBackward is the mirror of mergeForward: ids are put after rest, joined at the first of ids.
func mergeBackward(ids []DataID, rest []DataID) ([]DataID, bool) {
	if len(ids) == 0 {
		return copyIDs(rest), true
	}
	if j := indexOf(rest, ids[0]); j >= 0 {
		return concatIDs(without(rest[:j], ids), ids), true
	}
	return copyIDs(ids), false
}

func indexOf(list []DataID, id DataID) int {
	for i, item := range list {
		if item == id {
			return i
		}
	}
	return -1
}

func without(list []DataID, exclude []DataID) []DataID {
	result := make([]DataID, 0, len(list))
	for _, id := range list {
		if indexOf(exclude, id) < 0 {
			result = append(result, id)
		}
	}
	return result
}

func concatIDs(a []DataID, b []DataID) []DataID {
	result := make([]DataID, 0, len(a)+len(b))
	result = append(result, a...)
	return append(result, b...)
}

func copyIDs(ids []DataID) []DataID {
	if ids == nil {
		return nil
	}
	result := make([]DataID, len(ids))
	copy(result, ids)
	return result
}

func equalIDs(a []DataID, b []DataID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
