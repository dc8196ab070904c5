package pool

import (
	"sort"
	"strconv"
	"strings"
)

// ActionSetID names an action set within a step: one of the fixed tokens or a
// non-negative integer in canonical decimal form.
type ActionSetID string

const (
	ActionSetDown        ActionSetID = "down"
	ActionSetUp          ActionSetID = "up"
	ActionSetRotateLeft  ActionSetID = "rotate_left"
	ActionSetRotateRight ActionSetID = "rotate_right"
)

// numberedSetStep is the spacing of new numbered sets. Numbered sets are
// hold-duration thresholds in milliseconds.
const numberedSetStep = 1000

var fixedSetOrder = []ActionSetID{ActionSetDown, ActionSetUp, ActionSetRotateLeft, ActionSetRotateRight}

// ParseActionSetID normalises an externally supplied set ID. Fixed tokens
// pass through; other strings must parse as non-negative integers.
func ParseActionSetID(raw string) (ActionSetID, bool) {
	switch id := ActionSetID(raw); id {
	case ActionSetDown, ActionSetUp, ActionSetRotateLeft, ActionSetRotateRight:
		return id, true
	}

	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return "", false
	}
	return ActionSetID(strconv.Itoa(n)), true
}

// IsFixed reports whether the set is one of the fixed tokens.
func (id ActionSetID) IsFixed() bool {
	for _, f := range fixedSetOrder {
		if id == f {
			return true
		}
	}
	return false
}

// Number returns the numeric value of a numbered set.
func (id ActionSetID) Number() (int, bool) {
	if id.IsFixed() {
		return 0, false
	}
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, false
	}
	return n, true
}

// sortActionSetIDs orders fixed sets first (down, up, rotate_left,
// rotate_right), then numbered sets ascending.
func sortActionSetIDs(ids []ActionSetID) {
	rank := func(id ActionSetID) int {
		for i, f := range fixedSetOrder {
			if id == f {
				return i
			}
		}
		return len(fixedSetOrder)
	}
	sort.Slice(ids, func(i, j int) bool {
		ri, rj := rank(ids[i]), rank(ids[j])
		if ri != rj {
			return ri < rj
		}
		ni, _ := ids[i].Number()
		nj, _ := ids[j].Number()
		return ni < nj
	})
}
