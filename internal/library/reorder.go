package library

import "strings"

// DropSide says whether a dragged item lands before or after its drop target.
type DropSide string

const (
	DropLeft  DropSide = "left"
	DropRight DropSide = "right"
)

// ParseDropSide validates a drop side.
func ParseDropSide(s string) (DropSide, bool) {
	switch DropSide(strings.ToLower(strings.TrimSpace(s))) {
	case DropLeft, "before":
		return DropLeft, true
	case DropRight, "after":
		return DropRight, true
	}
	return "", false
}

// DropSideAt derives the drop side from the pointer's horizontal position at
// release time: left of the target box midpoint inserts before, otherwise after.
func DropSideAt(pointerX, boxLeft, boxWidth float64) DropSide {
	if pointerX < boxLeft+boxWidth/2 {
		return DropLeft
	}
	return DropRight
}

// ComputeReorderWeight computes the weight for an item dropped on target.
//
// The bounds are the target's neighbors in projection: 0 stands in for a
// missing left neighbor and len(projection)+1 for a missing right neighbor, so
// there is always room to extrapolate past either end. A left drop lands
// halfway between the left neighbor and the target, a right drop halfway
// between the target and the right neighbor. Missing weights read as 0.
//
// Only the dragged item receives the result; nothing else is renumbered.
// ok is false when target is not in projection.
func ComputeReorderWeight(projection []Item, target Key, side DropSide) (weight float64, ok bool) {
	lo, hi, ok := ReorderBounds(projection, target, side)
	if !ok {
		return 0, false
	}
	return (lo + hi) / 2, true
}

// ReorderBounds returns the two weights a drop on target is averaged from.
func ReorderBounds(projection []Item, target Key, side DropSide) (lo, hi float64, ok bool) {
	index := IndexOf(projection, target)
	if index < 0 {
		return 0, 0, false
	}
	targetWeight := projection[index].WeightOrZero()

	if side == DropLeft {
		previous := 0.0
		if index > 0 {
			previous = projection[index-1].WeightOrZero()
		}
		return previous, targetWeight, true
	}

	next := float64(len(projection) + 1)
	if index < len(projection)-1 {
		next = projection[index+1].WeightOrZero()
	}
	return targetWeight, next, true
}

// GapExhausted reports whether the midpoint of lo and hi no longer falls
// strictly between them, either because float precision ran out after many
// insertions at the same spot or because the bounds are tied or inverted.
func GapExhausted(lo, hi float64) bool {
	mid := (lo + hi) / 2
	return !(lo < mid && mid < hi)
}

// WeightUpdate assigns a new weight to one item.
type WeightUpdate struct {
	Key    Key
	Weight float64
}

// Renumber assigns weights 1..n in projection order. It is the explicit
// recovery for exhausted gaps and is never applied implicitly.
func Renumber(projection []Item) []WeightUpdate {
	updates := make([]WeightUpdate, len(projection))
	for i, it := range projection {
		updates[i] = WeightUpdate{Key: it.Key(), Weight: float64(i + 1)}
	}
	return updates
}

// ApplyWeights returns a copy of items with the updates applied.
// Items not named by an update are copied unchanged.
func ApplyWeights(items []Item, updates []WeightUpdate) []Item {
	byKey := make(map[Key]float64, len(updates))
	for _, u := range updates {
		byKey[u.Key] = u.Weight
	}
	out := CloneItems(items)
	for i := range out {
		if w, ok := byKey[out[i].Key()]; ok {
			out[i].Weight = Float(w)
		}
	}
	return out
}
