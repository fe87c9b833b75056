package library

// Resolve maps any integer cursor onto an element of projection, wrapping
// past either end. ok is false only for an empty projection.
func Resolve(projection []Item, index int) (Item, bool) {
	n := len(projection)
	if n == 0 {
		return Item{}, false
	}
	return projection[Wrap(index, n)], true
}

// Wrap folds index into [0, n). n must be positive.
func Wrap(index, n int) int {
	return ((index % n) + n) % n
}
