package combination

// Cartesian product across slots.
//
// # Example:
//
//	Cartesian([][]int{
//		{1, 2},
//		{10, 20},
//	})
//
// generates the product (slot 0 × slot 1) as below.
//
//	[][]int{
//		{1, 10},
//		{1, 20},
//		{2, 10},
//		{2, 20},
//	}
//
// Each generated tuple has one element per slot, at the slot's position.
//
// If any slot is empty, the product space is empty.
func Cartesian[T any](slots [][]T) [][]T {
	if len(slots) == 0 {
		return [][]T{}
	}
	for _, slot := range slots {
		if len(slot) == 0 {
			return [][]T{}
		}
	}

	known := [][]T{{}}
	for _, slot := range slots {
		grown := make([][]T, 0, len(known)*len(slot))
		for _, stem := range known {
			for _, item := range slot {
				tup := make([]T, len(stem), len(stem)+1)
				copy(tup, stem)
				grown = append(grown, append(tup, item))
			}
		}
		known = grown
	}

	return known
}
