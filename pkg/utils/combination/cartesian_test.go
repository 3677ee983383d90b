package combination_test

import (
	"testing"

	"github.com/molsys/chemflow/pkg/cmp"
	combo "github.com/molsys/chemflow/pkg/utils/combination"
)

func TestCartesian(t *testing.T) {
	t.Run("generates Cartesian product along slots", func(t *testing.T) {
		when := [][]int{
			{1, 2},
			{10, 20, 30},
			{100, 200},
		}

		expected := [][]int{
			// 2 x 3 x 2 = 12 patterns
			{1, 10, 100},
			{1, 10, 200},
			{1, 20, 100},
			{1, 20, 200},
			{1, 30, 100},
			{1, 30, 200},
			{2, 10, 100},
			{2, 10, 200},
			{2, 20, 100},
			{2, 20, 200},
			{2, 30, 100},
			{2, 30, 200},
		}

		actual := combo.Cartesian(when)

		if !cmp.SliceContentEqWith(actual, expected, cmp.SliceEq[int]) {
			t.Errorf(
				"Cartesian product is wrong:\nactual   = %v\nexpected = %v",
				actual, expected,
			)
		}
	})

	t.Run("each tuple has one element per slot, at the slot's position", func(t *testing.T) {
		when := [][]string{
			{"a", "b"},
			{"x"},
		}
		for _, tup := range combo.Cartesian(when) {
			if len(tup) != len(when) {
				t.Fatalf("tuple %v does not cover every slot", tup)
			}
			if tup[1] != "x" {
				t.Errorf("tuple %v breaks slot positions", tup)
			}
		}
	})

	t.Run("the product space is empty when a slot is empty", func(t *testing.T) {
		when := [][]int{
			{1, 2},
			{},
			{100, 200},
		}
		if actual := combo.Cartesian(when); len(actual) != 0 {
			t.Errorf("unexpected product: %v", actual)
		}
	})

	t.Run("the product space is empty when there are no slots", func(t *testing.T) {
		if actual := combo.Cartesian([][]int{}); len(actual) != 0 {
			t.Errorf("unexpected product: %v", actual)
		}
	})
}
