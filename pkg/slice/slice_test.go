// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package slice_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/evently/pkg/slice"
)

/*
TestSliceHelpers verifies order preservation and nil handling.
*/
func TestSliceHelpers(t *testing.T) {
	assert.Equal(t, []string{"1", "2"}, slice.Map([]int{1, 2}, strconv.Itoa))
	assert.Nil(t, slice.Map[int, string](nil, strconv.Itoa))

	even := func(v int) bool { return v%2 == 0 }
	assert.Equal(t, []int{2, 4}, slice.Filter([]int{1, 2, 3, 4}, even))
	assert.Empty(t, slice.Filter([]int{1, 3}, even))

	assert.Equal(t, []string{"b", "a"}, slice.Unique([]string{"b", "a", "b", "a"}))
	assert.Nil(t, slice.Unique[string](nil))
}
