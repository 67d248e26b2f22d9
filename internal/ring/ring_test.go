package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GOAL: Verify drop-oldest overflow semantics.
//
// TEST SCENARIO: Fill a capacity-3 buffer with 5 values; the reader must see
// only the last 3, and the drop counter must account for the 2 evicted.
func TestChannel_SendDropsOldest(t *testing.T) {
	c := New[int](3)

	for i := 1; i <= 5; i++ {
		c.Send(i)
	}
	c.Close()

	var got []int
	for v := range c.C() {
		got = append(got, v)
	}

	assert.Equal(t, []int{3, 4, 5}, got)

	written, dropped := c.Stats()
	assert.Equal(t, int64(5), written)
	assert.Equal(t, int64(2), dropped)
}

// GOAL: Verify TrySend refuses writes when the buffer is full and never
// evicts buffered values.
func TestChannel_TrySendFull(t *testing.T) {
	c := New[string](2)

	require.True(t, c.TrySend("a"))
	require.True(t, c.TrySend("b"))
	assert.False(t, c.TrySend("c"))
	assert.Equal(t, 2, c.Len())

	v, ok := <-c.C()
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestNew_RejectsNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
