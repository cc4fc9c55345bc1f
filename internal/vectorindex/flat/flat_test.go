package flat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(t *testing.T) *Index {
	t.Helper()
	x, err := New(2)
	require.NoError(t, err)
	require.NoError(t, x.Add([][]float32{{0, 0}, {3, 4}, {1, 0}, {0, 2}}))
	return x
}

func TestIndexSearch(t *testing.T) {
	t.Run("Results ascend by squared distance", func(t *testing.T) {
		x := newIndex(t)

		dists, labels, err := x.Search([]float32{0, 0}, 4)

		require.NoError(t, err)
		assert.Equal(t, []int{0, 2, 3, 1}, labels)
		require.Len(t, dists, 4)
		assert.InDelta(t, 0, dists[0], 1e-5)
		assert.InDelta(t, 1, dists[1], 1e-5)
		assert.InDelta(t, 4, dists[2], 1e-5)
		assert.InDelta(t, 25, dists[3], 1e-4)
	})

	t.Run("k larger than size returns all", func(t *testing.T) {
		x := newIndex(t)

		dists, labels, err := x.Search([]float32{3, 4}, 50)

		require.NoError(t, err)
		assert.Len(t, labels, 4)
		assert.Len(t, dists, 4)
		assert.Equal(t, 1, labels[0])
	})

	t.Run("Top k is bounded", func(t *testing.T) {
		x := newIndex(t)

		_, labels, err := x.Search([]float32{1, 0}, 2)

		require.NoError(t, err)
		assert.Equal(t, []int{2, 0}, labels)
	})

	t.Run("Query dimension mismatch", func(t *testing.T) {
		x := newIndex(t)

		_, _, err := x.Search([]float32{1, 2, 3}, 1)

		assert.True(t, errors.Is(err, ErrDimensionMismatch))
	})

	t.Run("Empty index", func(t *testing.T) {
		x, err := New(3)
		require.NoError(t, err)

		dists, labels, err := x.Search([]float32{1, 2, 3}, 5)

		require.NoError(t, err)
		assert.Empty(t, dists)
		assert.Empty(t, labels)
	})
}

func TestIndexAdd(t *testing.T) {
	t.Run("Rejects wrong dimension atomically", func(t *testing.T) {
		x, err := New(2)
		require.NoError(t, err)

		err = x.Add([][]float32{{1, 1}, {1, 2, 3}})

		assert.True(t, errors.Is(err, ErrDimensionMismatch))
		assert.Equal(t, 0, x.Len())
	})

	t.Run("Stored vectors are copies", func(t *testing.T) {
		x, err := New(2)
		require.NoError(t, err)
		v := []float32{1, 2}
		require.NoError(t, x.Add([][]float32{v}))
		v[0] = 9

		got, ok := x.Vector(0)

		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, got)
	})

	t.Run("Invalid dimension", func(t *testing.T) {
		_, err := New(0)
		assert.Error(t, err)
	})
}

func TestIndexBinary(t *testing.T) {
	t.Run("Round trip preserves vectors", func(t *testing.T) {
		x := newIndex(t)

		data, err := x.MarshalBinary()
		require.NoError(t, err)
		y, err := Decode(data)
		require.NoError(t, err)

		assert.Equal(t, 2, y.Dimension())
		require.Equal(t, 4, y.Len())
		for i := 0; i < 4; i++ {
			a, _ := x.Vector(i)
			b, _ := y.Vector(i)
			assert.Equal(t, a, b)
		}
	})

	t.Run("Truncated data fails", func(t *testing.T) {
		data, err := newIndex(t).MarshalBinary()
		require.NoError(t, err)

		_, err = Decode(data[:len(data)-2])

		assert.True(t, errors.Is(err, ErrInvalidData))
	})

	t.Run("Bad magic fails", func(t *testing.T) {
		data, err := newIndex(t).MarshalBinary()
		require.NoError(t, err)
		data[0] ^= 0xff

		_, err = Decode(data)

		assert.True(t, errors.Is(err, ErrInvalidData))
	})
}
