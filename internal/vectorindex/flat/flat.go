package flat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/viant/vec/search"

	"mri-organoids/internal/domain"
)

// magic identifies a serialized flat index ("FLT1").
const (
	magic   uint32 = 0x31544c46
	version uint32 = 1
)

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidData       = errors.New("flat: invalid data")
)

var _ domain.VectorIndex = (*Index)(nil)

// Index is an exact nearest-neighbour index over float32 vectors using
// squared Euclidean distance. Labels are insertion positions.
type Index struct {
	mu      sync.RWMutex
	dim     int
	vectors [][]float32
}

// New creates an empty index of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &Index{dim: dimension}, nil
}

func (x *Index) Dimension() int { return x.dim }

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Add appends vectors in order. Nothing is added if any vector has the wrong dimension.
func (x *Index) Add(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != x.dim {
			return fmt.Errorf("vector %d has %d values, want %d: %w", i, len(v), x.dim, ErrDimensionMismatch)
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, v := range vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		x.vectors = append(x.vectors, cp)
	}
	return nil
}

// Vector returns a copy of the vector stored at label i.
func (x *Index) Vector(i int) ([]float32, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if i < 0 || i >= len(x.vectors) {
		return nil, false
	}
	out := make([]float32, x.dim)
	copy(out, x.vectors[i])
	return out, true
}

// Search returns up to k labels ordered by ascending squared distance to query.
func (x *Index) Search(query []float32, k int) ([]float32, []int, error) {
	if len(query) != x.dim {
		return nil, nil, fmt.Errorf("query has %d values, want %d: %w", len(query), x.dim, ErrDimensionMismatch)
	}
	if k <= 0 {
		return nil, nil, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	dists := make([]float32, len(x.vectors))
	for i, v := range x.vectors {
		d := search.Float32s(v).EuclideanDistance(query)
		dists[i] = d * d
	}
	idxs := argsortAsc(dists)
	if k > len(idxs) {
		k = len(idxs)
	}
	outDists := make([]float32, k)
	labels := make([]int, k)
	for i := 0; i < k; i++ {
		labels[i] = idxs[i]
		outDists[i] = dists[idxs[i]]
	}
	return outDists, labels, nil
}

// MarshalBinary stores: magic, version, dim, n (uint32 each) followed by n
// rows of dim little-endian float32 values.
func (x *Index) MarshalBinary() ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]byte, 16+4*x.dim*len(x.vectors))
	binary.LittleEndian.PutUint32(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], version)
	binary.LittleEndian.PutUint32(out[8:12], uint32(x.dim))
	binary.LittleEndian.PutUint32(out[12:16], uint32(len(x.vectors)))
	off := 16
	for _, v := range x.vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(f))
			off += 4
		}
	}
	return out, nil
}

// UnmarshalBinary replaces the index contents with the serialized form.
func (x *Index) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("%w: short header", ErrInvalidData)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != magic {
		return fmt.Errorf("%w: bad magic", ErrInvalidData)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidData, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim <= 0 {
		return fmt.Errorf("%w: dimension %d", ErrInvalidData, dim)
	}
	if want := 16 + 4*dim*n; len(data) != want {
		return fmt.Errorf("%w: %d bytes for %d vectors of dimension %d", ErrInvalidData, len(data), n, dim)
	}
	vectors := make([][]float32, n)
	off := 16
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vectors[i] = v
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = dim
	x.vectors = vectors
	return nil
}

// Decode reads a serialized index.
func Decode(data []byte) (*Index, error) {
	x := &Index{}
	if err := x.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return x, nil
}

func argsortAsc(vals []float32) []int {
	idxs := make([]int, len(vals))
	for i := range vals {
		idxs[i] = i
	}
	quicksort(idxs, vals, 0, len(idxs)-1)
	return idxs
}

func quicksort(idxs []int, vals []float32, lo, hi int) {
	if lo >= hi {
		return
	}
	i, j := lo, hi
	pivot := vals[idxs[(lo+hi)/2]]
	for i <= j {
		for vals[idxs[i]] < pivot {
			i++
		}
		for vals[idxs[j]] > pivot {
			j--
		}
		if i <= j {
			idxs[i], idxs[j] = idxs[j], idxs[i]
			i++
			j--
		}
	}
	if lo < j {
		quicksort(idxs, vals, lo, j)
	}
	if i < hi {
		quicksort(idxs, vals, i, hi)
	}
}
