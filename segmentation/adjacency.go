package segmentation

import (
	"gonum.org/v1/gonum/mat"
)

// Adjacency records which objects touch. Row and column i of Matrix belong to
// IDs[i]; entries are 1 for objects sharing a 4-connected edge and 0
// otherwise, including the diagonal.
type Adjacency struct {
	IDs []uint32
	// Matrix is nil when the label image holds no objects
	Matrix *mat.SymDense

	index map[uint32]int
}

// GetAdjacencyMatrix finds every pair of objects with 4-connected pixels of
// different ids. Objects touching only background are adjacent to nothing.
func GetAdjacencyMatrix(l *Labels) (*Adjacency, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}

	adjacency := &Adjacency{IDs: l.IDs(), index: make(map[uint32]int)}
	for i, id := range adjacency.IDs {
		adjacency.index[id] = i
	}
	if len(adjacency.IDs) == 0 {
		return adjacency, nil
	}

	adjacency.Matrix = mat.NewSymDense(len(adjacency.IDs), nil)
	mark := func(a, b uint32) {
		if a == 0 || b == 0 || a == b {
			return
		}
		adjacency.Matrix.SetSym(adjacency.index[a], adjacency.index[b], 1)
	}

	for y := 0; y < l.Height; y++ {
		for x := 0; x < l.Width; x++ {
			id := l.At(x, y)
			if x+1 < l.Width {
				mark(id, l.At(x+1, y))
			}
			if y+1 < l.Height {
				mark(id, l.At(x, y+1))
			}
		}
	}

	return adjacency, nil
}

// Adjacent reports whether objects a and b touch.
func (adjacency *Adjacency) Adjacent(a, b uint32) bool {
	i, ok := adjacency.index[a]
	if !ok {
		return false
	}
	j, ok := adjacency.index[b]
	if !ok {
		return false
	}
	return adjacency.Matrix.At(i, j) != 0
}

// Neighbours returns the ids touching id, in ascending order.
func (adjacency *Adjacency) Neighbours(id uint32) []uint32 {
	i, ok := adjacency.index[id]
	if !ok {
		return nil
	}

	var neighbours []uint32
	for j, other := range adjacency.IDs {
		if adjacency.Matrix.At(i, j) != 0 {
			neighbours = append(neighbours, other)
		}
	}
	return neighbours
}
