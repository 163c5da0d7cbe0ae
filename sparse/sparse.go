/*
Package sparse implements a simple type for sparse integer matrices.
It is used for the opcode index of the bytecode compiler, where rows are
operation kinds and columns are colors. Every entry in the matrix is either a
single int32 or a pair (int32,int32).

This implementation uses the COO algorithm (a.k.a. triplet-encoding), with
triplets kept sorted in row-major order.

   https://medium.com/@jmaxg3/101-ways-to-store-a-sparse-matrix-c7f2bf15a229


License

Governed by a 3-Clause BSD license. License file may be found in the root
folder of this module.

Copyright © 2017–2022 Norbert Pillmayer <norbert@pillmayer.com>

*/
package sparse

import (
	"fmt"
	"sort"
)

// IntMatrix is a type for a sparse matrix of integer values. Construct with
//
//     M := NewIntMatrix(10, 2, -1)   // last parameter is M's null-value
//
// Now
//
//     M.Set(2, 1, 4711)              // set a value
//     v := M.Value(2, 1)             // returns 4711
//     M.Add(2, 1, 123)               // add a second value
//     a, b := M.Values(2, 1)         // returns 4711, 123
//     v = M.Value(10, 10)            // returns -1, i.e. the null-value
//
// Setting a value outside of the current dimensions grows the matrix.
// Values cannot be deleted, but may be overwritten with the null-value.
type IntMatrix struct {
	values  []triplet
	rowcnt  int
	colcnt  int
	nullval int32
}

type triplet struct {
	row, col int
	a, b     int32
}

// NewIntMatrix creates a new matrix for int, size m x n. The 3rd argument is a null-value,
// indicating empty entries (use DefaultNullValue if you haven't any specific
// requirements).
func NewIntMatrix(m, n int, nullValue int32) *IntMatrix {
	return &IntMatrix{
		rowcnt:  m,
		colcnt:  n,
		nullval: nullValue,
	}
}

// DefaultNullValue is the default empty-value for matrices (min int32).
const DefaultNullValue = -2147483648

// M returns the row count.
func (m *IntMatrix) M() int {
	return m.rowcnt
}

// N returns the column count.
func (m *IntMatrix) N() int {
	return m.colcnt
}

// NullValue returns this matrix' null value
func (m *IntMatrix) NullValue() int32 {
	return m.nullval
}

// ValueCount returns the number of positions set in the matrix.
func (m *IntMatrix) ValueCount() int {
	return len(m.values)
}

// search returns the index of the first triplet at or behind (i,j).
func (m *IntMatrix) search(i, j int) int {
	return sort.Search(len(m.values), func(k int) bool {
		t := m.values[k]
		return t.row > i || t.row == i && t.col >= j
	})
}

func (m *IntMatrix) at(i, j int) (int, bool) {
	k := m.search(i, j)
	return k, k < len(m.values) && m.values[k].row == i && m.values[k].col == j
}

// Value returns the primary value at position (i,j), or NullValue
func (m *IntMatrix) Value(i, j int) int32 {
	if k, ok := m.at(i, j); ok {
		return m.values[k].a
	}
	return m.nullval
}

// Values returns the pair of values at position (i,j), or (NullValue, NullValue)
func (m *IntMatrix) Values(i, j int) (int32, int32) {
	if k, ok := m.at(i, j); ok {
		return m.values[k].a, m.values[k].b
	}
	return m.nullval, m.nullval
}

// Set a value in the matrix at position (i,j). A secondary value at this
// position is cleared.
func (m *IntMatrix) Set(i, j int, value int32) *IntMatrix {
	k := m.insert(i, j)
	m.values[k].a, m.values[k].b = value, m.nullval
	return m
}

// Add a value in the matrix at position (i,j). If the position holds a
// primary value, value becomes the secondary value (overwriting an existing
// one).
func (m *IntMatrix) Add(i, j int, value int32) *IntMatrix {
	k := m.insert(i, j)
	if m.values[k].a == m.nullval {
		m.values[k].a = value
	} else {
		m.values[k].b = value
	}
	return m
}

// insert finds or creates the triplet for (i,j).
func (m *IntMatrix) insert(i, j int) int {
	if i < 0 || j < 0 {
		panic(fmt.Sprintf("sparse: negative index (%d,%d)", i, j))
	}
	if i >= m.rowcnt {
		m.rowcnt = i + 1
	}
	if j >= m.colcnt {
		m.colcnt = j + 1
	}
	k, ok := m.at(i, j)
	if ok {
		return k
	}
	m.values = append(m.values, triplet{})
	copy(m.values[k+1:], m.values[k:])
	m.values[k] = triplet{row: i, col: j, a: m.nullval, b: m.nullval}
	return k
}

// Each calls f for every position set, in row-major order.
func (m *IntMatrix) Each(f func(i, j int, a, b int32)) {
	for _, t := range m.values {
		f(t.row, t.col, t.a, t.b)
	}
}

func (m *IntMatrix) String() string {
	return fmt.Sprintf("IntMatrix(%dx%d, %d values)", m.rowcnt, m.colcnt, len(m.values))
}
