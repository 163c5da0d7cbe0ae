package sparse

import "testing"

func TestSetAndValue(t *testing.T) {
	M := NewIntMatrix(4, 2, -1)
	M.Set(2, 1, 4711).Set(0, 0, 1).Set(3, 1, 7)
	if v := M.Value(2, 1); v != 4711 {
		t.Errorf("Expected M(2,1) to be 4711, is %d", v)
	}
	if v := M.Value(1, 1); v != -1 {
		t.Errorf("Expected M(1,1) to be null, is %d", v)
	}
	M.Set(2, 1, 42)
	if v := M.Value(2, 1); v != 42 || M.ValueCount() != 3 {
		t.Errorf("Expected overwrite of M(2,1) without new position, is %d (%d values)", v, M.ValueCount())
	}
}

func TestAddPairs(t *testing.T) {
	M := NewIntMatrix(2, 2, DefaultNullValue)
	M.Add(1, 0, 5)
	M.Add(1, 0, 6)
	a, b := M.Values(1, 0)
	if a != 5 || b != 6 {
		t.Errorf("Expected pair (5,6), is (%d,%d)", a, b)
	}
}

func TestGrowAndOrder(t *testing.T) {
	M := NewIntMatrix(1, 1, -1)
	M.Set(9, 1, 3)
	M.Set(0, 0, 1)
	M.Set(5, 0, 2)
	if M.M() != 10 || M.N() != 2 {
		t.Errorf("Expected matrix to grow to 10x2, is %dx%d", M.M(), M.N())
	}
	var seen []int32
	M.Each(func(i, j int, a, b int32) {
		seen = append(seen, a)
	})
	if len(seen) != 3 || seen[0] != 1 || seen[1] != 2 || seen[2] != 3 {
		t.Errorf("Expected row-major order [1 2 3], is %v", seen)
	}
}
