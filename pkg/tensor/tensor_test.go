package tensor

import (
	"errors"
	"testing"
)

func TestNewRejectsWrongLength(t *testing.T) {
	if _, err := New(make([]float32, 5), 2, 3); !errors.Is(err, ErrShape) {
		t.Fatalf("New err = %v, want ErrShape", err)
	}
	x, err := New(make([]float32, 6), 2, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if x.Rank() != 2 || x.Len() != 6 || x.Dim(-1) != 3 {
		t.Errorf("got rank=%d len=%d last=%d", x.Rank(), x.Len(), x.Dim(-1))
	}
}

func TestReshapeInfersDimension(t *testing.T) {
	x := Zeros(4, 3, 5)
	y, err := x.Reshape(4, -1)
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}
	if err := y.CheckShape(4, 15); err != nil {
		t.Fatal(err)
	}
	y.Data[0] = 7
	if x.Data[0] != 7 {
		t.Error("Reshape should return a view over the same data")
	}

	if _, err := x.Reshape(7, -1); !errors.Is(err, ErrShape) {
		t.Errorf("Reshape(7,-1) err = %v, want ErrShape", err)
	}
	if _, err := x.Reshape(2, 2); !errors.Is(err, ErrShape) {
		t.Errorf("Reshape(2,2) err = %v, want ErrShape", err)
	}
}

func TestUnsqueeze(t *testing.T) {
	x := Zeros(10, 40, 200)
	y, err := x.Unsqueeze(1)
	if err != nil {
		t.Fatalf("Unsqueeze: %v", err)
	}
	if err := y.CheckShape(10, 1, 40, 200); err != nil {
		t.Fatal(err)
	}
	if _, err := x.Unsqueeze(5); err == nil {
		t.Error("Unsqueeze(5) on rank 3 should fail")
	}
}

func TestCheckShapeWildcard(t *testing.T) {
	x := Zeros(2, 3, 4)
	if err := x.CheckShape(-1, 3, -1); err != nil {
		t.Errorf("wildcard check failed: %v", err)
	}
	if err := x.CheckShape(-1, 4, -1); !errors.Is(err, ErrShape) {
		t.Errorf("err = %v, want ErrShape", err)
	}
	if err := x.CheckShape(2, 3); !errors.Is(err, ErrShape) {
		t.Errorf("rank mismatch err = %v, want ErrShape", err)
	}
}

func TestRowAndEqual(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4, 5, 6}, 3, 2)
	if r := x.Row(1); r[0] != 3 || r[1] != 4 {
		t.Errorf("Row(1) = %v, want [3 4]", r)
	}
	y := x.Clone()
	if !Equal(x, y) {
		t.Error("clone should be equal")
	}
	y.Data[5] = 0
	if Equal(x, y) {
		t.Error("modified clone should differ")
	}
	if x.Data[5] != 6 {
		t.Error("Clone must not share data")
	}
	if got := x.String(); got != "Tensor(3, 2)" {
		t.Errorf("String() = %q", got)
	}
}
