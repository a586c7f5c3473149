package regalloc

import (
	"testing"

	"github.com/GriffinCanCode/formulac/pkg/codegen/stack"
)

func TestAllocatorReservesReceiverAndParams(t *testing.T) {
	a := NewAllocator("f", []stack.Kind{stack.KindF64, stack.KindStr})
	if got := a.Alloc(stack.KindF64, "x"); got != 3 {
		t.Errorf("first local = %d, want 3", got)
	}
	if a.Kind(2) != stack.KindStr {
		t.Errorf("slot 2 kind = %s", a.Kind(2))
	}
	if a.Max() != 4 {
		t.Errorf("max = %d, want 4", a.Max())
	}
}

func TestAllocatorWatermarkReuse(t *testing.T) {
	a := NewAllocator("fold", nil)
	mark := a.Mark()
	for i := 0; i < 100; i++ {
		a.Reset(mark)
		x := a.Alloc(stack.KindF64, "xi")
		y := a.Alloc(stack.KindF64, "tmp")
		if x != 1 || y != 2 {
			t.Fatalf("iteration %d got slots %d, %d", i, x, y)
		}
	}
	if a.Max() != 3 {
		t.Errorf("max = %d, want 3", a.Max())
	}
	if len(a.Live()) != 3 {
		t.Errorf("live = %d", len(a.Live()))
	}
}

func TestAllocatorResetOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewAllocator("f", nil).Reset(5)
}
