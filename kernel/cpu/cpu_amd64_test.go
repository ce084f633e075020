package cpu

import "testing"

func TestInterruptsEnabled(t *testing.T) {
	defer func() {
		flagsFn = Flags
	}()

	specs := []struct {
		flags uint64
		exp   bool
	}{
		{0x0002, false},
		{0x0202, true},
		{0x0246, true},
		{0x0046, false},
	}

	for specIndex, spec := range specs {
		flagsFn = func() uint64 { return spec.flags }

		if got := InterruptsEnabled(); got != spec.exp {
			t.Errorf("[spec %d] expected InterruptsEnabled to return %t; got %t", specIndex, spec.exp, got)
		}
	}
}

func TestFlagsReservedBit(t *testing.T) {
	// Bit 1 of RFLAGS is hardwired to 1 and pushfq is legal in user mode.
	if Flags()&0x2 == 0 {
		t.Fatal("expected reserved RFLAGS bit 1 to be set")
	}
}
