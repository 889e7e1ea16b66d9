package pool

import "testing"

func TestGet_ZeroedAndRightSize(t *testing.T) {
	buf := Get(16)
	if len(buf) != 16 {
		t.Fatalf("len = %d, want 16", len(buf))
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("expected zeroed buffer")
		}
	}
}

func TestPutGet_Reuses(t *testing.T) {
	buf := Get(32)
	buf[0] = 0xff
	Put(buf)
	got := Get(32)
	if len(got) != 32 {
		t.Fatalf("len = %d, want 32", len(got))
	}
	if got[0] != 0 {
		t.Fatal("expected reused buffer to be cleared")
	}
}

func TestPut_IgnoresEmpty(t *testing.T) {
	Put(nil)
	Put([]byte{})
}
