package interrupt

import (
	"sync"
	"testing"
)

func TestFlagsSetClear(t *testing.T) {
	f := NewFlags()
	if f.IsSet("call-1") {
		t.Fatalf("new flag should be unset")
	}
	f.Set("call-1")
	if !f.IsSet("call-1") {
		t.Fatalf("flag should be set")
	}
	if f.IsSet("call-2") {
		t.Fatalf("flags must be per-call")
	}
	f.Clear("call-1")
	if f.IsSet("call-1") {
		t.Fatalf("flag should be cleared")
	}
	if f.ActiveCount() != 0 {
		t.Fatalf("ActiveCount = %d, want 0", f.ActiveCount())
	}
}

func TestFlagsConcurrentAccess(t *testing.T) {
	f := NewFlags()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Set("call-1")
			_ = f.IsSet("call-1")
			f.Clear("call-1")
		}()
	}
	wg.Wait()
}
