package dxgi

import (
	"runtime"
	"testing"
	"unsafe"
)

var (
	testVtable = []uintptr{0x10, 0x20, 0x30, 0x40}
	testObject = struct{ vtbl *uintptr }{vtbl: &testVtable[0]}
)

func TestVtblFn(t *testing.T) {
	vtable := testVtable
	addr := uintptr(unsafe.Pointer(&testObject))

	for idx, want := range vtable {
		if got := vtblFn(addr, idx); got != want {
			t.Errorf("vtblFn(%d) = %#x, want %#x", idx, got, want)
		}
	}
	runtime.KeepAlive(&testObject)
}

func TestMappedSubresourceLayout(t *testing.T) {
	var m mappedSubresource
	if got := unsafe.Offsetof(m.RowPitch); got != unsafe.Sizeof(uintptr(0)) {
		t.Errorf("RowPitch offset = %d, want pointer size", got)
	}
}
