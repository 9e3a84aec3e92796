//go:build windows

package dxgi

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	d3d11DLL              = windows.NewLazySystemDLL("d3d11.dll")
	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")
)

// COM vtable indices
const (
	vtblQueryInterface = 0
	vtblRelease        = 2

	dxgiDeviceGetAdapter       = 7  // IDXGIDevice
	dxgiAdapterEnumOutputs     = 7  // IDXGIAdapter
	dxgiOutput1DuplicateOutput = 22 // IDXGIOutput1
	dxgiDuplGetDesc            = 7  // IDXGIOutputDuplication
	dxgiDuplAcquireNextFrame   = 8  // IDXGIOutputDuplication
	dxgiDuplReleaseFrame       = 14 // IDXGIOutputDuplication
	d3d11DeviceCreateTexture2D = 5  // ID3D11Device
	d3d11CtxMap                = 14 // ID3D11DeviceContext
	d3d11CtxUnmap              = 15 // ID3D11DeviceContext
	d3d11CtxCopyResource       = 47 // ID3D11DeviceContext
)

const (
	d3dDriverTypeHardware        = 1
	d3dFeatureLevel11_0          = 0xb000
	d3d11SDKVersion              = 7
	d3d11CreateDeviceBGRASupport = 0x20
	d3d11UsageStaging            = 3
	d3d11CPUAccessRead           = 0x20000
	d3d11MapRead                 = 1
	dxgiFormatB8G8R8A8           = 87
)

var (
	iidIDXGIDevice     = windows.GUID{Data1: 0x54ec77fa, Data2: 0x1377, Data3: 0x44e6, Data4: [8]byte{0x8c, 0x32, 0x88, 0xfd, 0x5f, 0x44, 0xc8, 0x4c}}
	iidID3D11Texture2D = windows.GUID{Data1: 0x6f15aaf2, Data2: 0xd208, Data3: 0x4e89, Data4: [8]byte{0x9a, 0xb4, 0x48, 0x95, 0x35, 0xd3, 0x4f, 0x9c}}
	iidIDXGIOutput1    = windows.GUID{Data1: 0x00cddea8, Data2: 0x939b, Data3: 0x4b83, Data4: [8]byte{0xa3, 0x40, 0xa6, 0x85, 0x22, 0x66, 0x66, 0xcc}}
)

// texture2DDesc matches D3D11_TEXTURE2D_DESC
type texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32
	SampleQuality  uint32
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// mappedSubresource matches D3D11_MAPPED_SUBRESOURCE
type mappedSubresource struct {
	PData      unsafe.Pointer
	RowPitch   uint32
	DepthPitch uint32
}

type rational struct {
	Numerator   uint32
	Denominator uint32
}

// modeDesc matches DXGI_MODE_DESC
type modeDesc struct {
	Width            uint32
	Height           uint32
	RefreshRate      rational
	Format           uint32
	ScanlineOrdering uint32
	Scaling          uint32
}

// outDuplDesc matches DXGI_OUTDUPL_DESC
type outDuplDesc struct {
	ModeDesc                   modeDesc
	Rotation                   uint32
	DesktopImageInSystemMemory int32
}

// outDuplFrameInfo matches DXGI_OUTDUPL_FRAME_INFO
type outDuplFrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// comPtr reinterprets a COM interface address held as uintptr
func comPtr(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// vtblFn resolves a COM vtable function pointer by index
func vtblFn(obj uintptr, idx int) uintptr {
	vtable := *(*unsafe.Pointer)(comPtr(obj))
	return *(*uintptr)(unsafe.Add(vtable, idx*int(unsafe.Sizeof(uintptr(0)))))
}

// comCall invokes a COM method and returns its HRESULT
func comCall(obj uintptr, idx int, args ...uintptr) uint32 {
	all := make([]uintptr, 0, 1+len(args))
	all = append(all, obj)
	all = append(all, args...)
	hr, _, _ := syscall.SyscallN(vtblFn(obj, idx), all...)
	return uint32(hr)
}

func failed(hr uint32) bool { return int32(hr) < 0 }

func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(vtblFn(obj, vtblRelease), obj)
	}
}
