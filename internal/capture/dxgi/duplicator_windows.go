//go:build windows

package dxgi

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/rs/zerolog"
)

// Duplicator duplicates one DXGI output of the default adapter. It is
// driven by a single producer goroutine; the mutex only guards Close
// racing a late call.
type Duplicator struct {
	mu sync.Mutex

	device      uintptr // ID3D11Device
	context     uintptr // ID3D11DeviceContext
	duplication uintptr // IDXGIOutputDuplication
	staging     uintptr // ID3D11Texture2D, CPU readable

	// native texture size; rotated outputs are delivered unrotated
	width    int
	height   int
	rotation uint32

	resource uintptr // IDXGIResource of the held frame
	held     bool
	mapped   bool
	closed   bool

	log *zerolog.Logger
}

// NewDuplicator opens Desktop Duplication for output index monitor
func NewDuplicator(monitor int) (*Duplicator, error) {
	d := &Duplicator{log: logger.WithComponent("dxgi")}
	if err := d.init(monitor); err != nil {
		d.release()
		return nil, err
	}
	d.log.Info().
		Int("output", monitor).
		Int("width", d.width).
		Int("height", d.height).
		Uint32("rotation", d.rotation).
		Msg("DXGI Desktop Duplication initialized")
	return d, nil
}

func (d *Duplicator) init(monitor int) error {
	if err := procD3D11CreateDevice.Find(); err != nil {
		return fmt.Errorf("%w: %v", recorder.ErrUnsupported, err)
	}

	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32
	hr, _, _ := procD3D11CreateDevice.Call(
		0,                              // default adapter
		uintptr(d3dDriverTypeHardware), // DriverType
		0,                              // Software
		uintptr(d3d11CreateDeviceBGRASupport),
		uintptr(unsafe.Pointer(&featureLevel)),
		1,
		uintptr(d3d11SDKVersion),
		uintptr(unsafe.Pointer(&d.device)),
		uintptr(unsafe.Pointer(&actualLevel)),
		uintptr(unsafe.Pointer(&d.context)),
	)
	if failed(uint32(hr)) {
		return hresultError("D3D11CreateDevice", uint32(hr))
	}

	var dxgiDevice uintptr
	if hr := comCall(d.device, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIDevice)),
		uintptr(unsafe.Pointer(&dxgiDevice))); failed(hr) {
		return hresultError("QueryInterface IDXGIDevice", hr)
	}
	defer comRelease(dxgiDevice)

	var adapter uintptr
	if hr := comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter))); failed(hr) {
		return hresultError("IDXGIDevice::GetAdapter", hr)
	}
	defer comRelease(adapter)

	var output uintptr
	if hr := comCall(adapter, dxgiAdapterEnumOutputs,
		uintptr(monitor),
		uintptr(unsafe.Pointer(&output))); failed(hr) {
		return hresultError(fmt.Sprintf("IDXGIAdapter::EnumOutputs(%d)", monitor), hr)
	}

	var output1 uintptr
	hr2 := comCall(output, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIOutput1)),
		uintptr(unsafe.Pointer(&output1)))
	comRelease(output)
	if failed(hr2) {
		return hresultError("QueryInterface IDXGIOutput1", hr2)
	}
	defer comRelease(output1)

	if hr := comCall(output1, dxgiOutput1DuplicateOutput,
		d.device,
		uintptr(unsafe.Pointer(&d.duplication))); failed(hr) {
		return hresultError("IDXGIOutput1::DuplicateOutput", hr)
	}

	// GetDesc returns void
	var desc outDuplDesc
	comCall(d.duplication, dxgiDuplGetDesc, uintptr(unsafe.Pointer(&desc)))
	w, h := int(desc.ModeDesc.Width), int(desc.ModeDesc.Height)
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: duplication reports %dx%d", recorder.ErrFrameSize, w, h)
	}
	d.rotation = desc.Rotation
	if d.rotation == 2 || d.rotation == 4 {
		w, h = h, w
	}
	d.width, d.height = w, h

	stagingDesc := texture2DDesc{
		Width:          uint32(w),
		Height:         uint32(h),
		MipLevels:      1,
		ArraySize:      1,
		Format:         dxgiFormatB8G8R8A8,
		SampleCount:    1,
		Usage:          d3d11UsageStaging,
		CPUAccessFlags: d3d11CPUAccessRead,
	}
	if hr := comCall(d.device, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&stagingDesc)),
		0,
		uintptr(unsafe.Pointer(&d.staging))); failed(hr) {
		return hresultError("CreateTexture2D staging", hr)
	}
	return nil
}

// AcquireNextFrame waits up to timeout for a new desktop image
func (d *Duplicator) AcquireNextFrame(timeout time.Duration) (recorder.FrameInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return recorder.FrameInfo{}, recorder.ErrClosed
	}
	if d.held {
		return recorder.FrameInfo{}, fmt.Errorf("AcquireNextFrame: previous frame not released")
	}

	var info outDuplFrameInfo
	var resource uintptr
	hr := comCall(d.duplication, dxgiDuplAcquireNextFrame,
		uintptr(timeout.Milliseconds()),
		uintptr(unsafe.Pointer(&info)),
		uintptr(unsafe.Pointer(&resource)))
	if failed(hr) {
		return recorder.FrameInfo{}, hresultError("AcquireNextFrame", hr)
	}

	d.resource = resource
	d.held = true
	return recorder.FrameInfo{
		LastPresentTime:   info.LastPresentTime,
		AccumulatedFrames: info.AccumulatedFrames,
	}, nil
}

// MapFrame copies the held frame to the staging texture and maps it. The
// surface aliases GPU mapped memory until UnmapFrame.
func (d *Duplicator) MapFrame() (recorder.Surface, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return recorder.Surface{}, recorder.ErrClosed
	}
	if !d.held {
		return recorder.Surface{}, fmt.Errorf("MapFrame: no frame held")
	}

	var texture uintptr
	if hr := comCall(d.resource, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&texture))); failed(hr) {
		return recorder.Surface{}, hresultError("QueryInterface ID3D11Texture2D", hr)
	}
	// CopyResource returns void; failures surface from Map
	comCall(d.context, d3d11CtxCopyResource, d.staging, texture)
	comRelease(texture)

	var mapped mappedSubresource
	if hr := comCall(d.context, d3d11CtxMap,
		d.staging,
		0,
		d3d11MapRead,
		0,
		uintptr(unsafe.Pointer(&mapped))); failed(hr) {
		return recorder.Surface{}, hresultError("Map staging texture", hr)
	}
	d.mapped = true

	stride := int(mapped.RowPitch)
	return recorder.Surface{
		Width:  d.width,
		Height: d.height,
		Stride: stride,
		Format: recorder.FormatBGRA,
		Pix:    unsafe.Slice((*byte)(mapped.PData), stride*d.height),
	}, nil
}

// UnmapFrame invalidates the surface returned by MapFrame
func (d *Duplicator) UnmapFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unmap()
}

func (d *Duplicator) unmap() {
	if d.mapped {
		comCall(d.context, d3d11CtxUnmap, d.staging, 0)
		d.mapped = false
	}
}

// ReleaseFrame hands the held frame back to DXGI
func (d *Duplicator) ReleaseFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releaseFrame()
}

func (d *Duplicator) releaseFrame() error {
	if !d.held {
		return nil
	}
	d.unmap()
	comRelease(d.resource)
	d.resource = 0
	d.held = false
	if hr := comCall(d.duplication, dxgiDuplReleaseFrame); failed(hr) {
		return hresultError("ReleaseFrame", hr)
	}
	return nil
}

// Close releases every COM object
func (d *Duplicator) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	err := d.releaseFrame()
	d.release()
	d.log.Debug().Msg("DXGI duplication released")
	return err
}

func (d *Duplicator) release() {
	comRelease(d.staging)
	comRelease(d.duplication)
	comRelease(d.context)
	comRelease(d.device)
	d.staging, d.duplication, d.context, d.device = 0, 0, 0, 0
}
