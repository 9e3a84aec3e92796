// Package dxgi adapts DXGI Desktop Duplication to recorder.Duplicator.
package dxgi

import (
	"fmt"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
)

// DXGI HRESULT codes
const (
	errInvalidCall           = 0x887A0001
	errNotFound              = 0x887A0002
	errUnsupported           = 0x887A0004
	errDeviceRemoved         = 0x887A0005
	errDeviceReset           = 0x887A0007
	errNotCurrentlyAvailable = 0x887A0022
	errSessionDisconnected   = 0x887A0028
	errAccessLost            = 0x887A0026
	errWaitTimeout           = 0x887A0027
	errAccessDenied          = 0x80070005
	errModeChangeInProgress  = 0x887A0025
)

// hresultError maps a failed HRESULT from op to the recorder's error
// vocabulary. Lost duplications and lost devices are fatal.
func hresultError(op string, hr uint32) error {
	switch hr {
	case errWaitTimeout:
		return recorder.ErrAcquireTimeout
	case errAccessLost, errDeviceRemoved, errDeviceReset, errInvalidCall, errSessionDisconnected:
		return recorder.Fatal(fmt.Errorf("%s: %s", op, hresultName(hr)))
	case errNotFound:
		return fmt.Errorf("%w: %s: %s", recorder.ErrTargetNotFound, op, hresultName(hr))
	case errAccessDenied:
		return fmt.Errorf("%w: %s: %s", recorder.ErrPermissionDenied, op, hresultName(hr))
	case errUnsupported, errNotCurrentlyAvailable:
		return fmt.Errorf("%w: %s: %s", recorder.ErrUnsupported, op, hresultName(hr))
	}
	return fmt.Errorf("%s: %s", op, hresultName(hr))
}

func hresultName(hr uint32) string {
	switch hr {
	case errInvalidCall:
		return "DXGI_ERROR_INVALID_CALL"
	case errNotFound:
		return "DXGI_ERROR_NOT_FOUND"
	case errUnsupported:
		return "DXGI_ERROR_UNSUPPORTED"
	case errDeviceRemoved:
		return "DXGI_ERROR_DEVICE_REMOVED"
	case errDeviceReset:
		return "DXGI_ERROR_DEVICE_RESET"
	case errNotCurrentlyAvailable:
		return "DXGI_ERROR_NOT_CURRENTLY_AVAILABLE"
	case errSessionDisconnected:
		return "DXGI_ERROR_SESSION_DISCONNECTED"
	case errAccessLost:
		return "DXGI_ERROR_ACCESS_LOST"
	case errWaitTimeout:
		return "DXGI_ERROR_WAIT_TIMEOUT"
	case errAccessDenied:
		return "E_ACCESSDENIED"
	case errModeChangeInProgress:
		return "DXGI_ERROR_MODE_CHANGE_IN_PROGRESS"
	}
	return fmt.Sprintf("HRESULT 0x%08X", hr)
}
