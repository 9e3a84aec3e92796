package recorder

import "errors"

var (
	// ErrClosed is returned by Recorder operations after Close.
	ErrClosed = errors.New("recorder closed")

	// ErrPermissionDenied means the platform refused screen capture.
	ErrPermissionDenied = errors.New("screen capture permission denied")

	// ErrNoCommonFormat means the stream offered none of the pixel formats
	// the decoder understands.
	ErrNoCommonFormat = errors.New("no common pixel format")

	// ErrTargetNotFound means the requested monitor or window does not exist.
	ErrTargetNotFound = errors.New("capture target not found")

	// ErrUnsupported means no capture backend exists for this platform or session.
	ErrUnsupported = errors.New("screen recording not supported")

	// ErrAcquireTimeout is returned by a Duplicator when no frame arrived
	// within the acquire timeout.
	ErrAcquireTimeout = errors.New("frame acquire timed out")

	// ErrFrameSize reports a buffer whose length does not match its geometry.
	ErrFrameSize = errors.New("frame buffer size mismatch")

	// ErrFormatMismatch reports a buffer in a pixel format other than the
	// one negotiated for the session.
	ErrFormatMismatch = errors.New("pixel format mismatch")
)

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal marks err as unrecoverable. A producer that sees a fatal error
// stops, records the error and closes its frame channel.
func Fatal(err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err, or anything it wraps, was marked with Fatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
