// Package sck adapts a ScreenCaptureKit SCStream to recorder.CaptureSession.
// Frames are delivered on the stream's dispatch queue through an exported
// Go callback. It requires darwin and cgo.
package sck
