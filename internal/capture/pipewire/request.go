package pipewire

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// Portal D-Bus constants
const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
	sessionIface    = "org.freedesktop.portal.Session"

	requestPathPrefix = "/org/freedesktop/portal/desktop/request/"
	sessionPathPrefix = "/org/freedesktop/portal/desktop/session/"
)

// Response codes carried by org.freedesktop.portal.Request.Response
const (
	responseSuccess   = 0
	responseCancelled = 1
	responseEnded     = 2
)

// newToken returns a handle token. Tokens must be valid D-Bus object path
// elements, so the UUID is used without hyphens.
func newToken() string {
	return "frametap" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// senderElement turns a unique bus name like ":1.42" into "1_42".
func senderElement(uniqueName string) string {
	s := strings.TrimPrefix(uniqueName, ":")
	return strings.ReplaceAll(s, ".", "_")
}

// requestPath is where the portal exports the Request object for token.
func requestPath(uniqueName, token string) dbus.ObjectPath {
	return dbus.ObjectPath(requestPathPrefix + senderElement(uniqueName) + "/" + token)
}

// sessionPath is where the portal exports a session created with token.
func sessionPath(uniqueName, token string) dbus.ObjectPath {
	return dbus.ObjectPath(sessionPathPrefix + senderElement(uniqueName) + "/" + token)
}

// checkSessionHandle rejects a session handle other than the one derived
// from our sender name and session token.
func checkSessionHandle(handle dbus.ObjectPath, uniqueName, token string) error {
	if want := sessionPath(uniqueName, token); handle != want {
		return fmt.Errorf("session handle mismatch: got %s, expected %s", handle, want)
	}
	return nil
}

// parseResponse decodes the body of a Request.Response signal.
func parseResponse(body []interface{}) (map[string]dbus.Variant, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("invalid portal response: empty body")
	}
	code, ok := body[0].(uint32)
	if !ok {
		return nil, fmt.Errorf("invalid portal response code type %T", body[0])
	}

	switch code {
	case responseSuccess:
	case responseCancelled:
		return nil, fmt.Errorf("%w: request cancelled by user", recorder.ErrPermissionDenied)
	case responseEnded:
		return nil, fmt.Errorf("%w: request ended by the portal", recorder.ErrPermissionDenied)
	default:
		return nil, fmt.Errorf("portal request failed (code %d)", code)
	}

	results := map[string]dbus.Variant{}
	if len(body) > 1 {
		if m, ok := body[1].(map[string]dbus.Variant); ok {
			results = m
		}
	}
	return results, nil
}

// objectPathResult reads an object path result that portals send either
// as an ObjectPath or as a plain string.
func objectPathResult(results map[string]dbus.Variant, key string) (dbus.ObjectPath, error) {
	v, ok := results[key]
	if !ok {
		return "", fmt.Errorf("no %s in response", key)
	}
	switch p := v.Value().(type) {
	case dbus.ObjectPath:
		return p, nil
	case string:
		return dbus.ObjectPath(p), nil
	default:
		return "", fmt.Errorf("unexpected %s type: %T", key, p)
	}
}

// Stream is one entry of the Start response's streams list.
type Stream struct {
	NodeID     uint32
	SourceType uint32
	Position   [2]int32
	Size       [2]int32
}

// parseStreams decodes the a(ua{sv}) streams result.
func parseStreams(v interface{}) ([]Stream, error) {
	var entries [][]interface{}
	switch s := v.(type) {
	case [][]interface{}:
		entries = s
	case []interface{}:
		for _, e := range s {
			if fields, ok := e.([]interface{}); ok {
				entries = append(entries, fields)
			}
		}
	default:
		return nil, fmt.Errorf("unknown streams format %T", v)
	}

	var streams []Stream
	for _, fields := range entries {
		if len(fields) == 0 {
			continue
		}
		id, ok := fields[0].(uint32)
		if !ok {
			continue
		}
		st := Stream{NodeID: id}
		if len(fields) > 1 {
			if props, ok := fields[1].(map[string]dbus.Variant); ok {
				st.applyProps(props)
			}
		}
		streams = append(streams, st)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("no streams in response")
	}
	return streams, nil
}

func (s *Stream) applyProps(props map[string]dbus.Variant) {
	if v, ok := props["source_type"]; ok {
		if t, ok := v.Value().(uint32); ok {
			s.SourceType = t
		}
	}
	if v, ok := props["position"]; ok {
		s.Position = int32Pair(v.Value())
	}
	if v, ok := props["size"]; ok {
		s.Size = int32Pair(v.Value())
	}
}

func int32Pair(v interface{}) [2]int32 {
	var out [2]int32
	switch p := v.(type) {
	case []interface{}:
		for i := 0; i < len(p) && i < 2; i++ {
			if n, ok := p[i].(int32); ok {
				out[i] = n
			}
		}
	case []int32:
		copy(out[:], p)
	}
	return out
}
