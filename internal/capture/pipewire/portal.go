package pipewire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanchriswhite/FrameTap/internal/logger"
	"github.com/bryanchriswhite/FrameTap/internal/recorder"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

// Source types for SelectSources
const (
	SourceTypeMonitor = 1 << 0
	SourceTypeWindow  = 1 << 1
	SourceTypeVirtual = 1 << 2
)

// Cursor modes for SelectSources
const (
	CursorModeHidden   = 1 << 0
	CursorModeEmbedded = 1 << 1
	CursorModeMetadata = 1 << 2
)

// Persist modes for SelectSources
const (
	PersistModeNone        = 0
	PersistModeApplication = 1
	PersistModeSession     = 2
)

// PortalOptions configures ScreenCast negotiation
type PortalOptions struct {
	RequestTimeout   time.Duration
	SelectTimeout    time.Duration
	CursorMode       string
	PersistMode      string
	RestoreTokenPath string
}

// Portal negotiates ScreenCast sessions with xdg-desktop-portal. It does
// not own the bus connection.
type Portal struct {
	conn   *dbus.Conn
	opts   PortalOptions
	tokens *tokenStore
	log    *zerolog.Logger
}

// NewPortal creates a portal client on an existing session bus connection
func NewPortal(conn *dbus.Conn, opts PortalOptions) (*Portal, error) {
	if conn == nil {
		return nil, errors.New("portal: nil session bus")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.SelectTimeout <= 0 {
		opts.SelectTimeout = 2 * time.Minute
	}
	if len(conn.Names()) == 0 {
		return nil, errors.New("portal: session bus connection has no unique name")
	}
	return &Portal{
		conn:   conn,
		opts:   opts,
		tokens: newTokenStore(opts.RestoreTokenPath),
		log:    logger.WithComponent("portal-dbus"),
	}, nil
}

// Negotiate runs CreateSession, SelectSources and Start, then opens a
// PipeWire remote for the session. The user may be shown a dialog during
// SelectSources or Start.
func (p *Portal) Negotiate(ctx context.Context, target recorder.Target) (recorder.PortalSession, error) {
	sourceTypes := uint32(SourceTypeMonitor)
	if target.WindowID != 0 {
		sourceTypes = SourceTypeWindow
	}
	if available := p.availableMask("AvailableSourceTypes"); available != 0 && available&sourceTypes == 0 {
		return nil, fmt.Errorf("%w: portal offers source types %#x, need %#x",
			recorder.ErrUnsupported, available, sourceTypes)
	}

	session, err := p.createSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := p.selectSources(ctx, session.handle, sourceTypes); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to select sources: %w", err)
	}

	streams, err := p.start(ctx, session.handle)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	session.streams = streams
	session.nodeID = streams[0].NodeID

	fd, err := p.openPipeWireRemote(ctx, session.handle)
	if err != nil {
		p.log.Warn().Err(err).Msg("OpenPipeWireRemote failed, stream will use the default remote")
		fd = -1
	}
	session.fd = fd

	p.log.Info().
		Str("session", string(session.handle)).
		Uint32("node_id", session.nodeID).
		Int("streams", len(streams)).
		Msg("Screen cast started")
	return session, nil
}

func (p *Portal) screenCast() dbus.BusObject {
	return p.conn.Object(portalService, portalPath)
}

func (p *Portal) uniqueName() string {
	return p.conn.Names()[0]
}

// availableMask reads one of the ScreenCast bitmask properties, returning
// 0 if the portal does not expose it.
func (p *Portal) availableMask(property string) uint32 {
	v, err := p.screenCast().GetProperty(screenCastIface + "." + property)
	if err != nil {
		p.log.Debug().Err(err).Str("property", property).Msg("Failed to read portal property")
		return 0
	}
	mask, _ := v.Value().(uint32)
	return mask
}

// request calls a ScreenCast method that answers through a Request object
// and waits for its Response signal. options gets a fresh handle_token.
func (p *Portal) request(ctx context.Context, method string, timeout time.Duration, options map[string]dbus.Variant, args ...interface{}) (map[string]dbus.Variant, error) {
	token := newToken()
	options["handle_token"] = dbus.MakeVariant(token)
	expected := requestPath(p.uniqueName(), token)

	// Subscribe before calling so the Response cannot be missed
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(expected),
		dbus.WithMatchInterface(requestIface),
		dbus.WithMatchMember("Response"),
	}
	if err := p.conn.AddMatchSignal(match...); err != nil {
		return nil, fmt.Errorf("failed to add match rule: %w", err)
	}
	defer p.conn.RemoveMatchSignal(match...)

	responseChan := make(chan *dbus.Signal, 10)
	p.conn.Signal(responseChan)
	defer p.conn.RemoveSignal(responseChan)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var handle dbus.ObjectPath
	args = append(args, options)
	if err := p.screenCast().CallWithContext(ctx, screenCastIface+"."+method, 0, args...).Store(&handle); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if handle != expected {
		// Portals older than 0.9 pick their own request path
		p.log.Debug().
			Str("expected", string(expected)).
			Str("actual", string(handle)).
			Msg("Portal returned an unexpected request path")
		if err := p.conn.AddMatchSignal(dbus.WithMatchObjectPath(handle), dbus.WithMatchInterface(requestIface)); err == nil {
			defer p.conn.RemoveMatchSignal(dbus.WithMatchObjectPath(handle), dbus.WithMatchInterface(requestIface))
		}
	}

	p.log.Debug().Str("method", method).Str("request_path", string(handle)).Msg("Waiting for portal response")

	for {
		select {
		case <-ctx.Done():
			p.conn.Object(portalService, handle).Call(requestIface+".Close", dbus.FlagNoReplyExpected)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("timeout waiting for %s response", method)
			}
			return nil, ctx.Err()
		case sig, ok := <-responseChan:
			if !ok {
				return nil, errors.New("session bus connection closed")
			}
			if sig.Path != handle || sig.Name != requestIface+".Response" {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

func (p *Portal) createSession(ctx context.Context) (*Session, error) {
	sessionToken := newToken()
	options := map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(sessionToken),
	}

	results, err := p.request(ctx, "CreateSession", p.opts.RequestTimeout, options)
	if err != nil {
		return nil, err
	}

	handle, err := objectPathResult(results, "session_handle")
	if err != nil {
		return nil, err
	}
	session := &Session{conn: p.conn, handle: handle, fd: -1}
	if err := checkSessionHandle(handle, p.uniqueName(), sessionToken); err != nil {
		if cerr := session.Close(); cerr != nil {
			p.log.Debug().Err(cerr).Str("session", string(handle)).Msg("Failed to close rejected session")
		}
		return nil, err
	}
	p.log.Debug().Str("session", string(handle)).Msg("Created portal session")

	return session, nil
}

func (p *Portal) selectSources(ctx context.Context, session dbus.ObjectPath, types uint32) error {
	cursor := cursorMode(p.opts.CursorMode)
	if available := p.availableMask("AvailableCursorModes"); available != 0 && available&cursor == 0 {
		p.log.Debug().Uint32("available", available).Msg("Cursor mode not supported, hiding cursor")
		cursor = CursorModeHidden
	}

	options := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(types),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(cursor),
		"persist_mode": dbus.MakeVariant(persistMode(p.opts.PersistMode)),
	}
	if token := p.tokens.Load(); token != "" {
		options["restore_token"] = dbus.MakeVariant(token)
		p.log.Debug().Msg("Using saved restore token")
	}

	_, err := p.request(ctx, "SelectSources", p.opts.SelectTimeout, options, session)
	return err
}

func (p *Portal) start(ctx context.Context, session dbus.ObjectPath) ([]Stream, error) {
	results, err := p.request(ctx, "Start", p.opts.SelectTimeout, map[string]dbus.Variant{}, session, "")
	if err != nil {
		return nil, err
	}

	if v, ok := results["restore_token"]; ok {
		if token, ok := v.Value().(string); ok && token != "" {
			if err := p.tokens.Save(token); err != nil {
				p.log.Warn().Err(err).Msg("Failed to save restore token")
			} else {
				p.log.Debug().Msg("Saved restore token for future sessions")
			}
		}
	}

	v, ok := results["streams"]
	if !ok {
		return nil, errors.New("no streams in response")
	}
	return parseStreams(v.Value())
}

func (p *Portal) openPipeWireRemote(ctx context.Context, session dbus.ObjectPath) (int, error) {
	var fd dbus.UnixFD
	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()
	err := p.screenCast().CallWithContext(ctx, screenCastIface+".OpenPipeWireRemote", 0,
		session, map[string]dbus.Variant{}).Store(&fd)
	if err != nil {
		return -1, err
	}
	return int(fd), nil
}

func cursorMode(name string) uint32 {
	switch strings.ToLower(name) {
	case "hidden":
		return CursorModeHidden
	case "metadata":
		return CursorModeMetadata
	default:
		return CursorModeEmbedded
	}
}

func persistMode(name string) uint32 {
	switch strings.ToLower(name) {
	case "none":
		return PersistModeNone
	case "application":
		return PersistModeApplication
	default:
		return PersistModeSession
	}
}
