// Package gateway defines the boundary to the vendor-supplied remote-object
// client. tilebridge never frames bytes on a wire itself — the server's
// protocol is proprietary — so everything the pool and client consume from the
// remote side is expressed as these interfaces, with the vendor client (or the
// in-memory simulation in gateway/gatewaytest) behind them.
package gateway

import (
	"context"

	"tilebridge/pixel"
)

// Dialer opens a session to one image server.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Connection, error)
}

// Connection is one live session to one image server.
//
// Sessions are stateful on the remote side: they carry an active group (the
// server's access-scope/workspace concept), and some objects only resolve
// while the session is switched into their owning group.
type Connection interface {
	// Addr returns the server address this session is bound to.
	Addr() string

	// ActiveGroup returns the session's current working group.
	ActiveGroup() string

	// SetActiveGroup switches the session into the given group.
	SetActiveGroup(ctx context.Context, group string) error

	// ResolveGroup resolves an image identifier to its owning group, or
	// errors if this server does not know the image.
	ResolveGroup(ctx context.Context, imageID string) (string, error)

	// OpenPixelStore opens a fresh pixel-store proxy scoped to the image's
	// pixel set. The session must already be in the image's owning group.
	OpenPixelStore(ctx context.Context, imageID string) (PixelStore, error)

	// Alive reports whether the session is still usable.
	Alive() bool

	// Close tears the session down.
	Close() error
}

// ResolutionDescription describes one entry of an image pyramid.
type ResolutionDescription struct {
	Width  int
	Height int
}

// ImageDescription is the per-image metadata a pixel store reports once at
// open time.
type ImageDescription struct {
	Levels   []ResolutionDescription // level 0 first, i.e. full resolution
	Channels int
	SizeZ    int
	SizeT    int
	Format   pixel.Format
}

// PixelStore is a session-bound proxy to one image's pixel data.
//
// A store serves one request at a time: it is NOT safe for concurrent calls,
// and SetResolutionLevel followed by GetTileBytes is a stateful sequence that
// callers must treat as a single critical section. The pool's Handle wraps a
// store together with the lock that enforces exactly that.
type PixelStore interface {
	// Describe reports the pyramid geometry and pixel format, read once at
	// handle-creation time and cached on the handle.
	Describe(ctx context.Context) (ImageDescription, error)

	// SetResolutionLevel selects the pyramid level subsequent reads use.
	SetResolutionLevel(ctx context.Context, level int) error

	// GetTileBytes fetches the raw bytes of one channel of one tile at the
	// currently selected level.
	GetTileBytes(ctx context.Context, z, channel, t, x, y, w, h int) ([]byte, error)

	// Close releases the remote-side store.
	Close() error
}
