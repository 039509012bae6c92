package pool

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tilebridge/affinity"
	"tilebridge/directory"
	"tilebridge/gateway"
)

// ErrImageUnresolvable is returned when no connection in the fleet can
// resolve the image. Fatal for the tile request; the pool never retries it.
var ErrImageUnresolvable = errors.New("pool: no connection can resolve image")

// Factory creates handles for one image by probing the fleet: the preferred
// connection first, then every other live connection, stopping at the first
// one that resolves the image to its owning group.
type Factory struct {
	provider  *Provider
	picker    affinity.Picker
	imageID   string
	preferred string // server address to probe first; empty lets the picker decide
	logger    *zap.Logger
}

// NewFactory builds a handle factory for one image. preferred may be empty;
// picker may be nil, defaulting to image-hash affinity so repeat opens of the
// same image land on the same server.
func NewFactory(provider *Provider, imageID, preferred string, picker affinity.Picker, logger *zap.Logger) *Factory {
	if picker == nil {
		picker = affinity.NewImageHash()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		provider:  provider,
		picker:    picker,
		imageID:   imageID,
		preferred: preferred,
		logger:    logger.With(zap.String("image", imageID)),
	}
}

// NewHandle probes connections in preference order until one can resolve the
// image, switches that session into the image's owning group if needed, opens
// a fresh pixel store, and reads the pyramid metadata once.
//
// Any failure on one connection is logged and the next is tried; only total
// failure across the fleet is an error.
func (f *Factory) NewHandle(ctx context.Context) (*Handle, error) {
	conns, err := f.provider.Connections(ctx)
	if err != nil {
		return nil, err
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("%w %q: fleet is empty", ErrImageUnresolvable, f.imageID)
	}

	for _, conn := range f.probeOrder(conns) {
		h, err := f.open(ctx, conn)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.logger.Warn("connection cannot serve image",
				zap.String("addr", conn.Addr()), zap.Error(err))
			continue
		}
		return h, nil
	}
	return nil, fmt.Errorf("%w %q: tried %d connections", ErrImageUnresolvable, f.imageID, len(conns))
}

// open resolves the image on one connection and wraps a fresh store.
func (f *Factory) open(ctx context.Context, conn gateway.Connection) (*Handle, error) {
	group, err := conn.ResolveGroup(ctx, f.imageID)
	if err != nil {
		return nil, fmt.Errorf("resolve group: %w", err)
	}

	// Switching the active group mutates session-wide state; it is the
	// vendor contract for resolving objects, so at least make it visible.
	if conn.ActiveGroup() != group {
		f.logger.Info("switching session group",
			zap.String("addr", conn.Addr()),
			zap.String("from", conn.ActiveGroup()),
			zap.String("to", group))
		if err := conn.SetActiveGroup(ctx, group); err != nil {
			return nil, fmt.Errorf("switch to group %q: %w", group, err)
		}
	}

	store, err := conn.OpenPixelStore(ctx, f.imageID)
	if err != nil {
		return nil, fmt.Errorf("open pixel store: %w", err)
	}

	desc, err := store.Describe(ctx)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("describe image: %w", err)
	}

	h := newHandle(store, desc)
	f.logger.Debug("handle created",
		zap.String("handle", h.ID()),
		zap.String("addr", conn.Addr()),
		zap.Int("levels", h.Levels()))
	return h, nil
}

// probeOrder puts the preferred connection first, or the affinity pick when
// no preference was given, keeping the rest in fleet order.
func (f *Factory) probeOrder(conns []gateway.Connection) []gateway.Connection {
	first := f.preferred
	if first == "" {
		servers := make([]directory.ServerInfo, len(conns))
		for i, c := range conns {
			servers[i] = directory.ServerInfo{Addr: c.Addr()}
		}
		if pick, err := f.picker.Pick(f.imageID, servers); err == nil {
			first = pick.Addr
		}
	}

	ordered := make([]gateway.Connection, 0, len(conns))
	for _, c := range conns {
		if c.Addr() == first {
			ordered = append(ordered, c)
			break
		}
	}
	for _, c := range conns {
		if c.Addr() != first {
			ordered = append(ordered, c)
		}
	}
	return ordered
}
