package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tilebridge/gateway"
	"tilebridge/pixel"
)

// Shared in-package fakes for the gateway boundary. The simulated fleet in
// gateway/gatewaytest is for end-to-end use; these stay minimal so pool tests
// can count calls precisely.

var testDesc = gateway.ImageDescription{
	Levels: []gateway.ResolutionDescription{
		{Width: 512, Height: 512},
		{Width: 256, Height: 256},
		{Width: 128, Height: 128},
	},
	Channels: 2,
	SizeZ:    1,
	SizeT:    1,
	Format:   pixel.Format{Type: pixel.Uint8, Order: pixel.BigEndian, Layout: pixel.Separated},
}

type fakeStore struct {
	mu       sync.Mutex
	desc     gateway.ImageDescription
	level    int
	reads    int
	closes   int
	closeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{desc: testDesc}
}

func (s *fakeStore) Describe(context.Context) (gateway.ImageDescription, error) {
	return s.desc, nil
}

func (s *fakeStore) SetResolutionLevel(_ context.Context, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < 0 || level >= len(s.desc.Levels) {
		return fmt.Errorf("no such level %d", level)
	}
	s.level = level
	return nil
}

func (s *fakeStore) GetTileBytes(_ context.Context, _, _, _, _, _, w, h int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	buf := make([]byte, w*h)
	for i := range buf {
		buf[i] = byte(s.level)
	}
	return buf, nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return s.closeErr
}

func (s *fakeStore) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeConn struct {
	mu         sync.Mutex
	addr       string
	group      string
	owning     map[string]string // imageID → owning group
	alive      bool
	resolveErr error
	stores     []*fakeStore
	setGroups  []string
	closed     bool
}

func newFakeConn(addr string, owning map[string]string) *fakeConn {
	return &fakeConn{addr: addr, group: "default", owning: owning, alive: true}
}

func (c *fakeConn) Addr() string { return c.addr }

func (c *fakeConn) ActiveGroup() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.group
}

func (c *fakeConn) SetActiveGroup(_ context.Context, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group = group
	c.setGroups = append(c.setGroups, group)
	return nil
}

func (c *fakeConn) ResolveGroup(_ context.Context, imageID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolveErr != nil {
		return "", c.resolveErr
	}
	group, ok := c.owning[imageID]
	if !ok {
		return "", fmt.Errorf("image %q not on this server", imageID)
	}
	return group, nil
}

func (c *fakeConn) OpenPixelStore(_ context.Context, imageID string) (gateway.PixelStore, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.owning[imageID]; !ok {
		return nil, fmt.Errorf("image %q not on this server", imageID)
	}
	s := newFakeStore()
	c.stores = append(c.stores, s)
	return s, nil
}

func (c *fakeConn) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.alive = false
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	fail  map[string]error
	dials map[string]int
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	d := &fakeDialer{
		conns: make(map[string]*fakeConn),
		fail:  make(map[string]error),
		dials: make(map[string]int),
	}
	for _, c := range conns {
		d.conns[c.addr] = c
	}
	return d
}

func (d *fakeDialer) Dial(_ context.Context, addr string) (gateway.Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[addr]++
	if err := d.fail[addr]; err != nil {
		return nil, err
	}
	c, ok := d.conns[addr]
	if !ok {
		return nil, errors.New("unknown server")
	}
	return c, nil
}

func (d *fakeDialer) dialCount(addr string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[addr]
}

// countingFactory creates plain handles over fresh fake stores and keeps
// every store it made, so tests can audit close behavior.
type countingFactory struct {
	mu     sync.Mutex
	stores []*fakeStore
	err    error
}

func (f *countingFactory) NewHandle(context.Context) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := newFakeStore()
	f.stores = append(f.stores, s)
	return newHandle(s, s.desc), nil
}

func (f *countingFactory) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *countingFactory) made() []*fakeStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeStore, len(f.stores))
	copy(out, f.stores)
	return out
}
