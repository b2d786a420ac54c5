package login

import (
	"context"
	"sync"
	"time"

	"github.com/signalix/loginbroker/internal/model"
	"github.com/signalix/loginbroker/internal/provider"
)

// fakeGateway is a scriptable provider. Zero value accepts every call and
// exports "T1".
type fakeGateway struct {
	mu sync.Mutex

	openErr    error
	requestErr error
	// signIn decides the SignIn outcome; nil accepts everything
	signIn    func(phone, code, password string) error
	token     string
	exportErr error
	// gate, when set, blocks SignIn until closed
	gate chan struct{}

	conns []*fakeConn
}

func (g *fakeGateway) Open(ctx context.Context) (provider.Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.openErr != nil {
		return nil, g.openErr
	}
	c := &fakeConn{gw: g}
	g.conns = append(g.conns, c)
	return c, nil
}

func (g *fakeGateway) opened() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// closeCounts returns how many times each opened connection was closed
func (g *fakeGateway) closeCounts() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, len(g.conns))
	for i, c := range g.conns {
		out[i] = c.closes
	}
	return out
}

type fakeConn struct {
	gw     *fakeGateway
	closes int
	signIn []string
}

func (c *fakeConn) RequestCode(ctx context.Context, phone string) error {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	return c.gw.requestErr
}

func (c *fakeConn) SignIn(ctx context.Context, phone, code, password string) error {
	c.gw.mu.Lock()
	gate := c.gw.gate
	fn := c.gw.signIn
	c.signIn = append(c.signIn, code+"/"+password)
	c.gw.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fn == nil {
		return nil
	}
	return fn(phone, code, password)
}

func (c *fakeConn) ExportSession(ctx context.Context) (string, error) {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	if c.gw.exportErr != nil {
		return "", c.gw.exportErr
	}
	if c.gw.token == "" {
		return "T1", nil
	}
	return c.gw.token, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	c.closes++
	return nil
}

// memStore is an in-memory SessionStore
type memStore struct {
	mu     sync.Mutex
	tokens map[string]string
	putErr error
}

func newMemStore() *memStore {
	return &memStore{tokens: make(map[string]string)}
}

func (m *memStore) Put(ctx context.Context, phone, token string) (model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return model.SessionRecord{}, m.putErr
	}
	m.tokens[phone] = token
	return model.SessionRecord{PhoneNumber: phone, Token: token, SavedAt: time.Now()}, nil
}

func (m *memStore) Delete(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, phone)
	return nil
}

func (m *memStore) get(phone string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[phone]
	return t, ok
}

func stateOf(t interface{ Helper() }, r *Registry, phone string) (State, bool) {
	t.Helper()
	a, ok := r.Get(phone)
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return a.state, true
}
