package plug

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"authplug/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPlug returns canned results and records every call
type recordingPlug struct {
	fetchIdentity *auth.Identity
	fetchErr      error
	createErr     error
	deleteErr     error

	fetchCalls  int
	createCalls int
	deleteCalls int

	// seen holds the active plug observed inside each operation
	seen []Plug
}

func (p *recordingPlug) Fetch(conn *Conn, cfg Config) (*auth.Identity, error) {
	p.fetchCalls++
	p.seen = append(p.seen, cfg.Plug())
	return p.fetchIdentity, p.fetchErr
}

func (p *recordingPlug) Create(conn *Conn, identity *auth.Identity, cfg Config) (*auth.Identity, error) {
	p.createCalls++
	p.seen = append(p.seen, cfg.Plug())
	if p.createErr != nil {
		return nil, p.createErr
	}
	return identity, nil
}

func (p *recordingPlug) Delete(conn *Conn, cfg Config) error {
	p.deleteCalls++
	p.seen = append(p.seen, cfg.Plug())
	return p.deleteErr
}

func newTestConn() *Conn {
	return NewConn(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestCall_FetchesWhenNoIdentity(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{fetchIdentity: &auth.Identity{Subject: "1"}}
	conn := newTestConn()

	require.NoError(t, Call(p, conn, NewConfig(nil)))

	assert.Equal(t, 1, p.fetchCalls)
	assert.Equal(t, "1", conn.CurrentIdentity().Subject)
	assert.Same(t, p, conn.Config().Plug())
}

func TestCall_FetchReturnsAbsence(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{}
	conn := newTestConn()

	require.NoError(t, Call(p, conn, NewConfig(nil)))

	assert.Equal(t, 1, p.fetchCalls)
	assert.Nil(t, conn.CurrentIdentity())
}

func TestCall_ShortCircuitsOnAssignedIdentity(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{fetchIdentity: &auth.Identity{Subject: "other"}}
	conn := newTestConn()
	existing := &auth.Identity{Subject: "7"}
	conn.AssignIdentity(existing)

	require.NoError(t, Call(p, conn, NewConfig(map[string]any{"a": 1})))

	assert.Equal(t, 0, p.fetchCalls)
	assert.Same(t, existing, conn.CurrentIdentity())
	// the config is still enriched and stored
	assert.Same(t, p, conn.Config().Plug())
}

func TestCall_Idempotent(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{fetchIdentity: &auth.Identity{Subject: "1"}}
	conn := newTestConn()
	cfg := NewConfig(nil)

	require.NoError(t, Call(p, conn, cfg))
	first := conn.CurrentIdentity()
	require.NoError(t, Call(p, conn, cfg))

	assert.Equal(t, 1, p.fetchCalls)
	assert.Same(t, first, conn.CurrentIdentity())
}

func TestCall_ActivePlugVisibleInsideOperations(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{}
	conn := newTestConn()

	require.NoError(t, Call(p, conn, NewConfig(nil)))
	require.NoError(t, CreateSession(conn, &auth.Identity{Subject: "1"}))
	require.NoError(t, DeleteSession(conn))

	require.Len(t, p.seen, 3)
	for _, seen := range p.seen {
		assert.Same(t, p, seen)
	}
}

func TestCall_DoesNotMutateCallerConfig(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{}
	cfg := NewConfig(map[string]any{"cookie_name": "sid"})

	require.NoError(t, Call(p, newTestConn(), cfg))

	assert.Nil(t, cfg.Plug())
	assert.Equal(t, "sid", cfg.String("cookie_name", ""))
}

func TestCall_PropagatesFetchError(t *testing.T) {
	t.Parallel()
	boom := errors.New("backend down")
	p := &recordingPlug{fetchErr: boom}
	conn := newTestConn()

	err := Call(p, conn, NewConfig(nil))

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, conn.CurrentIdentity())
}

func TestDoCreate_AssignsCreatedIdentity(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{}
	conn := newTestConn()
	conn.AssignIdentity(&auth.Identity{Subject: "old"})
	identity := &auth.Identity{Subject: "new"}

	require.NoError(t, DoCreate(p, conn, identity, NewConfig(nil)))

	assert.Same(t, identity, conn.CurrentIdentity())
}

func TestDoCreate_ErrorLeavesIdentity(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{createErr: errors.New("store unavailable")}
	conn := newTestConn()
	old := &auth.Identity{Subject: "old"}
	conn.AssignIdentity(old)

	assert.Error(t, DoCreate(p, conn, &auth.Identity{Subject: "new"}, NewConfig(nil)))
	assert.Same(t, old, conn.CurrentIdentity())
}

func TestDoDelete_ClearsIdentity(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		identity *auth.Identity
	}{
		{name: "with identity", identity: &auth.Identity{Subject: "3"}},
		{name: "without identity"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &recordingPlug{}
			conn := newTestConn()
			conn.AssignIdentity(tc.identity)

			require.NoError(t, DoDelete(p, conn, NewConfig(nil)))

			assert.Equal(t, 1, p.deleteCalls)
			assert.Nil(t, conn.CurrentIdentity())
		})
	}
}

func TestDoFetch_ReplacesIdentity(t *testing.T) {
	t.Parallel()
	p := &recordingPlug{}
	conn := newTestConn()
	conn.AssignIdentity(&auth.Identity{Subject: "stale"})

	require.NoError(t, DoFetch(p, conn, NewConfig(nil)))

	assert.Nil(t, conn.CurrentIdentity())
}

func TestSessionHelpers_NoActivePlug(t *testing.T) {
	t.Parallel()
	conn := newTestConn()

	assert.ErrorIs(t, CreateSession(conn, &auth.Identity{Subject: "1"}), ErrNoActivePlug)
	assert.ErrorIs(t, DeleteSession(conn), ErrNoActivePlug)
	assert.ErrorIs(t, RefreshIdentity(conn), ErrNoActivePlug)
}

func TestSessionHelpers_RouteToLastDispatcher(t *testing.T) {
	t.Parallel()
	first := &recordingPlug{fetchIdentity: &auth.Identity{Subject: "1"}}
	second := &recordingPlug{}
	conn := newTestConn()

	require.NoError(t, Call(first, conn, NewConfig(nil)))
	require.NoError(t, Call(second, conn, NewConfig(nil)))
	require.NoError(t, DeleteSession(conn))

	assert.Equal(t, 0, second.fetchCalls)
	assert.Equal(t, 0, first.deleteCalls)
	assert.Equal(t, 1, second.deleteCalls)
	assert.Nil(t, conn.CurrentIdentity())
}

// overridingPlug replaces Init, Call and DoDelete
type overridingPlug struct {
	recordingPlug
	calls int
}

func (p *overridingPlug) Init(cfg Config) (Config, error) {
	return cfg.With("initialized", true), nil
}

func (p *overridingPlug) Call(conn *Conn, cfg Config) error {
	p.calls++
	return DefaultCall(p, conn, cfg.With("overridden", true))
}

func (p *overridingPlug) DoDelete(conn *Conn, cfg Config) error {
	// keeps the identity assigned
	return p.Delete(conn, cfg)
}

func TestOverrides(t *testing.T) {
	t.Parallel()
	p := &overridingPlug{recordingPlug: recordingPlug{fetchIdentity: &auth.Identity{Subject: "1"}}}
	conn := newTestConn()

	cfg, err := Init(p, NewConfig(nil))
	require.NoError(t, err)
	assert.True(t, cfg.Bool("initialized", false))

	require.NoError(t, Call(p, conn, cfg))
	assert.Equal(t, 1, p.calls)
	assert.True(t, conn.Config().Bool("overridden", false))
	assert.Same(t, p, conn.Config().Plug())

	require.NoError(t, DeleteSession(conn))
	assert.Equal(t, 1, p.deleteCalls)
	assert.NotNil(t, conn.CurrentIdentity())
}

func TestInit_DefaultIsIdentity(t *testing.T) {
	t.Parallel()
	cfg := NewConfig(map[string]any{"a": "b"})

	got, err := Init(&recordingPlug{}, cfg)

	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
