package backend

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/zones"
)

type mockSession struct {
	mock.Mock
	sent []string
}

func (m *mockSession) Do(ctx context.Context, cmd string) (string, error) {
	m.sent = append(m.sent, cmd)
	args := m.Called(cmd)
	return args.String(0), args.Error(1)
}

func (m *mockSession) Close() error {
	return m.Called().Error(0)
}

func dialerFor(s Session) Dialer {
	return func(ctx context.Context) (Session, error) { return s, nil }
}

func newApplier(s Session) *Applier {
	return New(dialerFor(s), Options{Logger: logging.Nop()})
}

const listing379 = "[1] => {\n    [id] => 3\n}\n[2] => {\n    [id] => 7\n}\n[3] => {\n    [id] => 9\n}\n\n"

func sampleSet() zones.Set {
	ns := []netip.Addr{netip.MustParseAddr("10.0.0.53"), netip.MustParseAddr("10.0.0.54")}
	return zones.Set{
		Forward: []zones.Forward{
			{Domain: "corp.example", Nameservers: ns, Type: connection.Ethernet},
			{Domain: "orphan.example", Type: connection.WiFi},
		},
		Reverse: []zones.Reverse{
			{Zone: "10.in-addr.arpa", Nameservers: ns, Type: connection.Ethernet},
		},
	}
}

func TestApplier_Commands(t *testing.T) {
	a := newApplier(nil)
	assert.Equal(t, []string{
		"policy.add(policy.suffix(policy.STUB('10.0.0.53'), {todname('corp.example')}))",
		"policy.add(policy.suffix(policy.STUB('10.0.0.53'), {todname('10.in-addr.arpa')}))",
		FallbackCommand(DefaultFallback()),
	}, a.Commands(sampleSet()))

	assert.Equal(t, []string{FallbackCommand(DefaultFallback())}, a.Commands(zones.Set{}))
}

func TestApplier_Apply(t *testing.T) {
	s := &mockSession{}
	s.On("Do", mock.Anything).Return("\n", nil)
	s.On("Close").Return(nil).Once()

	a := newApplier(s)
	require.NoError(t, a.Apply(context.Background(), sampleSet()))

	assert.Equal(t, a.Commands(sampleSet()), s.sent)
	s.AssertExpectations(t)
}

func TestApplier_RemoveAllReverseOrder(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Do", mock.MatchedBy(func(cmd string) bool { return cmd != ListRulesCommand })).Return("\n", nil)
	s.On("Close").Return(nil)

	require.NoError(t, newApplier(s).RemoveAll(context.Background()))
	assert.Equal(t, []string{ListRulesCommand, "policy.del(9)", "policy.del(7)", "policy.del(3)"}, s.sent)
}

func TestApplier_RemoveAllEmpty(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return("> \n", nil).Once()
	s.On("Close").Return(nil)

	require.NoError(t, newApplier(s).RemoveAll(context.Background()))
	assert.Equal(t, []string{ListRulesCommand}, s.sent)
}

func TestApplier_SyncRemovesBeforeApplying(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Do", mock.Anything).Return("\n", nil)
	s.On("Close").Return(nil).Once()

	a := newApplier(s)
	require.NoError(t, a.Sync(context.Background(), sampleSet()))

	want := []string{ListRulesCommand, "policy.del(9)", "policy.del(7)", "policy.del(3)"}
	want = append(want, a.Commands(sampleSet())...)
	assert.Equal(t, want, s.sent)
	s.AssertExpectations(t)
}

func TestApplier_TransportErrorAborts(t *testing.T) {
	broken := errors.New("broken pipe")
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Do", "policy.del(9)").Return("\n", nil).Once()
	s.On("Do", "policy.del(7)").Return("", broken).Once()
	s.On("Close").Return(nil)

	err := newApplier(s).Sync(context.Background(), sampleSet())
	require.Error(t, err)

	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "remove", be.Op)
	assert.Equal(t, "policy.del(7)", be.Command)
	assert.ErrorIs(t, err, broken)
	assert.True(t, IsBackendError(err))

	// Nothing after the failing command is sent.
	assert.Equal(t, []string{ListRulesCommand, "policy.del(9)", "policy.del(7)"}, s.sent)
}

func TestApplier_ListError(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return("", errors.New("EOF")).Once()
	s.On("Close").Return(nil)

	_, _, err := newApplier(s).Rules(context.Background())
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "list", be.Op)
}

func TestApplier_ConnectError(t *testing.T) {
	refused := errors.New("connection refused")
	a := New(func(ctx context.Context) (Session, error) { return nil, refused }, Options{Logger: logging.Nop()})

	err := a.Sync(context.Background(), sampleSet())
	var be *Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "connect", be.Op)
	assert.Empty(t, be.Command)
	assert.ErrorIs(t, err, refused)
}

func TestApplier_CancelledBetweenCommands(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Do", "policy.del(9)").Run(func(mock.Arguments) { cancel() }).Return("\n", nil).Once()
	s.On("Close").Return(nil)

	err := newApplier(s).Sync(ctx, sampleSet())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{ListRulesCommand, "policy.del(9)"}, s.sent)
}

func TestApplier_DryRun(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Close").Return(nil)

	a := New(dialerFor(s), Options{DryRun: true, Logger: logging.Nop()})
	require.NoError(t, a.Sync(context.Background(), sampleSet()))
	assert.Equal(t, []string{ListRulesCommand}, s.sent)
}

func TestApplier_Rules(t *testing.T) {
	s := &mockSession{}
	s.On("Do", ListRulesCommand).Return(listing379, nil).Once()
	s.On("Close").Return(nil)

	ids, raw, err := newApplier(s).Rules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{3, 7, 9}, ids)
	assert.Equal(t, listing379, raw)
}

func TestCommandDiff(t *testing.T) {
	assert.Empty(t, commandDiff([]string{"a"}, []string{"a"}))

	diff := commandDiff([]string{"a", "b"}, []string{"a", "c"})
	assert.Contains(t, diff, "--- installed")
	assert.Contains(t, diff, "-b")
	assert.Contains(t, diff, "+c")
}

func TestError(t *testing.T) {
	err := &Error{Op: "apply", Command: "policy.del(1)", Err: errors.New("timeout")}
	assert.Equal(t, `backend apply: "policy.del(1)": timeout`, err.Error())

	err = &Error{Op: "connect", Err: errors.New("refused")}
	assert.Equal(t, "backend connect: refused", err.Error())
	assert.False(t, IsBackendError(errors.New("other")))
}
