package bluetooth

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/bluekit/internal/testutils"
)

// testRig wires a scripted daemon to a fresh Manager.
type testRig struct {
	t      *testing.T
	daemon *testutils.Daemon
	helper *testutils.TestHelper
	m      *Manager
}

func newTestRig(t *testing.T) *testRig {
	th := testutils.NewTestHelper(t)
	d := testutils.NewDaemon()

	m, err := NewManager(context.Background(), d.Bus, th.Logger)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return &testRig{t: t, daemon: d, helper: th, m: m}
}

// changeLog collects observer notifications across goroutines.
type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (l *changeLog) add(c Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, c)
}

func (l *changeLog) snapshot() []Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Change(nil), l.changes...)
}

func (l *changeLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.changes)
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "canonical form passes through",
			in:   "AA:BB:CC:DD:EE:FF",
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name: "lowercase is uppercased",
			in:   "aa:bb:cc:dd:ee:ff",
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name: "dash separators accepted",
			in:   "aa-bb-cc-dd-ee-ff",
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name: "surrounding whitespace trimmed",
			in:   " AA:BB:CC:DD:EE:FF\n",
			want: "AA:BB:CC:DD:EE:FF",
		},
		{
			name:    "too few octets",
			in:      "AA:BB:CC:DD:EE",
			wantErr: true,
		},
		{
			name:    "non-hex octet",
			in:      "AA:BB:CC:DD:EE:GG",
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress("aa-bb-cc-dd-ee-ff"))
	assert.ErrorIs(t, ValidateAddress("nonsense"), ErrInvalidAddress)
}

func TestAddressFromPath(t *testing.T) {
	addr, ok := addressFromPath("/org/bluez/hci0/dev_00_1A_2B_3C_4D_5E")
	require.True(t, ok)
	assert.Equal(t, "00:1A:2B:3C:4D:5E", addr)

	_, ok = addressFromPath("/org/bluez/hci0")
	assert.False(t, ok)

	_, ok = addressFromPath("dev_not_an_address")
	assert.False(t, ok)
}
