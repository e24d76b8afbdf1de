package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

func newLedger(t *testing.T) (*Ledger, *config.Config) {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Root = t.TempDir()
	return New(cfg, log.Nop()), cfg
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		v    Version
		want string
	}{
		{Version{}, "v0000"},
		{Version{Prefix: "v", Width: 4, N: 7}, "v0007"},
		{Version{Prefix: "v", Width: 4, N: 12345}, "v12345"},
		{Version{Prefix: "r", Width: 2, N: 3}, "r03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"v0001", 1, false},
		{"v0042\n", 42, false},
		{"  v0100  ", 100, false},
		{"v0003-rc", 3, false},
		{"0003", 0, true},
		{"v", 0, true},
		{"garbage", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in, "v", 4)
			if tt.wantErr {
				var perr *ParseError
				assert.True(t, errors.As(err, &perr), "want *ParseError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.N)
		})
	}
}

func TestReadAbsent(t *testing.T) {
	l, _ := newLedger(t)
	v, err := l.Read()
	require.NoError(t, err)
	assert.Equal(t, "v0000", v.String())
	assert.True(t, v.IsZero())
}

func TestIncrementMonotonic(t *testing.T) {
	l, cfg := newLedger(t)

	last := l.Zero()
	for i := 1; i <= 5; i++ {
		next, prev, err := l.Increment()
		require.NoError(t, err)
		assert.Equal(t, last, prev)
		assert.True(t, prev.Less(next))
		assert.Equal(t, i, next.N)
		last = next
	}

	data, err := os.ReadFile(cfg.VersionFile())
	require.NoError(t, err)
	assert.Equal(t, "v0005\n", string(data))
}

func TestIncrementRecoversFromGarbage(t *testing.T) {
	l, cfg := newLedger(t)
	require.NoError(t, os.WriteFile(cfg.VersionFile(), []byte("not-a-version"), 0o644))

	next, prev, err := l.Increment()
	require.NoError(t, err)
	assert.True(t, prev.IsZero())
	assert.Equal(t, "v0001", next.String())
}

func TestIncrementWriteFailure(t *testing.T) {
	cfg := config.NewConfig()
	root := t.TempDir()
	// VERSION's parent is a regular file, so the write must fail
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocked"), nil, 0o644))
	cfg.Root = root
	cfg.Paths.VersionFile = "blocked/VERSION"

	_, _, err := New(cfg, log.Nop()).Increment()
	assert.Error(t, err)
}

func TestCurrentPointer(t *testing.T) {
	l, cfg := newLedger(t)

	cur, err := l.Current()
	require.NoError(t, err)
	assert.True(t, cur.IsZero())

	next, _, err := l.Increment()
	require.NoError(t, err)
	require.NoError(t, l.SetCurrent(next))

	cur, err = l.Current()
	require.NoError(t, err)
	assert.Equal(t, next, cur)
	assert.FileExists(t, cfg.CurrentFile())
}
