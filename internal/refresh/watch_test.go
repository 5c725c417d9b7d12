package refresh

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshrotenberg/skillet/internal/source"
	"github.com/joshrotenberg/skillet/internal/testutil"
)

func TestHidden(t *testing.T) {
	root := "/srv/skills"
	assert.True(t, hidden(root, "/srv/skills/.git/HEAD"))
	assert.True(t, hidden(root, "/srv/skills/acme/.swp"))
	assert.False(t, hidden(root, "/srv/skills/acme/foo/SKILL.md"))
	assert.False(t, hidden(root, root))
}

func TestWatch_DebouncesBursts(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, 50*time.Millisecond, quietLogger(), func() { calls.Add(1) })
	}()
	time.Sleep(100 * time.Millisecond) // let the watcher register

	for i := range 5 {
		testutil.WriteFile(t, filepath.Join(root, "acme", "foo", "SKILL.md"), "# foo\n"+string(rune('a'+i)))
	}
	testutil.Eventually(t, 2*time.Second, 10*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "watcher never fired")
	time.Sleep(150 * time.Millisecond)
	assert.LessOrEqual(t, calls.Load(), int32(2), "burst collapses into few reloads")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatch_MissingRoot(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope"), 0, quietLogger(), func() {})
	assert.Error(t, err)
}

func TestRun_WatchReloadsLocalSource(t *testing.T) {
	root := t.TempDir()
	testutil.WriteSkill(t, root, "acme", "foo", testutil.Skill{})
	src, err := source.NewLocal(root, "", nil)
	require.NoError(t, err)

	c := New(Options{
		Sources:       []source.Source{src},
		Watch:         true,
		WatchDebounce: 50 * time.Millisecond,
		Logger:        quietLogger(),
	})
	require.NoError(t, c.Start(context.Background()))
	require.Len(t, c.Current().Index.Skills, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	testutil.WriteSkill(t, root, "acme", "bar", testutil.Skill{})
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(c.Current().Index.Skills) == 2
	}, "watch did not reload")

	require.NoError(t, os.RemoveAll(filepath.Join(root, "acme", "bar")))
	testutil.Eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(c.Current().Index.Skills) == 1
	}, "watch did not drop removed skill")
}
