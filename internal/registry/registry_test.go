package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemRegistryResolve(t *testing.T) {
	reg := NewMemRegistry(
		Skill{ID: "spec"},
		Skill{ID: "build", Prerequisites: []string{"spec"}},
	)

	skill, err := reg.Resolve("build")
	require.NoError(t, err)
	assert.Equal(t, []string{"spec"}, skill.Prerequisites)

	_, err = reg.Resolve("ghost")
	assert.ErrorIs(t, err, ErrSkillNotFound)
}

func writeSkill(t *testing.T, dir, id string, prereqs []string) {
	t.Helper()
	doc := "schema_version: 1\nfile_type: skill\nid: " + id + "\n"
	if len(prereqs) > 0 {
		doc += "prerequisites:\n"
		for _, p := range prereqs {
			doc += "  - " + p + "\n"
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(doc), 0644))
}

func TestDirRegistryLoadsSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "spec", nil)
	writeSkill(t, dir, "build", []string{"spec"})

	reg, err := NewDirRegistry(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	skill, err := reg.Resolve("build")
	require.NoError(t, err)
	assert.Equal(t, []string{"spec"}, skill.Prerequisites)
}

func TestDirRegistryQuarantinesCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "spec", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{{{{"), 0644))

	reg, err := NewDirRegistry(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())

	_, err = reg.Resolve("broken")
	assert.ErrorIs(t, err, ErrSkillNotFound)

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// countingRegistry counts backing resolves to observe cache behavior.
type countingRegistry struct {
	inner Registry
	calls atomic.Int64
}

func (c *countingRegistry) Resolve(skillID string) (Skill, error) {
	c.calls.Add(1)
	return c.inner.Resolve(skillID)
}

func TestCachedRegistryHitsBackingOnce(t *testing.T) {
	backing := &countingRegistry{inner: NewMemRegistry(Skill{ID: "spec"})}
	cached := NewCachedRegistry(backing, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Resolve("spec")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Concurrent resolves collapse; sequential ones hit the cache.
	_, _ = cached.Resolve("spec")
	assert.LessOrEqual(t, backing.calls.Load(), int64(2))
}

func TestCachedRegistryCachesNotFound(t *testing.T) {
	backing := &countingRegistry{inner: NewMemRegistry()}
	cached := NewCachedRegistry(backing, time.Minute)

	_, err := cached.Resolve("ghost")
	assert.ErrorIs(t, err, ErrSkillNotFound)
	before := backing.calls.Load()

	_, err = cached.Resolve("ghost")
	assert.ErrorIs(t, err, ErrSkillNotFound)
	assert.Equal(t, before, backing.calls.Load(), "second miss should come from the cache")
}

func TestCachedRegistryInvalidate(t *testing.T) {
	mem := NewMemRegistry(Skill{ID: "spec"})
	backing := &countingRegistry{inner: mem}
	cached := NewCachedRegistry(backing, time.Minute)

	_, err := cached.Resolve("spec")
	require.NoError(t, err)
	before := backing.calls.Load()

	cached.Invalidate()
	_, err = cached.Resolve("spec")
	require.NoError(t, err)
	assert.Greater(t, backing.calls.Load(), before)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "spec", nil)

	reg, err := NewDirRegistry(dir)
	require.NoError(t, err)

	w, err := NewWatcher(reg, nil, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	writeSkill(t, dir, "build", []string{"spec"})

	require.Eventually(t, func() bool {
		_, err := reg.Resolve("build")
		return err == nil
	}, 5*time.Second, 25*time.Millisecond, "new skill file should become resolvable")
}

func TestWatcherInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "spec", nil)

	reg, err := NewDirRegistry(dir)
	require.NoError(t, err)
	cached := NewCachedRegistry(reg, time.Hour)

	_, err = cached.Resolve("ship")
	require.Error(t, err)

	w, err := NewWatcher(reg, cached, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	writeSkill(t, dir, "ship", nil)

	require.Eventually(t, func() bool {
		_, err := cached.Resolve("ship")
		return err == nil
	}, 5*time.Second, 25*time.Millisecond, "cached miss should be invalidated after reload")
}

func TestDirRegistryMissingDir(t *testing.T) {
	_, err := NewDirRegistry(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSkillNotFound))
}
