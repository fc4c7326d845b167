package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eacopy/eacopy/internal/filter"
)

var testMtime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, time.Time{}, testMtime))
	}
}

func TestRunCopy_ColdThenWarm(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	files := map[string]string{
		"a.bin":     "hello",
		"sub/b.bin": "hello",
		"sub/c.bin": "world",
	}
	writeTree(t, src, files)

	job := Job{
		SrcRoot:       src,
		DstRoot:       dst,
		Workers:       2,
		SkipIfSameKey: true,
	}

	result, err := RunCopy(context.Background(), job)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Equal(t, int64(3), result.Stats.FilesCopied)
	assert.Equal(t, int64(15), result.Stats.BytesWritten)

	for rel, content := range files {
		path := filepath.Join(dst, rel)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, content, string(got))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.True(t, info.ModTime().Equal(testMtime), "mtime not preserved for %s", rel)
	}

	// Warm re-run: identical source, everything skipped, zero bytes.
	result, err = RunCopy(context.Background(), job)
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Equal(t, int64(3), result.Stats.FilesSkipped)
	assert.Equal(t, int64(0), result.Stats.FilesCopied)
	assert.Equal(t, int64(0), result.Stats.BytesWritten)
}

func TestRunCopy_HardlinkPrePass(t *testing.T) {
	src := t.TempDir()
	gen1 := t.TempDir()
	gen2 := t.TempDir()
	writeTree(t, src, map[string]string{"asset.bin": "generation content"})

	// First generation: a normal copy.
	_, err := RunCopy(context.Background(), Job{SrcRoot: src, DstRoot: gen1, Workers: 1})
	require.NoError(t, err)

	// Second generation: the unchanged file is served from gen1 by link.
	result, err := RunCopy(context.Background(), Job{
		SrcRoot:      src,
		DstRoot:      gen2,
		PrevDstRoot:  gen1,
		Workers:      1,
		UseHardlinks: true,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Equal(t, int64(1), result.Stats.FilesHardlinked)
	assert.Equal(t, int64(0), result.Stats.BytesWritten)

	a, err := os.Stat(filepath.Join(gen1, "asset.bin"))
	require.NoError(t, err)
	b, err := os.Stat(filepath.Join(gen2, "asset.bin"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(a, b))
}

func TestRunCopy_FilterExcludes(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":       "kept",
		"skip.tmp":       "dropped",
		"build/out.bin":  "pruned with its directory",
		"build/deep/x.o": "pruned too",
	})

	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("*.tmp"))
	require.NoError(t, chain.AddExclude("build/"))

	result, err := RunCopy(context.Background(), Job{
		SrcRoot: src,
		DstRoot: dst,
		Workers: 1,
		Filter:  chain,
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Equal(t, int64(1), result.Stats.FilesCopied)

	_, err = os.Stat(filepath.Join(dst, "keep.txt"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "skip.tmp"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "build"))
	assert.True(t, os.IsNotExist(err), "an excluded directory is pruned, not descended")
}

func TestRunCopy_MissingSourceRoot(t *testing.T) {
	dst := t.TempDir()
	result, err := RunCopy(context.Background(), Job{
		SrcRoot: filepath.Join(t.TempDir(), "does-not-exist"),
		DstRoot: dst,
		Workers: 1,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Errors)
}

func TestRunCopy_JournalSkipsCompletedFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTree(t, src, map[string]string{"one.bin": "payload"})
	journalPath := filepath.Join(t.TempDir(), "journal.db")

	job := Job{
		ID:          "job-1",
		SrcRoot:     src,
		DstRoot:     dst,
		Workers:     1,
		JournalPath: journalPath,
	}

	result, err := RunCopy(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Stats.FilesCopied)

	// Simulate a crash-restart: the destination file is gone but the
	// journal still records it complete, so the re-run trusts the journal.
	require.NoError(t, os.Remove(filepath.Join(dst, "one.bin")))

	result, err = RunCopy(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Stats.FilesCopied)
	assert.Equal(t, int64(1), result.Stats.FilesSkipped)
}

func TestIndexDestination(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.bin":     "aa",
		"sub/b.bin": "bbb",
	})

	idx, err := IndexDestination(root)
	require.NoError(t, err)
	require.Len(t, idx, 2)

	key := DestKey{Name: "a.bin", ModTime: testMtime.UnixNano(), Size: 2}
	assert.Equal(t, filepath.Join(root, "a.bin"), idx[key])

	key = DestKey{Name: filepath.Join("sub", "b.bin"), ModTime: testMtime.UnixNano(), Size: 3}
	assert.Equal(t, filepath.Join(root, "sub", "b.bin"), idx[key])
}
