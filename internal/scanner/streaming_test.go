package scanner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamChunksAreLineAligned(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "line %02d\n", i)
	}
	content := b.String()
	path := writeFile(t, dir, "input.txt", content)

	var rebuilt strings.Builder
	wantBase := 1
	err := streamChunks(context.Background(), path, 64, func(chunk []byte, baseLine int) error {
		assert.Equal(t, wantBase, baseLine)
		assert.Equal(t, byte('\n'), chunk[len(chunk)-1])
		rebuilt.Write(chunk)
		wantBase += strings.Count(string(chunk), "\n")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, content, rebuilt.String())
}

func TestStreamChunksTrailingPartialLine(t *testing.T) {
	dir := t.TempDir()
	content := "first\nsecond\nno trailing newline"
	path := writeFile(t, dir, "input.txt", content)

	var chunks []string
	err := streamChunks(context.Background(), path, 8, func(chunk []byte, baseLine int) error {
		chunks = append(chunks, string(chunk))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, content, strings.Join(chunks, ""))
	assert.Equal(t, "no trailing newline", chunks[len(chunks)-1])
}

func TestStreamChunksHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "input.txt", strings.Repeat("x\n", 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := streamChunks(ctx, path, 16, func([]byte, int) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashFileMatchesWholeContent(t *testing.T) {
	dir := t.TempDir()
	content := strings.Repeat("hash me\n", 512)
	path := writeFile(t, dir, "input.txt", content)

	sum, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, sha256.Sum256([]byte(content)), sum)
}
