package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"single write", 64, []string{"hello"}, "hello"},
		{"exact fill", 8, []string{"AA", "BB", "CC", "DD"}, "AABBCCDD"},
		{"wrap", 10, []string{"abcdefghij", "12345"}, "fghij12345"},
		{"wrap after partial", 8, []string{"AABBCC", "DDEE"}, "BBCCDDEE"},
		{"larger than capacity", 5, []string{"0123456789"}, "56789"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := rb.Write([]byte(w))
				require.NoError(t, err)
				assert.Equal(t, len(w), n)
			}
			assert.Equal(t, tt.want, string(rb.Bytes()))
			assert.Equal(t, len(tt.want), rb.Len())
		})
	}
}

func TestRingBufferDumpToFile(t *testing.T) {
	rb := NewRingBuffer(32)
	_, _ = rb.Write([]byte("dump_data"))

	path := filepath.Join(t.TempDir(), "dump.bin")
	require.NoError(t, rb.DumpToFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dump_data", string(data))
}

func TestRingBufferConcurrentWrites(t *testing.T) {
	rb := NewRingBuffer(1024)
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_, _ = rb.Write([]byte("x"))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rb.Bytes(), 1000)
}
