package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClipboard struct {
	unsupported bool
	nativeErr   error
	native      []string
	osc52       []string
}

func install(t *testing.T, f *fakeClipboard) {
	t.Helper()
	origNative, origUnsupported, origOSC := writeNative, nativeUnsupported, writeOSC52
	writeNative = func(s string) error {
		if f.nativeErr != nil {
			return f.nativeErr
		}
		f.native = append(f.native, s)
		return nil
	}
	nativeUnsupported = func() bool { return f.unsupported }
	writeOSC52 = func(s string) { f.osc52 = append(f.osc52, s) }
	t.Cleanup(func() {
		writeNative, nativeUnsupported, writeOSC52 = origNative, origUnsupported, origOSC
	})
}

func TestCopyEmpty(t *testing.T) {
	install(t, &fakeClipboard{})
	_, err := Copy("  ", true)
	assert.ErrorIs(t, err, errEmpty)
}

func TestCopyNative(t *testing.T) {
	f := &fakeClipboard{}
	install(t, f)

	method, err := Copy("123456789\n", true)
	require.NoError(t, err)
	assert.Equal(t, MethodNative, method)
	assert.Equal(t, []string{"123456789"}, f.native)
	assert.Empty(t, f.osc52)
}

func TestCopyFallsBackToOSC52(t *testing.T) {
	tests := []struct {
		name string
		f    *fakeClipboard
	}{
		{"unsupported", &fakeClipboard{unsupported: true}},
		{"tool failed", &fakeClipboard{nativeErr: errors.New("xclip: cannot open display")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			install(t, tt.f)
			method, err := Copy("42", true)
			require.NoError(t, err)
			assert.Equal(t, MethodOSC52, method)
			assert.Equal(t, []string{"42"}, tt.f.osc52)
		})
	}
}

func TestCopyWithoutOSC52(t *testing.T) {
	f := &fakeClipboard{nativeErr: errors.New("xclip: cannot open display")}
	install(t, f)

	_, err := Copy("42", false)
	assert.ErrorContains(t, err, "cannot open display")
	assert.Empty(t, f.osc52)
}
