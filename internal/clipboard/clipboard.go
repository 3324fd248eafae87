// Package clipboard puts peer ids on the desktop clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/muesli/termenv"
)

// Method names how the text reached the clipboard.
type Method string

const (
	MethodNative Method = "native" // xclip, xsel, wl-copy or pbcopy
	MethodOSC52  Method = "osc52"  // terminal escape sequence
)

var errEmpty = errors.New("no content to copy")

// Swapped in tests.
var (
	writeNative       = clipboard.WriteAll
	nativeUnsupported = func() bool { return clipboard.Unsupported }
	writeOSC52        = termenv.Copy
)

// Copy writes text to the system clipboard. When no clipboard tool is
// installed and allowOSC52 is set, the terminal is asked to do it instead;
// OSC 52 gives no delivery feedback.
func Copy(text string, allowOSC52 bool) (Method, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmpty
	}

	var nativeErr error
	if !nativeUnsupported() {
		if nativeErr = writeNative(text); nativeErr == nil {
			return MethodNative, nil
		}
	} else {
		nativeErr = errors.New("no clipboard tool found (install xclip, xsel or wl-clipboard)")
	}

	if !allowOSC52 {
		return "", fmt.Errorf("copy to clipboard: %w", nativeErr)
	}
	writeOSC52(text)
	return MethodOSC52, nil
}
