package config

import (
	"fmt"
	"os"
	"strings"
)

// Exitf reports a failed health check or startup step on stderr, one line,
// and ends the process with status 1.
func Exitf(format string, args ...any) {
	fmt.Fprintln(os.Stderr, strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
	os.Exit(1)
}
