// Package klog is the one-line diagnostic facade used across kestrel. The
// freestanding kernel packages (pmm, vmm, interrupt, sched) call it the way
// biscuit calls fmt.Printf directly -- a single line, prefixed by subsystem,
// never a structured event -- because no example in the retrieval pack
// imports a structured logging library from code that actually runs inside
// a kernel; hosted tools share the same facade so output looks uniform
// whether it came from the freestanding build or a host-side harness.
package klog

import (
	"fmt"
	"log"
	"os"
	"sync"
)

var (
	mu  sync.Mutex
	std = log.New(os.Stderr, "", 0)
)

// Printf emits a single prefixed diagnostic line: "subsys: message".
func Printf(subsys, format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	std.Printf("%s: %s", subsys, fmt.Sprintf(format, args...))
}

// SetOutput redirects where diagnostics go, e.g. to keep kernel chatter off
// an interactive terminal.
func SetOutput(w *os.File) {
	mu.Lock()
	defer mu.Unlock()
	std = log.New(w, "", 0)
}
