// Package logctx is a tiny wrapper over the standard log package for
// places that log instead of returning an error. It has helpers for
// backend I/O failures a caller decided to swallow, dropped watcher
// panics, and traversal-bound breaches; of these, only WatcherPanic is
// called (by pkg/watch). No interface, no
// injected logger, just package-level functions, matching the small
// unexported helpers the rest of the tree favours over a framework.
package logctx

import "log"

// Backend logs a backend I/O failure that a caller is choosing not to
// propagate further (spec §7: "never silently swallowed").
func Backend(op string, err error) {
	log.Printf("weft: backend error during %s: %v", op, err)
}

// WatcherPanic logs a handler panic so one bad observer does not take
// down the notifying goroutine (spec §4.5, §7).
func WatcherPanic(key string, recovered interface{}) {
	log.Printf("weft: watch handler for key %q panicked: %v", key, recovered)
}

// TraversalBound logs a history traversal that hit max_depth or the LCA
// count cap; this is not an error (spec §7) but is worth a trace.
func TraversalBound(op string, detail string) {
	log.Printf("weft: %s bound reached: %s", op, detail)
}
