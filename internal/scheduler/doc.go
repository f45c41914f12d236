// Package scheduler runs one periodic job per key.
//
// Jobs fire at a fixed rate anchored at the time they were scheduled. A tick
// that arrives while the previous tick of the same key is still running (or
// still waiting for a worker) is skipped, never queued. All keys share a
// bounded worker pool.
package scheduler
