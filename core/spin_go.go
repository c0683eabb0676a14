//go:build !tinygo

package core

// spinPause is called between busy polls. Goroutines are preempted on the
// regular Go runtime, so the poll loop spins without yielding.
func spinPause() {}
