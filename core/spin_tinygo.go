//go:build tinygo

package core

import "runtime"

// spinPause yields between busy polls. TinyGo's scheduler is cooperative:
// a poll loop that never yields would starve every other task.
func spinPause() {
	runtime.Gosched()
}
