package router

import (
	"sync/atomic"
	"time"
)

// sink keeps the burn loop observable so it cannot be optimized away
var sink atomic.Uint64

// Burn spins the calling goroutine until at least d of wall-clock time has
// passed. It returns the number of outer spin rounds performed.
func Burn(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}

	start := time.Now()
	var x, iters uint64
	for time.Since(start) < d {
		for i := 0; i < 1000; i++ {
			x = x*6364136223846793005 + 1442695040888963407
		}
		iters++
	}
	sink.Add(x)
	return iters
}
