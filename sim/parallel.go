package sim

import (
	"runtime"
	"sync"
)

// parallelThreshold is the batch size below which fanning out to workers
// costs more than it saves.
const parallelThreshold = 64

// parallelFor splits [0, n) into one contiguous chunk per CPU and runs fn on
// each chunk concurrently. Callers guarantee fn touches no state shared
// across indices; the car arrays are structure-of-arrays with no cross-car
// aliasing, so per-index writes never race.
func parallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := runtime.NumCPU()
	if n < parallelThreshold || workers < 2 {
		fn(0, n)
		return
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
