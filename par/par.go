/*package par contains the bounded parallel-for used by the per-cell and
per-face stages of a step.
*/
package par

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MinChunk is the smallest range handed to a single goroutine.
const MinChunk = 64

// Workers returns n if it is positive and GOMAXPROCS otherwise.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// For splits [0, n) into contiguous chunks and calls fn on each of them with
// at most workers chunks running at once. It returns the first error
// returned by fn. A panic inside fn is returned as an error.
//
// If workers <= 1 or the range is too small to split, fn is called once on
// the calling goroutine.
func For(n, workers int, fn func(lo, hi int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 1 || n < 2*MinChunk {
		return fn(0, n)
	}

	chunks := workers
	if maxChunks := n / MinChunk; chunks > maxChunks {
		chunks = maxChunks
	}
	size := (n + chunks - 1) / chunks

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += size {
		lo, hi := lo, lo+size
		if hi > n {
			hi = n
		}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in range [%d, %d): %v", lo, hi, r)
				}
			}()
			return fn(lo, hi)
		})
	}

	return g.Wait()
}
