package utils

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// ParallelFactor is how many goroutines the helpers below fan out to. Tests may lower it.
var ParallelFactor = max(runtime.GOMAXPROCS(0), 1)

type (
	// BeforeParallelGroupWorkFunc learns the number of groups before any starts.
	BeforeParallelGroupWorkFunc func(groupSize int)
	// MemberWorkFunc handles one work item; memberNum counts from 0 within the group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs after a group's last item, typically to merge per-group results.
	GroupWorkDoneFunc func()
	// GroupWorkFunc sets up a group covering items [from, to).
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// span returns the half-open range of chunk i when n items are cut into k contiguous chunks.
// The last chunk absorbs the remainder.
func span(n, k, i int) (from, to int) {
	size := n / k
	from = i * size
	to = from + size
	if i == k-1 {
		to = n
	}
	return from, to
}

// fanOut runs work(i) for i in [0, k) on separate goroutines and waits for all of them.
func fanOut(k int, work func(i int)) {
	var wg sync.WaitGroup
	wg.Add(k)
	for i := 0; i < k; i++ {
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			work(i)
		})
	}
	wg.Wait()
}

// GroupWorkParallel splits items [0, totalSize) into at most ParallelFactor contiguous groups and
// works them concurrently. A group stops taking items once ctx is done, but its done callback
// still runs. The context error is returned after every group has returned.
func GroupWorkParallel(ctx context.Context, totalSize int, before BeforeParallelGroupWorkFunc, groupWork GroupWorkFunc) error {
	groups := max(min(ParallelFactor, totalSize), 0)
	if before != nil {
		before(groups)
	}
	if groups == 0 {
		return ctx.Err()
	}
	fanOut(groups, func(g int) {
		from, to := span(totalSize, groups, g)
		member, done := groupWork(g, to-from, from, to)
		for item := from; member != nil && item < to && ctx.Err() == nil; item++ {
			member(item-from, item)
		}
		if done != nil {
			done()
		}
	})
	return ctx.Err()
}

// ParallelForEachPixel calls f once for every pixel of a size.X by size.Y grid, with rows split
// into bands worked concurrently. f must only write state owned by its own pixel.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	bands := min(ParallelFactor, size.Y)
	fanOut(bands, func(b int) {
		top, bottom := span(size.Y, bands, b)
		for y := top; y < bottom; y++ {
			for x := 0; x < size.X; x++ {
				f(x, y)
			}
		}
	})
}

// SimpleFunc is one task for RunInParallel.
type SimpleFunc func(ctx context.Context) error

// RunInParallel runs every task concurrently on a shared context that is canceled as soon as one
// fails or panics. It returns the wall time taken and the combined failures; cancellation errors
// caused by an earlier failure are not repeated.
func RunInParallel(ctx context.Context, fs []SimpleFunc) (time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu     sync.Mutex
		failed error
	)
	fail := func(err error) {
		mu.Lock()
		if failed == nil || !errors.Is(err, context.Canceled) {
			failed = multierr.Append(failed, err)
		}
		mu.Unlock()
		cancel()
	}

	var wg sync.WaitGroup
	wg.Add(len(fs))
	for _, f := range fs {
		go func(f SimpleFunc) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("parallel task panicked: %v", r))
				}
			}()
			if err := f(ctx); err != nil {
				fail(err)
			}
		}(f)
	}
	wg.Wait()
	return time.Since(start), failed
}
