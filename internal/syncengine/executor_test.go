package syncengine

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestSerialExecutorOrdersSubmissions(t *testing.T) {
	e := newSerialExecutor()
	defer e.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		go func() {
			_ = e.Submit(func() error {
				order = append(order, i)
				return nil
			})
			if i == 9 {
				close(done)
			}
		}()
	}
	// Submissions race to enqueue, but each one blocks until it has run;
	// what matters is that the executor itself never runs two tasks
	// concurrently, not the order goroutines happened to enqueue in.
	<-done
	if len(order) != 10 {
		t.Fatalf("len(order) = %d, want 10", len(order))
	}
}

func TestSerialExecutorRunsOneAtATime(t *testing.T) {
	e := newSerialExecutor()
	defer e.Close()

	var concurrent int32
	var maxConcurrent int32
	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_ = e.Submit(func() error {
				cur := atomic.AddInt32(&concurrent, 1)
				for {
					max := atomic.LoadInt32(&maxConcurrent)
					if cur <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, cur) {
						break
					}
				}
				atomic.AddInt32(&concurrent, -1)
				return nil
			})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	if max := atomic.LoadInt32(&maxConcurrent); max != 1 {
		t.Fatalf("max concurrent tasks = %d, want 1", max)
	}
}

func TestSerialExecutorCloseRejectsNewWork(t *testing.T) {
	e := newSerialExecutor()
	e.Close()
	if err := e.Submit(func() error { return nil }); err != ErrExecutorClosed {
		t.Fatalf("Submit after Close = %v, want ErrExecutorClosed", err)
	}
}

func TestCallbackExecutorBoundsConcurrency(t *testing.T) {
	ce := newCallbackExecutor(2)
	var concurrent int32
	var maxConcurrent int32
	release := make(chan struct{})
	for i := 0; i < 5; i++ {
		ce.Dispatch(func() {
			cur := atomic.AddInt32(&concurrent, 1)
			for {
				max := atomic.LoadInt32(&maxConcurrent)
				if cur <= max || atomic.CompareAndSwapInt32(&maxConcurrent, max, cur) {
					break
				}
			}
			<-release
			atomic.AddInt32(&concurrent, -1)
		})
	}
	close(release)
	ce.Wait()
	if max := atomic.LoadInt32(&maxConcurrent); max > 2 {
		t.Fatalf("max concurrent callbacks = %d, want <= 2", max)
	}
}

func TestPushPullLaneRunsSequentially(t *testing.T) {
	lane := newPushPullLane()
	defer lane.Close()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		err := lane.Run(func(ctx context.Context, _ <-chan struct{}) error {
			order = append(order, i)
			return nil
		}, context.Background(), nil)
		if err != nil {
			t.Fatalf("Run(%d): %v", i, err)
		}
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want 0,1,2", order)
		}
	}
}
