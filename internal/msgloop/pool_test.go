package msgloop

import (
	"context"
	"testing"
	"time"
)

func TestWorkerForIsDeterministic(t *testing.T) {
	p := New(4, 16)
	defer p.Stop()

	w1 := p.WorkerFor("orders")
	w2 := p.WorkerFor("orders")
	if w1 != w2 {
		t.Fatal("expected the same topic to hash to the same worker")
	}
}

func TestGatherCollectsEveryWorker(t *testing.T) {
	p := New(4, 16)
	defer p.Stop()

	done := make(chan int, 1)
	Gather(context.Background(), p, func(i int) interface{} {
		return i
	}, func(results []interface{}) {
		sum := 0
		for _, r := range results {
			sum += r.(int)
		}
		done <- sum
	})

	select {
	case sum := <-done:
		if sum != 0+1+2+3 {
			t.Fatalf("sum = %d, want 6", sum)
		}
	case <-time.After(time.Second):
		t.Fatal("gather never completed")
	}
}
