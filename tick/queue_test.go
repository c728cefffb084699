package tick

import (
	"reflect"
	"sync"
	"testing"
)

func TestQueueDrainOrder(t *testing.T) {
	t.Parallel()

	var q Queue[int]
	for i := 0; i < 5; i++ {
		q.Push(i)
	}
	if q.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", q.Len())
	}

	var got []int
	n := q.Drain(func(v int) { got = append(got, v) })
	if n != 5 {
		t.Errorf("Drain() = %d, want 5", n)
	}
	for i, v := range got {
		if v != i {
			t.Errorf("got[%d] = %d, want %d", i, v, i)
		}
	}

	if q.Drain(func(int) { t.Error("empty queue delivered an item") }) != 0 {
		t.Error("Drain() on empty queue should return 0")
	}
}

func TestQueuePushDuringDrain(t *testing.T) {
	t.Parallel()

	var q Queue[string]
	q.Push("first")

	var got []string
	q.Drain(func(v string) {
		got = append(got, v)
		q.Push("later")
	})
	if len(got) != 1 {
		t.Fatalf("first drain delivered %v, want [first]", got)
	}

	got = nil
	q.Drain(func(v string) { got = append(got, v) })
	if len(got) != 1 || got[0] != "later" {
		t.Errorf("second drain delivered %v, want [later]", got)
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 8, 500

	var q Queue[int]
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(i)
			}
		}()
	}

	total := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-done:
			total += q.Drain(func(int) {})
			if total != producers*perProducer {
				t.Errorf("drained %d items, want %d", total, producers*perProducer)
			}
			return
		default:
			total += q.Drain(func(int) {})
		}
	}
}

func TestQueueUsableAfterPanickingDrain(t *testing.T) {
	t.Parallel()

	var q Queue[int]
	q.Push(1)
	q.Push(2)
	q.Drain(func(int) {})

	q.Push(3)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("Drain() did not propagate the panic")
			}
		}()
		q.Drain(func(int) { panic("boom") })
	}()

	q.Push(10)
	q.Push(11)
	var got []int
	q.Drain(func(v int) {
		got = append(got, v)
		q.Push(99)
	})
	if want := []int{10, 11}; !reflect.DeepEqual(got, want) {
		t.Errorf("drain delivered %v, want %v", got, want)
	}

	got = nil
	q.Drain(func(v int) { got = append(got, v) })
	if want := []int{99, 99}; !reflect.DeepEqual(got, want) {
		t.Errorf("next drain delivered %v, want %v", got, want)
	}
}
