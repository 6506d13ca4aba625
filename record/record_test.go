package record

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestField_LoadStore(t *testing.T) {
	var f Field[int]
	if f.Load() != 0 {
		t.Fatal("zero field not zero")
	}
	f.Store(4)
	if f.Load() != 4 {
		t.Fatalf("Load = %d, want 4", f.Load())
	}
}

func TestField_Modify(t *testing.T) {
	f := NewField(1.5)
	f.Modify(func(v float64) float64 { return v * 2 })
	if f.Load() != 3 {
		t.Fatalf("Load = %v, want 3", f.Load())
	}

	func() {
		defer func() { _ = recover() }()
		f.Modify(func(float64) float64 { panic("boom") })
	}()
	f.Store(7)
	if f.Load() != 7 {
		t.Errorf("field unusable after a panic in Modify: %v", f.Load())
	}
}

func TestField_UpdateErrorKeepsValue(t *testing.T) {
	f := NewField(10)
	boom := errors.New("boom")

	err := f.Update(func(v int) (int, error) { return v + 1, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
	if f.Load() != 10 {
		t.Errorf("value changed to %d on failure", f.Load())
	}

	// the lock must have been released
	f.Store(11)
	if f.Load() != 11 {
		t.Error("store after failed update did not apply")
	}
}

func TestField_ReleasedAfterPanic(t *testing.T) {
	f := NewField("a")
	func() {
		defer func() { _ = recover() }()
		_ = f.Update(func(string) (string, error) { panic("inside update") })
	}()
	func() {
		defer func() { _ = recover() }()
		_ = f.Read(func(string) error { panic("inside read") })
	}()

	done := make(chan struct{})
	go func() {
		f.Store("b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock still held after panic")
	}
}

func TestField_ReadersShare(t *testing.T) {
	f := NewField(1)
	inside := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = f.Read(func(int) error {
			close(inside)
			<-release
			return nil
		})
	}()
	<-inside

	got := make(chan int)
	go func() { got <- f.Load() }()
	select {
	case v := <-got:
		if v != 1 {
			t.Errorf("Load = %d", v)
		}
	case <-time.After(time.Second):
		t.Fatal("second reader blocked by first")
	}
	close(release)
}

func TestPoint_FieldsIndependent(t *testing.T) {
	p := NewPoint(1, 2)
	holding := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_ = p.X.Update(func(x float64) (float64, error) {
			close(holding)
			<-release
			return x, nil
		})
	}()
	<-holding

	done := make(chan struct{})
	go func() {
		_ = p.Y.Update(func(y float64) (float64, error) { return y + 1, nil })
		_ = p.Y.Load()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer of y blocked by writer of x")
	}
	close(release)
}

func TestPoint_TranslateShared(t *testing.T) {
	p := NewPoint(1, 2)
	alias := p

	p.Translate(1, 1)
	if got := alias.Snapshot(); got != (PointValue{X: 2, Y: 3}) {
		t.Errorf("got %+v, want {2 3}", got)
	}
}

func TestPoint_ConcurrentTranslate(t *testing.T) {
	p := NewPoint(0, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Translate(1, 1)
				_ = p.Snapshot()
			}
		}()
	}
	wg.Wait()

	if got := p.Snapshot(); got != (PointValue{X: 1600, Y: 1600}) {
		t.Errorf("got %+v, want {1600 1600}", got)
	}
}
