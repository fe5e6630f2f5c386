package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesPerKey(t *testing.T) {
	var m Map[string]
	counters := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup

	for i := 0; i < 200; i++ {
		key := []string{"a", "b"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock(key)
			defer unlock()
			v := *counters[key]
			*counters[key] = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, *counters["a"])
	assert.Equal(t, 100, *counters["b"])
	assert.Zero(t, m.Len())
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	var m Map[int]
	unlock := m.Lock(1)
	defer unlock()

	done := make(chan struct{})
	go func() {
		m.Lock(2)()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, m.Len())
}
