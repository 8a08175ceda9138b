package journal

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryLocks_SerializesSameID(t *testing.T) {
	var (
		locks  entryLocks
		wg     sync.WaitGroup
		mu     sync.Mutex
		inside int
		maxIn  int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("01SAME")
			mu.Lock()
			inside++
			maxIn = max(maxIn, inside)
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxIn)
	assert.Empty(t, locks.locks)
}

func TestEntryLocks_IndependentIDs(t *testing.T) {
	var locks entryLocks
	unlockA := locks.lock("01A")
	unlockB := locks.lock("01B") // must not block on 01A
	assert.Len(t, locks.locks, 2)
	unlockB()
	unlockA()
	assert.Empty(t, locks.locks)
}
