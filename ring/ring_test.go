package ring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacityRoundedUpAndOneReserved(t *testing.T) {
	r := New("r", Options{Capacity: 1})
	assert.Equal(t, 2, r.Capacity())

	r2 := New("r2", Options{Capacity: 5})
	assert.Equal(t, 8, r2.Capacity())
}

func TestPushPopBasic(t *testing.T) {
	r := New("r", Options{Capacity: 4})
	for i := 0; i < 3; i++ {
		s := r.PushBegin()
		s.Reset()
		s.Seqnum = r.IncSeqnum()
		ok := r.PushCommit()
		require.True(t, ok)
	}
	assert.Equal(t, 3, r.Len())

	it := r.NewIterator()
	got := 0
	var last uint64
	for {
		s := it.PopBegin()
		if s == nil {
			break
		}
		assert.EqualValues(t, got, s.Seqnum)
		got++
		last = it.Pos()
	}
	r.PopCommit(last)
	assert.Equal(t, 3, got)
	assert.True(t, r.Empty())
}

func TestPushCommitDropsWhenFullNonBlocking(t *testing.T) {
	// capacity 4 holds at most 3 records.
	r := New("r", Options{Capacity: 4})
	for i := 0; i < 10; i++ {
		s := r.PushBegin()
		s.Reset()
		s.Seqnum = r.IncSeqnum()
		r.PushCommit()
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, uint64(7), r.DropCount())

	it := r.NewIterator()
	var seqs []uint64
	var last uint64
	for {
		s := it.PopBegin()
		if s == nil {
			break
		}
		seqs = append(seqs, s.Seqnum)
		last = it.Pos()
	}
	r.PopCommit(last)
	assert.Equal(t, []uint64{0, 1, 2}, seqs)
}

func TestSharedRingTwoProducers(t *testing.T) {
	r := New("shared", Options{Capacity: 1 << 16, Flags: Shared})
	const perProducer = 10000
	var wg sync.WaitGroup
	wg.Add(2)
	for p := 0; p < 2; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				r.Lock()
				s := r.PushBegin()
				s.Reset()
				s.Seqnum = r.IncSeqnum()
				r.PushCommit()
				r.Unlock()
			}
		}()
	}
	wg.Wait()

	it := r.NewIterator()
	seen := map[uint64]bool{}
	count := 0
	var last uint64
	for {
		s := it.PopBegin()
		if s == nil {
			break
		}
		assert.False(t, seen[s.Seqnum], "duplicate seqnum %d", s.Seqnum)
		seen[s.Seqnum] = true
		count++
		last = it.Pos()
	}
	r.PopCommit(last)
	assert.Equal(t, 2*perProducer, count)
}

func TestBlockingProducerWaitsForSpace(t *testing.T) {
	r := New("blk", Options{Capacity: 2, Flags: Blocking}) // holds 1 record
	s := r.PushBegin()
	s.Reset()
	r.PushCommit()

	done := make(chan struct{})
	go func() {
		s := r.PushBegin()
		s.Reset()
		r.PushCommit()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("push should have blocked on full ring")
	case <-time.After(20 * time.Millisecond):
	}

	it := r.NewIterator()
	it.PopBegin()
	r.PopCommit(it.Pos())

	<-done
}

func TestOrphanAndRefcount(t *testing.T) {
	r := New("o", Options{Capacity: 4})
	assert.Equal(t, int32(1), r.Refcount())
	r.Hold()
	assert.Equal(t, int32(2), r.Refcount())
	assert.False(t, r.Orphan())
	r.Release()
	assert.True(t, r.Orphan())
}
