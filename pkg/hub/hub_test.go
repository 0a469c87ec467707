package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_SnapshotComesFirst(t *testing.T) {
	h := New[string](nil)

	s := h.Subscribe(func() string {
		h.Broadcast("update")
		return "snapshot"
	})
	defer s.Close()

	ctx := context.Background()
	first, err := s.Next(ctx)
	require.NoError(t, err)
	second, err := s.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, "snapshot", first)
	assert.Equal(t, "update", second)
}

func TestHub_FIFOWithinSubscriber(t *testing.T) {
	h := New[int](nil)
	s := h.Subscribe(nil)
	defer s.Close()

	for i := 0; i < 50; i++ {
		h.Broadcast(i)
	}

	for i := 0; i < 50; i++ {
		v, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestHub_HundredConcurrentSubscribersOneBroadcast(t *testing.T) {
	h := New[string](nil)

	subs := make([]*Subscriber[string], 100)
	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subs[i] = h.Subscribe(nil)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 100, h.Len())
	assert.Equal(t, 100, h.Broadcast("defects"))

	for _, s := range subs {
		assert.Equal(t, 1, s.Pending())
		v, err := s.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "defects", v)
	}
}

func TestHub_SubscribeRacingBroadcastNeverDuplicates(t *testing.T) {
	h := New[int](nil)
	const broadcasts = 200

	var (
		mu   sync.Mutex
		subs []*Subscriber[int]
		wg   sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < broadcasts; i++ {
			h.Broadcast(i)
		}
	}()

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := h.Subscribe(nil)
			mu.Lock()
			subs = append(subs, s)
			mu.Unlock()
		}()
	}
	wg.Wait()

	// A late subscriber must see a gapless, duplicate-free suffix of the
	// broadcast sequence.
	for _, s := range subs {
		pending := s.Pending()
		var got []int
		for j := 0; j < pending; j++ {
			v, err := s.Next(context.Background())
			require.NoError(t, err)
			got = append(got, v)
		}
		if len(got) == 0 {
			continue
		}
		assert.Equal(t, broadcasts-1, got[len(got)-1])
		for j := 1; j < len(got); j++ {
			assert.Equal(t, got[j-1]+1, got[j])
		}
	}
}

func TestHub_ClosedSubscriberReceivesNothing(t *testing.T) {
	h := New[string](nil)
	live := h.Subscribe(nil)
	gone := h.Subscribe(nil)
	defer live.Close()

	gone.Close()

	assert.Equal(t, 1, h.Broadcast("after close"))
	assert.Equal(t, 1, h.Len())

	_, err := gone.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriberClosed)
	assert.Equal(t, 0, gone.Pending())
}

func TestHub_CloseUnblocksNext(t *testing.T) {
	h := New[string](nil)
	s := h.Subscribe(nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSubscriberClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}

func TestHub_CloseEndsEverySubscriber(t *testing.T) {
	h := New[string](nil)
	a := h.Subscribe(nil)
	b := h.Subscribe(func() string { return "snapshot" })

	errs := make(chan error, 2)
	for _, s := range []*Subscriber[string]{a, b} {
		go func(s *Subscriber[string]) {
			for {
				if _, err := s.Next(context.Background()); err != nil {
					errs <- err
					return
				}
			}
		}(s)
	}

	time.Sleep(10 * time.Millisecond)
	h.Close()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, ErrSubscriberClosed)
		case <-time.After(time.Second):
			t.Fatal("Next did not return after hub Close")
		}
	}
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 0, h.Broadcast("late"))

	late := h.Subscribe(func() string { return "snapshot" })
	_, err := late.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriberClosed)
	assert.Equal(t, 0, h.Len())

	h.Close()
}

func TestHub_NextHonoursContext(t *testing.T) {
	h := New[string](nil)
	s := h.Subscribe(nil)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHub_MaxQueueDropsOldest(t *testing.T) {
	h := New[int](nil, WithMaxQueue(3))
	s := h.Subscribe(nil)
	defer s.Close()

	for i := 0; i < 5; i++ {
		h.Broadcast(i)
	}

	assert.Equal(t, 3, s.Pending())
	assert.Equal(t, 2, s.Dropped())
	v, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}
