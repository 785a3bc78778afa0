package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"gorandom/backend/internal/realtime"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareAndSwap_CommitsAndReturnsValue(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()

	res, err := store.CompareAndSwap(ctx, "k", func(cur []byte) ([]byte, error) {
		assert.Nil(t, cur)
		return []byte(`"v1"`), nil
	})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, []byte(`"v1"`), res.Value)

	raw, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v1"`), raw)
}

func TestCompareAndSwap_AbortLeavesValueUntouched(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()

	_, err := store.CompareAndSwap(ctx, "k", realtime.Set([]byte(`"v1"`)))
	require.NoError(t, err)

	res, err := store.CompareAndSwap(ctx, "k", func(cur []byte) ([]byte, error) {
		return nil, realtime.ErrAbort
	})
	require.NoError(t, err)
	assert.False(t, res.Committed)

	raw, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte(`"v1"`), raw)
}

func TestCompareAndSwap_ErrorIsSurfaced(t *testing.T) {
	store := realtime.NewMemoryStore()
	boom := errors.New("boom")

	_, err := store.CompareAndSwap(context.Background(), "k", func(cur []byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCompareAndSwap_ConcurrentClaimHasOneWinner(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()
	_, err := store.CompareAndSwap(ctx, "queue", realtime.Set([]byte(`{"waiting":true}`)))
	require.NoError(t, err)

	const claimants = 32
	var wg sync.WaitGroup
	wins := make(chan int, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := store.CompareAndSwap(ctx, "queue", func(cur []byte) ([]byte, error) {
				var q map[string]bool
				if err := json.Unmarshal(cur, &q); err != nil {
					return nil, err
				}
				if !q["waiting"] {
					return nil, realtime.ErrAbort
				}
				delete(q, "waiting")
				return json.Marshal(q)
			})
			if err == nil && res.Committed {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestCompareAndSwap_ConcurrentIncrementsAllLand(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()

	const writers = 100
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CompareAndSwap(ctx, "counter", func(cur []byte) ([]byte, error) {
				n := 0
				if len(cur) != 0 {
					var err error
					if n, err = strconv.Atoi(string(cur)); err != nil {
						return nil, err
					}
				}
				return []byte(strconv.Itoa(n + 1)), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	raw, _ := store.Get(ctx, "counter")
	assert.Equal(t, strconv.Itoa(writers), string(raw))
}

func TestAtomicUpdate_AllOrNothing(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()
	_, err := store.CompareAndSwap(ctx, "a", realtime.Set([]byte(`1`)))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		"a": realtime.Set([]byte(`2`)),
		"b": func(cur []byte) ([]byte, error) { return nil, boom },
	})
	require.ErrorIs(t, err, boom)

	// The failing key poisons the whole update.
	raw, _ := store.Get(ctx, "a")
	assert.Equal(t, []byte(`1`), raw)
	raw, _ = store.Get(ctx, "b")
	assert.Nil(t, raw)
}

func TestAtomicUpdate_NilDeletesKey(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()
	_, err := store.CompareAndSwap(ctx, "a", realtime.Set([]byte(`1`)))
	require.NoError(t, err)

	err = store.AtomicUpdate(ctx, map[string]realtime.Mutation{
		"a": realtime.Delete(),
		"b": realtime.Set([]byte(`2`)),
	})
	require.NoError(t, err)

	raw, _ := store.Get(ctx, "a")
	assert.Nil(t, raw)
	raw, _ = store.Get(ctx, "b")
	assert.Equal(t, []byte(`2`), raw)
}

func TestSubscribe_DeliversCurrentValueFirst(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()
	_, err := store.CompareAndSwap(ctx, "k", realtime.Set([]byte(`"v1"`)))
	require.NoError(t, err)

	sub, err := store.Subscribe(ctx, "k")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []byte(`"v1"`), <-sub.C)

	_, err = store.CompareAndSwap(ctx, "k", realtime.Set([]byte(`"v2"`)))
	require.NoError(t, err)
	assert.Equal(t, []byte(`"v2"`), <-sub.C)

	// A delete is observed as a nil payload.
	_, err = store.CompareAndSwap(ctx, "k", realtime.Delete())
	require.NoError(t, err)
	assert.Nil(t, <-sub.C)
}

func TestSubscribe_CloseStopsDelivery(t *testing.T) {
	store := realtime.NewMemoryStore()
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "k")
	require.NoError(t, err)
	<-sub.C // initial value

	sub.Close()
	sub.Close() // closing twice is safe

	_, err = store.CompareAndSwap(ctx, "k", realtime.Set([]byte(`"v1"`)))
	require.NoError(t, err)

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected closed channel")
	}
}
