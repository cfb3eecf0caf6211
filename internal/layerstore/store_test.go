package layerstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapgis/pkg/core"
)

func vector(name string) *core.Layer {
	return &core.Layer{Name: name, Kind: core.LayerKindVector, GeometryType: core.GeometryPolygon, FeatureCount: 3}
}

func TestStore_PutGet(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("parcels", vector("parcels")))

	l, err := s.Get("parcels")
	require.NoError(t, err)
	assert.Equal(t, "parcels", l.ID)
	assert.Equal(t, int64(3), l.FeatureCount)

	// Callers get copies.
	l.Name = "changed"
	again, _ := s.Get("parcels")
	assert.Equal(t, "parcels", again.Name)

	_, err = s.Get("nope")
	assert.True(t, errors.Is(err, core.KindDanglingReference))
}

func TestStore_IdentifiersAreNeverReused(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("a", vector("a")))
	assert.True(t, errors.Is(s.Put("a", vector("again")), core.KindDuplicateIdentifier))

	released, err := s.Release("a")
	require.NoError(t, err)
	assert.Equal(t, "a", released.ID)

	_, ok := s.Lookup("a")
	assert.False(t, ok)
	assert.True(t, errors.Is(s.Put("a", vector("again")), core.KindDuplicateIdentifier))
	assert.True(t, errors.Is(s.Reserve("a"), core.KindDuplicateIdentifier))

	_, err = s.Release("a")
	assert.Error(t, err)
}

func TestStore_ReserveAwait(t *testing.T) {
	s := New()
	require.NoError(t, s.Reserve("out"))

	_, ok := s.Lookup("out")
	assert.False(t, ok, "reserved layers are not visible")

	done := make(chan *core.Layer)
	go func() {
		l, err := s.Await(context.Background(), "out")
		assert.NoError(t, err)
		done <- l
	}()

	require.NoError(t, s.Put("out", vector("out")))
	select {
	case l := <-done:
		assert.Equal(t, "out", l.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after Put")
	}
}

func TestStore_Abandon(t *testing.T) {
	s := New()
	require.NoError(t, s.Reserve("out"))

	cause := core.Errorf(core.KindInvalidGeometry, "self-intersection")
	errc := make(chan error)
	go func() {
		_, err := s.Await(context.Background(), "out")
		errc <- err
	}()

	s.Abandon("out", cause)
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, core.KindInvalidGeometry))
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after Abandon")
	}

	// Readers arriving after Abandon still see the producer's failure.
	_, err := s.Await(context.Background(), "out")
	assert.True(t, errors.Is(err, core.KindInvalidGeometry), "got %v", err)
	_, err = s.Get("out")
	assert.True(t, errors.Is(err, core.KindInvalidGeometry), "got %v", err)
	_, ok := s.Lookup("out")
	assert.False(t, ok)
	assert.Empty(t, s.List())

	// Nothing was produced, so the identifier is free again.
	require.NoError(t, s.Reserve("out"))
	assert.True(t, errors.Is(s.Reserve("out"), core.KindDuplicateIdentifier))
	require.NoError(t, s.Put("out", vector("out")))
	l, err := s.Get("out")
	require.NoError(t, err)
	assert.Equal(t, "out", l.ID)
}

func TestStore_PutReclaimsAbandoned(t *testing.T) {
	s := New()
	require.NoError(t, s.Reserve("out"))
	s.Abandon("out", nil)

	_, err := s.Get("out")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `layer "out" was not produced`)

	require.NoError(t, s.Put("out", vector("out")))
	_, ok := s.Lookup("out")
	assert.True(t, ok)
}

func TestStore_AwaitContext(t *testing.T) {
	s := New()
	require.NoError(t, s.Reserve("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Await(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = s.Await(context.Background(), "unknown")
	assert.True(t, errors.Is(err, core.KindDanglingReference))
}

func TestStore_ListAndReleaseAll(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("b", vector("b")))
	require.NoError(t, s.Put("a", vector("a")))
	require.NoError(t, s.Reserve("c"))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	assert.Len(t, s.ReleaseAll(), 2)
	assert.Empty(t, s.List())
}

func TestStore_ConcurrentPuts(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Put(fmt.Sprintf("L%d", i%10), vector("x"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 10, ok, "exactly one Put per identifier wins")
	assert.Len(t, s.List(), 10)
}
