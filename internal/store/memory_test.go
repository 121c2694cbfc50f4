package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/robalobadob/guesswho/internal/session"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	s := session.New(nil, 3)
	if err := st.Save(ctx, s); err != nil {
		t.Fatal(err)
	}

	got, err := st.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != s {
		t.Error("Get returned a different session pointer")
	}

	if err := st.Delete(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreMissingID(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	if _, err := st.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	// Deleting a missing session is not an error.
	if err := st.Delete(ctx, "nope"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := session.New(nil, 3)
			s.ID = fmt.Sprintf("sess-%d", i)
			_ = st.Save(ctx, s)
			if _, err := st.Get(ctx, s.ID); err != nil {
				t.Errorf("Get(%s): %v", s.ID, err)
			}
		}(i)
	}
	wg.Wait()
}
