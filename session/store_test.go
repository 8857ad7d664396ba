package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scttfrdmn/agenkit/research-go/agenkit"
)

func sampleTurn(id, question string) Turn {
	return Turn{
		ID:       id,
		Question: question,
		Answer:   "answer to " + question,
		Outcome:  OutcomeDone,
		ToolCalls: []ToolCall{{
			Tool:      "get_price",
			Input:     map[string]interface{}{"symbol": "ACME"},
			Output:    map[string]interface{}{"price": 123.45},
			Attempts:  1,
			Timestamp: time.Now().UTC(),
		}},
		Verdicts:  []Verdict{{Round: 1, Accepted: true}},
		Guardrail: GuardrailOutcome{Preflight: "pass", Postflight: "rewrite", Flags: []string{"disclaimer_added"}},
		Timestamp: time.Now().UTC(),
	}
}

type storeFactory func(t *testing.T) Store

func storeFactories(t *testing.T) map[string]storeFactory {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewInMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			db, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			s, err := NewSQLiteStore(db)
			require.NoError(t, err)
			return s
		},
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		factories["redis"] = func(t *testing.T) Store {
			client, err := NewRedisClient(url)
			require.NoError(t, err)
			t.Cleanup(func() { client.Close() })
			return NewRedisStore(client, "research-test-"+t.Name())
		}
	}
	return factories
}

func TestStoreLoadAbsentReturnsEmpty(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)

			sess, err := store.Load(context.Background(), "never-seen")
			require.NoError(t, err)
			assert.Equal(t, "never-seen", sess.ID)
			assert.Empty(t, sess.Turns)
			assert.Zero(t, sess.Version)
		})
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			sess, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			sess.Append(sampleTurn("t1", "What is ACME's price?"))
			require.NoError(t, store.Save(ctx, sess))
			assert.Equal(t, int64(1), sess.Version)

			loaded, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, loaded.Turns, 1)
			assert.Equal(t, "t1", loaded.Turns[0].ID)
			assert.Equal(t, OutcomeDone, loaded.Turns[0].Outcome)
			assert.Equal(t, "get_price", loaded.Turns[0].ToolCalls[0].Tool)
			assert.Equal(t, []string{"disclaimer_added"}, loaded.Turns[0].Guardrail.Flags)

			loaded.Append(sampleTurn("t2", "And its P/E?"))
			require.NoError(t, store.Save(ctx, loaded))

			again, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, again.Turns, 2)
			assert.Equal(t, "t1", again.Turns[0].ID)
			assert.Equal(t, "t2", again.Turns[1].ID)
			assert.Equal(t, int64(2), again.Version)
		})
	}
}

func TestStoreSessionsAreIsolated(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			a, _ := store.Load(ctx, "a")
			a.Append(sampleTurn("t1", "q"))
			require.NoError(t, store.Save(ctx, a))

			b, err := store.Load(ctx, "b")
			require.NoError(t, err)
			assert.Empty(t, b.Turns)
		})
	}
}

func TestStoreList(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)
			lister, ok := store.(Lister)
			require.True(t, ok)

			for _, id := range []string{"zeta", "alpha/with/slashes"} {
				s, _ := store.Load(ctx, id)
				s.Append(sampleTurn("t", "q"))
				require.NoError(t, store.Save(ctx, s))
			}

			ids, err := lister.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha/with/slashes", "zeta"}, ids)
		})
	}
}

func TestInMemoryStoreDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	sess, _ := store.Load(ctx, "s")
	sess.Append(sampleTurn("t1", "q"))
	require.NoError(t, store.Save(ctx, sess))

	sess.Turns[0].Answer = "mutated after save"

	loaded, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "answer to q", loaded.Turns[0].Answer)
}

func TestFileStoreConcurrentLoadSeesWholeState(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sess, _ := store.Load(ctx, "s")
	require.NoError(t, store.Save(ctx, sess))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			sess.Append(sampleTurn("t", "q"))
			assert.NoError(t, store.Save(ctx, sess))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			loaded, err := store.Load(ctx, "s")
			if assert.NoError(t, err) {
				assert.Equal(t, int(loaded.Version)-1, len(loaded.Turns))
			}
		}
	}()
	wg.Wait()
}

func TestFileStoreSaveFailureIsStoreError(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	sess := New("s")
	err = store.Save(context.Background(), sess)

	var storeErr *agenkit.StoreError
	require.True(t, errors.As(err, &storeErr), "expected StoreError, got %v", err)
	assert.Equal(t, "save", storeErr.Op)
	assert.Zero(t, sess.Version)
}

func TestRecent(t *testing.T) {
	sess := New("s")
	for _, id := range []string{"t1", "t2", "t3"} {
		sess.Append(sampleTurn(id, id))
	}

	recent := sess.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "t2", recent[0].ID)
	assert.Equal(t, "t3", recent[1].ID)
	assert.Len(t, sess.Recent(10), 3)
	assert.Nil(t, sess.Recent(0))
}
