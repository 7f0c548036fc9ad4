package cart

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveenspark/larder/internal/store"
	"github.com/naveenspark/larder/pkg/client"
	"github.com/naveenspark/larder/pkg/domain"
)

func line(id string, price float64) domain.CartLine {
	return domain.CartLine{ID: id, Name: "Recipe " + id, UnitPrice: price}
}

type fixture struct {
	engine  *Engine
	mirror  *fakeMirror
	backend *store.MemoryBackend
	backup  *store.Backup
}

func newFixture(t *testing.T, mirror *fakeMirror, opts ...Option) fixture {
	t.Helper()
	if mirror == nil {
		mirror = newFakeMirror()
	}
	b := store.NewMemoryBackend()
	backup := store.NewBackup(b, time.Hour, zerolog.Nop())
	opts = append([]Option{WithBackup(backup)}, opts...)
	e := New(context.Background(), store.NewCart(b, zerolog.Nop()), mirror, opts...)
	t.Cleanup(e.Close)
	return fixture{engine: e, mirror: mirror, backend: b, backup: backup}
}

// settle waits for background mirror calls.
func (e *Engine) settle() { e.wg.Wait() }

func TestAddToEmptyCart(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.Add(ctx, line("r1", 10), 1))
	assert.Equal(t, 1, f.engine.Count())
	assert.Equal(t, 10.0, f.engine.Total())
}

func TestSetQuantityZeroRemoves(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.Add(ctx, line("r1", 10), 2))
	require.NoError(t, f.engine.SetQuantity(ctx, "r1", 0))
	assert.Empty(t, f.engine.Lines())
	assert.Equal(t, 0, f.engine.Count())
}

func TestAddRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, f.engine.Add(ctx, line("r1", 1), 0), domain.ErrInvalidQuantity)
	assert.ErrorIs(t, f.engine.Add(ctx, domain.CartLine{}, 1), ErrMissingID)
	assert.Empty(t, f.engine.Lines())
}

func TestAddIncrementsExistingLine(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.engine.Add(ctx, line("r1", 2.5), 1))
	require.NoError(t, f.engine.Add(ctx, line("r2", 4), 1))
	require.NoError(t, f.engine.Add(ctx, line("r1", 2.5), 3))

	lines := f.engine.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "r1", lines[0].ID)
	assert.Equal(t, 4, lines[0].Quantity)
	assert.Equal(t, 14.0, f.engine.Total())
}

func TestRemoveIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	require.NoError(t, f.engine.Add(ctx, line("r2", 1), 1))

	f.engine.Remove(ctx, "r1")
	once := f.engine.Lines()
	f.engine.Remove(ctx, "r1")
	assert.Equal(t, once, f.engine.Lines())
	assert.Equal(t, 1, f.engine.Count())
}

func TestSetQuantityOnAbsentLine(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.engine.SetQuantity(context.Background(), "nope", 3))
	assert.Empty(t, f.engine.Lines())
}

func TestCountInvariant(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(1, 2))
	ids := []string{"a", "b", "c", "d"}

	for range 500 {
		id := ids[rng.IntN(len(ids))]
		switch rng.IntN(3) {
		case 0:
			require.NoError(t, f.engine.Add(ctx, line(id, 1), rng.IntN(3)+1))
		case 1:
			require.NoError(t, f.engine.SetQuantity(ctx, id, rng.IntN(5)-1))
		default:
			f.engine.Remove(ctx, id)
		}

		sum := 0
		seen := map[string]bool{}
		for _, l := range f.engine.Lines() {
			require.Greater(t, l.Quantity, 0, "line %s persisted at quantity %d", l.ID, l.Quantity)
			require.False(t, seen[l.ID], "duplicate line %s", l.ID)
			seen[l.ID] = true
			sum += l.Quantity
		}
		require.Equal(t, sum, f.engine.Count())
	}
}

func TestMutationsArePersisted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 3), 2))
	require.NoError(t, f.engine.Add(ctx, line("r2", 1), 1))
	f.engine.Remove(ctx, "r2")

	reloaded := New(ctx, store.NewCart(f.backend, zerolog.Nop()), f.mirror)
	defer reloaded.Close()
	assert.Equal(t, f.engine.Lines(), reloaded.Lines())
}

func TestLocalOnlyNeverCallsServer(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	require.NoError(t, f.engine.SetQuantity(ctx, "r1", 4))
	f.engine.Clear(ctx)
	f.engine.settle()

	assert.Empty(t, f.mirror.Calls())
	assert.Equal(t, LocalOnly, f.engine.Mode())
}

func TestAttachServerWins(t *testing.T) {
	mirror := newFakeMirror(domain.ServerCartItem{
		ID:       "55",
		Recipe:   domain.Recipe{ID: "r2", Title: "Dal", Price: 6},
		Quantity: 1,
	})
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 10), 2))

	require.NoError(t, f.engine.Attach(ctx, "7"))

	lines := f.engine.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "r2", lines[0].ID)
	assert.Equal(t, 1, lines[0].Quantity)
	assert.Equal(t, Synced, f.engine.Mode())

	itemID, ok := f.engine.ServerItemID("r2")
	assert.True(t, ok)
	assert.Equal(t, "55", itemID)

	backed, ok := f.backup.Restore(ctx)
	require.True(t, ok, "replaced local cart should be backed up")
	assert.Equal(t, "r1", backed[0].ID)
}

func TestAttachFetchFailureKeepsLocalLines(t *testing.T) {
	mirror := newFakeMirror()
	mirror.getErr = errors.New("connection refused")
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 2))

	err := f.engine.Attach(ctx, "7")
	require.Error(t, err)
	assert.Equal(t, Synced, f.engine.Mode())
	assert.Equal(t, 2, f.engine.Count())
	assert.NotEmpty(t, f.engine.Warning())
	_, ok := f.engine.ServerItemID("r1")
	assert.False(t, ok)
}

func TestSyncedMutationsMirror(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	require.NoError(t, f.engine.Add(ctx, line("r1", 5), 2))
	f.engine.settle()
	itemID, ok := f.engine.ServerItemID("r1")
	require.True(t, ok, "create should record the server item id")

	require.NoError(t, f.engine.Add(ctx, line("r1", 5), 1))
	f.engine.settle()
	require.NoError(t, f.engine.SetQuantity(ctx, "r1", 7))
	f.engine.settle()
	assert.Equal(t, map[string]int{"r1": 7}, f.mirror.quantities())

	f.engine.Remove(ctx, "r1")
	f.engine.settle()
	assert.Empty(t, f.mirror.quantities())

	assert.Equal(t, []string{
		"create r1 2",
		"update " + itemID + " 3",
		"update " + itemID + " 7",
		"delete " + itemID,
	}, f.mirror.Calls())
}

func TestUnmappedUpdateAndRemoveAreLocalOnly(t *testing.T) {
	mirror := newFakeMirror()
	mirror.getErr = errors.New("offline")
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	require.Error(t, f.engine.Attach(ctx, "7"))

	require.NoError(t, f.engine.SetQuantity(ctx, "r1", 3))
	f.engine.Remove(ctx, "r1")
	f.engine.settle()

	assert.Empty(t, mirror.Calls())
	assert.Empty(t, f.engine.Lines())
}

func TestClearMirrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	f.engine.settle()

	f.engine.Clear(ctx)
	f.engine.settle()
	assert.Empty(t, f.engine.Lines())
	assert.Empty(t, f.mirror.quantities())
	assert.Contains(t, f.mirror.Calls(), "clear")
}

func TestFailureKeepsLocalAndQueues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	f.mirror.setFail(&client.HTTPError{StatusCode: http.StatusServiceUnavailable, Message: "down"})
	require.NoError(t, f.engine.Add(ctx, line("r1", 2), 1))
	require.NoError(t, f.engine.Add(ctx, line("r1", 2), 1))
	f.engine.settle()

	assert.Equal(t, 2, f.engine.Count(), "no rollback")
	assert.NotEmpty(t, f.engine.Warning())
	assert.Equal(t, 2, f.engine.Pending())

	f.mirror.setFail(nil)
	require.NoError(t, f.engine.Flush(ctx))
	assert.Equal(t, 0, f.engine.Pending())
	assert.Empty(t, f.engine.Warning())
	assert.Equal(t, map[string]int{"r1": 2}, f.mirror.quantities(), "flush sends the current quantity once")
}

func TestFlushFailureRequeues(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	f.mirror.setFail(errors.New("dial tcp: connection refused"))
	require.NoError(t, f.engine.Add(ctx, line("r1", 2), 1))
	f.engine.settle()

	err := f.engine.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, f.engine.Pending())
}

func TestQueueIsBounded(t *testing.T) {
	f := newFixture(t, nil, WithQueueSize(2))
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	f.mirror.setFail(errors.New("timeout"))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, f.engine.Add(ctx, line(id, 1), 1))
		f.engine.settle()
	}
	assert.Equal(t, 2, f.engine.Pending())
}

func TestSessionErrorsAreNotQueued(t *testing.T) {
	for _, err := range []error{client.ErrSessionExpired, client.ErrSessionChanged, client.ErrNoSession} {
		t.Run(err.Error(), func(t *testing.T) {
			f := newFixture(t, nil)
			ctx := context.Background()
			require.NoError(t, f.engine.Attach(ctx, "7"))

			f.mirror.setFail(err)
			require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
			f.engine.settle()
			assert.Equal(t, 0, f.engine.Pending())
		})
	}
}

func TestCreateAfterRemoveDeletesOrphan(t *testing.T) {
	mirror := newFakeMirror()
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	mirror.gate = make(chan struct{})
	mirror.started = make(chan struct{}, 1)
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	<-mirror.started

	f.engine.Remove(ctx, "r1")
	close(mirror.gate)
	f.engine.settle()

	assert.Empty(t, mirror.quantities(), "orphaned server item should be deleted")
	_, ok := f.engine.ServerItemID("r1")
	assert.False(t, ok)
}

func TestDetachDiscardsInFlightResults(t *testing.T) {
	mirror := newFakeMirror()
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	mirror.gate = make(chan struct{})
	mirror.started = make(chan struct{}, 1)
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	<-mirror.started

	f.engine.Detach(ctx)
	close(mirror.gate)
	f.engine.settle()

	assert.Equal(t, LocalOnly, f.engine.Mode())
	assert.Equal(t, 1, f.engine.Count(), "detach keeps lines")
	_, ok := f.engine.ServerItemID("r1")
	assert.False(t, ok)
	assert.Equal(t, []string{"create r1 1"}, mirror.Calls())
}

func TestUpdateNotFoundRecreates(t *testing.T) {
	mirror := newFakeMirror(domain.ServerCartItem{ID: "9", Recipe: domain.Recipe{ID: "r1"}, Quantity: 1})
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	// The item disappears server-side behind our back.
	require.NoError(t, mirror.ClearCart(ctx))

	require.NoError(t, f.engine.SetQuantity(ctx, "r1", 3))
	f.engine.settle()
	_, ok := f.engine.ServerItemID("r1")
	assert.False(t, ok)
	assert.Equal(t, 1, f.engine.Pending())

	require.NoError(t, f.engine.Flush(ctx))
	assert.Equal(t, map[string]int{"r1": 3}, mirror.quantities())
	_, ok = f.engine.ServerItemID("r1")
	assert.True(t, ok)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t, nil, WithQueueSize(10))
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	f.mirror.setFail(&client.HTTPError{StatusCode: http.StatusBadGateway})
	for i := range 5 {
		require.NoError(t, f.engine.Add(ctx, line(string(rune('a'+i)), 1), 1))
		f.engine.settle()
	}
	assert.False(t, f.engine.Online())

	before := len(f.mirror.Calls())
	require.NoError(t, f.engine.Add(ctx, line("z", 1), 1))
	f.engine.settle()
	assert.Equal(t, before, len(f.mirror.Calls()), "open breaker should not reach the server")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	f := newFixture(t, nil, WithQueueSize(10))
	ctx := context.Background()
	require.NoError(t, f.engine.Attach(ctx, "7"))

	f.mirror.setFail(&client.HTTPError{StatusCode: http.StatusBadRequest})
	for i := range 6 {
		require.NoError(t, f.engine.Add(ctx, line(string(rune('a'+i)), 1), 1))
		f.engine.settle()
	}
	assert.True(t, f.engine.Online())
}

func TestRestoreBackup(t *testing.T) {
	mirror := newFakeMirror()
	f := newFixture(t, mirror)
	ctx := context.Background()
	require.NoError(t, f.engine.Add(ctx, line("r1", 2), 2))
	require.NoError(t, f.engine.Attach(ctx, "7"))
	assert.Empty(t, f.engine.Lines())

	n, err := f.engine.RestoreBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, f.engine.Count())
	f.engine.settle()
	assert.Equal(t, map[string]int{"r1": 2}, mirror.quantities())

	n, err = f.engine.RestoreBackup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "backup is consumed")
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	calls := 0
	unsubscribe := f.engine.Subscribe(func() { calls++ })
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	f.engine.Remove(ctx, "r1")
	f.engine.Remove(ctx, "r1")
	assert.Equal(t, 2, calls, "a no-op remove does not notify")

	unsubscribe()
	require.NoError(t, f.engine.Add(ctx, line("r1", 1), 1))
	assert.Equal(t, 2, calls)
}

func TestMutationsAfterCloseAreQueued(t *testing.T) {
	mirror := newFakeMirror()
	b := store.NewMemoryBackend()
	ctx := context.Background()
	e := New(ctx, store.NewCart(b, zerolog.Nop()), mirror)
	require.NoError(t, e.Attach(ctx, "7"))
	e.Close()

	require.NoError(t, e.Add(ctx, line("r1", 1), 1))
	assert.Equal(t, 1, e.Pending())
	assert.Empty(t, mirror.Calls())
}
