package cart

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePublishesChanges(t *testing.T) {
	store := NewStore()

	var changes []Change
	cancel := store.Subscribe(func(c Change) { changes = append(changes, c) })

	line, err := store.AddItem(margherita(2))
	require.NoError(t, err)
	assert.Equal(t, 1, line.ID)

	store.UpdateQuantity(line.ID, 0)
	store.UpdateQuantity(line.ID, 3)

	require.Len(t, changes, 2, "no-op update must not notify")
	assert.Equal(t, ActionAdd, changes[0].Action.Type)
	assert.Equal(t, ActionUpdateQuantity, changes[1].Action.Type)
	assert.InDelta(t, 897, changes[1].State.Subtotal, 1e-9)

	cancel()
	cancel()
	store.Clear()
	assert.Len(t, changes, 2)
}

func TestStoreClearThenRead(t *testing.T) {
	store := NewStore()
	_, err := store.AddItem(margherita(2, "olive"))
	require.NoError(t, err)

	store.Clear()
	snap := store.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Zero(t, snap.Subtotal)
	assert.Zero(t, snap.Count())
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	store := NewStore()
	_, err := store.AddItem(margherita(1, "olive"))
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.Items[0].Quantity = 9
	snap.Items[0].Toppings[0].ID = "mutated"

	fresh := store.Snapshot()
	assert.Equal(t, 1, fresh.Items[0].Quantity)
	assert.Equal(t, "olive", fresh.Items[0].Toppings[0].ID)
}

func TestStoreSerialisesConcurrentAdds(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			item := margherita(1)
			item.ProductID = "p-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			_, _ = store.AddItem(item)
		}()
	}
	wg.Wait()

	snap := store.Snapshot()
	require.Len(t, snap.Items, 50)
	seen := map[int]bool{}
	for _, item := range snap.Items {
		assert.False(t, seen[item.ID], "duplicate id %d", item.ID)
		seen[item.ID] = true
	}
	assert.InDelta(t, 50*299, snap.Subtotal, 1e-6)
}

func TestSubscriberMayReadSnapshot(t *testing.T) {
	store := NewStore()
	var observed int
	store.Subscribe(func(Change) { observed = store.Snapshot().Count() })

	_, err := store.AddItem(margherita(4))
	require.NoError(t, err)
	assert.Equal(t, 4, observed)
}
