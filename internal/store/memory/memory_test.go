package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestGetSetDelete(t *testing.T) {
	st := New()
	ctx := context.Background()

	_, err := st.GetDocument(ctx, "rooms/r1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "a", Count: 1}))
	data, err := st.GetDocument(ctx, "rooms/r1")
	require.NoError(t, err)
	var got doc
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, doc{Name: "a", Count: 1}, got)

	require.NoError(t, st.DeleteDocument(ctx, "rooms/r1"))
	require.NoError(t, st.DeleteDocument(ctx, "rooms/r1"))
	_, err = st.GetDocument(ctx, "rooms/r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateDocumentMergesTopLevelFields(t *testing.T) {
	st := New()
	ctx := context.Background()

	err := st.UpdateDocument(ctx, "rooms/r1", map[string]interface{}{"count": 2})
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "a", Count: 1}))
	require.NoError(t, st.UpdateDocument(ctx, "rooms/r1", map[string]interface{}{"count": 2}))

	data, err := st.GetDocument(ctx, "rooms/r1")
	require.NoError(t, err)
	var got doc
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, doc{Name: "a", Count: 2}, got)
}

func TestListCollectionSkipsNestedChildren(t *testing.T) {
	st := New()
	ctx := context.Background()

	require.NoError(t, st.SetDocument(ctx, "rooms/r1/chat/m1", doc{Name: "one"}))
	require.NoError(t, st.SetDocument(ctx, "rooms/r1/chat/m2", doc{Name: "two"}))
	require.NoError(t, st.SetDocument(ctx, "rooms/r1/chat/m2/replies/x", doc{Name: "nested"}))

	children, err := st.ListCollection(ctx, "rooms/r1/chat")
	require.NoError(t, err)
	assert.Len(t, children, 2)
	assert.Contains(t, children, "m1")
	assert.Contains(t, children, "m2")
}

func TestDocumentSubscription(t *testing.T) {
	st := New()
	ctx := context.Background()

	var updates [][]byte
	unsubscribe, err := st.SubscribeDocument(ctx, "rooms/r1", func(data []byte) {
		updates = append(updates, data)
	})
	require.NoError(t, err)

	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "a"}))
	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "b"}))
	require.NoError(t, st.DeleteDocument(ctx, "rooms/r1"))
	require.Len(t, updates, 3)
	assert.Nil(t, updates[2])

	unsubscribe()
	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "c"}))
	assert.Len(t, updates, 3)
}

func TestCollectionSubscription(t *testing.T) {
	st := New()
	ctx := context.Background()

	var events []store.ChildEvent
	unsubscribe, err := st.SubscribeCollection(ctx, "rooms/r1/participants", func(ev store.ChildEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, st.SetDocument(ctx, "rooms/r1/participants/u1", doc{Name: "a"}))
	require.NoError(t, st.SetDocument(ctx, "rooms/r1/participants/u1", doc{Name: "b"}))
	require.NoError(t, st.DeleteDocument(ctx, "rooms/r1/participants/u1"))

	require.Len(t, events, 3)
	assert.Equal(t, store.ChildAdded, events[0].Type)
	assert.Equal(t, store.ChildChanged, events[1].Type)
	assert.Equal(t, store.ChildRemoved, events[2].Type)
	assert.Equal(t, "u1", events[0].ID)
}

func TestAddToCollectionGeneratesUniqueIDs(t *testing.T) {
	st := New()
	ctx := context.Background()

	id1, err := st.AddToCollection(ctx, "rooms/r1/chat", doc{Name: "one"})
	require.NoError(t, err)
	id2, err := st.AddToCollection(ctx, "rooms/r1/chat", doc{Name: "two"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	children, err := st.ListCollection(ctx, "rooms/r1/chat")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestCallbackMayReenterStore(t *testing.T) {
	st := New()
	ctx := context.Background()

	var observed []byte
	_, err := st.SubscribeDocument(ctx, "rooms/r1", func(data []byte) {
		// Re-entering the store from a callback must not deadlock.
		got, err := st.GetDocument(ctx, "rooms/r1")
		if err == nil {
			observed = got
		}
	})
	require.NoError(t, err)

	require.NoError(t, st.SetDocument(ctx, "rooms/r1", doc{Name: "a"}))
	assert.NotNil(t, observed)
}
