package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/hearthfire/cookforge/internal/errors"
	"github.com/hearthfire/cookforge/store"
)

func newTestManager() (*Manager, *MockOrderStore, *MockCustomerStore, *MockSink) {
	orders := NewMockOrderStore()
	customers := NewMockCustomerStore()
	sink := NewMockSink()
	mgr := NewManager(ManagerConfig{
		Orders:     orders,
		Customers:  customers,
		Sink:       sink,
		DefaultTTL: time.Minute,
	})
	return mgr, orders, customers, sink
}

func TestCreateSession(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	t.Run("AttachesScopeAndComputesExpiry", func(t *testing.T) {
		sess, err := mgr.CreateSession("scp-1", time.Minute)
		require.NoError(t, err)

		assert.Equal(t, []string{"scp-1"}, sess.Scopes())
		assert.True(t, sess.ExpiresAt().After(sess.LastAccessedAt()))
		assert.False(t, sess.ExpiresImmediately())
	})

	t.Run("EmptyScopeID", func(t *testing.T) {
		_, err := mgr.CreateSession("", time.Minute)
		require.Error(t, err)
		assert.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
	})

	t.Run("NoDurationExpiresImmediately", func(t *testing.T) {
		sess, err := mgr.CreateSession("scp-2", 0)
		require.NoError(t, err)
		assert.True(t, sess.ExpiresImmediately())
	})
}

func TestGetSession(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	sess, err := mgr.CreateSession("scp-1", time.Minute)
	require.NoError(t, err)

	t.Run("RefreshesExpiry", func(t *testing.T) {
		before := sess.ExpiresAt()
		time.Sleep(5 * time.Millisecond)

		got, err := mgr.GetSession(sess.ID)
		require.NoError(t, err)
		assert.Same(t, sess, got)
		assert.True(t, got.ExpiresAt().After(before))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := mgr.GetSession("missing")
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})
}

func TestGetSessionByScope(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	t.Run("GetOrCreate", func(t *testing.T) {
		first, err := mgr.GetSessionByScope("scp-1")
		require.NoError(t, err)

		// Same scope id resolves to the same session.
		second, err := mgr.GetSessionByScope("scp-1")
		require.NoError(t, err)
		assert.Same(t, first, second)

		// A distinct unseen scope id yields a new session.
		other, err := mgr.GetSessionByScope("scp-2")
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID)
	})

	t.Run("EmptyScopeID", func(t *testing.T) {
		_, err := mgr.GetSessionByScope("")
		assert.True(t, errs.IsCode(err, errs.CodeInvalidArgument))
	})
}

func TestAddScopeIdempotent(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	sess, err := mgr.CreateSession("scp-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, mgr.AddScopeToSession(sess, "scp-2"))
	require.NoError(t, mgr.AddScopeToSession(sess, "scp-2"))

	assert.Equal(t, 2, sess.ScopeCount())
}

func TestRemoveScopeFromSession(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	sess, err := mgr.CreateSession("scp-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, mgr.RemoveScopeFromSession("scp-1"))
	assert.Equal(t, 0, sess.ScopeCount())

	// Removing an unattached scope is a no-op.
	require.NoError(t, mgr.RemoveScopeFromSession("scp-1"))
	require.NoError(t, mgr.RemoveScopeFromSession("never-seen"))
}

func TestGetSessionByOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadsOrderAndCustomer", func(t *testing.T) {
		mgr, orders, customers, _ := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"})
		customers.Put(&store.Customer{Email: "ada@example.com", Credits: 5})

		sess, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		require.NoError(t, err)
		assert.Equal(t, "ord_1", sess.Order().UID)
		assert.Equal(t, "ada@example.com", sess.UserID())
		assert.True(t, sess.HasScope("scp-1"))
	})

	t.Run("SecondScopeJoinsExistingSession", func(t *testing.T) {
		mgr, orders, customers, _ := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"})
		customers.Put(&store.Customer{Email: "ada@example.com"})

		first, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		require.NoError(t, err)
		second, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-2")
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.True(t, second.HasScope("scp-1"))
		assert.True(t, second.HasScope("scp-2"))
	})

	t.Run("OrderNotFound", func(t *testing.T) {
		mgr, _, _, _ := newTestManager()
		_, err := mgr.GetSessionByOrder(ctx, "missing", "scp-1")
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})

	t.Run("CustomerNotFound", func(t *testing.T) {
		mgr, orders, _, _ := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ghost@example.com"})

		_, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})
}

func TestAddOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	mgr, _, customers, _ := newTestManager()
	customers.Put(&store.Customer{Email: "ada@example.com"})

	sess, err := mgr.GetSessionByScope("scp-1")
	require.NoError(t, err)

	order := &store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"}
	require.NoError(t, mgr.AddOrder("scp-1", order))

	// A second scope rejoining by order id lands on the same session.
	joined, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-2")
	require.NoError(t, err)
	assert.Same(t, sess, joined)
	assert.Equal(t, "ord_1", joined.Order().UID)
	assert.True(t, joined.HasScope("scp-1"))
	assert.True(t, joined.HasScope("scp-2"))
}

func TestAddOrderUnattachedScope(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	err := mgr.AddOrder("unattached", &store.Order{UID: "ord_1"})
	assert.True(t, errs.IsCode(err, errs.CodeNotFound))
}

func TestGetSessionByUserID(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	first, err := mgr.GetSessionByUserID("ada@example.com", "scp-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", first.UserID())
	assert.False(t, first.ExpiresImmediately(), "identity sessions carry the default TTL")

	second, err := mgr.GetSessionByUserID("ada@example.com", "scp-2")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, second.HasScope("scp-2"))
}

func TestGetSessionByAPIKey(t *testing.T) {
	mgr, _, _, _ := newTestManager()

	first, err := mgr.GetSessionByAPIKey("key-1", "scp-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", first.APIKeyValue())

	second, err := mgr.GetSessionByAPIKey("key-1", "scp-2")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestConversationOperations(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	_, err := mgr.GetSessionByScope("scp-1")
	require.NoError(t, err)

	t.Run("InitializeAndAppend", func(t *testing.T) {
		conv, err := mgr.InitializeConversation("scp-1", "conv-1", "you are a chef", "chat")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", conv.ID)

		require.NoError(t, mgr.AddMessage("scp-1", "conv-1", NewMessage("user", TextPayload("hi"))))

		got, err := mgr.GetConversation("scp-1", "conv-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Len())
	})

	t.Run("UnattachedScope", func(t *testing.T) {
		_, err := mgr.InitializeConversation("ghost", "conv-1", "", "")
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))

		err = mgr.AddMessage("ghost", "conv-1", NewMessage("user", TextPayload("hi")))
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		_, err := mgr.GetConversation("scp-1", "missing")
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
	})
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesAndPersists", func(t *testing.T) {
		mgr, orders, customers, sink := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"})
		customers.Put(&store.Customer{Email: "ada@example.com"})

		sess, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		require.NoError(t, err)
		conv, err := mgr.InitializeConversation("scp-1", "conv-1", "prompt", "chat")
		require.NoError(t, err)
		conv.Append(NewMessage("user", TextPayload("make me a cookbook")))

		require.NoError(t, mgr.EndSession(ctx, sess))

		_, err = mgr.GetSession(sess.ID)
		assert.True(t, errs.IsCode(err, errs.CodeNotFound))
		require.Len(t, sink.Written(), 1)
		assert.Equal(t, "conv-1", sink.Written()[0].ID)

		// Ending twice is a no-op.
		require.NoError(t, mgr.EndSession(ctx, sess))
	})

	t.Run("SinkUnavailableIsSwallowed", func(t *testing.T) {
		mgr, _, _, sink := newTestManager()
		sink.Err = errs.ServiceUnavailable("sink down", nil)

		sess, err := mgr.GetSessionByScope("scp-1")
		require.NoError(t, err)
		_, err = mgr.InitializeConversation("scp-1", "conv-1", "", "")
		require.NoError(t, err)

		assert.NoError(t, mgr.EndSession(ctx, sess))
		assert.Equal(t, 0, mgr.Len())
	})

	t.Run("UnexpectedSinkErrorPropagates", func(t *testing.T) {
		mgr, _, _, sink := newTestManager()
		sink.Err = errs.InvariantViolation("corrupt transcript")

		sess, err := mgr.GetSessionByScope("scp-1")
		require.NoError(t, err)
		_, err = mgr.InitializeConversation("scp-1", "conv-1", "", "")
		require.NoError(t, err)

		err = mgr.EndSession(ctx, sess)
		require.Error(t, err)

		// At-most-once removal: the session is gone even though
		// persistence failed.
		_, getErr := mgr.GetSession(sess.ID)
		assert.True(t, errs.IsCode(getErr, errs.CodeNotFound))
	})

	t.Run("OrderPersistenceFailurePropagates", func(t *testing.T) {
		mgr, orders, customers, _ := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"})
		customers.Put(&store.Customer{Email: "ada@example.com"})

		sess, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		require.NoError(t, err)

		orders.FailUpserts = true
		assert.Error(t, mgr.EndSession(ctx, sess))
	})

	t.Run("EndSessionByID", func(t *testing.T) {
		mgr, _, _, _ := newTestManager()
		sess, err := mgr.CreateSession("scp-1", time.Minute)
		require.NoError(t, err)

		require.NoError(t, mgr.EndSessionByID(ctx, sess.ID))
		assert.True(t, errs.IsCode(mgr.EndSessionByID(ctx, sess.ID), errs.CodeNotFound))
	})

	t.Run("EndSessionByOrder", func(t *testing.T) {
		mgr, orders, customers, _ := newTestManager()
		orders.Put(&store.Order{UID: "ord_1", CustomerEmail: "ada@example.com"})
		customers.Put(&store.Customer{Email: "ada@example.com"})

		_, err := mgr.GetSessionByOrder(ctx, "ord_1", "scp-1")
		require.NoError(t, err)

		require.NoError(t, mgr.EndSessionByOrder(ctx, "ord_1"))
		assert.True(t, errs.IsCode(mgr.EndSessionByOrder(ctx, "ord_1"), errs.CodeNotFound))
	})
}

func TestConcurrentScopeChurn(t *testing.T) {
	mgr, _, _, _ := newTestManager()
	sess, err := mgr.CreateSession("scp-root", time.Minute)
	require.NoError(t, err)

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			id := "scp-" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			_ = mgr.AddScopeToSession(sess, id)
			_ = mgr.RemoveScopeFromSession(id)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, sess.ScopeCount(), "only the root scope remains")
	assert.True(t, sess.HasScope("scp-root"))
}
