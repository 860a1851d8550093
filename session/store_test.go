package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/smallnest/graphrag/model"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, "", time.Hour), mr
}

func TestRedisStore_CreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)
	assert.NotEmpty(t, sess.SessionID)

	loaded, err := store.Get(ctx, sess.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, sess.SessionID, loaded.SessionID)
}

func TestRedisStore_Get_NotFound(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "missing-session")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRedisStore_Update_RefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	mr.FastForward(30 * time.Minute)
	assert.NoError(t, store.Update(ctx, sess))

	ttl := mr.TTL(store.key(sess.SessionID))
	assert.True(t, ttl > 30*time.Minute)
}

func TestRedisStore_Delete(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	assert.NoError(t, store.Delete(ctx, sess.SessionID))

	_, err = store.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRedisStore_Extend(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	mr.FastForward(59 * time.Minute)
	assert.NoError(t, store.Extend(ctx, sess.SessionID))

	ttl := mr.TTL(store.key(sess.SessionID))
	assert.True(t, ttl > 59*time.Minute)
}

func TestRedisStore_Reset_PreservesHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	sess.CurrentIntent = "product_selection"
	sess.CollectedValues["color"] = "red"
	assert.NoError(t, store.Update(ctx, sess))

	_, err = store.AddMessage(ctx, sess.SessionID, "user", "hello")
	assert.NoError(t, err)

	reset, err := store.Reset(ctx, sess.SessionID)
	assert.NoError(t, err)
	assert.Empty(t, reset.CurrentIntent)
	assert.Empty(t, reset.CollectedValues)
	assert.Len(t, reset.ConversationHistory, 1)
}

func TestRedisStore_AddMessage_TrimsHistory(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	for i := 0; i < model.MaxHistoryMessages+10; i++ {
		_, err := store.AddMessage(ctx, sess.SessionID, "user", "hi")
		assert.NoError(t, err)
	}

	loaded, err := store.Get(ctx, sess.SessionID)
	assert.NoError(t, err)
	assert.Len(t, loaded.ConversationHistory, model.MaxHistoryMessages)
}

func TestRedisStore_List(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx)
	assert.NoError(t, err)
	_, err = store.Create(ctx)
	assert.NoError(t, err)

	list, err := store.List(ctx)
	assert.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, err := miniredis.Run()
	assert.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewWithClient(client, "", time.Minute)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	assert.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.Get(ctx, sess.SessionID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestNew_DefaultsPrefixAndTTL(t *testing.T) {
	store := New(Options{Addr: "localhost:6379"})
	assert.Equal(t, "conv_session:", store.prefix)
	assert.Equal(t, 24*time.Hour, store.ttl)
	assert.NoError(t, store.Close())
}
