package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale/internal/model"
	"resale/internal/repository"
	"resale/internal/repository/memstore"
	"resale/pkg/limiter"
	"resale/pkg/lock"
	"resale/pkg/utils"
)

type fixture struct {
	store *memstore.Store
	svc   ChatService
	alice uint64
	bob   uint64
	carol uint64
}

func newFixture(t *testing.T, sendLimit int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	f := &fixture{store: store}
	for _, name := range []string{"alice", "bob", "carol"} {
		u := &model.User{Username: name, Role: model.RoleUser, Status: model.UserStatusNormal}
		require.NoError(t, store.Users().Create(context.Background(), u))
		switch name {
		case "alice":
			f.alice = u.ID
		case "bob":
			f.bob = u.ID
		default:
			f.carol = u.ID
		}
	}

	var sendLimiter limiter.RateLimiter
	if sendLimit > 0 {
		sendLimiter = limiter.NewSlidingWindowLimiter(client, "chat_send", sendLimit, time.Minute)
	}
	f.svc = NewChatService(store, lock.NewLocker(client, time.Second), sendLimiter, Config{MessagePageMax: 100}, nil)
	return f
}

func text(s string) *SendMessageRequest {
	return &SendMessageRequest{MessageType: model.MessageTypeText, Content: &s}
}

func TestCreateRoom_Idempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)
	require.Len(t, room.Participants, 2)

	again, err := f.svc.CreateRoom(ctx, f.bob, f.alice)
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestCreateRoom_Concurrent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]uint64, 6)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := f.alice, f.bob
			if i%2 == 1 {
				a, b = b, a
			}
			room, err := f.svc.CreateRoom(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = room.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	rooms, err := f.svc.ListRooms(ctx, f.alice)
	require.NoError(t, err)
	assert.Len(t, rooms, 1)
}

func TestCreateRoom_Rejected(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.CreateRoom(ctx, f.alice, f.alice)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	_, err = f.svc.CreateRoom(ctx, f.alice, 9999)
	assert.Equal(t, utils.CodeNotFound, utils.GetErrorCode(err))
}

func TestSendMessage_UnreadCounters(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	for _, body := range []string{"hi", "still there?", "ping"} {
		_, err := f.svc.SendMessage(ctx, room.ID, f.alice, text(body))
		require.NoError(t, err)
	}

	total, err := f.svc.GetUnreadTotal(ctx, f.bob)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)

	total, err = f.svc.GetUnreadTotal(ctx, f.alice)
	require.NoError(t, err)
	assert.Zero(t, total)

	got, err := f.svc.GetRoom(ctx, room.ID, f.alice)
	require.NoError(t, err)
	assert.NotNil(t, got.LastMessageAt)
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	post := &model.Post{PosterID: f.bob, Title: "lamp", Price: 1200, Condition: model.ConditionGood}
	require.NoError(t, f.store.Posts().Create(ctx, post))

	empty := ""
	image := "ftp://img/1.png"
	missing := uint64(4242)
	tests := []struct {
		name string
		req  *SendMessageRequest
		code utils.ResponseCode
	}{
		{"empty text", text("   "), utils.CodeInvalidParam},
		{"text with post", &SendMessageRequest{MessageType: model.MessageTypeText, Content: &empty, PostID: &post.ID}, utils.CodeInvalidParam},
		{"image not url", &SendMessageRequest{MessageType: model.MessageTypeImage, Content: &image}, utils.CodeInvalidParam},
		{"post without id", &SendMessageRequest{MessageType: model.MessageTypePost}, utils.CodeInvalidParam},
		{"post with content", &SendMessageRequest{MessageType: model.MessageTypePost, Content: &image, PostID: &post.ID}, utils.CodeInvalidParam},
		{"unknown post", &SendMessageRequest{MessageType: model.MessageTypePost, PostID: &missing}, utils.CodeNotFound},
		{"unknown type", &SendMessageRequest{MessageType: "video", Content: &image}, utils.CodeInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, room.ID, f.alice, tt.req)
			assert.Equal(t, tt.code, utils.GetErrorCode(err))
		})
	}

	msg, err := f.svc.SendMessage(ctx, room.ID, f.alice, &SendMessageRequest{MessageType: model.MessageTypePost, PostID: &post.ID})
	require.NoError(t, err)
	assert.Equal(t, post.ID, *msg.PostID)
	assert.Nil(t, msg.Content)
}

func TestSendMessage_NotParticipant(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, room.ID, f.carol, text("let me in"))
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	_, err = f.svc.GetRoom(ctx, room.ID, f.carol)
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	_, err = f.svc.ListMessages(ctx, room.ID, f.carol, 0, 10)
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	_, err = f.svc.SendMessage(ctx, 777, f.alice, text("nowhere"))
	assert.Equal(t, utils.CodeNotFound, utils.GetErrorCode(err))
}

func TestSendMessage_RateLimited(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := f.svc.SendMessage(ctx, room.ID, f.alice, text("spam"))
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, room.ID, f.alice, text("spam"))
	assert.Equal(t, utils.CodeRateLimit, utils.GetErrorCode(err))

	// limit is per sender
	_, err = f.svc.SendMessage(ctx, room.ID, f.bob, text("calm down"))
	assert.NoError(t, err)
}

func TestMarkMessageRead(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	first, err := f.svc.SendMessage(ctx, room.ID, f.alice, text("one"))
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, room.ID, f.alice, text("two"))
	require.NoError(t, err)

	created, err := f.svc.MarkMessageRead(ctx, first.ID, f.bob)
	require.NoError(t, err)
	assert.True(t, created)

	// second read is a no-op and must not decrement again
	created, err = f.svc.MarkMessageRead(ctx, first.ID, f.bob)
	require.NoError(t, err)
	assert.False(t, created)

	total, err := f.svc.GetUnreadTotal(ctx, f.bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	// sender already holds a receipt for their own message
	created, err = f.svc.MarkMessageRead(ctx, first.ID, f.alice)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = f.svc.MarkMessageRead(ctx, first.ID, f.carol)
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	_, err = f.svc.MarkMessageRead(ctx, 5555, f.bob)
	assert.Equal(t, utils.CodeNotFound, utils.GetErrorCode(err))
}

func TestMarkRoomRead(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	first, err := f.svc.SendMessage(ctx, room.ID, f.alice, text("a"))
	require.NoError(t, err)
	for _, s := range []string{"b", "c"} {
		_, err := f.svc.SendMessage(ctx, room.ID, f.alice, text(s))
		require.NoError(t, err)
	}
	_, err = f.svc.SendMessage(ctx, room.ID, f.bob, text("reply"))
	require.NoError(t, err)

	_, err = f.svc.MarkMessageRead(ctx, first.ID, f.bob)
	require.NoError(t, err)

	marked, err := f.svc.MarkRoomRead(ctx, room.ID, f.bob)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	total, err := f.svc.GetUnreadTotal(ctx, f.bob)
	require.NoError(t, err)
	assert.Zero(t, total)

	marked, err = f.svc.MarkRoomRead(ctx, room.ID, f.bob)
	require.NoError(t, err)
	assert.Zero(t, marked)

	_, err = f.svc.MarkRoomRead(ctx, room.ID, f.carol)
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	_, err = f.svc.MarkRoomRead(ctx, 8888, f.bob)
	assert.Equal(t, utils.CodeNotFound, utils.GetErrorCode(err))
}

// recordingGateway logs the participant and counter calls made inside transactions
type recordingGateway struct {
	repository.Gateway
	calls *[]string
}

func (g recordingGateway) Chats() repository.ChatRepository {
	return recordingChats{g.Gateway.Chats(), g.calls}
}

func (g recordingGateway) Transaction(ctx context.Context, fn func(tx repository.Gateway) error) error {
	return g.Gateway.Transaction(ctx, func(tx repository.Gateway) error {
		return fn(recordingGateway{tx, g.calls})
	})
}

type recordingChats struct {
	repository.ChatRepository
	calls *[]string
}

func (c recordingChats) GetParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	*c.calls = append(*c.calls, "get")
	return c.ChatRepository.GetParticipant(ctx, roomID, userID)
}

func (c recordingChats) LockParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	*c.calls = append(*c.calls, "lock")
	return c.ChatRepository.LockParticipant(ctx, roomID, userID)
}

func (c recordingChats) ListUnreadMessageIDs(ctx context.Context, roomID, userID uint64) ([]uint64, error) {
	*c.calls = append(*c.calls, "list")
	return c.ChatRepository.ListUnreadMessageIDs(ctx, roomID, userID)
}

func (c recordingChats) ResetUnread(ctx context.Context, roomID, userID uint64) error {
	*c.calls = append(*c.calls, "reset")
	return c.ChatRepository.ResetUnread(ctx, roomID, userID)
}

func TestMarkRoomRead_LocksCounterBeforeListing(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, room.ID, f.alice, text("hi"))
	require.NoError(t, err)

	var calls []string
	svc := NewChatService(recordingGateway{f.store, &calls}, nil, nil, Config{}, nil)
	marked, err := svc.MarkRoomRead(ctx, room.ID, f.bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)
	assert.Equal(t, []string{"lock", "list", "reset"}, calls)
}

func TestMarkRoomRead_ConcurrentSendsKeepCount(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	const sends = 20
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.SendMessage(ctx, room.ID, f.alice, text("ping"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.MarkRoomRead(ctx, room.ID, f.bob)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// whatever is still counted must be exactly what bob has not read
	unread, err := f.store.Chats().ListUnreadMessageIDs(ctx, room.ID, f.bob)
	require.NoError(t, err)
	total, err := f.svc.GetUnreadTotal(ctx, f.bob)
	require.NoError(t, err)
	assert.EqualValues(t, len(unread), total)
}

func TestListMessages_Paging(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, f.alice, f.bob)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.svc.SendMessage(ctx, room.ID, f.alice, text("m"))
		require.NoError(t, err)
	}

	page, err := f.svc.ListMessages(ctx, room.ID, f.bob, 0, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Greater(t, page[0].ID, page[2].ID)

	rest, err := f.svc.ListMessages(ctx, room.ID, f.bob, page[2].ID, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 2)
}
