package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"resale/internal/model"
	"resale/internal/monitor"
	"resale/internal/repository"
	"resale/pkg/limiter"
	"resale/pkg/log"
	"resale/pkg/utils"
)

const (
	defaultPageSize = 50
	maxContentLen   = 4000
)

// Locker serializes a critical section across instances
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Config chat limits
type Config struct {
	MessagePageMax int
}

// CreateRoomRequest open a direct conversation
type CreateRoomRequest struct {
	PeerID uint64 `json:"peer_id" binding:"required"`
}

// SendMessageRequest message payload. Content carries text or an image URL
// and PostID a referenced listing; exactly one is set.
type SendMessageRequest struct {
	MessageType model.MessageType `json:"message_type" binding:"required,oneof=text image post"`
	Content     *string           `json:"content" binding:"omitempty,max=4000"`
	PostID      *uint64           `json:"post_id"`
}

// ChatService chat service interface
type ChatService interface {
	// CreateRoom returns the direct room of the pair, creating it on first use
	CreateRoom(ctx context.Context, userID, peerID uint64) (*model.ChatRoom, error)
	GetRoom(ctx context.Context, roomID, userID uint64) (*model.ChatRoom, error)
	ListRooms(ctx context.Context, userID uint64) ([]*model.ChatRoom, error)

	SendMessage(ctx context.Context, roomID, senderID uint64, req *SendMessageRequest) (*model.Message, error)
	ListMessages(ctx context.Context, roomID, userID, beforeID uint64, limit int) ([]*model.Message, error)

	// MarkMessageRead reports whether a new receipt was recorded
	MarkMessageRead(ctx context.Context, messageID, userID uint64) (bool, error)
	// MarkRoomRead reads everything in the room and returns how many receipts were added
	MarkRoomRead(ctx context.Context, roomID, userID uint64) (int64, error)
	GetUnreadTotal(ctx context.Context, userID uint64) (int64, error)
}

type chatService struct {
	gateway repository.Gateway
	locker  Locker
	limiter limiter.RateLimiter
	config  Config
	metrics *monitor.MetricsCollector
	now     func() time.Time
}

// NewChatService creates a chat service. sendLimiter and metrics may be nil.
func NewChatService(
	gateway repository.Gateway,
	locker Locker,
	sendLimiter limiter.RateLimiter,
	config Config,
	metrics *monitor.MetricsCollector,
) ChatService {
	if config.MessagePageMax <= 0 {
		config.MessagePageMax = 100
	}
	return &chatService{
		gateway: gateway,
		locker:  locker,
		limiter: sendLimiter,
		config:  config,
		metrics: metrics,
		now:     time.Now,
	}
}

var errNotParticipant = utils.NewError(utils.CodeForbidden, "not a participant of this room")

func (s *chatService) CreateRoom(ctx context.Context, userID, peerID uint64) (*model.ChatRoom, error) {
	if userID == peerID {
		return nil, utils.NewError(utils.CodeInvalidParam, "cannot open a chat with yourself")
	}
	if _, err := s.gateway.Users().GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	pairKey := model.DirectPairKey(userID, peerID)
	if room, err := s.gateway.Chats().FindDirectRoom(ctx, pairKey); err != nil || room != nil {
		return room, err
	}

	var room *model.ChatRoom
	create := func() error {
		var err error
		room, err = s.findOrCreate(ctx, pairKey, userID, peerID)
		return err
	}
	if s.locker == nil {
		return room, create()
	}

	ran := false
	err := s.locker.WithLock(ctx, "lock:chat_room:"+pairKey, func() error {
		ran = true
		return create()
	})
	if err != nil && !ran {
		// the unique pair key still prevents duplicates without the lock
		log.WithContext(ctx).WithError(err).WithField("pair_key", pairKey).Warn("Room lock unavailable")
		err = create()
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

func (s *chatService) findOrCreate(ctx context.Context, pairKey string, a, b uint64) (*model.ChatRoom, error) {
	chats := s.gateway.Chats()
	if room, err := chats.FindDirectRoom(ctx, pairKey); err != nil || room != nil {
		return room, err
	}

	key := pairKey
	room := &model.ChatRoom{
		PairKey: &key,
		Participants: []model.ChatRoomParticipant{
			{UserID: a, UnreadCount: 0},
			{UserID: b, UnreadCount: 0},
		},
	}
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		return tx.Chats().CreateRoom(ctx, room)
	})
	if err != nil {
		if errors.Is(err, utils.ErrConflict) {
			// lost the race, read the winner
			return chats.FindDirectRoom(ctx, pairKey)
		}
		return nil, err
	}

	log.WithContext(ctx).WithFields(logrus.Fields{
		"room_id":  room.ID,
		"pair_key": pairKey,
	}).Info("Chat room created")
	return room, nil
}

func (s *chatService) GetRoom(ctx context.Context, roomID, userID uint64) (*model.ChatRoom, error) {
	room, err := s.gateway.Chats().GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(userID) {
		return nil, errNotParticipant
	}
	return room, nil
}

func (s *chatService) ListRooms(ctx context.Context, userID uint64) ([]*model.ChatRoom, error) {
	return s.gateway.Chats().ListRoomsForUser(ctx, userID)
}

func (s *chatService) SendMessage(ctx context.Context, roomID, senderID uint64, req *SendMessageRequest) (*model.Message, error) {
	if err := s.allowSend(ctx, senderID); err != nil {
		return nil, err
	}

	msg, err := buildMessage(roomID, senderID, req)
	if err != nil {
		return nil, err
	}

	err = s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		chats := tx.Chats()
		if _, err := chats.GetRoom(ctx, roomID); err != nil {
			return err
		}
		p, err := chats.GetParticipant(ctx, roomID, senderID)
		if err != nil {
			return err
		}
		if p == nil {
			return errNotParticipant
		}
		if msg.PostID != nil {
			if _, err := tx.Posts().GetByID(ctx, *msg.PostID); err != nil {
				return err
			}
		}

		now := s.now()
		msg.CreatedAt = now
		if err := chats.CreateMessage(ctx, msg); err != nil {
			return err
		}
		if _, err := chats.CreateReadReceipt(ctx, &model.MessageReadBy{
			MessageID: msg.ID,
			UserID:    senderID,
			ReadAt:    now,
		}); err != nil {
			return err
		}
		if err := chats.IncrementUnread(ctx, roomID, senderID); err != nil {
			return err
		}
		return chats.TouchRoom(ctx, roomID, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordChatMessage(string(msg.MessageType))
	log.WithContext(ctx).WithFields(logrus.Fields{
		"room_id":    roomID,
		"message_id": msg.ID,
		"sender_id":  senderID,
	}).Debug("Message sent")
	return msg, nil
}

// allowSend applies the per-sender limit. A limiter outage lets the message through.
func (s *chatService) allowSend(ctx context.Context, senderID uint64) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, strconv.FormatUint(senderID, 10))
	if err != nil {
		log.WithContext(ctx).WithError(err).Warn("Send limiter unavailable")
		return nil
	}
	if !ok {
		return utils.NewError(utils.CodeRateLimit, "sending too fast, slow down")
	}
	return nil
}

func buildMessage(roomID, senderID uint64, req *SendMessageRequest) (*model.Message, error) {
	if !req.MessageType.IsValid() {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown message type %q", req.MessageType)
	}

	sender := senderID
	msg := &model.Message{
		RoomID:      roomID,
		SenderID:    &sender,
		MessageType: req.MessageType,
	}

	switch req.MessageType {
	case model.MessageTypeText, model.MessageTypeImage:
		if req.PostID != nil {
			return nil, utils.Errorf(utils.CodeInvalidParam, "%s message must not reference a post", req.MessageType)
		}
		if req.Content == nil || strings.TrimSpace(*req.Content) == "" {
			return nil, utils.Errorf(utils.CodeInvalidParam, "%s message requires content", req.MessageType)
		}
		if len(*req.Content) > maxContentLen {
			return nil, utils.NewError(utils.CodeInvalidParam, "content too long")
		}
		if req.MessageType == model.MessageTypeImage && !isImageURL(*req.Content) {
			return nil, utils.NewError(utils.CodeInvalidParam, "image content must be an http(s) URL")
		}
		content := *req.Content
		msg.Content = &content
	case model.MessageTypePost:
		if req.Content != nil && *req.Content != "" {
			return nil, utils.NewError(utils.CodeInvalidParam, "post message must not carry content")
		}
		if req.PostID == nil || *req.PostID == 0 {
			return nil, utils.NewError(utils.CodeInvalidParam, "post message requires post_id")
		}
		postID := *req.PostID
		msg.PostID = &postID
	}
	return msg, nil
}

func isImageURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}

func (s *chatService) ListMessages(ctx context.Context, roomID, userID, beforeID uint64, limit int) ([]*model.Message, error) {
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > s.config.MessagePageMax:
		limit = s.config.MessagePageMax
	}

	if _, err := s.GetRoom(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return s.gateway.Chats().ListMessages(ctx, roomID, beforeID, limit)
}

func (s *chatService) MarkMessageRead(ctx context.Context, messageID, userID uint64) (bool, error) {
	var created bool
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		chats := tx.Chats()
		msg, err := chats.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		p, err := chats.GetParticipant(ctx, msg.RoomID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			return errNotParticipant
		}

		created, err = chats.CreateReadReceipt(ctx, &model.MessageReadBy{
			MessageID: messageID,
			UserID:    userID,
			ReadAt:    s.now(),
		})
		if err != nil {
			return err
		}
		// the counter tracks unread messages from others, own messages never counted
		if created && !msg.SentBy(userID) {
			return chats.DecrementUnread(ctx, msg.RoomID, userID)
		}
		return nil
	})
	return created, err
}

func (s *chatService) MarkRoomRead(ctx context.Context, roomID, userID uint64) (int64, error) {
	var marked int64
	err := s.gateway.Transaction(ctx, func(tx repository.Gateway) error {
		chats := tx.Chats()
		// a concurrent send increments this row; holding it keeps the reset
		// below from dropping a message the listing did not see
		p, err := chats.LockParticipant(ctx, roomID, userID)
		if err != nil {
			return err
		}
		if p == nil {
			if _, err := chats.GetRoom(ctx, roomID); err != nil {
				return err
			}
			return errNotParticipant
		}

		ids, err := chats.ListUnreadMessageIDs(ctx, roomID, userID)
		if err != nil {
			return err
		}
		now := s.now()
		receipts := make([]model.MessageReadBy, 0, len(ids))
		for _, id := range ids {
			receipts = append(receipts, model.MessageReadBy{MessageID: id, UserID: userID, ReadAt: now})
		}
		if marked, err = chats.CreateReadReceipts(ctx, receipts); err != nil {
			return err
		}
		return chats.ResetUnread(ctx, roomID, userID)
	})
	return marked, err
}

func (s *chatService) GetUnreadTotal(ctx context.Context, userID uint64) (int64, error) {
	return s.gateway.Chats().SumUnread(ctx, userID)
}
