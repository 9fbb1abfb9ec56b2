package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"resale/internal/model"
)

// ChatRepository persistence for rooms, memberships, messages and receipts
type ChatRepository interface {
	// FindDirectRoom returns the room for a pair key, or nil
	FindDirectRoom(ctx context.Context, pairKey string) (*model.ChatRoom, error)
	// CreateRoom inserts the room together with its Participants
	CreateRoom(ctx context.Context, room *model.ChatRoom) error
	GetRoom(ctx context.Context, id uint64) (*model.ChatRoom, error)
	ListRoomsForUser(ctx context.Context, userID uint64) ([]*model.ChatRoom, error)
	TouchRoom(ctx context.Context, roomID uint64, at time.Time) error

	// GetParticipant returns the membership row, or nil when userID is not a member
	GetParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error)
	// LockParticipant is GetParticipant holding a row lock until the
	// transaction ends, so unread counters cannot move underneath the caller
	LockParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error)
	IncrementUnread(ctx context.Context, roomID, exceptUserID uint64) error
	DecrementUnread(ctx context.Context, roomID, userID uint64) error
	ResetUnread(ctx context.Context, roomID, userID uint64) error
	SumUnread(ctx context.Context, userID uint64) (int64, error)

	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id uint64) (*model.Message, error)
	// ListMessages returns up to limit messages older than beforeID, newest first.
	// beforeID 0 starts from the latest message.
	ListMessages(ctx context.Context, roomID, beforeID uint64, limit int) ([]*model.Message, error)

	// CreateReadReceipt reports false when the receipt already existed
	CreateReadReceipt(ctx context.Context, receipt *model.MessageReadBy) (bool, error)
	CreateReadReceipts(ctx context.Context, receipts []model.MessageReadBy) (int64, error)
	// ListUnreadMessageIDs returns messages in the room that userID did not
	// send and has no receipt for
	ListUnreadMessageIDs(ctx context.Context, roomID, userID uint64) ([]uint64, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) FindDirectRoom(ctx context.Context, pairKey string) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("pair_key = ?", pairKey).
		First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

func (r *chatRepository) CreateRoom(ctx context.Context, room *model.ChatRoom) error {
	return translate(r.db.WithContext(ctx).Create(room).Error, "")
}

func (r *chatRepository) GetRoom(ctx context.Context, id uint64) (*model.ChatRoom, error) {
	var room model.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, translate(err, "chat room not found")
	}
	return &room, nil
}

func (r *chatRepository) ListRoomsForUser(ctx context.Context, userID uint64) ([]*model.ChatRoom, error) {
	var rooms []*model.ChatRoom
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("id IN (?)", r.db.Model(&model.ChatRoomParticipant{}).Select("room_id").Where("user_id = ?", userID)).
		Order("last_message_at DESC").
		Order("id DESC").
		Find(&rooms).Error
	return rooms, err
}

func (r *chatRepository) TouchRoom(ctx context.Context, roomID uint64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.ChatRoom{}).
		Where("id = ?", roomID).
		Update("last_message_at", at).Error
}

func (r *chatRepository) GetParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	return r.participant(r.db.WithContext(ctx), roomID, userID)
}

func (r *chatRepository) LockParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	return r.participant(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), roomID, userID)
}

func (r *chatRepository) participant(db *gorm.DB, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	var p model.ChatRoomParticipant
	err := db.
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *chatRepository) IncrementUnread(ctx context.Context, roomID, exceptUserID uint64) error {
	return r.db.WithContext(ctx).Model(&model.ChatRoomParticipant{}).
		Where("room_id = ? AND user_id <> ?", roomID, exceptUserID).
		Update("unread_count", gorm.Expr("unread_count + ?", 1)).Error
}

// DecrementUnread never takes the counter below zero
func (r *chatRepository) DecrementUnread(ctx context.Context, roomID, userID uint64) error {
	return r.db.WithContext(ctx).Model(&model.ChatRoomParticipant{}).
		Where("room_id = ? AND user_id = ? AND unread_count > ?", roomID, userID, 0).
		Update("unread_count", gorm.Expr("unread_count - ?", 1)).Error
}

func (r *chatRepository) ResetUnread(ctx context.Context, roomID, userID uint64) error {
	return r.db.WithContext(ctx).Model(&model.ChatRoomParticipant{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Update("unread_count", 0).Error
}

func (r *chatRepository) SumUnread(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.ChatRoomParticipant{}).
		Select("COALESCE(SUM(unread_count), 0)").
		Where("user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) GetMessage(ctx context.Context, id uint64) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, translate(err, "message not found")
	}
	return &msg, nil
}

func (r *chatRepository) ListMessages(ctx context.Context, roomID, beforeID uint64, limit int) ([]*model.Message, error) {
	var msgs []*model.Message
	db := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID > 0 {
		db = db.Where("id < ?", beforeID)
	}
	err := db.Order("id DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}

func (r *chatRepository) CreateReadReceipt(ctx context.Context, receipt *model.MessageReadBy) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(receipt)
	return res.RowsAffected > 0, res.Error
}

func (r *chatRepository) CreateReadReceipts(ctx context.Context, receipts []model.MessageReadBy) (int64, error) {
	if len(receipts) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(receipts, 500)
	return res.RowsAffected, res.Error
}

func (r *chatRepository) ListUnreadMessageIDs(ctx context.Context, roomID, userID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("room_id = ?", roomID).
		Where("sender_id IS NULL OR sender_id <> ?", userID).
		Where("NOT EXISTS (SELECT 1 FROM message_read_by rb WHERE rb.message_id = messages.id AND rb.user_id = ?)", userID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
