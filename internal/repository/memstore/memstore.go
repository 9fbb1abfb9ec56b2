// Package memstore is an in-process repository.Gateway for service and
// handler tests. Reads return copies; Transaction snapshots the whole store
// and restores it when fn fails.
package memstore

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"resale/internal/model"
	"resale/internal/repository"
	"resale/pkg/utils"
)

type receiptKey struct {
	messageID uint64
	userID    uint64
}

type state struct {
	users        map[uint64]model.User
	posts        map[uint64]model.Post
	orders       map[uint64]model.Order
	intents      map[uint64]model.PaymentIntent
	rooms        map[uint64]model.ChatRoom
	participants map[uint64]model.ChatRoomParticipant
	messages     map[uint64]model.Message
	receipts     map[receiptKey]model.MessageReadBy
	seq          uint64
}

func (st *state) clone() *state {
	return &state{
		users:        maps.Clone(st.users),
		posts:        maps.Clone(st.posts),
		orders:       maps.Clone(st.orders),
		intents:      maps.Clone(st.intents),
		rooms:        maps.Clone(st.rooms),
		participants: maps.Clone(st.participants),
		messages:     maps.Clone(st.messages),
		receipts:     maps.Clone(st.receipts),
		seq:          st.seq,
	}
}

// Store in-memory Gateway
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	st   *state
	now  func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		st: &state{
			users:        map[uint64]model.User{},
			posts:        map[uint64]model.Post{},
			orders:       map[uint64]model.Order{},
			intents:      map[uint64]model.PaymentIntent{},
			rooms:        map[uint64]model.ChatRoom{},
			participants: map[uint64]model.ChatRoomParticipant{},
			messages:     map[uint64]model.Message{},
			receipts:     map[receiptKey]model.MessageReadBy{},
		},
		now: time.Now,
	}
}

var _ repository.Gateway = (*Store)(nil)

func (s *Store) Users() repository.UserRepository       { return userRepo{s} }
func (s *Store) Posts() repository.PostRepository       { return postRepo{s} }
func (s *Store) Orders() repository.OrderRepository     { return orderRepo{s} }
func (s *Store) Payments() repository.PaymentRepository { return paymentRepo{s} }
func (s *Store) Chats() repository.ChatRepository       { return chatRepo{s} }

// Transaction serializes with other transactions. Writes made outside a
// transaction while one is running are lost if it rolls back.
func (s *Store) Transaction(_ context.Context, fn func(tx repository.Gateway) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(txView{s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txView is the Gateway handed to a transaction body; nested calls join it
type txView struct {
	*Store
}

func (v txView) Transaction(_ context.Context, fn func(tx repository.Gateway) error) error {
	return fn(v)
}

func (s *Store) nextID() uint64 {
	s.st.seq++
	return s.st.seq
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now()
	if created != nil && created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

func conflict(msg string) error {
	return utils.NewError(utils.CodeConflict, msg)
}

func notFound(msg string) error {
	return utils.NewError(utils.CodeNotFound, msg)
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func eqPtr(p *string, v string) bool {
	return p != nil && *p == v
}

// ---- users ----

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if u.Username == user.Username ||
			(user.Phone != nil && eqPtr(u.Phone, *user.Phone)) ||
			(user.Email != nil && eqPtr(u.Email, *user.Email)) {
			return conflict("record already exists")
		}
	}
	if user.ID == 0 {
		user.ID = r.s.nextID()
	}
	r.s.stamp(&user.CreatedAt, &user.UpdatedAt)
	r.s.st.users[user.ID] = *user
	return nil
}

func (r userRepo) find(match func(u *model.User) bool) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if match(&u) {
			return &u, nil
		}
	}
	return nil, notFound("user not found")
}

func (r userRepo) GetByID(_ context.Context, id uint64) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.ID == id })
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return u.Username == username })
}

func (r userRepo) GetByPhone(_ context.Context, phone string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return eqPtr(u.Phone, phone) })
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u *model.User) bool { return eqPtr(u.Email, email) })
}

func (r userRepo) update(id uint64, fn func(u *model.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return nil
	}
	fn(&u)
	r.s.stamp(nil, &u.UpdatedAt)
	r.s.st.users[id] = u
	return nil
}

func (r userRepo) UpdatePassword(_ context.Context, id uint64, hash, salt string) error {
	return r.update(id, func(u *model.User) {
		u.PasswordHash = hash
		u.Salt = salt
	})
}

func (r userRepo) UpdateProfile(_ context.Context, id uint64, nickname, avatar *string) error {
	return r.update(id, func(u *model.User) {
		if nickname != nil {
			n := *nickname
			u.Nickname = &n
		}
		if avatar != nil {
			a := *avatar
			u.Avatar = &a
		}
	})
}

func (r userRepo) UpdateLastLogin(_ context.Context, id uint64, ip string, at time.Time) error {
	return r.update(id, func(u *model.User) {
		u.LastLoginAt = &at
		u.LastLoginIP = &ip
	})
}

func (r userRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	u, _ := r.GetByUsername(ctx, username)
	return u != nil, nil
}

func (r userRepo) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	u, _ := r.GetByPhone(ctx, phone)
	return u != nil, nil
}

func (r userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	u, _ := r.GetByEmail(ctx, email)
	return u != nil, nil
}

// ---- posts ----

type postRepo struct{ s *Store }

func (r postRepo) Create(_ context.Context, post *model.Post) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if post.ID == 0 {
		post.ID = r.s.nextID()
	}
	if post.Status == "" {
		post.Status = model.PostStatusActive
	}
	r.s.stamp(&post.CreatedAt, &post.UpdatedAt)
	stored := *post
	stored.Images = append(model.JSONArray(nil), post.Images...)
	r.s.st.posts[post.ID] = stored
	return nil
}

func (r postRepo) GetByID(_ context.Context, id uint64) (*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.posts[id]
	if !ok {
		return nil, notFound("post not found")
	}
	return &p, nil
}

func (r postRepo) List(_ context.Context, f repository.PostFilter, page, pageSize int) ([]*model.Post, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	keyword := strings.ToLower(f.Keyword)
	var out []*model.Post
	for _, p := range r.s.st.posts {
		switch {
		case f.PosterID != 0 && p.PosterID != f.PosterID,
			f.Status != "" && p.Status != f.Status,
			f.Category != "" && p.Category != f.Category,
			f.MinPrice > 0 && p.Price < f.MinPrice,
			f.MaxPrice > 0 && p.Price > f.MaxPrice:
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(p.Title), keyword) &&
			!strings.Contains(strings.ToLower(p.Description), keyword) {
			continue
		}
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r postRepo) UpdateDetails(_ context.Context, post *model.Post) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.posts[post.ID]
	if !ok || p.Status != model.PostStatusActive {
		return false, nil
	}
	p.Title = post.Title
	p.Description = post.Description
	p.Category = post.Category
	p.Images = append(model.JSONArray(nil), post.Images...)
	p.Price = post.Price
	p.Condition = post.Condition
	p.Location = post.Location
	r.s.stamp(nil, &p.UpdatedAt)
	r.s.st.posts[p.ID] = p
	return true, nil
}

func (r postRepo) UpdateStatus(_ context.Context, id uint64, from, to model.PostStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.posts[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	r.s.stamp(nil, &p.UpdatedAt)
	r.s.st.posts[id] = p
	return true, nil
}

// ---- orders ----

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, order *model.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.ID == order.ID || o.OrderNo == order.OrderNo {
			return conflict("record already exists")
		}
	}
	if order.ID == 0 {
		order.ID = r.s.nextID()
	}
	r.s.stamp(&order.CreatedAt, &order.UpdatedAt)
	r.s.st.orders[order.ID] = *order
	return nil
}

func (r orderRepo) GetByID(_ context.Context, id uint64) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, notFound("order not found")
	}
	return &o, nil
}

func (r orderRepo) GetByOrderNo(_ context.Context, orderNo string) (*model.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.OrderNo == orderNo {
			return &o, nil
		}
	}
	return nil, notFound("order not found")
}

func (r orderRepo) List(_ context.Context, f repository.OrderFilter, page, pageSize int) ([]*model.Order, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Order
	for _, o := range r.s.st.orders {
		if (f.BuyerID != 0 && o.BuyerID != f.BuyerID) ||
			(f.SellerID != 0 && o.SellerID != f.SellerID) ||
			(f.Status != "" && o.Status != f.Status) {
			continue
		}
		out = append(out, &o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, page, pageSize), int64(len(out)), nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id uint64, change repository.StatusChange) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[id]
	if !ok || o.Status != change.From {
		return false, nil
	}
	o.Status = change.To
	at := change.At
	switch change.To {
	case model.OrderStatusPaid:
		o.PaidAt = &at
	case model.OrderStatusShipped:
		o.ShippedAt = &at
	case model.OrderStatusCompleted:
		o.CompletedAt = &at
	case model.OrderStatusCanceled:
		o.CanceledAt = &at
	case model.OrderStatusRefunded:
		o.RefundedAt = &at
	}
	if change.PaymentTransactionID != nil {
		tx := *change.PaymentTransactionID
		o.PaymentTransactionID = &tx
	}
	r.s.stamp(nil, &o.UpdatedAt)
	r.s.st.orders[id] = o
	return true, nil
}

// ---- payment intents ----

type paymentRepo struct{ s *Store }

func (r paymentRepo) Create(_ context.Context, intent *model.PaymentIntent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.intents {
		if p.IntentNo == intent.IntentNo {
			return conflict("record already exists")
		}
	}
	if intent.ID == 0 {
		intent.ID = r.s.nextID()
	}
	if intent.Status == "" {
		intent.Status = model.IntentStatusRequiresPayment
	}
	r.s.stamp(&intent.CreatedAt, &intent.UpdatedAt)
	r.s.st.intents[intent.ID] = *intent
	return nil
}

func (r paymentRepo) GetByIntentNo(_ context.Context, intentNo string) (*model.PaymentIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.intents {
		if p.IntentNo == intentNo {
			return &p, nil
		}
	}
	return nil, notFound("payment intent not found")
}

func (r paymentRepo) FindOpenByOrder(_ context.Context, orderID uint64) (*model.PaymentIntent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.PaymentIntent
	for _, p := range r.s.st.intents {
		if p.OrderID == orderID && p.IsOpen() && (found == nil || p.ID > found.ID) {
			found = &p
		}
	}
	return found, nil
}

func (r paymentRepo) MarkSucceeded(_ context.Context, id uint64, transactionID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.intents[id]
	if !ok || !p.IsOpen() {
		return false, nil
	}
	p.Status = model.IntentStatusSucceeded
	p.ProviderTransactionID = &transactionID
	p.SucceededAt = &at
	r.s.stamp(nil, &p.UpdatedAt)
	r.s.st.intents[id] = p
	return true, nil
}

func (r paymentRepo) CancelOpenByOrder(_ context.Context, orderID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, p := range r.s.st.intents {
		if p.OrderID == orderID && p.IsOpen() {
			p.Status = model.IntentStatusCanceled
			r.s.stamp(nil, &p.UpdatedAt)
			r.s.st.intents[id] = p
			n++
		}
	}
	return n, nil
}

// ---- chat ----

type chatRepo struct{ s *Store }

// withParticipants must be called with mu held
func (r chatRepo) withParticipants(room model.ChatRoom) *model.ChatRoom {
	room.Participants = nil
	for _, p := range r.s.st.participants {
		if p.RoomID == room.ID {
			room.Participants = append(room.Participants, p)
		}
	}
	sort.Slice(room.Participants, func(i, j int) bool {
		return room.Participants[i].ID < room.Participants[j].ID
	})
	return &room
}

func (r chatRepo) FindDirectRoom(_ context.Context, pairKey string) (*model.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, room := range r.s.st.rooms {
		if eqPtr(room.PairKey, pairKey) {
			return r.withParticipants(room), nil
		}
	}
	return nil, nil
}

func (r chatRepo) CreateRoom(_ context.Context, room *model.ChatRoom) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if room.PairKey != nil {
		for _, existing := range r.s.st.rooms {
			if eqPtr(existing.PairKey, *room.PairKey) {
				return conflict("record already exists")
			}
		}
	}
	room.ID = r.s.nextID()
	r.s.stamp(&room.CreatedAt, &room.UpdatedAt)
	for i := range room.Participants {
		p := &room.Participants[i]
		p.ID = r.s.nextID()
		p.RoomID = room.ID
		r.s.stamp(&p.JoinedAt, nil)
		r.s.st.participants[p.ID] = *p
	}
	stored := *room
	stored.Participants = nil
	r.s.st.rooms[room.ID] = stored
	return nil
}

func (r chatRepo) GetRoom(_ context.Context, id uint64) (*model.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	room, ok := r.s.st.rooms[id]
	if !ok {
		return nil, notFound("chat room not found")
	}
	return r.withParticipants(room), nil
}

func (r chatRepo) ListRoomsForUser(_ context.Context, userID uint64) ([]*model.ChatRoom, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.ChatRoom
	for _, p := range r.s.st.participants {
		if p.UserID == userID {
			out = append(out, r.withParticipants(r.s.st.rooms[p.RoomID]))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r chatRepo) TouchRoom(_ context.Context, roomID uint64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if room, ok := r.s.st.rooms[roomID]; ok {
		room.LastMessageAt = &at
		r.s.stamp(nil, &room.UpdatedAt)
		r.s.st.rooms[roomID] = room
	}
	return nil
}

func (r chatRepo) GetParticipant(_ context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.participants {
		if p.RoomID == roomID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, nil
}

// LockParticipant relies on Transaction serializing writers
func (r chatRepo) LockParticipant(ctx context.Context, roomID, userID uint64) (*model.ChatRoomParticipant, error) {
	return r.GetParticipant(ctx, roomID, userID)
}

func (r chatRepo) adjustUnread(match func(p *model.ChatRoomParticipant) bool, fn func(p *model.ChatRoomParticipant)) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.st.participants {
		if match(&p) {
			fn(&p)
			r.s.st.participants[id] = p
		}
	}
}

func (r chatRepo) IncrementUnread(_ context.Context, roomID, exceptUserID uint64) error {
	r.adjustUnread(
		func(p *model.ChatRoomParticipant) bool { return p.RoomID == roomID && p.UserID != exceptUserID },
		func(p *model.ChatRoomParticipant) { p.UnreadCount++ },
	)
	return nil
}

func (r chatRepo) DecrementUnread(_ context.Context, roomID, userID uint64) error {
	r.adjustUnread(
		func(p *model.ChatRoomParticipant) bool {
			return p.RoomID == roomID && p.UserID == userID && p.UnreadCount > 0
		},
		func(p *model.ChatRoomParticipant) { p.UnreadCount-- },
	)
	return nil
}

func (r chatRepo) ResetUnread(_ context.Context, roomID, userID uint64) error {
	r.adjustUnread(
		func(p *model.ChatRoomParticipant) bool { return p.RoomID == roomID && p.UserID == userID },
		func(p *model.ChatRoomParticipant) { p.UnreadCount = 0 },
	)
	return nil
}

func (r chatRepo) SumUnread(_ context.Context, userID uint64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var total int64
	for _, p := range r.s.st.participants {
		if p.UserID == userID {
			total += int64(p.UnreadCount)
		}
	}
	return total, nil
}

func (r chatRepo) CreateMessage(_ context.Context, msg *model.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg.ID = r.s.nextID()
	r.s.stamp(&msg.CreatedAt, nil)
	r.s.st.messages[msg.ID] = *msg
	return nil
}

func (r chatRepo) GetMessage(_ context.Context, id uint64) (*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.st.messages[id]
	if !ok {
		return nil, notFound("message not found")
	}
	return &m, nil
}

func (r chatRepo) ListMessages(_ context.Context, roomID, beforeID uint64, limit int) ([]*model.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Message
	for _, m := range r.s.st.messages {
		if m.RoomID == roomID && (beforeID == 0 || m.ID < beforeID) {
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r chatRepo) CreateReadReceipt(_ context.Context, receipt *model.MessageReadBy) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertReceipt(*receipt), nil
}

func (r chatRepo) CreateReadReceipts(_ context.Context, receipts []model.MessageReadBy) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, rc := range receipts {
		if r.insertReceipt(rc) {
			n++
		}
	}
	return n, nil
}

// insertReceipt must be called with mu held
func (r chatRepo) insertReceipt(rc model.MessageReadBy) bool {
	key := receiptKey{rc.MessageID, rc.UserID}
	if _, exists := r.s.st.receipts[key]; exists {
		return false
	}
	r.s.st.receipts[key] = rc
	return true
}

func (r chatRepo) ListUnreadMessageIDs(_ context.Context, roomID, userID uint64) ([]uint64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uint64
	for _, m := range r.s.st.messages {
		if m.RoomID != roomID || m.SentBy(userID) {
			continue
		}
		if _, read := r.s.st.receipts[receiptKey{m.ID, userID}]; read {
			continue
		}
		ids = append(ids, m.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
