package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"resale/pkg/utils"
)

// Gateway groups the repositories that share one database handle. Inside
// Transaction every repository obtained from tx runs on the same transaction.
type Gateway interface {
	Users() UserRepository
	Posts() PostRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Chats() ChatRepository

	Transaction(ctx context.Context, fn func(tx Gateway) error) error
}

type gormGateway struct {
	db *gorm.DB
}

// NewGateway creates a Gateway on db
func NewGateway(db *gorm.DB) Gateway {
	return &gormGateway{db: db}
}

func (g *gormGateway) Users() UserRepository       { return NewUserRepository(g.db) }
func (g *gormGateway) Posts() PostRepository       { return NewPostRepository(g.db) }
func (g *gormGateway) Orders() OrderRepository     { return NewOrderRepository(g.db) }
func (g *gormGateway) Payments() PaymentRepository { return NewPaymentRepository(g.db) }
func (g *gormGateway) Chats() ChatRepository       { return NewChatRepository(g.db) }

// Transaction runs fn in a database transaction, committing when fn returns nil
func (g *gormGateway) Transaction(ctx context.Context, fn func(tx Gateway) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGateway(tx))
	})
}

// translate maps gorm sentinel errors onto application errors
func translate(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return utils.NewError(utils.CodeNotFound, notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return utils.WrapError(err, utils.CodeConflict, "record already exists")
	default:
		return err
	}
}

// pageOffset converts a 1-based page into an offset
func pageOffset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
