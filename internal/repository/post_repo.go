package repository

import (
	"context"

	"gorm.io/gorm"

	"resale/internal/model"
)

// PostFilter narrows a listing query. Zero values are ignored.
type PostFilter struct {
	PosterID uint64
	Status   model.PostStatus
	Category string
	Keyword  string
	MinPrice int64
	MaxPrice int64
}

// PostRepository post repository interface
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id uint64) (*model.Post, error)
	List(ctx context.Context, filter PostFilter, page, pageSize int) ([]*model.Post, int64, error)

	// UpdateDetails writes the editable fields of an active post.
	// It reports false when the post is no longer active.
	UpdateDetails(ctx context.Context, post *model.Post) (bool, error)

	// UpdateStatus moves a post from -> to and reports whether the row
	// was still in from.
	UpdateStatus(ctx context.Context, id uint64, from, to model.PostStatus) (bool, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// Create creates a post
func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return translate(r.db.WithContext(ctx).Create(post).Error, "")
}

// GetByID gets a post by ID
func (r *postRepository) GetByID(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		return nil, translate(err, "post not found")
	}
	return &post, nil
}

// List lists posts newest first
func (r *postRepository) List(ctx context.Context, filter PostFilter, page, pageSize int) ([]*model.Post, int64, error) {
	var (
		posts []*model.Post
		total int64
	)

	db := r.db.WithContext(ctx).Model(&model.Post{})
	if filter.PosterID != 0 {
		db = db.Where("poster_id = ?", filter.PosterID)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}
	if filter.Category != "" {
		db = db.Where("category = ?", filter.Category)
	}
	if filter.Keyword != "" {
		like := "%" + filter.Keyword + "%"
		db = db.Where("title LIKE ? OR description LIKE ?", like, like)
	}
	if filter.MinPrice > 0 {
		db = db.Where("price >= ?", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		db = db.Where("price <= ?", filter.MaxPrice)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at DESC").Order("id DESC").
		Offset(pageOffset(page, pageSize)).
		Limit(pageSize).
		Find(&posts).Error
	return posts, total, err
}

// UpdateDetails writes the editable fields of an active post
func (r *postRepository) UpdateDetails(ctx context.Context, post *model.Post) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ? AND status = ?", post.ID, model.PostStatusActive).
		Updates(map[string]interface{}{
			"title":       post.Title,
			"description": post.Description,
			"category":    post.Category,
			"images":      post.Images,
			"price":       post.Price,
			"condition":   post.Condition,
			"location":    post.Location,
		})
	return res.RowsAffected > 0, res.Error
}

// UpdateStatus guarded status change
func (r *postRepository) UpdateStatus(ctx context.Context, id uint64, from, to model.PostStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Post{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}
