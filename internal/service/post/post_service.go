package post

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"resale/internal/model"
	"resale/internal/repository"
	"resale/pkg/log"
	"resale/pkg/utils"
)

// CreatePostRequest new listing
type CreatePostRequest struct {
	Title       string   `json:"title" binding:"required,min=1,max=200"`
	Description string   `json:"description" binding:"max=5000"`
	Category    string   `json:"category" binding:"max=50"`
	Images      []string `json:"images" binding:"max=9,dive,url"`
	Price       int64    `json:"price" binding:"gt=0,lte=1000000000000"`
	Condition   string   `json:"condition" binding:"required,oneof=new like_new good fair poor"`
	Location    string   `json:"location" binding:"max=100"`
}

// UpdatePostRequest partial edit; nil fields are left unchanged
type UpdatePostRequest struct {
	Title       *string   `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string   `json:"description" binding:"omitempty,max=5000"`
	Category    *string   `json:"category" binding:"omitempty,max=50"`
	Images      *[]string `json:"images" binding:"omitempty,max=9,dive,url"`
	Price       *int64    `json:"price" binding:"omitempty,gt=0,lte=1000000000000"`
	Condition   *string   `json:"condition" binding:"omitempty,oneof=new like_new good fair poor"`
	Location    *string   `json:"location" binding:"omitempty,max=100"`
}

// ListQuery listing filter. Status defaults to active.
type ListQuery struct {
	PosterID uint64
	Status   model.PostStatus
	Category string
	Keyword  string
	MinPrice int64
	MaxPrice int64
	Page     int
	PageSize int
}

// PostService listing service interface
type PostService interface {
	CreatePost(ctx context.Context, posterID uint64, req *CreatePostRequest) (*model.Post, error)
	GetPost(ctx context.Context, postID uint64) (*model.Post, error)
	ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, int64, error)
	UpdatePost(ctx context.Context, postID, actingUserID uint64, req *UpdatePostRequest) (*model.Post, error)
	WithdrawPost(ctx context.Context, postID, actingUserID uint64) (*model.Post, error)
}

type postService struct {
	posts repository.PostRepository
}

// NewPostService creates a post service
func NewPostService(posts repository.PostRepository) PostService {
	return &postService{posts: posts}
}

var errNotActive = utils.NewError(utils.CodeInvalidState, "post is no longer active")

func (s *postService) CreatePost(ctx context.Context, posterID uint64, req *CreatePostRequest) (*model.Post, error) {
	if !model.IsValidCondition(req.Condition) {
		return nil, utils.Errorf(utils.CodeInvalidParam, "unknown condition %q", req.Condition)
	}
	if err := checkPrice(req.Price); err != nil {
		return nil, err
	}

	post := &model.Post{
		PosterID:    posterID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Category:    req.Category,
		Images:      model.JSONArray(req.Images),
		Price:       req.Price,
		Condition:   req.Condition,
		Location:    req.Location,
		Status:      model.PostStatusActive,
	}
	if post.Title == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "title is required")
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	log.WithContext(ctx).WithFields(logrus.Fields{
		"post_id":   post.ID,
		"poster_id": posterID,
		"price":     post.Price,
	}).Info("Post created")
	return post, nil
}

func (s *postService) GetPost(ctx context.Context, postID uint64) (*model.Post, error) {
	return s.posts.GetByID(ctx, postID)
}

func (s *postService) ListPosts(ctx context.Context, q ListQuery) ([]*model.Post, int64, error) {
	status := q.Status
	if status == "" {
		status = model.PostStatusActive
	}
	switch status {
	case model.PostStatusActive, model.PostStatusSold, model.PostStatusWithdrawn:
	default:
		return nil, 0, utils.Errorf(utils.CodeInvalidParam, "unknown status %q", status)
	}
	if q.MinPrice > 0 && q.MaxPrice > 0 && q.MinPrice > q.MaxPrice {
		return nil, 0, utils.NewError(utils.CodeInvalidParam, "min_price exceeds max_price")
	}

	return s.posts.List(ctx, repository.PostFilter{
		PosterID: q.PosterID,
		Status:   status,
		Category: q.Category,
		Keyword:  strings.TrimSpace(q.Keyword),
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
	}, q.Page, q.PageSize)
}

func (s *postService) UpdatePost(ctx context.Context, postID, actingUserID uint64, req *UpdatePostRequest) (*model.Post, error) {
	post, err := s.owned(ctx, postID, actingUserID)
	if err != nil {
		return nil, err
	}
	if !post.IsActive() {
		return nil, errNotActive
	}

	if req.Title != nil {
		post.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		post.Description = *req.Description
	}
	if req.Category != nil {
		post.Category = *req.Category
	}
	if req.Images != nil {
		post.Images = model.JSONArray(*req.Images)
	}
	if req.Price != nil {
		if err := checkPrice(*req.Price); err != nil {
			return nil, err
		}
		post.Price = *req.Price
	}
	if req.Condition != nil {
		if !model.IsValidCondition(*req.Condition) {
			return nil, utils.Errorf(utils.CodeInvalidParam, "unknown condition %q", *req.Condition)
		}
		post.Condition = *req.Condition
	}
	if req.Location != nil {
		post.Location = *req.Location
	}

	// the post may have been sold between the read and the write
	ok, err := s.posts.UpdateDetails(ctx, post)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotActive
	}
	return s.posts.GetByID(ctx, postID)
}

func (s *postService) WithdrawPost(ctx context.Context, postID, actingUserID uint64) (*model.Post, error) {
	post, err := s.owned(ctx, postID, actingUserID)
	if err != nil {
		return nil, err
	}
	if !post.IsActive() {
		return nil, utils.NewInvalidTransition(string(post.Status), string(model.PostStatusWithdrawn))
	}

	ok, err := s.posts.UpdateStatus(ctx, postID, model.PostStatusActive, model.PostStatusWithdrawn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.NewError(utils.CodeConflict, "post was modified concurrently")
	}

	log.WithContext(ctx).WithField("post_id", postID).Info("Post withdrawn")
	return s.posts.GetByID(ctx, postID)
}

func checkPrice(price int64) error {
	if price <= 0 || price > model.MaxAmount {
		return utils.Errorf(utils.CodeInvalidParam, "price must be between 1 and %d cents", model.MaxAmount)
	}
	return nil
}

func (s *postService) owned(ctx context.Context, postID, userID uint64) (*model.Post, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.PosterID != userID {
		return nil, utils.NewError(utils.CodeForbidden, "only the poster can change this post")
	}
	return post, nil
}
