package handler

import (
	"github.com/gin-gonic/gin"

	"resale/internal/model"
	"resale/internal/service/post"
	"resale/pkg/utils"
)

// PostHandler listing handler
type PostHandler struct {
	postService post.PostService
	maxPageSize int
}

// NewPostHandler creates a listing handler
func NewPostHandler(postService post.PostService, maxPageSize int) *PostHandler {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &PostHandler{postService: postService, maxPageSize: maxPageSize}
}

type listPostsQuery struct {
	PosterID uint64 `form:"poster_id"`
	Status   string `form:"status" binding:"omitempty,oneof=active sold withdrawn"`
	Category string `form:"category" binding:"max=50"`
	Keyword  string `form:"keyword" binding:"max=100"`
	MinPrice int64  `form:"min_price" binding:"min=0"`
	MaxPrice int64  `form:"max_price" binding:"min=0"`
}

// ListPosts browses listings, active ones unless status says otherwise
func (h *PostHandler) ListPosts(c *gin.Context) {
	var q listPostsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.HandleError(c, utils.BindingError(err))
		return
	}
	page, size, ok := pageParams(c, h.maxPageSize)
	if !ok {
		return
	}

	posts, total, err := h.postService.ListPosts(c.Request.Context(), post.ListQuery{
		PosterID: q.PosterID,
		Status:   model.PostStatus(q.Status),
		Category: q.Category,
		Keyword:  q.Keyword,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Page:     page,
		PageSize: size,
	})
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessPageResponse(c, posts, total, page, size)
}

// GetPost gets a listing by id
func (h *PostHandler) GetPost(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.postService.GetPost(c.Request.Context(), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, p)
}

// CreatePost publishes a listing
func (h *PostHandler) CreatePost(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req post.CreatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.postService.CreatePost(c.Request.Context(), user.UserID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, p)
}

// UpdatePost edits an active listing
func (h *PostHandler) UpdatePost(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req post.UpdatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.postService.UpdatePost(c.Request.Context(), id, user.UserID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, p)
}

// WithdrawPost takes a listing off the market
func (h *PostHandler) WithdrawPost(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	p, err := h.postService.WithdrawPost(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, p)
}
