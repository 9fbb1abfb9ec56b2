package post

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resale/internal/model"
	"resale/internal/repository/memstore"
	"resale/pkg/utils"
)

func newRequest() *CreatePostRequest {
	return &CreatePostRequest{
		Title:     "  oak table  ",
		Category:  "furniture",
		Images:    []string{"https://img.example.com/1.jpg"},
		Price:     4500,
		Condition: model.ConditionLikeNew,
	}
}

func TestCreateAndGetPost(t *testing.T) {
	store := memstore.New()
	svc := NewPostService(store.Posts())
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, 1, newRequest())
	require.NoError(t, err)
	assert.Equal(t, "oak table", post.Title)
	assert.Equal(t, model.PostStatusActive, post.Status)

	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JSONArray{"https://img.example.com/1.jpg"}, got.Images)

	_, err = svc.GetPost(ctx, 999)
	assert.Equal(t, utils.CodeNotFound, utils.GetErrorCode(err))
}

func TestCreatePost_Invalid(t *testing.T) {
	svc := NewPostService(memstore.New().Posts())

	req := newRequest()
	req.Condition = "mint"
	_, err := svc.CreatePost(context.Background(), 1, req)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	req = newRequest()
	req.Title = "   "
	_, err = svc.CreatePost(context.Background(), 1, req)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))
}

func TestPostPrice_Bounds(t *testing.T) {
	svc := NewPostService(memstore.New().Posts())
	ctx := context.Background()

	req := newRequest()
	req.Price = model.MaxAmount + 1
	_, err := svc.CreatePost(ctx, 1, req)
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))

	req.Price = model.MaxAmount
	post, err := svc.CreatePost(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, model.MaxAmount, post.Price)

	for _, bad := range []int64{0, -1, model.MaxAmount + 1, 20_000_000_000_000_000} {
		price := bad
		_, err = svc.UpdatePost(ctx, post.ID, 1, &UpdatePostRequest{Price: &price})
		assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err), "price %d", bad)
	}

	got, err := svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MaxAmount, got.Price)
}

func TestListPosts_DefaultsToActive(t *testing.T) {
	store := memstore.New()
	svc := NewPostService(store.Posts())
	ctx := context.Background()

	a, _ := svc.CreatePost(ctx, 1, newRequest())
	_, _ = svc.CreatePost(ctx, 2, newRequest())
	_, err := svc.WithdrawPost(ctx, a.ID, 1)
	require.NoError(t, err)

	list, total, err := svc.ListPosts(ctx, ListQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, list, 1)

	_, total, err = svc.ListPosts(ctx, ListQuery{Status: model.PostStatusWithdrawn, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, total, _ = svc.ListPosts(ctx, ListQuery{Keyword: "OAK", Page: 1, PageSize: 10})
	assert.Equal(t, int64(1), total)

	_, _, err = svc.ListPosts(ctx, ListQuery{MinPrice: 10, MaxPrice: 5})
	assert.Equal(t, utils.CodeInvalidParam, utils.GetErrorCode(err))
}

func TestUpdatePost(t *testing.T) {
	store := memstore.New()
	svc := NewPostService(store.Posts())
	ctx := context.Background()

	post, _ := svc.CreatePost(ctx, 1, newRequest())
	price := int64(3900)

	_, err := svc.UpdatePost(ctx, post.ID, 2, &UpdatePostRequest{Price: &price})
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	updated, err := svc.UpdatePost(ctx, post.ID, 1, &UpdatePostRequest{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, price, updated.Price)
	assert.Equal(t, "oak table", updated.Title)

	_, err = store.Posts().UpdateStatus(ctx, post.ID, model.PostStatusActive, model.PostStatusSold)
	require.NoError(t, err)
	_, err = svc.UpdatePost(ctx, post.ID, 1, &UpdatePostRequest{Price: &price})
	assert.Equal(t, utils.CodeInvalidState, utils.GetErrorCode(err))
}

func TestWithdrawPost(t *testing.T) {
	store := memstore.New()
	svc := NewPostService(store.Posts())
	ctx := context.Background()

	post, _ := svc.CreatePost(ctx, 1, newRequest())

	_, err := svc.WithdrawPost(ctx, post.ID, 2)
	assert.Equal(t, utils.CodeForbidden, utils.GetErrorCode(err))

	withdrawn, err := svc.WithdrawPost(ctx, post.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PostStatusWithdrawn, withdrawn.Status)

	_, err = svc.WithdrawPost(ctx, post.ID, 1)
	assert.Equal(t, utils.CodeInvalidTransition, utils.GetErrorCode(err))
}
