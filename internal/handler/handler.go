package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"resale/internal/middleware"
	"resale/pkg/utils"
)

const defaultPageSize = 20

// caller returns the authenticated identity or writes a 401
func caller(c *gin.Context) (middleware.Identity, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		utils.HandleError(c, utils.ErrUnauthorized)
	}
	return id, ok
}

// pathID parses the named positive id parameter or writes a 400
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := utils.ValidateID(c.Param(name))
	if err != nil {
		utils.HandleError(c, err)
		return 0, false
	}
	return id, true
}

// pageParams reads page and page_size, defaulting to the first page
func pageParams(c *gin.Context, maxSize int) (int, int, bool) {
	page, err1 := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, err2 := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err1 != nil || err2 != nil {
		utils.HandleError(c, utils.NewError(utils.CodeInvalidParam, "page and page_size must be integers"))
		return 0, 0, false
	}
	if err := utils.ValidatePage(page, size, maxSize); err != nil {
		utils.HandleError(c, err)
		return 0, 0, false
	}
	return page, size, true
}

// bindJSON binds the body into req or writes a 400
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.HandleError(c, utils.BindingError(err))
		return false
	}
	return true
}
