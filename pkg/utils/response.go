package utils

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"resale/pkg/log"
)

// Envelope codes. Every failure uses CodeFailure regardless of its kind;
// the kind is carried by the HTTP status.
const (
	CodeOK      = 0
	CodeFailure = 1
)

// Response standard response structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// SuccessResponse returns success response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// CreatedResponse returns success response with 201
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// ErrorResponse returns error response
func ErrorResponse(c *gin.Context, httpCode int, message string) {
	c.JSON(httpCode, Response{
		Code:    CodeFailure,
		Message: message,
	})
}

// Error writes a failure envelope with the status implied by code and aborts
func Error(c *gin.Context, code ResponseCode, message string) {
	c.AbortWithStatusJSON(code.HTTPStatus(), Response{
		Code:    CodeFailure,
		Message: message,
	})
}

// HandleError converts err into a failure envelope. Application errors keep
// their message; anything else is logged and reported as a generic 500.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := IsAppError(err); ok {
		if appErr.Code.HTTPStatus() >= http.StatusInternalServerError {
			log.WithFields(map[string]interface{}{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"error":  err.Error(),
			}).Error("Request failed")
		}
		_ = c.Error(err)
		Error(c, appErr.Code, appErr.Message)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		_ = c.Error(err)
		Error(c, CodeServiceError, "request timeout")
		return
	}

	log.WithFields(map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"error":  err.Error(),
	}).Error("Unhandled error")
	_ = c.Error(err)
	Error(c, CodeInternalError, ErrInternalError.Message)
}

// PageResponse page response structure
type PageResponse struct {
	List  interface{} `json:"list"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// SuccessPageResponse returns success page response
func SuccessPageResponse(c *gin.Context, list interface{}, total int64, page, size int) {
	SuccessResponse(c, PageResponse{
		List:  list,
		Total: total,
		Page:  page,
		Size:  size,
	})
}
