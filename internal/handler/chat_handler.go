package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"resale/internal/model"
	"resale/internal/service/chat"
	"resale/pkg/utils"
)

// ChatHandler chat handler
type ChatHandler struct {
	chatService chat.ChatService
}

// NewChatHandler creates a chat handler
func NewChatHandler(chatService chat.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// RoomResponse room with the caller's unread count
type RoomResponse struct {
	*model.ChatRoom
	UnreadCount int `json:"unread_count"`
}

func newRoomResponse(room *model.ChatRoom, userID uint64) RoomResponse {
	resp := RoomResponse{ChatRoom: room}
	for _, p := range room.Participants {
		if p.UserID == userID {
			resp.UnreadCount = p.UnreadCount
		}
	}
	return resp
}

// CreateRoom opens (or returns) the direct room with a peer
func (h *ChatHandler) CreateRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	var req chat.CreateRoomRequest
	if !bindJSON(c, &req) {
		return
	}

	room, err := h.chatService.CreateRoom(c.Request.Context(), user.UserID, req.PeerID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, newRoomResponse(room, user.UserID))
}

// ListRooms lists the caller's rooms, most recent activity first
func (h *ChatHandler) ListRooms(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}

	rooms, err := h.chatService.ListRooms(c.Request.Context(), user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	out := make([]RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, newRoomResponse(room, user.UserID))
	}
	utils.SuccessResponse(c, out)
}

// GetRoom gets a room the caller belongs to
func (h *ChatHandler) GetRoom(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	room, err := h.chatService.GetRoom(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, newRoomResponse(room, user.UserID))
}

// ListMessages pages backwards through a room using before_id
func (h *ChatHandler) ListMessages(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var beforeID uint64
	if raw := c.Query("before_id"); raw != "" {
		v, err := utils.ValidateID(raw)
		if err != nil {
			utils.HandleError(c, err)
			return
		}
		beforeID = v
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		utils.HandleError(c, utils.NewError(utils.CodeInvalidParam, "limit must be a non-negative integer"))
		return
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), id, user.UserID, beforeID, limit)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, messages)
}

// SendMessage posts a message to a room
func (h *ChatHandler) SendMessage(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req chat.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), id, user.UserID, &req)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.CreatedResponse(c, msg)
}

// MarkRoomRead reads every message in the room
func (h *ChatHandler) MarkRoomRead(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	marked, err := h.chatService.MarkRoomRead(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"marked": marked})
}

// MarkMessageRead reads a single message
func (h *ChatHandler) MarkMessageRead(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	created, err := h.chatService.MarkMessageRead(c.Request.Context(), id, user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"created": created})
}

// UnreadTotal sums unread messages across the caller's rooms
func (h *ChatHandler) UnreadTotal(c *gin.Context) {
	user, ok := caller(c)
	if !ok {
		return
	}

	total, err := h.chatService.GetUnreadTotal(c.Request.Context(), user.UserID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"total": total})
}
