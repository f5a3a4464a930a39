package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/domain"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/middleware"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/service"
)

// RoomHandler exposes the room lifecycle over REST. Realtime interaction
// happens on the websocket gateway; these endpoints only create rooms and
// manage their lifecycle and permissions.
type RoomHandler struct {
	roomService *service.RoomService
}

func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("room service cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

type createRoomRequest struct {
	Name        string `json:"name" binding:"required"`
	Visibility  string `json:"visibility"`
	LessonTitle string `json:"lessonTitle"`
	TTLMinutes  int    `json:"ttlMinutes"`
}

type editorRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// CreateRoom handles POST /api/rooms.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	room, err := h.roomService.CreateRoom(c.Request.Context(), service.CreateRoomInput{
		OwnerID:     c.GetString(middleware.ContextUserID),
		Name:        req.Name,
		Visibility:  domain.Visibility(req.Visibility),
		LessonTitle: req.LessonTitle,
		TTL:         time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, room)
}

// GetRoom handles GET /api/rooms/:roomId.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.FindRoomByID(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// EndRoom handles POST /api/rooms/:roomId/end.
func (h *RoomHandler) EndRoom(c *gin.Context) {
	err := h.roomService.EndRoom(c.Request.Context(), c.Param("roomId"), c.GetString(middleware.ContextUserID))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"status": "ended"})
}

// GrantEditor handles POST /api/rooms/:roomId/editors.
func (h *RoomHandler) GrantEditor(c *gin.Context) {
	var req editorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ErrorResponse(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	err := h.roomService.GrantEditor(c.Request.Context(), c.Param("roomId"), c.GetString(middleware.ContextUserID), req.UserID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"status": "granted"})
}

// RevokeEditor handles DELETE /api/rooms/:roomId/editors/:userId.
func (h *RoomHandler) RevokeEditor(c *gin.Context) {
	err := h.roomService.RevokeEditor(c.Request.Context(), c.Param("roomId"), c.GetString(middleware.ContextUserID), c.Param("userId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"status": "revoked"})
}
