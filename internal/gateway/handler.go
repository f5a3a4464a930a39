package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Amankumar006/online-learning-plateform-sub003/internal/chat"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/middleware"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/presence"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/roomsync"
	"github.com/Amankumar006/online-learning-plateform-sub003/internal/store"
)

// Gateway upgrades authenticated requests into room sessions.
type Gateway struct {
	store        store.Store
	tracker      *presence.Tracker
	relays       *relayManager
	pushInterval time.Duration
	upgrader     websocket.Upgrader
}

func New(st store.Store, tracker *presence.Tracker, responder chat.Responder, pushInterval time.Duration) *Gateway {
	if st == nil {
		panic("store cannot be nil for Gateway")
	}
	if tracker == nil {
		panic("presence tracker cannot be nil for Gateway")
	}
	if pushInterval <= 0 {
		pushInterval = roomsync.DefaultPushInterval
	}
	return &Gateway{
		store:        st,
		tracker:      tracker,
		relays:       newRelayManager(st, responder),
		pushInterval: pushInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers enforce same-origin for the page; token auth on the
			// upgrade request is the actual gate here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleRoom serves GET /ws/room/:roomId. The Auth middleware has already
// placed the caller's identity in the context.
func (g *Gateway) HandleRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.GetString(middleware.ContextUserID)
	userName := c.GetString(middleware.ContextUserName)
	if roomID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "room id and identity are required"})
		return
	}

	s := &session{
		roomID:   roomID,
		userID:   userID,
		userName: userName,
		gateway:  g,
	}
	if err := s.start(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, roomsync.ErrRoomNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		case errors.Is(err, roomsync.ErrRoomEnded):
			c.JSON(http.StatusConflict, gin.H{"error": "room has ended"})
		default:
			logrus.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": userID,
			}).WithError(err).Error("Failed to start session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join room"})
		}
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		}).WithError(err).Warn("WebSocket upgrade failed")
		s.close()
		return
	}

	cl := newClient(conn, s)
	s.attach(cl)

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Info("Session started")
	cl.run()
}
