package audit

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-origin enforcement is handled by the CORS middleware; the
		// feed itself is behind JWT auth.
		return true
	},
}

// FeedHandler upgrades an authenticated request to a websocket and keeps the
// connection registered until the client goes away.
func FeedHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64("user_id")
		if userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"},
			})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("audit feed: upgrade failed for user %d: %v", userID, err)
			return
		}

		hub.Register(userID, conn)
		defer hub.Unregister(userID)

		// Drain client frames until the connection closes; the feed is
		// write-only from the server side.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
