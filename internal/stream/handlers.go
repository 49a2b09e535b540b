package stream

import (
	"context"

	"backend-quranicare/internal/auth"
	"backend-quranicare/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Authorizer reports whether userID may watch sessionID. A session the user
// does not own must fail the same way a missing one does.
type Authorizer func(ctx context.Context, userID, sessionID string) error

// RegisterRoutes exposes a read-only websocket per session. Clients receive
// the JSON session events published by the tracker; anything they send is
// discarded. The upgrade is refused unless authMiddleware resolves a user
// and authorize accepts the session.
func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler, authorize Authorizer) {
	r.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})

	r.Get("/ws/:sessionID", authMiddleware, func(c *fiber.Ctx) error {
		if err := authorize(c.Context(), auth.UserID(c), c.Params("sessionID")); err != nil {
			return apperr.Fiber(err)
		}
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("sessionID"))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
