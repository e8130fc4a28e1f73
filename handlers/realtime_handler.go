package handlers

import (
	"errors"
	"log"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	config "github.com/itsbooked/sports_booking/configs"
	"github.com/itsbooked/sports_booking/websocket"
)

type realtimeMessage struct {
	Type           string `json:"type"`
	Token          string `json:"token,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
	ClassSlotID    string `json:"class_slot_id,omitempty"`
}

// ServeWs handles one realtime connection. Clients connect anonymously, may
// authenticate to receive their user-channel events, and subscribe to
// organisation channels for availability updates. There is no backfill: a
// reconnecting client re-fetches current state over REST first.
func ServeWs(c *websocketcontrib.Conn) {
	client := websocket.NewClient(c, uuid.Nil)
	websocket.DefaultHub.Register(client)
	go client.WritePump()

	defer func() {
		websocket.DefaultHub.Unregister(client)
		c.Close()
	}()

	for {
		var msg realtimeMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %s: %v", client.ID, err)
			} else {
				log.Printf("WebSocket read error for client %s: %v", client.ID, err)
			}
			return
		}

		switch msg.Type {
		case "auth":
			claims, err := parseToken(msg.Token)
			if err != nil {
				log.Printf("WebSocket auth failed for client %s: %v", client.ID, err)
				_ = c.WriteJSON(wsError("Invalid token"))
				continue
			}
			rawUserID, _ := claims["user_id"].(string)
			userID, err := uuid.Parse(rawUserID)
			if err != nil {
				_ = c.WriteJSON(wsError("Invalid user ID"))
				continue
			}
			websocket.DefaultHub.Subscribe(client.ID, websocket.UserScope(userID))
			log.Printf("WebSocket client %s authenticated as user %s", client.ID, userID)

		case "subscribe_organization":
			orgID, err := uuid.Parse(msg.OrganizationID)
			if err != nil {
				_ = c.WriteJSON(wsError("Invalid organization ID"))
				continue
			}
			websocket.DefaultHub.Subscribe(client.ID, websocket.OrgScope(orgID))

		case "unsubscribe_organization":
			orgID, err := uuid.Parse(msg.OrganizationID)
			if err != nil {
				_ = c.WriteJSON(wsError("Invalid organization ID"))
				continue
			}
			websocket.DefaultHub.Unsubscribe(client.ID, websocket.OrgScope(orgID))

		case "subscribe_class":
			classID, err := uuid.Parse(msg.ClassSlotID)
			if err != nil {
				_ = c.WriteJSON(wsError("Invalid class slot ID"))
				continue
			}
			websocket.DefaultHub.Subscribe(client.ID, websocket.ClassScope(classID))

		case "unsubscribe_class":
			classID, err := uuid.Parse(msg.ClassSlotID)
			if err != nil {
				_ = c.WriteJSON(wsError("Invalid class slot ID"))
				continue
			}
			websocket.DefaultHub.Unsubscribe(client.ID, websocket.ClassScope(classID))

		default:
			_ = c.WriteJSON(wsError("Unknown message type"))
		}
	}
}

func wsError(message string) map[string]string {
	return map[string]string{"error": message}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
