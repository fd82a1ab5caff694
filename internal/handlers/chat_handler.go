package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/services"
	chatws "github.com/saeid-a/ChefConnectBack/internal/websocket"
	"github.com/saeid-a/ChefConnectBack/pkg/utils"
)

type chatApplicationService interface {
	ListRooms(ctx context.Context, actorID int64, role string) ([]models.RoomSummary, error)
	CreateRoom(ctx context.Context, actorID int64, bookingID int64) (*models.ChatRoom, error)
	CreateDirectRoom(ctx context.Context, actorID int64, role string, chefID int64) (*models.ChatRoom, error)
	GetRoom(ctx context.Context, actorID int64, roomID int64) (*models.ChatRoom, error)
	DeactivateRoom(ctx context.Context, actorID int64, roomID int64) error
	ListMessages(ctx context.Context, actorID int64, roomID int64, before int64, limit int) ([]models.Message, error)
	PostMessage(ctx context.Context, actorID int64, input services.PostMessageInput) (*services.ChatDelivery, error)
	EditMessage(ctx context.Context, actorID int64, messageID int64, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, actorID int64, messageID int64) (*models.Message, error)
	MarkMessageRead(ctx context.Context, actorID int64, messageID int64) (*services.ReadReceipt, error)
	MarkAllRead(ctx context.Context, actorID int64, roomID int64) (*services.BulkReadReceipt, error)
}

type ChatHandler struct {
	service   chatApplicationService
	hub       *chatws.Hub
	jwtSecret string
}

func NewChatHandler(service chatApplicationService, hub *chatws.Hub, jwtSecret string) *ChatHandler {
	return &ChatHandler{
		service:   service,
		hub:       hub,
		jwtSecret: jwtSecret,
	}
}

type createRoomRequest struct {
	BookingID int64 `json:"booking_id"`
	ChefID    int64 `json:"chef_id"`
}

type postMessageRequest struct {
	RoomID      int64   `json:"room_id"`
	Kind        string  `json:"kind"`
	Content     string  `json:"content"`
	Attachment  *string `json:"attachment"`
	ClientNonce *string `json:"client_nonce"`
}

type editMessageRequest struct {
	Content string `json:"content"`
}

func (h *ChatHandler) ListRooms(c *fiber.Ctx) error {
	actorID, role, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	rooms, err := h.service.ListRooms(c.Context(), actorID, role)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"rooms": rooms})
}

// CreateRoom opens a room from a booking (booking_id) or, for clients, an
// ad-hoc room with a chef (chef_id).
func (h *ChatHandler) CreateRoom(c *fiber.Ctx) error {
	actorID, role, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var room *models.ChatRoom
	var err error
	switch {
	case req.BookingID > 0:
		room, err = h.service.CreateRoom(c.Context(), actorID, req.BookingID)
	case req.ChefID > 0:
		room, err = h.service.CreateDirectRoom(c.Context(), actorID, role, req.ChefID)
	default:
		return c.Status(fiber.StatusBadRequest).
			JSON(fiber.Map{"error": "booking_id or chef_id is required"})
	}
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"room": room})
}

func (h *ChatHandler) GetRoom(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid room id"})
	}

	room, err := h.service.GetRoom(c.Context(), actorID, roomID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"room": room})
}

func (h *ChatHandler) DeactivateRoom(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid room id"})
	}

	if err := h.service.DeactivateRoom(c.Context(), actorID, roomID); err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Chat room deactivated"})
}

// GetMessages pages a room's log newest first. before is the id of the
// oldest message from the previous page.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid room id"})
	}

	var before int64
	if raw := c.Query("before"); raw != "" {
		before, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || before <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid before cursor"})
		}
	}
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	messages, err := h.service.ListMessages(c.Context(), actorID, roomID, before, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	var nextBefore int64
	if len(messages) == limit {
		nextBefore = messages[len(messages)-1].ID
	}

	return c.JSON(fiber.Map{
		"messages":    messages,
		"limit":       limit,
		"next_before": nextBefore,
	})
}

func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.RoomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid room id"})
	}

	kind := models.MessageKind(req.Kind)
	if req.Kind == "" {
		kind = models.MessageKindText
	}

	delivery, err := h.service.PostMessage(c.Context(), actorID, services.PostMessageInput{
		RoomID:      req.RoomID,
		Kind:        kind,
		Content:     req.Content,
		Attachment:  req.Attachment,
		ClientNonce: req.ClientNonce,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	// The write is committed; now the websocket side may see it.
	h.hub.BroadcastMessage(delivery.Room.ID, nil, delivery.Message)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": delivery.Message})
}

func (h *ChatHandler) EditMessage(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.EditMessage(c.Context(), actorID, messageID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	message, err := h.service.DeleteMessage(c.Context(), actorID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) MarkMessageRead(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	messageID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	receipt, err := h.service.MarkMessageRead(c.Context(), actorID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}

	if receipt.First {
		h.hub.SendReadReceipt(receipt.RoomID, receipt.SenderID, messageID, actorID)
	}

	return c.JSON(fiber.Map{"read_status": receipt.Status})
}

func (h *ChatHandler) MarkAllRead(c *fiber.Ctx) error {
	actorID, _, ok := requireParticipantRole(c)
	if !ok {
		return nil
	}

	roomID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid room id"})
	}

	receipt, err := h.service.MarkAllRead(c.Context(), actorID, roomID)
	if err != nil {
		return mapChatError(c, err)
	}

	for _, messageID := range receipt.MessageIDs {
		h.hub.SendReadReceipt(receipt.RoomID, receipt.RecipientID, messageID, actorID)
	}

	return c.JSON(fiber.Map{"count": receipt.Count})
}

// WebSocketAuth guards the upgrade: a resolved principal is required
// before the connection may attempt to join a room.
func (h *ChatHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

// HandleWebSocket authorizes the principal against the target room and
// only then registers the connection. A rejected connection closes without
// ever holding a membership slot.
func (h *ChatHandler) HandleWebSocket(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	userIDStr, _ := conn.Locals("user_id").(string)
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil || userID <= 0 {
		return
	}

	roomID, err := strconv.ParseInt(conn.Params("id"), 10, 64)
	if err != nil || roomID <= 0 {
		return
	}

	room, err := h.service.GetRoom(context.Background(), userID, roomID)
	if err != nil || !room.IsActive {
		return
	}

	client := chatws.NewClient(h.hub, conn, userID, roomID)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(h.service)
}

func (h *ChatHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

// requireParticipantRole resolves the authenticated principal. When the
// principal is missing or holds a non-participant role the response is
// already written and ok is false.
func requireParticipantRole(c *fiber.Ctx) (actorID int64, role string, ok bool) {
	role, roleOK := c.Locals("role").(string)
	if !roleOK || (role != models.RoleClient && role != models.RoleChef) {
		_ = c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
		return 0, "", false
	}

	actorID, err := parseAuthUserID(c)
	if err != nil {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
		return 0, "", false
	}

	return actorID, role, true
}

func parseAuthUserID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}

func mapChatError(c *fiber.Ctx, err error) error {
	var roomExists *services.RoomExistsError
	switch {
	case errors.As(err, &roomExists):
		return c.Status(fiber.StatusConflict).
			JSON(fiber.Map{"error": "Chat room already exists", "room_id": roomExists.RoomID})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Chat room already exists"})
	case errors.Is(err, services.ErrInactiveRoom):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Chat room is inactive"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidContent):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message content"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrBookingNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
	case errors.Is(err, services.ErrChefNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Chef not found"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}
