package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/ChefConnectBack/internal/models"
	"github.com/saeid-a/ChefConnectBack/internal/services"
	chatws "github.com/saeid-a/ChefConnectBack/internal/websocket"
)

type stubChatService struct {
	rooms    []models.RoomSummary
	room     *models.ChatRoom
	messages []models.Message
	delivery *services.ChatDelivery
	message  *models.Message
	receipt  *services.ReadReceipt
	bulk     *services.BulkReadReceipt
	err      error

	lastActorID   int64
	lastRole      string
	lastBookingID int64
	lastChefID    int64
	lastRoomID    int64
	lastBefore    int64
	lastLimit     int
	lastMessageID int64
	lastContent   string
	lastPost      services.PostMessageInput
}

func (s *stubChatService) ListRooms(ctx context.Context, actorID int64, role string) ([]models.RoomSummary, error) {
	s.lastActorID, s.lastRole = actorID, role
	return s.rooms, s.err
}

func (s *stubChatService) CreateRoom(ctx context.Context, actorID int64, bookingID int64) (*models.ChatRoom, error) {
	s.lastActorID, s.lastBookingID = actorID, bookingID
	return s.room, s.err
}

func (s *stubChatService) CreateDirectRoom(ctx context.Context, actorID int64, role string, chefID int64) (*models.ChatRoom, error) {
	s.lastActorID, s.lastRole, s.lastChefID = actorID, role, chefID
	return s.room, s.err
}

func (s *stubChatService) GetRoom(ctx context.Context, actorID int64, roomID int64) (*models.ChatRoom, error) {
	s.lastActorID, s.lastRoomID = actorID, roomID
	return s.room, s.err
}

func (s *stubChatService) DeactivateRoom(ctx context.Context, actorID int64, roomID int64) error {
	s.lastActorID, s.lastRoomID = actorID, roomID
	return s.err
}

func (s *stubChatService) ListMessages(ctx context.Context, actorID int64, roomID int64, before int64, limit int) ([]models.Message, error) {
	s.lastActorID, s.lastRoomID, s.lastBefore, s.lastLimit = actorID, roomID, before, limit
	return s.messages, s.err
}

func (s *stubChatService) PostMessage(ctx context.Context, actorID int64, input services.PostMessageInput) (*services.ChatDelivery, error) {
	s.lastActorID, s.lastPost = actorID, input
	return s.delivery, s.err
}

func (s *stubChatService) EditMessage(ctx context.Context, actorID int64, messageID int64, content string) (*models.Message, error) {
	s.lastActorID, s.lastMessageID, s.lastContent = actorID, messageID, content
	return s.message, s.err
}

func (s *stubChatService) DeleteMessage(ctx context.Context, actorID int64, messageID int64) (*models.Message, error) {
	s.lastActorID, s.lastMessageID = actorID, messageID
	return s.message, s.err
}

func (s *stubChatService) MarkMessageRead(ctx context.Context, actorID int64, messageID int64) (*services.ReadReceipt, error) {
	s.lastActorID, s.lastMessageID = actorID, messageID
	return s.receipt, s.err
}

func (s *stubChatService) MarkAllRead(ctx context.Context, actorID int64, roomID int64) (*services.BulkReadReceipt, error) {
	s.lastActorID, s.lastRoomID = actorID, roomID
	return s.bulk, s.err
}

func newChatTestApp(service *stubChatService, userID string, role string) *fiber.App {
	hub := chatws.NewHub()
	go hub.Run()
	handler := NewChatHandler(service, hub, "testsecret")

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals("user_id", userID)
		}
		if role != "" {
			c.Locals("role", role)
		}
		return c.Next()
	})

	v1 := app.Group("/api/v1")
	v1.Get("/rooms", handler.ListRooms)
	v1.Post("/rooms", handler.CreateRoom)
	v1.Get("/rooms/:id", handler.GetRoom)
	v1.Delete("/rooms/:id", handler.DeactivateRoom)
	v1.Get("/rooms/:id/messages", handler.GetMessages)
	v1.Post("/rooms/:id/mark-all-read", handler.MarkAllRead)
	v1.Post("/messages", handler.PostMessage)
	v1.Patch("/messages/:id", handler.EditMessage)
	v1.Delete("/messages/:id", handler.DeleteMessage)
	v1.Post("/messages/:id/read", handler.MarkMessageRead)

	return app
}

func TestListRooms(t *testing.T) {
	service := &stubChatService{rooms: []models.RoomSummary{
		{ChatRoom: models.ChatRoom{ID: 1, ClientID: 10, ChefID: 20, IsActive: true}, UnreadCount: 3},
	}}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("GET", "/api/v1/rooms", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if service.lastActorID != 10 || service.lastRole != models.RoleClient {
		t.Errorf("unexpected actor %d role %s", service.lastActorID, service.lastRole)
	}

	var body struct {
		Rooms []models.RoomSummary `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(body.Rooms) != 1 || body.Rooms[0].UnreadCount != 3 {
		t.Errorf("unexpected rooms payload: %+v", body.Rooms)
	}
}

func TestListRoomsWithoutPrincipal(t *testing.T) {
	app := newChatTestApp(&stubChatService{}, "", "")

	req := httptest.NewRequest("GET", "/api/v1/rooms", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestCreateRoomFromBooking(t *testing.T) {
	service := &stubChatService{room: &models.ChatRoom{ID: 7, ClientID: 10, ChefID: 20, IsActive: true}}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"booking_id": 55}`)
	req := httptest.NewRequest("POST", "/api/v1/rooms", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	if service.lastBookingID != 55 {
		t.Errorf("expected booking id 55, got %d", service.lastBookingID)
	}
}

func TestCreateDirectRoom(t *testing.T) {
	service := &stubChatService{room: &models.ChatRoom{ID: 8, ClientID: 10, ChefID: 20, IsActive: true}}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"chef_id": 20}`)
	req := httptest.NewRequest("POST", "/api/v1/rooms", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	if service.lastChefID != 20 || service.lastRole != models.RoleClient {
		t.Errorf("unexpected chef id %d role %s", service.lastChefID, service.lastRole)
	}
}

func TestCreateRoomRequiresTarget(t *testing.T) {
	app := newChatTestApp(&stubChatService{}, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{}`)
	req := httptest.NewRequest("POST", "/api/v1/rooms", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestCreateRoomConflictReturnsExistingID(t *testing.T) {
	service := &stubChatService{err: &services.RoomExistsError{RoomID: 33}}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"booking_id": 55}`)
	req := httptest.NewRequest("POST", "/api/v1/rooms", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("Expected status 409, got %d", resp.StatusCode)
	}

	var body struct {
		RoomID int64 `json:"room_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.RoomID != 33 {
		t.Errorf("expected room_id 33, got %d", body.RoomID)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	service := &stubChatService{err: pgx.ErrNoRows}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("GET", "/api/v1/rooms/99", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestGetRoomForbidden(t *testing.T) {
	service := &stubChatService{err: services.ErrForbidden}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("GET", "/api/v1/rooms/5", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestGetMessagesForwardsCursorAndCapsLimit(t *testing.T) {
	service := &stubChatService{messages: []models.Message{}}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("GET", "/api/v1/rooms/5/messages?before=120&limit=500", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if service.lastRoomID != 5 || service.lastBefore != 120 {
		t.Errorf("unexpected room %d before %d", service.lastRoomID, service.lastBefore)
	}
	if service.lastLimit != maxPageLimit {
		t.Errorf("expected limit capped at %d, got %d", maxPageLimit, service.lastLimit)
	}
}

func TestGetMessagesRejectsMalformedCursor(t *testing.T) {
	service := &stubChatService{messages: []models.Message{}}
	app := newChatTestApp(service, "10", models.RoleClient)

	for _, cursor := range []string{"abc", "-5", "0", "12x"} {
		req := httptest.NewRequest("GET", "/api/v1/rooms/5/messages?before="+cursor, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("Expected status 400 for cursor %q, got %d", cursor, resp.StatusCode)
		}
	}
	if service.lastRoomID != 0 {
		t.Errorf("expected service to never be called, last room %d", service.lastRoomID)
	}
}

func TestGetMessagesSetsNextCursorOnFullPage(t *testing.T) {
	now := time.Now()
	messages := make([]models.Message, 0, 2)
	for i := int64(10); i >= 9; i-- {
		messages = append(messages, models.Message{ID: i, RoomID: 5, SenderID: 10, Kind: models.MessageKindText, Content: "m", CreatedAt: now})
	}
	service := &stubChatService{messages: messages}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("GET", "/api/v1/rooms/5/messages?limit=2", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var body struct {
		NextBefore int64 `json:"next_before"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.NextBefore != 9 {
		t.Errorf("expected next_before 9, got %d", body.NextBefore)
	}
}

func TestPostMessage(t *testing.T) {
	service := &stubChatService{delivery: &services.ChatDelivery{
		Room:        &models.ChatRoom{ID: 5, ClientID: 10, ChefID: 20, IsActive: true},
		Message:     &models.Message{ID: 77, RoomID: 5, SenderID: 10, Kind: models.MessageKindText, Content: "bonjour"},
		RecipientID: 20,
	}}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"room_id": 5, "content": "bonjour", "client_nonce": "abc-123"}`)
	req := httptest.NewRequest("POST", "/api/v1/messages", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("Expected status 201, got %d", resp.StatusCode)
	}
	if service.lastPost.RoomID != 5 || service.lastPost.Kind != models.MessageKindText {
		t.Errorf("unexpected post input: %+v", service.lastPost)
	}
	if service.lastPost.ClientNonce == nil || *service.lastPost.ClientNonce != "abc-123" {
		t.Errorf("expected client nonce to be forwarded")
	}

	var body struct {
		Message models.Message `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Message.ID != 77 {
		t.Errorf("expected message 77, got %d", body.Message.ID)
	}
}

func TestPostMessageToInactiveRoom(t *testing.T) {
	service := &stubChatService{err: services.ErrInactiveRoom}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"room_id": 5, "content": "hello"}`)
	req := httptest.NewRequest("POST", "/api/v1/messages", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("Expected status 409, got %d", resp.StatusCode)
	}
}

func TestPostMessageInvalidContent(t *testing.T) {
	service := &stubChatService{err: services.ErrInvalidContent}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"room_id": 5, "content": "   "}`)
	req := httptest.NewRequest("POST", "/api/v1/messages", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestEditMessageForbidden(t *testing.T) {
	service := &stubChatService{err: services.ErrForbidden}
	app := newChatTestApp(service, "10", models.RoleClient)

	payload := bytes.NewBufferString(`{"content": "edited"}`)
	req := httptest.NewRequest("PATCH", "/api/v1/messages/77", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestDeleteMessage(t *testing.T) {
	service := &stubChatService{message: &models.Message{ID: 77, RoomID: 5, SenderID: 10, Kind: models.MessageKindText, IsDeleted: true}}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("DELETE", "/api/v1/messages/77", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if service.lastMessageID != 77 {
		t.Errorf("expected message id 77, got %d", service.lastMessageID)
	}

	var body struct {
		Message models.Message `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !body.Message.IsDeleted {
		t.Errorf("expected deleted message in response")
	}
}

func TestMarkMessageRead(t *testing.T) {
	service := &stubChatService{receipt: &services.ReadReceipt{
		Status:   &models.MessageReadStatus{ID: 1, MessageID: 77, UserID: 10},
		SenderID: 20,
		RoomID:   5,
		First:    true,
	}}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("POST", "/api/v1/messages/77/read", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body struct {
		ReadStatus models.MessageReadStatus `json:"read_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.ReadStatus.MessageID != 77 {
		t.Errorf("expected read status for message 77, got %d", body.ReadStatus.MessageID)
	}
}

func TestMarkAllRead(t *testing.T) {
	service := &stubChatService{bulk: &services.BulkReadReceipt{
		Count:       2,
		MessageIDs:  []int64{8, 9},
		RecipientID: 20,
		RoomID:      5,
	}}
	app := newChatTestApp(service, "10", models.RoleClient)

	req := httptest.NewRequest("POST", "/api/v1/rooms/5/mark-all-read", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if service.lastRoomID != 5 {
		t.Errorf("expected room 5, got %d", service.lastRoomID)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("expected count 2, got %d", body.Count)
	}
}
