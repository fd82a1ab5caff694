package routes

import (
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/saeid-a/ChefConnectBack/internal/config"
	"github.com/saeid-a/ChefConnectBack/internal/handlers"
	"github.com/saeid-a/ChefConnectBack/internal/middleware"
	"github.com/saeid-a/ChefConnectBack/internal/repository"
	"github.com/saeid-a/ChefConnectBack/internal/services"
	chatws "github.com/saeid-a/ChefConnectBack/internal/websocket"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) {
	userRepo := repository.NewUserRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	roomRepo := repository.NewChatRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	readStatusRepo := repository.NewReadStatusRepository(db)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	bookingService := services.NewBookingService(bookingRepo, userRepo)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	chatHub := chatws.NewHub()
	go chatHub.Run()
	chatService := services.NewChatService(db, roomRepo, messageRepo, readStatusRepo, bookingRepo, userRepo)
	chatHandler := handlers.NewChatHandler(chatService, chatHub, cfg.JWTSecret)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	bookings := authProtected.Group("/bookings")
	bookings.Post("", bookingHandler.CreateBooking)
	bookings.Get("", bookingHandler.ListBookings)
	bookings.Get("/:id", bookingHandler.GetBooking)
	bookings.Put("/:id/status", bookingHandler.UpdateStatus)

	rooms := authProtected.Group("/rooms")
	rooms.Get("", chatHandler.ListRooms)
	rooms.Post("", chatHandler.CreateRoom)
	rooms.Get("/:id", chatHandler.GetRoom)
	rooms.Delete("/:id", chatHandler.DeactivateRoom)
	rooms.Get("/:id/messages", chatHandler.GetMessages)
	rooms.Post("/:id/mark-all-read", chatHandler.MarkAllRead)

	messages := authProtected.Group("/messages")
	messages.Post("", chatHandler.PostMessage)
	messages.Patch("/:id", chatHandler.EditMessage)
	messages.Delete("/:id", chatHandler.DeleteMessage)
	messages.Post("/:id/read", chatHandler.MarkMessageRead)

	api.Use("/v1/ws/rooms/:id", chatHandler.WebSocketAuth)
	api.Get("/v1/ws/rooms/:id", websocket.New(chatHandler.HandleWebSocket))
}
