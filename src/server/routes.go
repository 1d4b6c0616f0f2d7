package server

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/pulsechat/stream/src/hub"
	"github.com/pulsechat/stream/src/service"
)

type joinRequest struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
}

type leaveRequest struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

type typingRequest struct {
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

type messageRequest struct {
	RoomID string         `json:"roomId"`
	UserID string         `json:"userId"`
	Data   map[string]any `json:"data"`
}

// registerRoutes registers the inbound action routes and read-only
// snapshot routes on the fiber app.
func (s *Server) registerRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Post("/rooms/join", s.handleJoin)
	api.Post("/rooms/leave", s.handleLeave)
	api.Post("/typing", s.handleTyping)
	api.Post("/messages", s.handleMessage)
	api.Get("/rooms", s.handleAllRooms)
	api.Get("/rooms/:id", s.handleRoomInfo)
	api.Get("/stats", s.handleStats)
	api.Get("/clients", s.handleClients)

	app.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleJoin(c fiber.Ctx) error {
	var req joinRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid join payload")
	}
	if req.UserID == "" || req.RoomID == "" {
		return badRequest(c, "userId and roomId are required")
	}
	if err := s.svc.JoinRoom(req.UserID, req.RoomID, req.RoomName); err != nil {
		return actionError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "roomId": req.RoomID})
}

func (s *Server) handleLeave(c fiber.Ctx) error {
	var req leaveRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid leave payload")
	}
	if req.UserID == "" || req.RoomID == "" {
		return badRequest(c, "userId and roomId are required")
	}
	if err := s.svc.LeaveRoom(req.UserID, req.RoomID); err != nil {
		return actionError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleTyping(c fiber.Ctx) error {
	var req typingRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid typing payload")
	}
	if req.UserID == "" || req.RoomID == "" {
		return badRequest(c, "userId and roomId are required")
	}
	delivered, err := s.svc.Typing(req.UserID, req.RoomID, req.IsTyping)
	if err != nil {
		return actionError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "delivered": delivered})
}

// handleMessage fans an already-persisted message payload out to a room.
// Persistence happens upstream; this endpoint only delivers.
func (s *Server) handleMessage(c fiber.Ctx) error {
	var req messageRequest
	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "invalid message payload")
	}
	if req.RoomID == "" {
		return badRequest(c, "roomId is required")
	}
	delivered := s.svc.BroadcastMessage(req.RoomID, req.Data, req.UserID)
	return c.JSON(fiber.Map{"delivered": delivered})
}

func (s *Server) handleAllRooms(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"rooms": s.svc.AllRooms()})
}

func (s *Server) handleRoomInfo(c fiber.Ctx) error {
	info, err := s.svc.RoomInfo(c.Params("id"))
	if err != nil {
		return actionError(c, err)
	}
	return c.JSON(info)
}

func (s *Server) handleStats(c fiber.Ctx) error {
	return c.JSON(s.svc.Stats())
}

func (s *Server) handleClients(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"clients": s.svc.Clients()})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	stats := s.svc.Stats()
	return c.JSON(fiber.Map{
		"stream":      true,
		"endpoint":    "/ws",
		"connections": stats.Connections,
		"rooms":       stats.Rooms,
	})
}

func badRequest(c fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   "bad_request",
		"message": msg,
	})
}

func actionError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "not_found",
			"message": err.Error(),
		})
	case errors.Is(err, hub.ErrRateLimited):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":   "rate_limited",
			"message": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "internal",
			"message": err.Error(),
		})
	}
}
