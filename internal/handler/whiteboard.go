package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/repository"
)

// WhiteboardHandler serves the board CRUD/share surface.
type WhiteboardHandler struct {
	boards   *repository.BoardRepository
	users    *repository.UserRepository
	presence *presence.Manager
}

func NewWhiteboardHandler(boards *repository.BoardRepository, users *repository.UserRepository, presenceMgr *presence.Manager) *WhiteboardHandler {
	return &WhiteboardHandler{
		boards:   boards,
		users:    users,
		presence: presenceMgr,
	}
}

// CreateBoardRequest names a new board.
type CreateBoardRequest struct {
	Nickname string `json:"nickname"`
}

// ShareBoardRequest grants another user access by email.
type ShareBoardRequest struct {
	Email string `json:"email"`
}

// BoardResponse is the public shape of a board.
type BoardResponse struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
	OwnerID  string `json:"owner_id"`
	IsOwner  bool   `json:"is_owner"`
}

// ListBoards returns the boards the caller can reach, oldest first.
func (h *WhiteboardHandler) ListBoards(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	boards, err := h.boards.GetAccessible(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to list boards",
		})
	}

	response := make([]BoardResponse, 0, len(boards))
	for _, board := range boards {
		response = append(response, BoardResponse{
			ID:       board.ID,
			Nickname: board.Nickname,
			OwnerID:  board.OwnerID,
			IsOwner:  board.OwnerID == userID,
		})
	}

	return c.JSON(response)
}

// CreateBoard creates a board owned by the caller.
func (h *WhiteboardHandler) CreateBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req CreateBoardRequest
	if err := c.BodyParser(&req); err != nil || req.Nickname == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "nickname is required",
		})
	}

	board := model.Whiteboard{
		Nickname: req.Nickname,
		OwnerID:  userID,
	}
	if err := h.boards.Create(c.Context(), &board); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create board",
		})
	}

	log.Printf("[Whiteboard] User %s created board %d (%s)", userID, board.ID, board.Nickname)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "board created",
		"whiteboard": BoardResponse{
			ID:       board.ID,
			Nickname: board.Nickname,
			OwnerID:  board.OwnerID,
			IsOwner:  true,
		},
	})
}

// DeleteBoard removes a board the caller owns, cascading strokes and access
// rows. The default board is refused.
func (h *WhiteboardHandler) DeleteBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	boardID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	if int64(boardID) == model.DefaultBoardID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "the main board cannot be deleted",
		})
	}

	board, err := h.boards.GetByID(c.Context(), int64(boardID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load board",
		})
	}
	if board == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "board not found",
		})
	}
	if board.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the owner can delete the board",
		})
	}

	if err := h.boards.Delete(c.Context(), board.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete board",
		})
	}

	log.Printf("[Whiteboard] User %s deleted board %d (%s)", userID, board.ID, board.Nickname)

	return c.JSON(fiber.Map{
		"message": "board deleted",
	})
}

// ShareBoard grants another user access to a board the caller owns.
func (h *WhiteboardHandler) ShareBoard(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	boardID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	var req ShareBoardRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "email is required",
		})
	}

	board, err := h.boards.GetByID(c.Context(), int64(boardID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load board",
		})
	}
	if board == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "board not found",
		})
	}
	if board.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "only the owner can share the board",
		})
	}

	target, err := h.users.FindByEmail(c.Context(), req.Email)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to look up user",
		})
	}
	if target == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	if err := h.boards.GrantAccess(c.Context(), board.ID, target.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to grant access",
		})
	}

	return c.JSON(fiber.Map{
		"message": "access granted",
	})
}

// OnlineUsers reports who is currently on a board. Callers need access to
// the board themselves.
func (h *WhiteboardHandler) OnlineUsers(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	boardID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid board id",
		})
	}

	allowed, err := h.boards.HasAccess(c.Context(), int64(boardID), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to check access",
		})
	}
	if !allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "access denied",
		})
	}

	members, err := h.presence.Online(c.Context(), int64(boardID))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load presence",
		})
	}

	return c.JSON(fiber.Map{
		"online": members,
	})
}
