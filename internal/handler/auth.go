package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/model"
	"whiteboard-backend/internal/repository"
)

// AuthHandler issues identities: verified Google users and ephemeral guests.
type AuthHandler struct {
	db           *gorm.DB
	boards       *repository.BoardRepository
	jwtManager   *auth.JWTManager
	googleAuth   *auth.GoogleAuthenticator
	secureCookie bool
}

func NewAuthHandler(db *gorm.DB, boards *repository.BoardRepository, jwtManager *auth.JWTManager, googleAuth *auth.GoogleAuthenticator, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		db:           db,
		boards:       boards,
		jwtManager:   jwtManager,
		googleAuth:   googleAuth,
		secureCookie: secureCookie,
	}
}

// GoogleLoginRequest carries the Google ID token.
type GoogleLoginRequest struct {
	Credential string `json:"credential"`
}

// GuestLoginRequest optionally names the guest.
type GuestLoginRequest struct {
	Name string `json:"name"`
}

// AuthResponse is the login reply.
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// UserResponse is the public shape of a user.
type UserResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	ProfilePic *string `json:"profile_pic,omitempty"`
	IsGuest    bool    `json:"is_guest"`
}

// GoogleLogin verifies a Google ID token, upserts the user, guarantees the
// default board exists with access granted, and issues tokens.
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req GoogleLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Credential == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "credential is required",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	googleUser, err := h.googleAuth.VerifyIDToken(ctx, req.Credential)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid google token",
		})
	}

	var user model.User
	result := h.db.Where("id = ?", googleUser.ID).First(&user)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		user = model.User{
			ID:         googleUser.ID,
			Email:      googleUser.Email,
			Name:       googleUser.Name,
			ProfilePic: &googleUser.Picture,
		}
		if err := h.db.Create(&user).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create user",
			})
		}
	} else if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "database error",
		})
	} else {
		user.Name = googleUser.Name
		user.ProfilePic = &googleUser.Picture
		h.db.Save(&user)
	}

	// Returning users may predate the default board; make sure it exists
	// and that they can reach it.
	if _, err := h.boards.EnsureDefault(ctx, user.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to prepare default board",
		})
	}

	return h.issueTokens(c, &user)
}

// GuestLogin synthesizes an ephemeral identity. The guest and all its data
// are deleted when its last realtime session closes.
func (h *AuthHandler) GuestLogin(c *fiber.Ctx) error {
	var req GuestLoginRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	id := "guest-" + uuid.New().String()
	name := req.Name
	if name == "" {
		name = "Guest " + id[len(id)-6:]
	}

	user := model.User{
		ID:      id,
		Email:   fmt.Sprintf("%s@guest.local", id),
		Name:    name,
		IsGuest: true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create guest",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := h.boards.EnsureDefault(ctx, user.ID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to prepare default board",
		})
	}

	return h.issueTokens(c, &user)
}

// RefreshToken exchanges a valid refresh cookie for a new access token.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies("refresh_token")
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "refresh token not found",
		})
	}

	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.clearRefreshCookie(c)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired refresh token",
		})
	}

	var user model.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Name, user.IsGuest)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

// Logout clears the auth cookies.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearRefreshCookie(c)
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})

	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe returns the authenticated user.
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var user model.User
	if err := h.db.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	return c.JSON(UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		ProfilePic: user.ProfilePic,
		IsGuest:    user.IsGuest,
	})
}

func (h *AuthHandler) issueTokens(c *fiber.Ctx, user *model.User) error {
	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.Name, user.IsGuest)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate token",
		})
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to generate refresh token",
		})
	}

	accessSeconds := int(h.jwtManager.AccessExpiry().Seconds())
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.RefreshExpiry().Seconds()),
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		MaxAge:   accessSeconds,
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.JSON(AuthResponse{
		User: UserResponse{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			ProfilePic: user.ProfilePic,
			IsGuest:    user.IsGuest,
		},
		AccessToken: accessToken,
		ExpiresIn:   int64(accessSeconds),
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})
}
