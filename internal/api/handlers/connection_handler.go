package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	config "github.com/maheshrc27/postbridge/configs"
	"github.com/maheshrc27/postbridge/internal/dispatcher"
	"github.com/maheshrc27/postbridge/internal/providers"
)

// ConnectionHandler exposes the connect, callback and disconnect routes.
type ConnectionHandler struct {
	cfg config.Config
	d   *dispatcher.Dispatcher
}

func NewConnectionHandler(cfg config.Config, d *dispatcher.Dispatcher) *ConnectionHandler {
	return &ConnectionHandler{cfg: cfg, d: d}
}

func (h *ConnectionHandler) redirectURI(c *fiber.Ctx, platform string) string {
	return c.BaseURL() + "/connect/" + platform + "/callback"
}

// AddConnection starts the OAuth handshake and redirects the browser to the
// platform's consent page.
func (h *ConnectionHandler) AddConnection(c *fiber.Ctx) error {
	platform := c.Params("platform")
	userID := GetUserID(c)

	initiation, err := h.d.InitiateAuth(c.Context(), userID, platform, h.redirectURI(c, platform))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Redirect(initiation.AuthURL, fiber.StatusTemporaryRedirect)
}

// CallbackHandler completes the handshake. The state token carries the user
// identity, so this route takes no session.
func (h *ConnectionHandler) CallbackHandler(c *fiber.Ctx) error {
	platform := c.Params("platform")
	code := c.Query("code")
	state := c.Query("state")

	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing authorization code",
		})
	}

	_, err := h.d.HandleCallback(c.Context(), platform, code, state, h.redirectURI(c, platform))
	if err != nil {
		log.Printf("Callback failed for %s: %v", platform, err)
		status := fiber.StatusBadGateway
		if errors.Is(err, providers.ErrInvalidState) {
			status = fiber.StatusBadRequest
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Redirect(h.cfg.FrontendURL + "/connections")
}

// ConnectWithCredentials connects platforms that use a user-supplied
// credential (bluesky app password, mastodon token, devto api key, discord
// webhook url).
func (h *ConnectionHandler) ConnectWithCredentials(c *fiber.Ctx) error {
	platform := c.Params("platform")
	userID := GetUserID(c)

	var credential map[string]string
	if err := c.BodyParser(&credential); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	conn, err := h.d.ConnectWithCredentials(c.Context(), userID, platform, credential)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(conn)
}

func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	userID := GetUserID(c)

	connections, err := h.d.GetConnections(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"connections": connections})
}

// RefreshConnection forces a token refresh outside the scheduled sweep.
func (h *ConnectionHandler) RefreshConnection(c *fiber.Ctx) error {
	platform := c.Params("platform")
	userID := GetUserID(c)

	conn, err := h.d.RefreshToken(c.Context(), userID, platform)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(conn)
}

func (h *ConnectionHandler) RemoveConnection(c *fiber.Ctx) error {
	platform := c.Params("platform")
	userID := GetUserID(c)

	if err := h.d.Disconnect(c.Context(), userID, platform); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"success": true})
}
