package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/postbridge/internal/assets"
)

type AssetHandler struct {
	assets *assets.Service
}

func NewAssetHandler(s *assets.Service) *AssetHandler {
	return &AssetHandler{assets: s}
}

// UploadAsset stores an uploaded file and returns the public URL for use as
// a post's media_url.
func (h *AssetHandler) UploadAsset(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing file",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	url, err := h.assets.Upload(c.Context(), data)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"url": url})
}
