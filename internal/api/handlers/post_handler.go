package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/maheshrc27/postbridge/internal/dispatcher"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/queue"
	"github.com/maheshrc27/postbridge/internal/store"
)

type createPostRequest struct {
	models.PostOptions
	Platforms   []string   `json:"platforms"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// PostHandler publishes immediately or books a scheduled post onto the
// queue.
type PostHandler struct {
	d      *dispatcher.Dispatcher
	posts  store.ScheduleStore
	client *asynq.Client
}

func NewPostHandler(d *dispatcher.Dispatcher, posts store.ScheduleStore, client *asynq.Client) *PostHandler {
	return &PostHandler{d: d, posts: posts, client: client}
}

// CreatePost publishes right away when scheduled_at is absent or already
// past; otherwise it stores the post and enqueues delivery.
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req createPostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	// an empty platform list publishes everywhere
	if req.ScheduledAt == nil || !req.ScheduledAt.After(time.Now()) {
		results := h.d.PostToAll(c.Context(), userID, req.Platforms, &req.PostOptions)
		return c.JSON(fiber.Map{"results": results})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	post := &models.ScheduledPost{
		ID:          id,
		UserID:      userID,
		Options:     req.PostOptions,
		Platforms:   req.Platforms,
		ScheduledAt: *req.ScheduledAt,
		Status:      models.ScheduledPostPending,
		CreatedAt:   time.Now(),
	}
	if err := h.posts.SaveScheduledPost(c.Context(), post); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	payload := queue.PublishPostPayload{PostID: post.ID}
	if err := queue.Enqueue(h.client, payload, time.Until(post.ScheduledAt)); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"id": post.ID, "status": post.Status})
}

// PostNow publishes to a single platform synchronously.
func (h *PostHandler) PostNow(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Params("platform")

	var opts models.PostOptions
	if err := c.BodyParser(&opts); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	result, err := h.d.PostToPlatform(c.Context(), userID, platform, &opts)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(result)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	posts, err := h.posts.ListScheduledPosts(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{"posts": posts})
}
