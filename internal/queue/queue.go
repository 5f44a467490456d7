package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/maheshrc27/postbridge/internal/dispatcher"
	"github.com/maheshrc27/postbridge/internal/models"
	"github.com/maheshrc27/postbridge/internal/store"
)

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID string `json:"post_id"`
}

// Queue runs scheduled publishes off an asynq worker.
type Queue struct {
	posts      store.ScheduleStore
	dispatcher *dispatcher.Dispatcher
}

func NewQueue(posts store.ScheduleStore, d *dispatcher.Dispatcher) *Queue {
	return &Queue{posts: posts, dispatcher: d}
}

// Enqueue schedules a publish task to run after the given delay.
func Enqueue(client *asynq.Client, payload PublishPostPayload, delay time.Duration) error {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, taskPayload)

	_, err = client.Enqueue(task, asynq.ProcessIn(delay))
	if err != nil {
		return err
	}

	log.Printf("Task scheduled: %+v", payload)
	return nil
}

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	return q.PublishPost(ctx, payload.PostID)
}

// PublishPost publishes a stored scheduled post to all its target platforms
// and records the outcome. A post where every platform failed is marked
// failed; partial success still counts as posted.
func (q *Queue) PublishPost(ctx context.Context, postID string) error {
	post, err := q.posts.GetScheduledPost(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("scheduled post %s not found", postID)
	}
	if post.Status != models.ScheduledPostPending {
		log.Printf("Scheduled post %s already handled (status %s)", postID, post.Status)
		return nil
	}

	results := q.dispatcher.PostToAll(ctx, post.UserID, post.Platforms, &post.Options)

	succeeded := 0
	for _, result := range results {
		if result.Success {
			succeeded++
			continue
		}
		log.Printf("Error posting to %s for post %s: %s", result.Platform, postID, result.Error)
	}

	status := models.ScheduledPostPosted
	if succeeded == 0 {
		status = models.ScheduledPostFailed
	}
	if err := q.posts.SetScheduledPostStatus(ctx, postID, status); err != nil {
		log.Printf("Error updating status for post %s: %v", postID, err)
		return err
	}
	return nil
}
