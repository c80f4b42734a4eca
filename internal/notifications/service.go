package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"splicer/internal/config"
	"splicer/internal/media"
)

const userAgent = "splicer/0.1"

// Service is the notification surface used by the workflow.
type Service interface {
	EpisodeProcessed(ctx context.Context, ep *media.Episode, warnings []string) error
	EpisodeFailed(ctx context.Context, ep *media.Episode, reason string) error
	EpisodePublished(ctx context.Context, ep *media.Episode) error
	Test(ctx context.Context) error
}

// NewService builds an ntfy notifier for cfg.Notifications.NtfyTopic.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{endpoint: topic, client: &http.Client{Timeout: timeout}}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func episodeLabel(ep *media.Episode) string {
	title := strings.TrimSpace(ep.Title)
	if title == "" {
		return ep.ID
	}
	return title
}

func (n *ntfyService) EpisodeProcessed(ctx context.Context, ep *media.Episode, warnings []string) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Assembled: %s", episodeLabel(ep))
	if len(warnings) > 0 {
		fmt.Fprintf(&body, "\n%d warning(s): %s", len(warnings), strings.Join(warnings, "; "))
	}
	return n.send(ctx, message{
		title: "splicer - Episode ready",
		body:  body.String(),
		tags:  []string{"splicer", "episode", "processed"},
	})
}

func (n *ntfyService) EpisodeFailed(ctx context.Context, ep *media.Episode, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	return n.send(ctx, message{
		title:    "splicer - Assembly failed",
		body:     fmt.Sprintf("%s: %s", episodeLabel(ep), reason),
		tags:     []string{"splicer", "episode", "error"},
		priority: "high",
	})
}

func (n *ntfyService) EpisodePublished(ctx context.Context, ep *media.Episode) error {
	return n.send(ctx, message{
		title: "splicer - Published",
		body:  "Published: " + episodeLabel(ep),
		tags:  []string{"splicer", "episode", "published"},
	})
}

func (n *ntfyService) Test(ctx context.Context) error {
	return n.send(ctx, message{
		title:    "splicer - Test",
		body:     "Notification test",
		tags:     []string{"splicer", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, m message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(m.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		req.Header.Set("Title", m.title)
	}
	if len(m.tags) > 0 {
		req.Header.Set("Tags", strings.Join(m.tags, ","))
	}
	if m.priority != "" {
		req.Header.Set("Priority", m.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) EpisodeProcessed(context.Context, *media.Episode, []string) error { return nil }
func (noopService) EpisodeFailed(context.Context, *media.Episode, string) error      { return nil }
func (noopService) EpisodePublished(context.Context, *media.Episode) error           { return nil }
func (noopService) Test(context.Context) error                                       { return nil }
