// Package notify delivers domain events as ntfy push notifications.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
)

// Message is one push notification.
type Message struct {
	Title    string
	Body     string
	Priority int
	Tags     []string
}

// Ntfy posts messages to a topic on an ntfy server.
type Ntfy struct {
	cfg    config.NtfyConfig
	client *http.Client
}

// NewNtfy builds a client with a 10 second timeout.
func NewNtfy(cfg config.NtfyConfig) *Ntfy {
	return &Ntfy{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Send publishes m. Any non-2xx answer is an error.
func (n *Ntfy) Send(ctx context.Context, m Message) error {
	url := strings.TrimRight(n.cfg.Server, "/") + "/" + n.cfg.Topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBufferString(m.Body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if m.Title != "" {
		// Header values must be ASCII; ntfy decodes RFC 2047 words.
		req.Header.Set("Title", mime.QEncoding.Encode("utf-8", m.Title))
	}
	if m.Priority > 0 {
		req.Header.Set("Priority", strconv.Itoa(m.Priority))
	}
	if len(m.Tags) > 0 {
		req.Header.Set("Tags", strings.Join(m.Tags, ","))
	}
	if n.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+n.cfg.Token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ntfy: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
