package seedsdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	sseReconnectInitial = 1 * time.Second
	sseReconnectMax     = 60 * time.Second
)

// Subscribe opens a server-sent-events connection to /v1/events and
// returns a channel of decoded RemoteEvents. The connection reconnects
// automatically with doubling backoff (1s -> 60s cap) on any read or
// dial failure; it stops only when ctx is cancelled. This backoff is a
// separate instance from the retry queue's — the two are independent
// per spec.md §4.2/§4.3.
func (c *Client) Subscribe(ctx context.Context) <-chan RemoteEvent {
	out := make(chan RemoteEvent, 64)

	go func() {
		defer close(out)

		backoff := sseReconnectInitial
		for {
			err := c.runSSE(ctx, out)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.Warn("seedsdk: events stream disconnected", "error", err, "retry_in", backoff)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > sseReconnectMax {
				backoff = sseReconnectMax
			}
		}
	}()

	return out
}

func (c *Client) runSSE(ctx context.Context, out chan<- RemoteEvent) error {
	url := strings.TrimSuffix(c.baseURL, "/") + "/v1/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("events stream: unexpected status %d", resp.StatusCode)
	}

	// Connection established. parseSSE returns nil both when ctx is
	// cancelled and when the server closes the stream cleanly; Subscribe
	// does not reset its backoff in either case, so every reconnect waits
	// the doubled delay up to the cap.
	return parseSSE(ctx, resp.Body, out)
}

// parseSSE implements the small header-line -> data-line(s) -> blank-line
// state machine from Design Notes §9: an event is assembled across one or
// more "field: value" lines and emitted on the blank line that terminates
// it. Only file_updated/file_deleted are mapped to RemoteEvent;
// connected/activity/keepalive lines are read and discarded.
func parseSSE(ctx context.Context, body io.Reader, out chan<- RemoteEvent) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventName string
	var dataLines []string

	flush := func() {
		if eventName == "" && len(dataLines) == 0 {
			return
		}
		defer func() {
			eventName = ""
			dataLines = nil
		}()

		switch RemoteEventKind(eventName) {
		case RemoteEventFileUpdated, RemoteEventFileDeleted:
			var ev RemoteEvent
			if err := json.Unmarshal([]byte(strings.Join(dataLines, "\n")), &ev); err != nil {
				slog.Warn("seedsdk: events: malformed payload", "event", eventName, "error", err)
				return
			}
			ev.Kind = RemoteEventKind(eventName)
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		default:
			// "connected", "activity", keepalive comments: discarded.
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment / keepalive line, ignored
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
