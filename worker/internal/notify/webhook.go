package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// deliver posts ev to every configured target. Failures are logged only.
func (n *Notifier) deliver(ev Event) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			slog.Warn("notify: webhook url not set", "type", wh.Type, "url_env", wh.URLEnv)
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(ev)
		case "teams":
			body = teamsPayload(ev)
		case "http":
			body, _ = json.Marshal(map[string]any{"event": ev})
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(url, body); err != nil {
			slog.Error("notify: webhook delivery failed", "type", wh.Type, "cycle", ev.Cycle, "err", err)
			continue
		}
		slog.Debug("notify: webhook delivered", "type", wh.Type, "cycle", ev.Cycle, "state", ev.State)
	}
}

func slackPayload(ev Event) []byte {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s (cycle %s)", stateLabel(ev.State), ev.Message, ev.Cycle),
	})
	return body
}

func teamsPayload(ev Event) []byte {
	body, _ := json.Marshal(map[string]any{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": stateColor(ev.State),
		"summary":    "Leaderboard sync " + ev.State,
		"title":      "Leaderboard sync " + ev.State,
		"text":       ev.Message,
	})
	return body
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func stateLabel(s string) string {
	if s == StateResolved {
		return "[RESOLVED]"
	}
	return "[FAILING]"
}

func stateColor(s string) string {
	if s == StateResolved {
		return "2EB67D"
	}
	return "FF4F6A"
}
