package dispatch

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// PushChannel delivers events through an HTTP push gateway (FCM or an
// in-house relay) instead of a live socket. The connection id is the device
// token the captain app registered. Same best-effort contract as the hub: a
// false return means the gateway did not take the message, and the caller
// moves on.
type PushChannel struct {
	Endpoint string
	Key      string
	Client   *http.Client

	logger *slog.Logger
}

func NewPushChannel(endpoint, key string, logger *slog.Logger) *PushChannel {
	return &PushChannel{
		Endpoint: endpoint,
		Key:      key,
		Client:   &http.Client{Timeout: 3 * time.Second},
		logger:   logger,
	}
}

type pushMessage struct {
	Token string   `json:"token"`
	Data  Envelope `json:"data"`
}

func (p *PushChannel) Send(connectionID, event string, payload any) bool {
	b, err := json.Marshal(pushMessage{Token: connectionID, Data: Envelope{Event: event, Data: payload}})
	if err != nil {
		return false
	}
	req, err := http.NewRequest(http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		p.logger.Warn("push send failed", "event", event, "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.logger.Warn("push gateway rejected message", "event", event, "status", resp.StatusCode)
		return false
	}
	return true
}

// FallbackChannel tries the live socket first and falls back to push when the
// captain has no session up, so a backgrounded app still sees the offer.
type FallbackChannel struct {
	Primary  Channel
	Fallback Channel
}

func (f *FallbackChannel) Send(connectionID, event string, payload any) bool {
	if f.Primary.Send(connectionID, event, payload) {
		return true
	}
	return f.Fallback.Send(connectionID, event, payload)
}
