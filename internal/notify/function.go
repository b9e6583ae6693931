package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FunctionNotifier posts the message as JSON to the notification cloud
// function. Any 2xx answer counts as delivered.
type FunctionNotifier struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewFunctionNotifier(url, secret string) *FunctionNotifier {
	return &FunctionNotifier{URL: url, Secret: secret, Client: &http.Client{Timeout: 15 * time.Second}}
}

func (*FunctionNotifier) Name() string { return "function" }

func (f *FunctionNotifier) Notify(ctx context.Context, m Message) error {
	if f.URL == "" {
		return fmt.Errorf("function url not configured")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+f.Secret)
	}
	cl := f.Client
	if cl == nil {
		cl = http.DefaultClient
	}
	resp, err := cl.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("function returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
