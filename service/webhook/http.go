package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

type httpService struct {
	url    string
	client *http.Client
}

// NewHTTP posts payloads as JSON to url. Any non-2xx answer is an error.
func NewHTTP(url string, timeout time.Duration) IService {
	return &httpService{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (svc *httpService) Post(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return xerrors.Errorf("posting webhook %s: %w", svc.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return xerrors.Errorf("webhook %s answered %s", svc.url, resp.Status)
	}
	return nil
}

func (svc *httpService) Close() error {
	svc.client.CloseIdleConnections()
	return nil
}
