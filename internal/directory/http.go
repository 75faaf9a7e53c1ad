package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTP resolves users against a remote directory exposing GET /users/{name}.
type HTTP struct {
	Endpoint   string
	Client     *http.Client
	MaxElapsed time.Duration
}

func NewHTTP(endpoint string) *HTTP {
	return &HTTP{Endpoint: strings.TrimRight(endpoint, "/")}
}

func (h *HTTP) ResolveUserContactInfo(ctx context.Context, userName string) (ContactInfo, error) {
	var info ContactInfo
	op := func() error {
		var err error
		info, err = h.fetch(ctx, userName)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = h.MaxElapsed
	if b.MaxElapsedTime == 0 {
		b.MaxElapsedTime = 5 * time.Second
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return ContactInfo{}, err
	}
	return info, nil
}

func (h *HTTP) fetch(ctx context.Context, userName string) (ContactInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.Endpoint+"/users/"+url.PathEscape(userName), nil)
	if err != nil {
		return ContactInfo{}, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return ContactInfo{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ContactInfo{}, backoff.Permanent(fmt.Errorf("%s: %w", userName, ErrUnknownUser))
	case resp.StatusCode >= 500:
		return ContactInfo{}, fmt.Errorf("directory temporary error: %s", resp.Status)
	case resp.StatusCode >= 400:
		return ContactInfo{}, backoff.Permanent(fmt.Errorf("directory permanent error: %s", resp.Status))
	}

	var info ContactInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ContactInfo{}, backoff.Permanent(fmt.Errorf("decode directory response: %w", err))
	}
	if info.Name == "" {
		info.Name = userName
	}
	for svc, pa := range info.AddressesByType {
		if pa.ServiceID == "" {
			pa.ServiceID = svc
			info.AddressesByType[svc] = pa
		}
	}
	return info, nil
}
