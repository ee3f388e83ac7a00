package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

type HTTPVerifier struct {
	BaseURL string
	APIKey  string
	Client  *resty.Client
}

func (v *HTTPVerifier) VerifyEvent(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	if v.Client == nil {
		v.Client = resty.New().SetTimeout(10 * time.Second)
	}

	req := v.Client.R().SetContext(ctx)
	if v.APIKey != "" {
		req.SetHeader("Authorization", "Bearer "+v.APIKey)
	}
	resp, err := req.Get(v.BaseURL + "/events/" + url.PathEscape(eventID))
	if err != nil {
		return false, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("calendar returned status %d", resp.StatusCode())
	}
}
