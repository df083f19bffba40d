// Package apiclient talks to the campaign backend. Every request
// carries the bearer credential; a 401 anywhere flips the session to
// unauthorized and surfaces apperrors.ErrUnauthorized.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/unclebandit/smsleopard-dashboard/internal/apperrors"
	"github.com/unclebandit/smsleopard-dashboard/internal/model"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client

	// TokenSource supplies the current credential; empty means none.
	TokenSource func() string
	// OnUnauthorized runs once per 401 response, before the error is
	// returned. Used to invalidate the session and stash the redirect.
	OnUnauthorized func()
}

func New(baseURL string, tokenSource func() string) *Client {
	return &Client{
		BaseURL:     baseURL,
		HTTP:        &http.Client{Timeout: 15 * time.Second},
		TokenSource: tokenSource,
	}
}

// ====================== Campaigns ======================

func (c *Client) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	if err := c.getJSON(ctx, "/api/campaigns", &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

type CreateCampaignParams struct {
	Name            string
	MessageTemplate string
	FileName        string
	File            io.Reader
	ScheduledAt     *time.Time
}

// CreateCampaign uploads a new campaign as multipart form data.
func (c *Client) CreateCampaign(ctx context.Context, p CreateCampaignParams) (*model.Campaign, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	if err := form.WriteField("name", p.Name); err != nil {
		return nil, err
	}
	if err := form.WriteField("messageTemplate", p.MessageTemplate); err != nil {
		return nil, err
	}
	if p.ScheduledAt != nil {
		if err := form.WriteField("scheduledAt", p.ScheduledAt.UTC().Format(time.RFC3339)); err != nil {
			return nil, err
		}
	}
	part, err := form.CreateFormFile("file", p.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, p.File); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/campaigns", &buf, form.FormDataContentType())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	campaign := &model.Campaign{}
	if err := json.NewDecoder(resp.Body).Decode(campaign); err != nil {
		return nil, fmt.Errorf("decoding campaign: %w", err)
	}
	return campaign, nil
}

func (c *Client) StartCampaign(ctx context.Context, id int) error {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/campaigns/%d/start", id), nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) DeleteCampaign(ctx context.Context, id int) error {
	resp, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/campaigns/%d", id), nil, "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ActiveCampaign returns the campaign currently in progress, or nil
// when the backend reports none.
func (c *Client) ActiveCampaign(ctx context.Context) (*model.Campaign, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/campaigns/active", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 || bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, nil
	}
	campaign := &model.Campaign{}
	if err := json.Unmarshal(body, campaign); err != nil {
		return nil, fmt.Errorf("decoding active campaign: %w", err)
	}
	return campaign, nil
}

// ====================== Stats & identity ======================

func (c *Client) Stats(ctx context.Context, period, referenceDate string) (*model.StatsResponse, error) {
	path := fmt.Sprintf("/api/stats?period=%s&referenceDate=%s", period, referenceDate)
	stats := &model.StatsResponse{}
	if err := c.getJSON(ctx, path, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *Client) Me(ctx context.Context) (model.User, error) {
	var user model.User
	if err := c.getJSON(ctx, "/api/users/me", &user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// ====================== Plumbing ======================

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TokenSource != nil {
		if token := c.TokenSource(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return nil, apperrors.ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

// decodeAPIError surfaces the backend-provided message when there is
// one, a generic fallback otherwise.
func decodeAPIError(resp *http.Response) error {
	var payload struct {
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &payload)
	return &apperrors.APIError{StatusCode: resp.StatusCode, Message: payload.Message}
}
