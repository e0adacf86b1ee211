package clerk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deskchat/internal/domain"
)

// Config controls the Clerk backend API client.
type Config struct {
	SecretKey  string
	APIBaseURL string
	HTTPClient *http.Client
}

// Identity implements ports.Identity against the Clerk backend API. The most
// recently active user of the instance is the signed-in user; resolution
// failure means signed-out.
type Identity struct {
	cfg  Config
	http *http.Client
}

func NewIdentity(cfg Config) *Identity {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.clerk.com"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Identity{cfg: cfg, http: httpClient}
}

type clerkUser struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
}

func (i *Identity) Resolve(ctx context.Context) (domain.User, error) {
	if strings.TrimSpace(i.cfg.SecretKey) == "" {
		return domain.User{}, errors.New("CLERK_SECRET_KEY is not configured")
	}

	endpoint := strings.TrimRight(i.cfg.APIBaseURL, "/") + "/v1/users?limit=1&order_by=-last_active_at"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+i.cfg.SecretKey)

	resp, err := i.http.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := strings.TrimSpace(string(payload))
		if detail == "" {
			detail = resp.Status
		}
		return domain.User{}, fmt.Errorf("identity lookup returned %d: %s", resp.StatusCode, detail)
	}

	var users []clerkUser
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return domain.User{}, fmt.Errorf("failed to decode identity response: %w", err)
	}
	if len(users) == 0 {
		return domain.User{}, errors.New("no signed-in user")
	}

	return domain.User{ID: users[0].ID, FirstName: users[0].FirstName}, nil
}
