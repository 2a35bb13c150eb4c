// Copyright 2026 The Marketbase Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TokenSource supplies the bearer token attached to directory requests.
// The session SDK wires this to the provider's current access token so
// directory reads are always made as the signed-in user.
type TokenSource func() string

// Client is an HTTP implementation of Reader against the marketbase
// directory API (/api/v1/profiles/{id}, /api/v1/tenants/{id}).
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewClient creates a directory API client.
func NewClient(baseURL string, token TokenSource) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
}

// GetProfile retrieves a profile by user ID.
func (c *Client) GetProfile(ctx context.Context, id string) (*UserProfile, error) {
	var profile UserProfile
	if err := c.get(ctx, "/api/v1/profiles/"+url.PathEscape(id), &profile, ErrProfileNotFound); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetTenant retrieves a tenant by ID.
func (c *Client) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	if err := c.get(ctx, "/api/v1/tenants/"+url.PathEscape(id), &tenant, ErrTenantNotFound); err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (c *Client) get(ctx context.Context, path string, out any, notFound error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build directory request: %w", err)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("directory request returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode directory response: %w", err)
	}
	return nil
}
