package social

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

type FacebookClient struct {
	baseURL string
	client  *http.Client
}

func NewFacebookClient(baseURL string, client *http.Client) *FacebookClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FacebookClient{baseURL: baseURL, client: client}
}

type facebookProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Profile fetches the user's id, name and email from the Graph API using the
// access token the client obtained through the Facebook login flow.
func (c *FacebookClient) Profile(ctx context.Context, userID string, accessToken string) (Profile, error) {
	endpoint := fmt.Sprintf("%s/%s/?fields=id,name,email&access_token=%s",
		c.baseURL, url.PathEscape(userID), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: build request: %v", ErrProviderLookup, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrProviderLookup, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%w: graph api status %d", ErrProviderLookup, resp.StatusCode)
	}

	var profile facebookProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("%w: decode response: %v", ErrProviderLookup, err)
	}
	if profile.Error != nil {
		return Profile{}, fmt.Errorf("%w: graph api error %d: %s", ErrProviderLookup, profile.Error.Code, profile.Error.Message)
	}
	if profile.Email == "" {
		return Profile{}, fmt.Errorf("%w: profile has no email", ErrProviderLookup)
	}

	return Profile{Email: profile.Email, Name: profile.Name}, nil
}
