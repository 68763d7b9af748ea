package types

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
)

// Account identifies an EmonCMS user account. Every feed request is authorized
// with the account's API key against its base URL.
type Account struct {
	UUID   uuid.UUID `json:"uuid"`
	URL    string    `json:"url"`
	APIKey string    `json:"-"`
}

// NewAccount returns an Account with a freshly generated UUID.
func NewAccount(baseURL, apiKey string) Account {
	return Account{
		UUID:   uuid.New(),
		URL:    baseURL,
		APIKey: apiKey,
	}
}

// Validate ensures the account can be used to make requests.
func (a Account) Validate() error {
	if a.URL == "" {
		return errors.New("account url is required")
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return fmt.Errorf("failed to parse account url (%s): %w", a.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported account url scheme: %q", u.Scheme)
	}
	if a.APIKey == "" {
		return errors.New("account api key is required")
	}
	return nil
}
