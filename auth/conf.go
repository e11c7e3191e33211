package auth

import (
	"fmt"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf represents the configuration needed for OAuth2 client credentials.
// An empty ClientID disables it.
type Conf struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	AuthURL      string   `koanf:"auth_url"`
	Scopes       []string `koanf:"scopes"`
}

// Enabled reports whether credentials are configured.
func (c Conf) Enabled() bool { return c.ClientID != "" }

// Validate checks that enabled credentials carry a token URL.
func (c Conf) Validate() error {
	if c.Enabled() && c.AuthURL == "" {
		return fmt.Errorf("auth_url is required with client_id")
	}
	return nil
}

func (c *Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.AuthURL,
		Scopes:       c.Scopes,
	}
}
