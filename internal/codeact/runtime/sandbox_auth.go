package runtime

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// NewOIDCHTTPClient wraps httpClient (or http.DefaultClient if nil) with an
// OAuth2 client-credentials token source, for sandbox deployments that
// require bearer auth on /execute_action. Pass empty clientID to get
// httpClient back unmodified (no-auth sandbox).
func NewOIDCHTTPClient(ctx context.Context, tokenURL, clientID, clientSecret string, scopes []string, httpClient *http.Client) *http.Client {
	if clientID == "" {
		if httpClient == nil {
			return http.DefaultClient
		}
		return httpClient
	}
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}
	return cfg.Client(ctx)
}
