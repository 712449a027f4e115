package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	errs "sfextract/pkg/errors"
	"sfextract/pkg/logger"
	"sfextract/pkg/retry"
)

// ErrAuthenticationFailed marks a run that could not obtain a token
var ErrAuthenticationFailed = errors.New("authentication failed")

const opObtainToken = "obtain token"

// Authenticator exchanges client credentials for a bearer token
type Authenticator struct {
	client   *Client
	tokenURL string
	retrier  *retry.Retrier
	logger   logger.Logger
}

// NewAuthenticator creates an authenticator posting to tokenURL
func NewAuthenticator(client *Client, tokenURL string, retrier *retry.Retrier, log logger.Logger) *Authenticator {
	if retrier == nil {
		retrier = retry.NewRetrier(retry.Policy{MaxAttempts: 1}, log)
	}
	return &Authenticator{
		client:   client,
		tokenURL: tokenURL,
		retrier:  retrier,
		logger:   logger.OrNop(log),
	}
}

// ObtainToken performs the client-credentials exchange. Network failures
// and 5xx responses are retried under the policy; a 4xx rejection is fatal
// at once. Every failure is returned wrapping ErrAuthenticationFailed.
func (a *Authenticator) ObtainToken(ctx context.Context, creds Credentials) (string, error) {
	a.logger.InfoWithFields("Requesting access token", map[string]interface{}{
		"token_url": a.tokenURL,
		"client_id": creds.ClientID,
	})

	token, err := retry.DoWith(ctx, a.retrier, opObtainToken, func(ctx context.Context) (string, error) {
		return a.requestToken(ctx, creds)
	})
	if err != nil {
		a.logger.WithError(err).Error("Failed to obtain access token")
		return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	a.logger.Info("Successfully obtained access token")
	return token, nil
}

func (a *Authenticator) requestToken(ctx context.Context, creds Credentials) (string, error) {
	form := url.Values{}
	form.Set("client_id", creds.ClientID)
	form.Set("client_secret", creds.ClientSecret)
	form.Set("grant_type", "client_credentials")
	form.Set("company_id", creds.CompanyID)
	form.Set("user_id", creds.UserID)

	req, err := http.NewRequest(http.MethodPost, a.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeClientError, opObtainToken, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := a.client.do(ctx, opObtainToken, req)
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", errs.Wrap(errs.ErrorTypeParsing, opObtainToken, fmt.Errorf("invalid token response: %w", err))
	}
	if tr.AccessToken == "" {
		return "", errs.New(errs.ErrorTypeAuth, opObtainToken, "token response has no access_token")
	}
	return tr.AccessToken, nil
}
