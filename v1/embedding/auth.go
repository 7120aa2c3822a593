package embedding

import (
	"fmt"
	"net/http"
	"os"
	"strings"
)

// resolveToken returns the configured token, reading TokenFile when Token is
// empty. An empty result means the endpoint is called unauthenticated.
func resolveToken(cfg *Config) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if cfg.TokenFile == "" {
		return "", nil
	}

	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return "", fmt.Errorf("%w: read token file: %v", ErrInvalidConfig, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// authHeaderValue formats the credential for the auth header.
func authHeaderValue(scheme, token string) string {
	if scheme == "" || strings.EqualFold(scheme, authSchemeNone) {
		return token
	}
	return scheme + " " + token
}

// requestHeaders builds the static headers sent with every request.
func requestHeaders(cfg *Config, token string) http.Header {
	h := make(http.Header, len(cfg.ExtraHeaders)+2)
	for k, v := range cfg.ExtraHeaders {
		h.Set(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	if token != "" {
		h.Set(cfg.AuthHeader, authHeaderValue(cfg.AuthScheme, token))
	}
	return h
}
