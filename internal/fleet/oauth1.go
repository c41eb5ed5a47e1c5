// Package fleet is the fleet-controller adapter (C5): a signed HTTP client
// against a MAAS-style REST API (spec.md §4.5/§6). No pack example or
// ecosystem library implements OAuth1 PLAINTEXT signing (the common
// golang.org/x/oauth2 is OAuth2-only) so the signature header is built by
// hand per RFC 5849 §3.4.4 — see DESIGN.md's per-dependency justification.
package fleet

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
)

// OAuth1Credentials are the four PLAINTEXT-method tokens a fleet controller
// issues per API key.
type OAuth1Credentials struct {
	ConsumerKey    string
	Token          string
	TokenSecret    string
	ConsumerSecret string
}

// authorizationHeader builds the `Authorization: OAuth ...` header using the
// PLAINTEXT signature method: the "signature" is simply
// consumer_secret&token_secret, percent-encoded, with a fresh nonce and
// timestamp per request (RFC 5849 §3.4.4).
func authorizationHeader(creds OAuth1Credentials, nowUnix int64) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", fmt.Errorf("generating oauth nonce: %w", err)
	}

	signature := url.QueryEscape(creds.ConsumerSecret) + "&" + url.QueryEscape(creds.TokenSecret)

	return fmt.Sprintf(
		`OAuth oauth_version="1.0", oauth_signature_method="PLAINTEXT", `+
			`oauth_consumer_key="%s", oauth_token="%s", oauth_signature="%s", `+
			`oauth_nonce="%s", oauth_timestamp="%d"`,
		url.QueryEscape(creds.ConsumerKey),
		url.QueryEscape(creds.Token),
		signature,
		nonce,
		nowUnix,
	), nil
}

func randomNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
