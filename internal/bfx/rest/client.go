package rest

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client is a thin Bitfinex v2 REST transport. Public endpoints are plain
// GETs against api-pub; private endpoints are POSTs against api, signed with
// HMAC-SHA384 over "/api/<path><nonce><body>".
type Client struct {
	publicBaseURL  string
	privateBaseURL string
	apiKey         string
	apiSecret      string
	http           *http.Client
	log            *zap.Logger
	nonce          func() string
}

func New(publicBaseURL, privateBaseURL, apiKey, apiSecret string, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		publicBaseURL:  strings.TrimRight(publicBaseURL, "/"),
		privateBaseURL: strings.TrimRight(privateBaseURL, "/"),
		apiKey:         apiKey,
		apiSecret:      apiSecret,
		http: &http.Client{
			Timeout: timeout,
		},
		log:   log,
		nonce: microNonce,
	}
}

func microNonce() string {
	return strconv.FormatInt(time.Now().UnixMicro(), 10)
}

// GetPublic performs a GET against the public API and decodes the JSON
// payload. Bitfinex answers with positional arrays, so the result is left
// untyped for the caller to parse.
func (c *Client) GetPublic(ctx context.Context, path string, params url.Values) (any, error) {
	u := c.publicBaseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// PostPrivate performs a signed POST against the authenticated API.
func (c *Client) PostPrivate(ctx context.Context, path string, body any) (any, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, fmt.Errorf("api credentials are required for %s", path)
	}
	if body == nil {
		body = map[string]any{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	path = strings.TrimLeft(path, "/")
	nonce := c.nonce()
	sig := c.sign("/api/" + path + nonce + string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.privateBaseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("bfx-nonce", nonce)
	req.Header.Set("bfx-apikey", c.apiKey)
	req.Header.Set("bfx-signature", sig)
	return c.do(req)
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha512.New384, []byte(c.apiSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(req *http.Request) (any, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}
