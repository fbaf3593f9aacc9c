package rest

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestGetPublicDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/ticker/fUSD" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("len") != "100" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`[0.0003, 1, 2]`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, "", "", 5*time.Second, zap.NewNop())
	params := url.Values{}
	params.Set("len", "100")
	payload, err := client.GetPublic(context.Background(), "v2/ticker/fUSD", params)
	if err != nil {
		t.Fatalf("get public failed: %v", err)
	}
	arr, ok := payload.([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestPostPrivateSignsRequest(t *testing.T) {
	const secret = "s3cret"
	var gotNonce, gotSig, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotNonce = r.Header.Get("bfx-nonce")
		gotSig = r.Header.Get("bfx-signature")
		if r.Header.Get("bfx-apikey") != "key" {
			t.Errorf("unexpected api key header %q", r.Header.Get("bfx-apikey"))
		}
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, "key", secret, 5*time.Second, zap.NewNop())
	if _, err := client.PostPrivate(context.Background(), "v2/auth/r/wallets", nil); err != nil {
		t.Fatalf("post private failed: %v", err)
	}
	if gotNonce == "" {
		t.Fatalf("expected nonce header")
	}
	mac := hmac.New(sha512.New384, []byte(secret))
	mac.Write([]byte("/api/v2/auth/r/wallets" + gotNonce + gotBody))
	if want := hex.EncodeToString(mac.Sum(nil)); gotSig != want {
		t.Fatalf("signature mismatch: got %s want %s", gotSig, want)
	}
}

func TestPostPrivateRequiresCredentials(t *testing.T) {
	client := New("http://unused", "http://unused", "", "", time.Second, zap.NewNop())
	if _, err := client.PostPrivate(context.Background(), "v2/auth/r/wallets", nil); err == nil {
		t.Fatalf("expected error without credentials")
	}
}

func TestDoRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`["error",10100,"nope"]`))
	}))
	defer server.Close()

	client := New(server.URL, server.URL, "", "", time.Second, zap.NewNop())
	if _, err := client.GetPublic(context.Background(), "v2/ticker/fUSD", nil); err == nil {
		t.Fatalf("expected error for http 500")
	}
}
