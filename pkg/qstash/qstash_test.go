package qstash

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		URL:               baseURL,
		Token:             "qstash-token",
		CurrentSigningKey: "current-key",
		NextSigningKey:    "next-key",
		Retries:           2,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func sign(t *testing.T, key, subject string, body []byte, expires time.Time) string {
	t.Helper()

	sum := sha256.Sum256(body)
	claims := signatureClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signatureIssuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		Body: base64.URLEncoding.EncodeToString(sum[:]),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{URL: "https://qstash.upstash.io"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotRetries, gotDedup string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRetries = r.Header.Get("Upstash-Retries")
		gotDedup = r.Header.Get("Upstash-Deduplication-Id")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		_, _ = w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	id, err := client.Publish(context.Background(), "https://api.example.com/v1/negotiations/run", map[string]string{"user_id": "u1"}, "u1-run")
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("unexpected message id: %s", id)
	}
	if gotPath != "/v2/publish/https://api.example.com/v1/negotiations/run" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer qstash-token" || gotRetries != "2" || gotDedup != "u1-run" {
		t.Fatalf("unexpected headers: auth=%q retries=%q dedup=%q", gotAuth, gotRetries, gotDedup)
	}
	if gotBody["user_id"] != "u1" {
		t.Fatalf("unexpected body: %#v", gotBody)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	if _, err := client.Publish(context.Background(), "https://api.example.com/run", struct{}{}, ""); err == nil {
		t.Fatal("expected error for 401")
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, "https://qstash.upstash.io")
	body := []byte(`{"user_id":"u1"}`)
	dest := "https://api.example.com/v1/negotiations/run"
	future := time.Now().Add(5 * time.Minute)

	if err := client.Verify(sign(t, "current-key", dest, body, future), body, dest); err != nil {
		t.Fatalf("current key: %v", err)
	}
	if err := client.Verify(sign(t, "next-key", dest, body, future), body, dest); err != nil {
		t.Fatalf("next key: %v", err)
	}

	cases := map[string]string{
		"wrong key": sign(t, "other-key", dest, body, future),
		"expired":   sign(t, "current-key", dest, body, time.Now().Add(-time.Minute)),
		"subject":   sign(t, "current-key", "https://evil.example.com", body, future),
		"body":      sign(t, "current-key", dest, []byte(`{"user_id":"u2"}`), future),
		"empty":     "",
	}
	for name, token := range cases {
		if err := client.Verify(token, body, dest); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}
