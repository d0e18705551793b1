package gcs

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"
	"time"
)

func TestTokenSourceCachesUntilNearExpiry(t *testing.T) {
	t.Parallel()

	calls := 0
	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			calls++
			return "token-1", time.Now().Add(time.Hour), nil
		},
	}

	for i := 0; i < 3; i++ {
		token, err := ts.Token(context.Background())
		if err != nil {
			t.Fatalf("token fetch: %v", err)
		}
		if token != "token-1" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single upstream fetch, got %d", calls)
	}
}

func TestTokenSourceRefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	calls := 0
	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			calls++
			return "token", time.Now().Add(30 * time.Second), nil
		},
	}

	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("token fetch: %v", err)
	}
	if _, err := ts.Token(context.Background()); err != nil {
		t.Fatalf("token fetch: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refresh for token close to expiry, got %d fetches", calls)
	}
}

func TestTokenSourcePropagatesFetchError(t *testing.T) {
	t.Parallel()

	ts := &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return "", time.Time{}, errors.New("token endpoint returned 403")
		},
	}
	if _, err := ts.Token(context.Background()); err == nil {
		t.Fatal("expected fetch error to propagate")
	}
}

func TestUploadValidation(t *testing.T) {
	t.Parallel()

	var nilClient *Client
	if _, err := nilClient.Upload(context.Background(), "object.csv", "text/csv", nil); err == nil {
		t.Fatal("expected error for uninitialized client")
	}

	client := &Client{defaultBucket: "bucket", tokenSource: &tokenSource{
		fetch: func(ctx context.Context) (string, time.Time, error) {
			return "token", time.Now().Add(time.Hour), nil
		},
	}}
	if _, err := client.Upload(context.Background(), "  ", "text/csv", nil); err == nil {
		t.Fatal("expected error for empty object name")
	}
}

func TestSignAndParsePrivateKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	parsed, err := parsePrivateKey(string(pemData))
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}

	signature, err := signJWT("header.payload", parsed)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	raw, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	hash := sha256.Sum256([]byte("header.payload"))
	if err := rsa.VerifyPKCS1v15(&parsed.PublicKey, crypto.SHA256, hash[:], raw); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
}
