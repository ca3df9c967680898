// Package auth provides Kalshi API authentication using RSA-PSS signatures.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrConfigMissing indicates required credentials were not supplied. Fatal at startup.
var ErrConfigMissing = errors.New("auth: config missing")

// ErrSigningFailed indicates the private key could not produce a signature. Fatal at startup.
var ErrSigningFailed = errors.New("auth: signing failed")

// Credentials holds the API key and private key for signing requests.
type Credentials struct {
	KeyID      string          // API key ID from Kalshi dashboard
	PrivateKey *rsa.PrivateKey // RSA private key for signing
	Email      string          // Login email, used by SignLogin
	Password   string          // Login password, used by SignLogin
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: API key ID is required", ErrConfigMissing)
	}
	if privateKeyPath == "" {
		return nil, fmt.Errorf("%w: private key path is required", ErrConfigMissing)
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadCredentialsFromEnv loads credentials from the environment variables
// named in spec: KALSHI_EMAIL, KALSHI_PASSWORD, KALSHI_ACCESS_KEY,
// KALSHI_PRIVATE_KEY_PATH.
func LoadCredentialsFromEnv() (*Credentials, error) {
	creds, err := LoadCredentials(os.Getenv("KALSHI_ACCESS_KEY"), os.Getenv("KALSHI_PRIVATE_KEY_PATH"))
	if err != nil {
		return nil, err
	}
	creds.Email = os.Getenv("KALSHI_EMAIL")
	creds.Password = os.Getenv("KALSHI_PASSWORD")
	if creds.Email == "" || creds.Password == "" {
		return nil, fmt.Errorf("%w: KALSHI_EMAIL and KALSHI_PASSWORD are required", ErrConfigMissing)
	}
	return creds, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// SignRequest generates authentication headers for a Kalshi API request.
// For WebSocket connections, method should be "GET" and path should be "/trade-api/ws/v2".
func (c *Credentials) SignRequest(method, path string) (headers map[string]string, err error) {
	timestampMs := time.Now().UnixMilli()

	signature, err := c.generateSignature(timestampMs, method, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return map[string]string{
		"KALSHI-ACCESS-KEY":       c.KeyID,
		"KALSHI-ACCESS-TIMESTAMP": fmt.Sprintf("%d", timestampMs),
		"KALSHI-ACCESS-SIGNATURE": signature,
	}, nil
}

// generateSignature creates an RSA-PSS signature for the given request.
// Message format: timestamp_ms + method + path
func (c *Credentials) generateSignature(timestampMs int64, method, path string) (string, error) {
	// Construct the message to sign
	message := fmt.Sprintf("%d%s%s", timestampMs, method, path)

	// Hash the message with SHA-256
	hashed := sha256.Sum256([]byte(message))

	// Sign with RSA-PSS
	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// WebSocketPath is the path used for WebSocket signature generation.
// Undocumented by Kalshi; confirmed in their developer Discord: always
// "GET" and this exact path, regardless of the WS host actually dialed.
const WebSocketPath = "/trade-api/ws/v2"

// LoginPath is the path used for REST login signature generation.
const LoginPath = "/trade-api/v2/login"

// SignWebSocket generates authentication headers specifically for WebSocket connections.
func (c *Credentials) SignWebSocket() (headers map[string]string, err error) {
	return c.SignRequest("GET", WebSocketPath)
}

// SignLogin generates authentication headers for the REST login request and
// returns the email/password body Kalshi expects alongside them.
func (c *Credentials) SignLogin() (headers map[string]string, body map[string]string, err error) {
	if c.Email == "" || c.Password == "" {
		return nil, nil, fmt.Errorf("%w: email and password are required for login", ErrConfigMissing)
	}

	headers, err = c.SignRequest("POST", LoginPath)
	if err != nil {
		return nil, nil, err
	}

	body = map[string]string{
		"email":    c.Email,
		"password": c.Password,
	}
	return headers, body, nil
}
