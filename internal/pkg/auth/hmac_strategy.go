package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken   = errors.New("invalid gateway token")
	ErrUnknownService = errors.New("unknown gateway service")
)

// HMACStrategy implements service token creation/verification using HMAC signatures.
type HMACStrategy struct {
	secret   []byte
	ttl      time.Duration
	services map[string]struct{}
}

// NewHMACStrategy builds HMACStrategy with provided secret and options.
func NewHMACStrategy(secret string, opts Options) *HMACStrategy {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	names := opts.Services
	if len(names) == 0 {
		names = GatewayServices
	}
	services := make(map[string]struct{}, len(names))
	for _, name := range names {
		services[name] = struct{}{}
	}
	return &HMACStrategy{secret: []byte(secret), ttl: ttl, services: services}
}

// IssueToken generates a signed token naming the calling service.
func (s *HMACStrategy) IssueToken(service string) (string, error) {
	if _, ok := s.services[service]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	expires := time.Now().Add(s.ttl).Unix()
	payload := fmt.Sprintf("%s:%d", service, expires)
	sig := s.sign(payload)
	token := fmt.Sprintf("%s:%s", payload, sig)
	return base64.StdEncoding.EncodeToString([]byte(token)), nil
}

// ParseToken validates token and returns the service it was issued to.
func (s *HMACStrategy) ParseToken(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidToken
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}

	payload := strings.Join(parts[:2], ":")
	expectedSig := s.sign(payload)
	if !hmac.Equal([]byte(expectedSig), []byte(parts[2])) {
		return "", ErrInvalidToken
	}

	expires, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}

	if time.Unix(expires, 0).Before(time.Now()) {
		return "", ErrInvalidToken
	}

	service := parts[0]
	if _, ok := s.services[service]; !ok {
		return "", ErrUnknownService
	}

	return service, nil
}

func (s *HMACStrategy) Name() string {
	return "hmac"
}

func (s *HMACStrategy) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
