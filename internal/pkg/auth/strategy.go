package auth

import "time"

// Strategy issues and verifies service tokens presented by the API gateway.
type Strategy interface {
	IssueToken(service string) (string, error)
	ParseToken(token string) (string, error)
	Name() string
}

type Options struct {
	TTL time.Duration
	// Services overrides the subjects accepted by ParseToken.
	Services []string
}

// GatewayServices lists the callers allowed to reach internal services.
var GatewayServices = []string{"auth", "seller", "gig", "search", "buyer", "message", "order", "review"}
