package spicedb

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/authzed/authzed-go/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// NewClient connects to SpiceDB with the configured endpoint and preshared key
func NewClient(config Config) (*authzed.Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("SpiceDB endpoint is required")
	}

	opts := []grpc.DialOption{
		grpc.WithPerRPCCredentials(bearerToken{token: config.Token, secure: !config.Insecure}),
	}
	if config.Insecure {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}

	client, err := authzed.NewClient(config.Endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SpiceDB client: %w", err)
	}
	return client, nil
}

// bearerToken attaches the preshared key to every call
type bearerToken struct {
	token  string
	secure bool
}

func (b bearerToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool {
	return b.secure
}
