package aws

import (
	"context"
	"fmt"
	"os"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWSConfig loads AWS config and supports a LocalStack endpoint via the
// AWS_ENDPOINT env var. When set, an endpoint resolver points SDK clients at
// the LocalStack URL instead of AWS.
func LoadAWSConfig(ctx context.Context) (sdkaws.Config, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return cfg, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := os.Getenv("AWS_ENDPOINT")
	if endpoint != "" {
		signingRegion := cfg.Region
		if signingRegion == "" {
			signingRegion = os.Getenv("AWS_REGION")
		}

		resolver := sdkaws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (sdkaws.Endpoint, error) {
			sr := signingRegion
			if sr == "" {
				sr = region
			}
			return sdkaws.Endpoint{
				URL:               endpoint,
				SigningRegion:     sr,
				HostnameImmutable: true,
			}, nil
		})
		cfg.EndpointResolverWithOptions = resolver
	}

	return cfg, nil
}
