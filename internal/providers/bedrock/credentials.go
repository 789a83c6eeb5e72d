// Package bedrock adapts AWS credential resolution for deployments where
// Databricks model serving sits behind AWS-issued SigV4 credentials rather
// than a Databricks personal access token or OAuth bearer token.
package bedrock

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// CredentialConfig selects how the source resolves AWS credentials: static
// keys when AccessKeyID and SecretAccessKey are both set (SessionToken is
// optional), otherwise the SDK's default chain (env vars,
// shared config, EC2/ECS instance role).
type CredentialConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// CredentialSource resolves AWS credentials and exposes them as a bearer
// token string, so it can back the Databricks provider's TokenSource
// interface for a Databricks-on-AWS deployment fronted by SigV4 auth.
type CredentialSource struct {
	cfg CredentialConfig
}

// NewCredentialSource constructs a CredentialSource. Region defaults to
// us-east-1 when empty.
func NewCredentialSource(cfg CredentialConfig) *CredentialSource {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &CredentialSource{cfg: cfg}
}

// Token resolves AWS credentials via the configured source and returns the
// access key ID and secret access key joined as "accessKeyID:secretKey",
// with any session token appended, for use as a static bearer credential by
// callers that only accept an opaque token string.
func (s *CredentialSource) Token(ctx context.Context) (string, error) {
	awsCfg, err := s.loadConfig(ctx)
	if err != nil {
		return "", fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("bedrock: failed to resolve AWS credentials: %w", err)
	}

	token := creds.AccessKeyID + ":" + creds.SecretAccessKey
	if creds.SessionToken != "" {
		token += ":" + creds.SessionToken
	}
	return token, nil
}

// Expired reports whether the currently-cached credentials (if any) have
// passed their expiry, so a caller knows to call Token again rather than
// reuse a stale value.
func (s *CredentialSource) Expired(ctx context.Context) (bool, error) {
	awsCfg, err := s.loadConfig(ctx)
	if err != nil {
		return true, err
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		return true, err
	}
	if !creds.CanExpire {
		return false, nil
	}
	return time.Now().After(creds.Expires), nil
}

func (s *CredentialSource) loadConfig(ctx context.Context) (aws.Config, error) {
	if s.cfg.AccessKeyID != "" && s.cfg.SecretAccessKey != "" {
		return config.LoadDefaultConfig(ctx,
			config.WithRegion(s.cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.cfg.AccessKeyID,
				s.cfg.SecretAccessKey,
				s.cfg.SessionToken,
			)),
		)
	}
	return config.LoadDefaultConfig(ctx, config.WithRegion(s.cfg.Region))
}
