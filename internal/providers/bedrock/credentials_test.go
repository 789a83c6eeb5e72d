package bedrock

import (
	"context"
	"strings"
	"testing"
)

func TestCredentialSource_Token_Static(t *testing.T) {
	src := NewCredentialSource(CredentialConfig{
		Region:          "us-west-2",
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretvalue",
		SessionToken:    "sessiontoken",
	})

	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if !strings.HasPrefix(token, "AKIAEXAMPLE:secretvalue:") {
		t.Fatalf("unexpected token shape: %q", token)
	}
	if !strings.HasSuffix(token, "sessiontoken") {
		t.Fatalf("expected session token suffix, got %q", token)
	}
}

func TestCredentialSource_Token_NoSessionToken(t *testing.T) {
	src := NewCredentialSource(CredentialConfig{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretvalue",
	})

	token, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if token != "AKIAEXAMPLE:secretvalue" {
		t.Fatalf("expected token without session suffix, got %q", token)
	}
}

func TestCredentialSource_DefaultRegion(t *testing.T) {
	src := NewCredentialSource(CredentialConfig{
		AccessKeyID:     "AKIAEXAMPLE",
		SecretAccessKey: "secretvalue",
	})
	if src.cfg.Region != "us-east-1" {
		t.Fatalf("expected default region us-east-1, got %q", src.cfg.Region)
	}
}
