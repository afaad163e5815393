package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used to resolve secrets.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NeedsSecrets reports whether cfg references a secret that ResolveSecrets must fetch.
func NeedsSecrets(cfg *types.ProjectConfig) bool {
	pg := cfg.Store.Postgres
	return cfg.Store.Type == types.StorePostgres && pg != nil && pg.DSN == "" && pg.DSNSecretID != ""
}

// NewSecretsClient builds a Secrets Manager client from the default AWS config chain.
func NewSecretsClient(ctx context.Context, region string) (SecretsAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(awsCfg), nil
}

// ResolveSecrets fills the Postgres DSN from Secrets Manager when only a
// secret ID is configured. An explicit DSN always wins.
func ResolveSecrets(ctx context.Context, cfg *types.ProjectConfig, client SecretsAPI) error {
	if !NeedsSecrets(cfg) {
		return nil
	}
	pg := cfg.Store.Postgres
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(pg.DSNSecretID),
	})
	if err != nil {
		return fmt.Errorf("fetching secret %q: %w", pg.DSNSecretID, err)
	}
	dsn, err := dsnFromSecret(aws.ToString(out.SecretString))
	if err != nil {
		return fmt.Errorf("secret %q: %w", pg.DSNSecretID, err)
	}
	pg.DSN = dsn
	return nil
}

// dsnFromSecret accepts either a bare connection string or a JSON object with
// a "dsn" field.
func dsnFromSecret(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("secret string is empty")
	}
	if !strings.HasPrefix(s, "{") {
		return s, nil
	}
	var v struct {
		DSN string `json:"dsn"`
	}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", fmt.Errorf("parsing secret JSON: %w", err)
	}
	if v.DSN == "" {
		return "", fmt.Errorf("secret JSON has no dsn field")
	}
	return v.DSN, nil
}
