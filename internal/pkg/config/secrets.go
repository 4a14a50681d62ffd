// internal/pkg/config/secrets.go
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"golang.org/x/sync/singleflight"
)

// SecretsManager resolves secret values by key
type SecretsManager interface {
	GetSecret(ctx context.Context, key string) (string, error)
	GetSecrets(ctx context.Context, keys []string) (map[string]string, error)
	RefreshSecrets(ctx context.Context) error
}

// Secret keys understood by ApplySecrets
const (
	SecretDatabasePassword = "DB_PASSWORD"
	SecretRedisPassword    = "REDIS_PASSWORD"
	SecretJWT              = "JWT_SECRET"
	SecretAWSAccessKeyID   = "AWS_ACCESS_KEY_ID"
	SecretAWSSecretKey     = "AWS_SECRET_ACCESS_KEY"
)

// ApplySecrets overwrites sensitive config values with those held by sm.
// Keys the manager does not know leave the current value in place.
func ApplySecrets(ctx context.Context, cfg *Config, sm SecretsManager) error {
	targets := map[string][]*string{
		SecretDatabasePassword: {&cfg.Database.Password},
		SecretRedisPassword:    {&cfg.Redis.Password, &cfg.Asynq.RedisPassword},
		SecretJWT:              {&cfg.Security.JWTSecret},
		SecretAWSAccessKeyID:   {&cfg.AWS.AccessKeyID},
		SecretAWSSecretKey:     {&cfg.AWS.SecretAccessKey},
	}

	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}

	secrets, err := sm.GetSecrets(ctx, keys)
	if err != nil {
		return err
	}
	for key, val := range secrets {
		for _, dst := range targets[key] {
			*dst = val
		}
	}
	return nil
}

var (
	_ SecretsManager = (*AWSSecretsManager)(nil)
	_ SecretsManager = (*EnvSecretsManager)(nil)
)

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager reads one JSON secret document and caches it for ttl
type AWSSecretsManager struct {
	api        secretsAPI
	secretName string
	ttl        time.Duration
	logger     *slog.Logger

	group     singleflight.Group
	mu        sync.RWMutex
	doc       map[string]string
	fetchedAt time.Time
}

// NewAWSSecretsManager creates a client using the default AWS credential chain
func NewAWSSecretsManager(ctx context.Context, region, secretName string, logger *slog.Logger) (*AWSSecretsManager, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAWSSecretsManager(secretsmanager.NewFromConfig(awsCfg), secretName, logger), nil
}

func newAWSSecretsManager(api secretsAPI, secretName string, logger *slog.Logger) *AWSSecretsManager {
	return &AWSSecretsManager{
		api:        api,
		secretName: secretName,
		ttl:        5 * time.Minute,
		logger:     logger.With(slog.String("component", "secrets")),
	}
}

// GetSecret returns a single key, failing when the document lacks it
func (sm *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	doc, err := sm.document(ctx)
	if err != nil {
		return "", err
	}
	val, ok := doc[key]
	if !ok {
		return "", fmt.Errorf("secret key %s not found in %s", key, sm.secretName)
	}
	return val, nil
}

// GetSecrets returns the requested keys present in the document
func (sm *AWSSecretsManager) GetSecrets(ctx context.Context, keys []string) (map[string]string, error) {
	doc, err := sm.document(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// RefreshSecrets drops the cached document and fetches it again
func (sm *AWSSecretsManager) RefreshSecrets(ctx context.Context) error {
	sm.mu.Lock()
	sm.fetchedAt = time.Time{}
	sm.mu.Unlock()

	_, err := sm.document(ctx)
	return err
}

func (sm *AWSSecretsManager) document(ctx context.Context) (map[string]string, error) {
	sm.mu.RLock()
	doc, fresh := sm.doc, time.Since(sm.fetchedAt) < sm.ttl
	sm.mu.RUnlock()
	if fresh {
		return doc, nil
	}

	v, err, _ := sm.group.Do(sm.secretName, func() (any, error) {
		return sm.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (sm *AWSSecretsManager) fetch(ctx context.Context) (map[string]string, error) {
	out, err := sm.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(sm.secretName),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", sm.secretName, err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", sm.secretName)
	}

	var doc map[string]string
	if err := json.Unmarshal([]byte(*out.SecretString), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse secret %s: %w", sm.secretName, err)
	}

	sm.mu.Lock()
	sm.doc, sm.fetchedAt = doc, time.Now()
	sm.mu.Unlock()

	sm.logger.InfoContext(ctx, "secrets loaded",
		slog.String("secret_name", sm.secretName),
		slog.Int("keys", len(doc)))
	return doc, nil
}

// EnvSecretsManager reads secrets straight from the environment
type EnvSecretsManager struct{}

func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

func (EnvSecretsManager) GetSecret(_ context.Context, key string) (string, error) {
	if val := os.Getenv(key); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("environment variable %s not set", key)
}

func (EnvSecretsManager) GetSecrets(_ context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			out[k] = val
		}
	}
	return out, nil
}

func (EnvSecretsManager) RefreshSecrets(context.Context) error {
	return nil
}
