// Package auth resolves the bearer credential used for every gateway call.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"github.com/tOgg1/inboxsync/internal/config"
	"github.com/tOgg1/inboxsync/internal/logging"
)

// ErrNoCredential means no bearer credential could be produced. It is a
// precondition failure and is never retried.
var ErrNoCredential = errors.New("no bearer credential available")

// Source yields a bearer token.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

// Token implements Source.
func (f SourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static returns a fixed token.
type Static string

// Token implements Source.
func (s Static) Token(context.Context) (string, error) {
	token := strings.TrimSpace(string(s))
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

// Env reads the token from an environment variable on every call so a
// rotated value is picked up without a restart.
type Env struct {
	Name   string
	lookup func(string) (string, bool)
}

// NewEnv creates an Env source for the named variable.
func NewEnv(name string) *Env {
	return &Env{Name: strings.TrimSpace(name), lookup: os.LookupEnv}
}

// Token implements Source.
func (e *Env) Token(context.Context) (string, error) {
	if e == nil || e.Name == "" {
		return "", ErrNoCredential
	}
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(e.Name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNoCredential, e.Name)
	}
	return strings.TrimSpace(value), nil
}

// ssmAPI is the minimal AWS SSM interface required by ParamStore.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParamStore reads the token from an AWS SSM parameter and caches it for TTL.
// The parameter holds either the raw token or {"token": "..."}.
type ParamStore struct {
	api  ssmAPI
	name string
	ttl  time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

// tokenPayload is the JSON shape accepted in the parameter value.
type tokenPayload struct {
	Token string `json:"token"`
}

// NewParamStore creates a ParamStore source. A zero ttl caches forever.
func NewParamStore(api ssmAPI, name string, ttl time.Duration) (*ParamStore, error) {
	if api == nil {
		return nil, errors.New("auth: ssm api must not be nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("auth: parameter name is required")
	}
	return &ParamStore{
		api:    api,
		name:   name,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.Component("auth"),
	}, nil
}

// Token implements Source.
func (p *ParamStore) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && (p.ttl == 0 || p.now().Sub(p.fetchedAt) < p.ttl) {
		return p.token, nil
	}

	out, err := p.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("%w: get parameter %q: %w", ErrNoCredential, p.name, err)
	}
	if out == nil || out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("%w: parameter %q has no value", ErrNoCredential, p.name)
	}

	token, err := parseToken(aws.ToString(out.Parameter.Value))
	if err != nil {
		return "", fmt.Errorf("%w: parameter %q: %w", ErrNoCredential, p.name, err)
	}

	p.token = token
	p.fetchedAt = p.now()
	p.logger.Debug().
		Str("parameter", p.name).
		Dur("cache_ttl", p.ttl).
		Msg("fetched credential from parameter store")
	return token, nil
}

// Invalidate drops the cached token so the next call refetches it.
func (p *ParamStore) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.fetchedAt = time.Time{}
	p.mu.Unlock()
}

func parseToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		var tp tokenPayload
		if err := json.Unmarshal([]byte(raw), &tp); err != nil {
			return "", fmt.Errorf("decode token payload: %w", err)
		}
		raw = strings.TrimSpace(tp.Token)
	}
	if raw == "" {
		return "", errors.New("token is empty")
	}
	return raw, nil
}

// FromConfig builds the Source selected by cfg. Token wins over TokenEnv,
// which wins over ParamName. With nothing configured every call returns
// ErrNoCredential.
func FromConfig(ctx context.Context, cfg config.AuthConfig) (Source, error) {
	switch {
	case strings.TrimSpace(cfg.Token) != "":
		return Static(cfg.Token), nil
	case strings.TrimSpace(cfg.TokenEnv) != "" && envSet(cfg.TokenEnv):
		return NewEnv(cfg.TokenEnv), nil
	case strings.TrimSpace(cfg.ParamName) != "":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return NewParamStore(ssm.NewFromConfig(awsCfg), cfg.ParamName, cfg.CacheTTL)
	case strings.TrimSpace(cfg.TokenEnv) != "":
		return NewEnv(cfg.TokenEnv), nil
	default:
		return Static(""), nil
	}
}

func envSet(name string) bool {
	value, ok := os.LookupEnv(strings.TrimSpace(name))
	return ok && strings.TrimSpace(value) != ""
}
