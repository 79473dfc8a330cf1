package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	defaultVersion      = "latest"
	meterName           = "github.com/KoushikPanda1729/client-ui/internal/platform/secrets"
)

// ErrInvalidReference reports a malformed secret:// reference.
var ErrInvalidReference = errors.New("secrets: invalid secret reference")

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Fetcher resolves secret:// references through Secret Manager, caching values for the
// life of the process. In local environments, or when Secret Manager is unreachable, values
// are read from a KEY=VALUE fallback file keyed by secret name.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string
	env        string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string

	lookups metric.Int64Counter
}

// Config configures NewFetcher.
type Config struct {
	ProjectID    string
	Environment  string
	FallbackPath string
	Logger       *zap.Logger
	Client       secretManagerClient
	ClientOpts   []option.ClientOption
}

// NewFetcher builds a Fetcher. Outside the "local" environment it dials Secret Manager;
// a dial failure degrades to fallback-only mode rather than failing startup.
func NewFetcher(ctx context.Context, cfg Config) (*Fetcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	path := strings.TrimSpace(cfg.FallbackPath)
	if path == "" {
		path = defaultFallbackPath
	}
	lookups, err := otel.Meter(meterName).Int64Counter("secrets.lookups",
		metric.WithDescription("Secret lookups by source."))
	if err != nil {
		return nil, fmt.Errorf("secrets: register metric: %w", err)
	}

	f := &Fetcher{
		client:       cfg.Client,
		logger:       logger,
		projectID:    strings.TrimSpace(cfg.ProjectID),
		env:          strings.ToLower(strings.TrimSpace(cfg.Environment)),
		fallbackPath: path,
		cache:        make(map[string]string),
		lookups:      lookups,
	}

	if f.client == nil && f.env != "local" && f.projectID != "" {
		client, err := newSecretManagerClient(ctx, cfg.ClientOpts...)
		if err != nil {
			logger.Warn("secrets: secret manager unavailable; using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret satisfies config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the secret value for ref.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.resource(f.projectID)

	f.mu.RLock()
	value, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		f.record(ctx, "cache")
		return value, nil
	}

	if f.client != nil && (parsed.project != "" || f.projectID != "") {
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: key})
		switch {
		case err == nil && resp.GetPayload() != nil:
			value = string(resp.GetPayload().GetData())
			f.store(key, value)
			f.record(ctx, "remote")
			return value, nil
		case err == nil:
			return "", fmt.Errorf("secrets: empty payload for %s", key)
		case !canFallback(err):
			return "", fmt.Errorf("secrets: access %s: %w", key, err)
		}
		f.logger.Debug("secrets: falling back to local file", zap.String("secret", parsed.name), zap.Error(err))
	}

	values, err := f.loadFallback()
	if err != nil {
		return "", err
	}
	value, ok = values[parsed.name]
	if !ok {
		return "", fmt.Errorf("secrets: %s not found in %s", parsed.name, f.fallbackPath)
	}
	f.store(key, value)
	f.record(ctx, "fallback")
	return value, nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) record(ctx context.Context, source string) {
	f.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (f *Fetcher) loadFallback() (map[string]string, error) {
	f.fallbackOnce.Do(func() {
		file, err := os.Open(f.fallbackPath)
		if errors.Is(err, os.ErrNotExist) {
			f.fallback = map[string]string{}
			return
		}
		if err != nil {
			f.fallbackErr = fmt.Errorf("secrets: open fallback: %w", err)
			return
		}
		defer file.Close()
		values := make(map[string]string)
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, ok := strings.Cut(line, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = strings.TrimSpace(value)
			}
		}
		f.fallback, f.fallbackErr = values, scanner.Err()
	})
	return f.fallback, f.fallbackErr
}

func canFallback(err error) bool {
	switch status.Code(err) {
	case codes.NotFound, codes.PermissionDenied, codes.Unavailable, codes.Unauthenticated:
		return true
	}
	return false
}

type reference struct {
	project string
	name    string
	version string
}

func (r reference) resource(defaultProject string) string {
	project := r.project
	if project == "" {
		project = defaultProject
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, r.name, r.version)
}

// parseReference accepts secret://name, secret://name?version=3 and
// secret://projects/p/secrets/name[/versions/v].
func parseReference(ref string) (reference, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Scheme != "secret" {
		return reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	out := reference{version: defaultVersion}
	if v := strings.TrimSpace(u.Query().Get("version")); v != "" {
		out.version = v
	}

	path := strings.Trim(u.Host+u.Path, "/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		out.name = parts[0]
	case (len(parts) == 4 || len(parts) == 6) && parts[0] == "projects" && parts[2] == "secrets":
		out.project, out.name = parts[1], parts[3]
		if len(parts) == 6 {
			if parts[4] != "versions" {
				return reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
			}
			out.version = parts[5]
		}
	default:
		return reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if out.name == "" || out.project == "" && len(parts) != 1 {
		return reference{}, fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	return out, nil
}
