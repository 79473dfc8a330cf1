package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	values map[string]string
	err    error
	calls  []string
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls = append(f.calls, req.GetName())
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func TestResolveRemoteAndCache(t *testing.T) {
	client := &fakeSecretClient{values: map[string]string{
		"projects/pizza-prod/secrets/session-hash/versions/latest": "remote-value",
	}}
	f, err := NewFetcher(context.Background(), Config{ProjectID: "pizza-prod", Environment: "prod", Client: client})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		value, err := f.Resolve(context.Background(), "secret://session-hash")
		require.NoError(t, err)
		assert.Equal(t, "remote-value", value)
	}
	assert.Len(t, client.calls, 1)
}

func TestResolveFallsBackToLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte("# dev\nsession-hash=local-value\n"), 0o600))

	client := &fakeSecretClient{err: status.Error(codes.PermissionDenied, "denied")}
	f, err := NewFetcher(context.Background(), Config{ProjectID: "p", Environment: "dev", Client: client, FallbackPath: path})
	require.NoError(t, err)

	value, err := f.ResolveSecret(context.Background(), "secret://projects/p/secrets/session-hash/versions/2")
	require.NoError(t, err)
	assert.Equal(t, "local-value", value)
	assert.Equal(t, []string{"projects/p/secrets/session-hash/versions/2"}, client.calls)
}

func TestResolvePropagatesHardFailures(t *testing.T) {
	client := &fakeSecretClient{err: status.Error(codes.Internal, "boom")}
	f, err := NewFetcher(context.Background(), Config{ProjectID: "p", Environment: "prod", Client: client})
	require.NoError(t, err)

	_, err = f.Resolve(context.Background(), "secret://session-hash")
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		ref     string
		want    reference
		wantErr bool
	}{
		{ref: "secret://hash", want: reference{name: "hash", version: "latest"}},
		{ref: "secret://hash?version=4", want: reference{name: "hash", version: "4"}},
		{ref: "secret://projects/p/secrets/hash", want: reference{project: "p", name: "hash", version: "latest"}},
		{ref: "secret://projects/p/secrets/hash/versions/7", want: reference{project: "p", name: "hash", version: "7"}},
		{ref: "https://example.com/hash", wantErr: true},
		{ref: "secret://a/b", wantErr: true},
		{ref: "secret://projects/p/secrets/hash/revisions/7", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseReference(tc.ref)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidReference, tc.ref)
			continue
		}
		require.NoError(t, err, tc.ref)
		assert.Equal(t, tc.want, got, tc.ref)
	}
}
