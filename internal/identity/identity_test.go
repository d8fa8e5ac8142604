package identity_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/identity"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/Tonic56/proto-crypto-asset-tracker/proto/gen/go/auth"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const secret = "test-secret"

func sign(t *testing.T, key string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

type fakeAuth struct {
	auth.UnimplementedAuthServer

	mu      sync.Mutex
	users   map[string]string
	revoked []string
	t       *testing.T
}

func (f *fakeAuth) Register(_ context.Context, req *auth.RegisterRequest) (*auth.RegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[req.GetName()]; ok {
		return nil, status.Error(codes.AlreadyExists, "user with this name already exists")
	}
	f.users[req.GetName()] = req.GetPassword()
	return &auth.RegisterResponse{UserId: "uid-" + req.GetName()}, nil
}

func (f *fakeAuth) Login(_ context.Context, req *auth.LoginRequest) (*auth.LoginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pw, ok := f.users[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "user not found")
	}
	if pw != req.GetPassword() {
		return nil, status.Error(codes.Unauthenticated, "invalid credentials")
	}
	access := sign(f.t, secret, jwt.MapClaims{
		"sub":  "uid-" + req.GetName(),
		"name": req.GetName(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	return &auth.LoginResponse{AccessToken: access, RefreshToken: "refresh-" + req.GetName()}, nil
}

func (f *fakeAuth) Logout(_ context.Context, req *auth.LogoutRequest) (*auth.LogoutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, req.GetRefreshToken())
	return &auth.LogoutResponse{Success: true}, nil
}

func setup(t *testing.T) (*identity.Provider, *fakeAuth) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeAuth{users: make(map[string]string), t: t}
	auth.RegisterAuthServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return identity.NewProvider(auth.NewAuthClient(conn), secret, log), fake
}

func authKind(t *testing.T, err error) errs.AuthKind {
	t.Helper()
	var failure *errs.AuthFailure
	require.ErrorAs(t, err, &failure)
	return failure.Kind
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	p, fake := setup(t)

	userID, err := p.SignUp(ctx, " neo@arena.io ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-neo@arena.io", userID)

	_, err = p.SignUp(ctx, "neo@arena.io", "secret1")
	assert.Equal(t, errs.AuthAlreadyInUse, authKind(t, err))

	id, err := p.SignIn(ctx, "neo@arena.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-neo@arena.io", id.UserID)
	assert.Equal(t, "neo@arena.io", id.Name)
	assert.NotEmpty(t, id.AccessToken)

	require.NoError(t, p.SignOut(ctx, id.UserID, id.RefreshToken))
	fake.mu.Lock()
	assert.Equal(t, []string{"refresh-neo@arena.io"}, fake.revoked)
	fake.mu.Unlock()
}

func TestAuthFailures(t *testing.T) {
	ctx := context.Background()
	p, _ := setup(t)
	_, err := p.SignUp(ctx, "trin@arena.io", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		want     errs.AuthKind
	}{
		{name: "malformed_email", email: "not-an-email", password: "secret1", want: errs.AuthInvalidEmail},
		{name: "empty_email", email: "", password: "secret1", want: errs.AuthInvalidEmail},
		{name: "short_password", email: "trin@arena.io", password: "12345", want: errs.AuthWeakPassword},
		{name: "wrong_password", email: "trin@arena.io", password: "wrong-one", want: errs.AuthInvalidCredential},
		{name: "unknown_user", email: "smith@arena.io", password: "secret1", want: errs.AuthNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SignIn(ctx, tt.email, tt.password)
			assert.Equal(t, tt.want, authKind(t, err))
		})
	}
}

func TestAuthFailureMessage(t *testing.T) {
	failure := &errs.AuthFailure{Kind: errs.AuthWeakPassword}
	assert.Equal(t, "Password is too weak (at least 6 characters).", failure.Message("en"))
	assert.Equal(t, "Mật khẩu quá yếu (cần > 6 ký tự).", failure.Message("vi"))
	assert.Equal(t, failure.Message("en"), failure.Message("fr"))
}

func TestParseToken(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"sub": "uid-1", "name": "neo@arena.io"})
		p, err := identity.ParseToken(secret, token)
		require.NoError(t, err)
		assert.Equal(t, session.Principal{UserID: "uid-1", Name: "neo@arena.io"}, p)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		token := sign(t, "other", jwt.MapClaims{"sub": "uid-1", "name": "neo"})
		_, err := identity.ParseToken(secret, token)
		require.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"sub": "uid-1", "name": "neo", "exp": time.Now().Add(-time.Minute).Unix()})
		_, err := identity.ParseToken(secret, token)
		require.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("missing_sub", func(t *testing.T) {
		token := sign(t, secret, jwt.MapClaims{"name": "neo"})
		_, err := identity.ParseToken(secret, token)
		require.ErrorIs(t, err, identity.ErrTokenPayload)
	})
}

func TestWatcher(t *testing.T) {
	ctx := context.Background()
	p, _ := setup(t)
	_, err := p.SignUp(ctx, "neo@arena.io", "secret1")
	require.NoError(t, err)
	id, err := p.SignIn(ctx, "neo@arena.io", "secret1")
	require.NoError(t, err)

	var mu sync.Mutex
	var events []session.AuthEvent
	unsubscribe := p.Watcher().OnAuthChange(func(evt session.AuthEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})

	require.NoError(t, p.SignOut(ctx, id.UserID, ""))
	require.NoError(t, p.SignOut(ctx, id.UserID, ""))
	unsubscribe()
	_, err = p.SignIn(ctx, "neo@arena.io", "secret1")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2, "replay on registration, then exactly one sign out")
	require.NotNil(t, events[0].Principal)
	assert.Equal(t, id.UserID, events[0].Principal.UserID)
	assert.Nil(t, events[1].Principal)
	assert.Equal(t, id.UserID, events[1].UserID)
}
