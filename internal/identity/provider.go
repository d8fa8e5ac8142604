// Package identity adapts the Authorization service to the arena: it signs
// users up, in and out, turns provider failures into AuthFailure and tells
// the session registry who is signed in.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	"github.com/Tonic56/proto-crypto-asset-tracker/proto/gen/go/auth"
	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const minPasswordLen = 6

type Identity struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"-"`
}

type Provider struct {
	client   auth.AuthClient
	secret   string
	log      *slog.Logger
	validate *validator.Validate
	watcher  *Watcher
}

func NewProvider(client auth.AuthClient, secret string, log *slog.Logger) *Provider {
	return &Provider{
		client:   client,
		secret:   secret,
		log:      log,
		validate: validator.New(),
		watcher:  NewWatcher(),
	}
}

func (p *Provider) Watcher() *Watcher {
	return p.watcher
}

// SignUp creates the account and returns its user id. It does not sign in.
func (p *Provider) SignUp(ctx context.Context, email, password string) (string, error) {
	const op = "identity.SignUp"

	email = strings.TrimSpace(email)
	if err := p.check(email, password); err != nil {
		return "", err
	}

	resp, err := p.client.Register(ctx, &auth.RegisterRequest{Name: email, Password: password})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, p.mapError(err))
	}

	p.log.Info("user registered", "userID", resp.GetUserId())
	return resp.GetUserId(), nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (Identity, error) {
	const op = "identity.SignIn"

	email = strings.TrimSpace(email)
	if err := p.check(email, password); err != nil {
		return Identity{}, err
	}

	resp, err := p.client.Login(ctx, &auth.LoginRequest{Name: email, Password: password})
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, p.mapError(err))
	}

	principal, err := ParseToken(p.secret, resp.GetAccessToken())
	if err != nil {
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}

	p.watcher.signedIn(principal)
	return Identity{
		UserID:       principal.UserID,
		Name:         principal.Name,
		AccessToken:  resp.GetAccessToken(),
		RefreshToken: resp.GetRefreshToken(),
	}, nil
}

// SignOut revokes the refresh token. The identity is signed out locally even
// when the provider call fails.
func (p *Provider) SignOut(ctx context.Context, userID, refreshToken string) error {
	const op = "identity.SignOut"

	p.watcher.signedOut(userID)

	if refreshToken == "" {
		return nil
	}
	if _, err := p.client.Logout(ctx, &auth.LogoutRequest{RefreshToken: refreshToken}); err != nil {
		p.log.Warn("failed to revoke refresh token", "userID", userID, slog.Any("error", err))
		return fmt.Errorf("%s: %w", op, p.mapError(err))
	}
	return nil
}

func (p *Provider) check(email, password string) error {
	if err := p.validate.Var(email, "required,email"); err != nil {
		return errs.NewAuthFailure(errs.AuthInvalidEmail)
	}
	if len(password) < minPasswordLen {
		return errs.NewAuthFailure(errs.AuthWeakPassword)
	}
	return nil
}

func (p *Provider) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", errs.ErrInternal, err)
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.InvalidArgument:
		return errs.NewAuthFailure(errs.AuthInvalidCredential)
	case codes.NotFound:
		return errs.NewAuthFailure(errs.AuthNotFound)
	case codes.AlreadyExists:
		return errs.NewAuthFailure(errs.AuthAlreadyInUse)
	default:
		p.log.Error("identity provider failure", "code", st.Code().String(), "message", st.Message())
		return fmt.Errorf("%w: %s", errs.ErrInternal, st.Message())
	}
}
