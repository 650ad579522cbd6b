package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const googleIssuer = "https://accounts.google.com"

// GoogleIdentity is the account a Google credential vouches for.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// GoogleVerifier checks the credentials sent to POST /users/google.
type GoogleVerifier interface {
	// VerifyCredential checks a Google Sign-In ID token.
	VerifyCredential(ctx context.Context, idToken string) (*GoogleIdentity, error)
	// VerifyAccessToken resolves an OAuth access token through the
	// userinfo endpoint.
	VerifyAccessToken(ctx context.Context, accessToken string) (*GoogleIdentity, error)
}

// OIDCGoogleVerifier verifies Google credentials with OpenID Connect
// discovery against accounts.google.com.
type OIDCGoogleVerifier struct {
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
}

var _ GoogleVerifier = (*OIDCGoogleVerifier)(nil)

// NewGoogleVerifier discovers Google's OIDC configuration. ID tokens must
// be issued to clientID.
func NewGoogleVerifier(ctx context.Context, clientID string) (*OIDCGoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}
	return &OIDCGoogleVerifier{
		provider: provider,
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *OIDCGoogleVerifier) VerifyCredential(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	token, err := g.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("google id_token verification failed: %w", err)
	}
	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google id_token claims parse failed: %w", err)
	}
	return checkGoogleIdentity(&GoogleIdentity{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
	})
}

func (g *OIDCGoogleVerifier) VerifyAccessToken(ctx context.Context, accessToken string) (*GoogleIdentity, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	info, err := g.provider.UserInfo(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("google userinfo lookup failed: %w", err)
	}
	var extra struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&extra)
	return checkGoogleIdentity(&GoogleIdentity{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          extra.Name,
	})
}

func checkGoogleIdentity(id *GoogleIdentity) (*GoogleIdentity, error) {
	if id.Subject == "" || id.Email == "" {
		return nil, errors.New("google credential missing required claims")
	}
	if !id.EmailVerified {
		return nil, errors.New("google email is not verified")
	}
	return id, nil
}
