package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tabgate/internal/gateway/credential"
	"github.com/aussiebroadwan/tabgate/internal/gateway/domain"
	"github.com/aussiebroadwan/tabgate/internal/gateway/service"
	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
	"github.com/aussiebroadwan/tabgate/pkg/httpx"
	"github.com/aussiebroadwan/tabgate/pkg/slogx"
)

// apiError maps a service error onto the response the client sees.
func apiError(err error) *gatewaysdk.APIError {
	var weak *credential.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		return &gatewaysdk.APIError{
			StatusCode:  http.StatusBadRequest,
			Code:        gatewaysdk.ErrorCodeWeakPassword,
			Description: weak.Reason,
		}
	case errors.Is(err, credential.ErrLoginLockedOut):
		return gatewaysdk.ErrLockedOut
	case errors.Is(err, service.ErrInvalidCredentials):
		return gatewaysdk.ErrInvalidCredentials
	case errors.Is(err, service.ErrMFARequired):
		return gatewaysdk.ErrMFARequired
	case errors.Is(err, credential.ErrTokenExpired):
		return gatewaysdk.ErrInvalidToken.With("token expired")
	case errors.Is(err, credential.ErrTokenRevoked):
		return gatewaysdk.ErrInvalidToken.With("token revoked")
	case errors.Is(err, credential.ErrTokenInvalid),
		errors.Is(err, credential.ErrTokenKindMismatch):
		return gatewaysdk.ErrInvalidToken
	case errors.Is(err, service.ErrUsernameTaken):
		return gatewaysdk.ErrConflict.With("username is already taken")
	case errors.Is(err, service.ErrAlreadyBootstrap):
		return gatewaysdk.ErrConflict.With("gateway already has users")
	case errors.Is(err, service.ErrInvalidUsername):
		return gatewaysdk.ErrInvalidRequest.With("username must be 3 to 64 characters without spaces or colons")
	case errors.Is(err, service.ErrInvalidRole):
		return gatewaysdk.ErrInvalidRequest.With("role must be student, teacher or admin")
	case errors.Is(err, domain.ErrInvalidRules):
		return gatewaysdk.ErrInvalidRequest.With(err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return gatewaysdk.ErrPermissionDenied
	default:
		return gatewaysdk.ErrServerError
	}
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	e := apiError(err)
	if e.StatusCode >= http.StatusInternalServerError {
		slogx.FromContext(ctx).Error("request failed", "err", err)
	}
	e.WriteError(w)
}

func accessTokenAuthenticator(creds *credential.Manager) httpx.Authenticator {
	return httpx.AuthenticatorFunc(func(ctx context.Context, bearer string) (httpx.Principal, error) {
		id, err := creds.VerifyToken(ctx, bearer, domain.TokenAccess)
		if err != nil {
			return httpx.Principal{}, err
		}
		return httpx.Principal{
			Subject: id.Subject,
			Role:    string(id.Role),
			TokenID: id.TokenID,
		}, nil
	})
}
