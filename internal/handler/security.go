package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/dernounimk/volty/internal/domain/auth"
	"github.com/dernounimk/volty/pkg/httpmiddleware"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "api_key"

type apiKeyCtx struct{}

// APIKeyFromContext returns the key that authenticated the request.
func APIKeyFromContext(ctx context.Context) (*auth.APIKey, bool) {
	k, ok := ctx.Value(apiKeyCtx{}).(*auth.APIKey)
	return k, ok
}

// RequireAPIKey rejects requests whose api_key header does not resolve to a
// key with scope.
func RequireAPIKey(a *auth.Authenticator, scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := a.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			if err != nil {
				fail(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyCtx{}, key)
			ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key", key.Name)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
