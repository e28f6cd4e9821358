// auth.go: JWT-аутентификация сотрудников и проверка прав.
//
// Подпись токена проверяется по JWKS провайдера идентификации; sub и email
// из токена сопоставляются с локальной таблицей сотрудников (users).
// Разрешённый принципал (*model.User) помещается в контекст запроса.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	apierrors "github.com/bigkaa/eventgate/internal/api/errors"
	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/rbac"
)

type contextKey string

// ContextKeyPrincipal: разрешённый сотрудник в контексте запроса.
const ContextKeyPrincipal contextKey = "principal"

// principalCacheSize: максимум закэшированных принципалов.
const principalCacheSize = 1024

// PrincipalResolver сопоставляет subject и email из токена с сотрудником.
// Реализуется service.UserService.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, subject, email string) (*model.User, error)
}

// tokenClaims: claims JWT, используемые сервисом.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// JWTAuth: middleware аутентификации сотрудников.
type JWTAuth struct {
	jwks     keyfunc.Keyfunc
	resolver PrincipalResolver
	cache    *expirable.LRU[string, *model.User]
	issuer   string
	audience string
	logger   *slog.Logger
}

// NewJWTAuth создаёт middleware с JWKS, загружаемым по jwksURL.
// Сервис стартует, даже если провайдер ещё недоступен.
func NewJWTAuth(
	jwksURL string,
	issuer, audience string,
	resolver PrincipalResolver,
	cacheTTL time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, audience, resolver, cacheTTL, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовой keyfunc (тесты).
func NewJWTAuthWithKeyfunc(
	kf keyfunc.Keyfunc,
	issuer, audience string,
	resolver PrincipalResolver,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *JWTAuth {
	return &JWTAuth{
		jwks:     kf,
		resolver: resolver,
		cache:    expirable.NewLRU[string, *model.User](principalCacheSize, nil, cacheTTL),
		issuer:   issuer,
		audience: audience,
		logger:   logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware проверяет Bearer token и разрешает принципала.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || tokenString == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			claims := &tokenClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(5 * time.Second),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}
			if j.audience != "" {
				parserOpts = append(parserOpts, jwt.WithAudience(j.audience))
			}

			token, err := jwt.ParseWithClaims(tokenString, claims, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if claims.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			principal, err := j.resolve(r.Context(), claims)
			if err != nil {
				apierrors.WriteServiceError(w, j.logger, err)
				return
			}

			noteUser(r.Context(), principal.ID)
			ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolve возвращает принципала из кэша или через resolver.
// Отказы не кэшируются: новый сотрудник получает доступ сразу после создания.
func (j *JWTAuth) resolve(ctx context.Context, claims *tokenClaims) (*model.User, error) {
	if u, ok := j.cache.Get(claims.Subject); ok {
		return u, nil
	}
	u, err := j.resolver.ResolvePrincipal(ctx, claims.Subject, claims.Email)
	if err != nil {
		return nil, err
	}
	j.cache.Add(claims.Subject, u)
	return u, nil
}

// Forget удаляет принципала из кэша (после изменения или отключения сотрудника).
func (j *JWTAuth) Forget(subject string) {
	if subject != "" {
		j.cache.Remove(subject)
	}
}

// Purge очищает кэш принципалов.
func (j *JWTAuth) Purge() {
	j.cache.Purge()
}

// RequireCapability пропускает запрос, если у роли принципала есть право cap.
// Должен использоваться после JWTAuth.Middleware().
func RequireCapability(cap rbac.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}
			if !rbac.Can(principal.Role, cap) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется %s", cap))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext извлекает сотрудника из контекста запроса.
func PrincipalFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(ContextKeyPrincipal).(*model.User)
	return u
}

// WithPrincipal помещает сотрудника в контекст (тесты обработчиков).
func WithPrincipal(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, u)
}
