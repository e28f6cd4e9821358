// Пакет openapi: контракт API eventgate (встроенный openapi.yaml):
// загрузка и проверка документа, отдача в JSON и валидация тел запросов
// публичных endpoints до обработчиков.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"

	apierrors "github.com/bigkaa/eventgate/internal/api/errors"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec: загруженный и проверенный документ OpenAPI.
type Spec struct {
	doc    *openapi3.T
	json   []byte
	logger *slog.Logger
}

// Load разбирает встроенный openapi.yaml и проверяет его.
func Load(ctx context.Context, logger *slog.Logger) (*Spec, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("загрузка openapi.yaml: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("проверка openapi.yaml: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI в JSON: %w", err)
	}

	return &Spec{
		doc:    doc,
		json:   data,
		logger: logger.With(slog.String("component", "openapi")),
	}, nil
}

// ServeJSON: GET /api/v1/openapi.json.
func (s *Spec) ServeJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.json)
}

// Validate возвращает middleware, проверяющий query и тело запроса по
// операции path (шаблон пути из openapi.yaml) и методу запроса.
// Аутентификация здесь не проверяется: это делает JWT middleware.
func (s *Spec) Validate(path string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, err := s.route(path, r.Method)
			if err != nil {
				s.logger.Error("Операция отсутствует в OpenAPI",
					slog.String("path", path),
					slog.String("method", r.Method),
				)
				next.ServeHTTP(w, r)
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request: r,
				Route:   route,
				Options: &openapi3filter.Options{
					MultiError:         true,
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				apierrors.WriteErrorDetails(w, http.StatusBadRequest, apierrors.CodeValidationError,
					"ошибка валидации входных данных",
					map[string]any{"fields": fieldErrors(err)},
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Spec) route(path, method string) (*routers.Route, error) {
	item := s.doc.Paths.Find(path)
	if item == nil {
		return nil, fmt.Errorf("путь %s не описан", path)
	}
	op := item.GetOperation(method)
	if op == nil {
		return nil, fmt.Errorf("метод %s %s не описан", method, path)
	}
	return &routers.Route{
		Spec:      s.doc,
		Path:      path,
		PathItem:  item,
		Method:    method,
		Operation: op,
	}, nil
}

// fieldErrors раскладывает ошибки openapi3filter по полям.
// Путь поля: JSON pointer через точку (familyMembers.0.qid).
func fieldErrors(err error) map[string]string {
	fields := make(map[string]string)
	for _, e := range flatten(err) {
		var schemaErr *openapi3.SchemaError
		var reqErr *openapi3filter.RequestError
		switch {
		case errors.As(e, &reqErr) && reqErr.Parameter != nil:
			fields[reqErr.Parameter.Name] = reqErr.Error()
		case errors.As(e, &schemaErr):
			key := strings.Join(schemaErr.JSONPointer(), ".")
			if key == "" {
				key = "body"
			}
			fields[key] = schemaErr.Reason
		default:
			fields["body"] = e.Error()
		}
	}
	return fields
}

// flatten разворачивает вложенные openapi3.MultiError. Ошибки параметров
// остаются целыми, чтобы сохранить имя параметра.
func flatten(err error) []error {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) && reqErr.Parameter != nil {
		return []error{err}
	}
	var multi openapi3.MultiError
	if !errors.As(err, &multi) {
		return []error{err}
	}
	var out []error
	for _, e := range multi {
		out = append(out, flatten(e)...)
	}
	return out
}
