package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/eventgate/internal/api/middleware"
	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/qid"
	"github.com/bigkaa/eventgate/internal/service"
)

var testAdmin = &model.User{ID: "a0000000-0000-0000-0000-000000000001", Name: "Admin", Email: "admin@test.com", Role: "ADMIN", IsActive: true}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("ответ не является ошибкой API: %v (%s)", err, rec.Body.String())
	}
	return env
}

// serve вызывает обработчик через chi, чтобы работали URL-параметры.
func serve(pattern, method, target string, body string, h http.HandlerFunc, principal *model.User) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if principal != nil {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), principal))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreateRegistration(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantCode   string
	}{
		{"успешная регистрация", `{"qid":"28763400001"}`, nil, http.StatusCreated, ""},
		{"некорректный JSON", `{"qid":`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"два документа в теле", `{} {}`, nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"регистрация закрыта", `{}`, &service.Error{Kind: service.KindClosed, Message: "закрыто"}, http.StatusForbidden, "REGISTRATION_CLOSED"},
		{"лимит мест", `{}`, &service.Error{Kind: service.KindCapacity, Message: "мест нет"}, http.StatusConflict, "CAPACITY_REACHED"},
		{"дубликат", `{}`, &service.Error{Kind: service.KindConflict, Message: "уже существует", Field: "qid"}, http.StatusConflict, "CONFLICT"},
		{"сбой БД", `{}`, errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Services{Intake: &mockIntake{
				submitFn: func(_ context.Context, req *service.IntakeRequest) (*service.IntakeResult, error) {
					if tt.submitErr != nil {
						return nil, tt.submitErr
					}
					return &service.IntakeResult{
						Primary: &model.Registration{ID: "r-1", AccessToken: "SV-ABCD2345", Status: model.StatusRegistered, CreatedAt: created},
						Family:  []*model.Registration{{ID: "r-2"}},
					}, nil
				},
			}})

			rec := serve("/api/v1/registrations", http.MethodPost, "/api/v1/registrations", tt.body, h.CreateRegistration, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				env := decodeError(t, rec)
				if env.Error.Code != tt.wantCode {
					t.Errorf("код = %s, ожидался %s", env.Error.Code, tt.wantCode)
				}
				if strings.Contains(env.Error.Message, "qid") {
					t.Errorf("сообщение раскрывает поле конфликта: %s", env.Error.Message)
				}
				return
			}

			var resp intakeResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.ID != "r-1" || resp.AccessToken != "SV-ABCD2345" || resp.FamilyCount != 1 {
				t.Errorf("ответ = %+v", resp)
			}
			if resp.Status != model.StatusRegistered {
				t.Errorf("статус = %s", resp.Status)
			}
		})
	}
}

func TestQIDPrefill(t *testing.T) {
	h := newTestHandler(Services{Intake: &mockIntake{
		prefillFn: func(raw string) qid.Prefill {
			if raw != "28763400001" {
				return qid.Prefill{}
			}
			return qid.Prefill{
				Parsed:   qid.Parsed{Valid: true, BirthYear: 1987, CountryCode: "634", Country: "Qatar"},
				AgeGroup: model.AgeGroupAdult,
			}
		},
	}})

	rec := serve("/api/v1/public/qid/{qid}", http.MethodGet, "/api/v1/public/qid/28763400001", "", h.QIDPrefill, nil)
	var resp map[string]any
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp["valid"] != true || resp["nationality"] != "Qatar" || resp["ageGroup"] != "ADULT" || resp["birthYear"] != float64(1987) {
		t.Errorf("ответ = %v", resp)
	}

	rec = serve("/api/v1/public/qid/{qid}", http.MethodGet, "/api/v1/public/qid/123", "", h.QIDPrefill, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	resp = nil
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp["valid"] != false {
		t.Errorf("ответ = %v", resp)
	}
	if _, ok := resp["birthYear"]; ok {
		t.Error("birthYear не должен присутствовать для невалидного QID")
	}
}

func TestCheckIn(t *testing.T) {
	checkedAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"проход отмечен", nil, http.StatusOK, ""},
		{"неизвестный код", &service.Error{Kind: service.KindNotFound, Message: "не найден"}, http.StatusNotFound, "NOT_FOUND"},
		{"отменённая регистрация", &service.Error{Kind: service.KindCancelled, Message: "отменена"}, http.StatusConflict, "REGISTRATION_CANCELLED"},
		{"повторный проход", &service.Error{
			Kind:    service.KindAlreadyCheckedIn,
			Message: "уже отмечен",
			CheckIn: &service.CheckInFacts{ID: "r-1", FullName: "Ali Hassan", AgeGroup: model.AgeGroupAdult, CheckedInAt: checkedAt},
		}, http.StatusConflict, "ALREADY_CHECKED_IN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotActor *model.User
			h := newTestHandler(Services{Gate: &mockGate{
				checkInFn: func(_ context.Context, code string, actor *model.User) (*model.Registration, error) {
					gotActor = actor
					if tt.err != nil {
						return nil, tt.err
					}
					return &model.Registration{ID: "r-1", AccessToken: code, Status: model.StatusCheckedIn, CheckedInAt: &checkedAt}, nil
				},
			}})

			rec := serve("/check-in", http.MethodPost, "/check-in", `{"qrCode":"SV-ABCD2345"}`, h.CheckIn, testAdmin)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if gotActor != testAdmin {
				t.Error("сотрудник не передан в сервис")
			}
			if tt.wantCode == "" {
				return
			}
			env := decodeError(t, rec)
			if env.Error.Code != tt.wantCode {
				t.Errorf("код = %s, ожидался %s", env.Error.Code, tt.wantCode)
			}
			if tt.wantCode == "ALREADY_CHECKED_IN" {
				if env.Error.Details["fullName"] != "Ali Hassan" || env.Error.Details["checkedInAt"] != "2026-02-10T09:30:00Z" {
					t.Errorf("details = %v", env.Error.Details)
				}
			}
		})
	}
}

func TestListRegistrations_QueryBinding(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		check      func(t *testing.T, q service.ListQuery)
	}{
		{"значения по умолчанию", "", http.StatusOK, func(t *testing.T, q service.ListQuery) {
			if q.Page != 1 || q.Limit != 20 || q.SortBy != "createdAt" || q.SortOrder != "desc" {
				t.Errorf("q = %+v", q)
			}
		}},
		{"все параметры", "?query=ali&status=CHECKED_IN&ageGroup=ALL&date=2026-02-10&page=3&limit=50&sortBy=fullName&sortOrder=asc", http.StatusOK,
			func(t *testing.T, q service.ListQuery) {
				want := service.ListQuery{Query: "ali", Status: "CHECKED_IN", AgeGroup: "ALL", Date: "2026-02-10", Page: 3, Limit: 50, SortBy: "fullName", SortOrder: "asc"}
				if q != want {
					t.Errorf("q = %+v, ожидалось %+v", q, want)
				}
			}},
		{"page не число", "?page=abc", http.StatusBadRequest, nil},
		{"дата в неверном формате", "?date=10.02.2026", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(Services{Registrations: &mockRegistrations{
				listFn: func(_ context.Context, q service.ListQuery) (*service.RegistrationPage, error) {
					if tt.check != nil {
						tt.check(t, q)
					}
					return &service.RegistrationPage{Page: q.Page, Limit: q.Limit, Total: 41, TotalPages: 3,
						Items: []*model.Registration{{ID: "r-1", CheckedInByUser: &model.StaffSummary{ID: "u-1", Name: "Gate 1"}}}}, nil
				},
			}})

			rec := serve("/r", http.MethodGet, "/r"+tt.query, "", h.ListRegistrations, testAdmin)
			if rec.Code != tt.wantStatus {
				t.Fatalf("статус = %d, ожидался %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp registrationListResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Pagination.Total != 41 || resp.Pagination.TotalPages != 3 || len(resp.Items) != 1 {
				t.Errorf("ответ = %+v", resp)
			}
			if resp.Items[0].CheckedInBy == nil || resp.Items[0].CheckedInBy.Name != "Gate 1" {
				t.Error("нет данных отметившего сотрудника")
			}
		})
	}
}

func TestExportRegistrations(t *testing.T) {
	h := newTestHandler(Services{Export: &mockExporter{
		exportFn: func(_ context.Context, req service.ExportRequest, _ *model.User) (*service.ExportFile, error) {
			if req.Format != "csv" || req.Status != "REGISTERED" {
				t.Errorf("req = %+v", req)
			}
			return &service.ExportFile{Filename: "registrations.csv", ContentType: "text/csv; charset=utf-8", Data: []byte("QID\n"), Count: 0}, nil
		},
	}})

	rec := serve("/export", http.MethodGet, "/export?format=csv&status=REGISTERED", "", h.ExportRegistrations, testAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="registrations.csv"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.Equal(rec.Body.Bytes(), []byte("QID\n")) {
		t.Errorf("тело = %q", rec.Body.String())
	}
}

func TestUpdateUser_ForgetsPrincipal(t *testing.T) {
	subject := "idp-sub-7"
	principals := &forgetRecorder{}
	h := newTestHandler(Services{
		Principals: principals,
		Users: &mockUsers{
			updateFn: func(_ context.Context, id string, req *service.UpdateUserRequest, _ *model.User) (*model.User, error) {
				if req.Role == nil || *req.Role != "VALIDATOR" {
					t.Errorf("role = %v", req.Role)
				}
				return &model.User{ID: id, Subject: &subject, Role: *req.Role, IsActive: true}, nil
			},
		},
	})

	rec := serve("/users/{id}", http.MethodPatch, "/users/u-7", `{"role":"VALIDATOR"}`, h.UpdateUser, testAdmin)
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d (%s)", rec.Code, rec.Body.String())
	}
	if len(principals.forgotten) != 1 || principals.forgotten[0] != subject {
		t.Errorf("forgotten = %v", principals.forgotten)
	}
	var resp userResponse
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Linked || resp.Role != "VALIDATOR" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestDeactivateSelf_Forbidden(t *testing.T) {
	h := newTestHandler(Services{Users: &mockUsers{
		deactivateFn: func(context.Context, string, *model.User) error {
			return &service.Error{Kind: service.KindForbidden, Message: "нельзя отключить свою учётную запись"}
		},
	}})
	rec := serve("/users/{id}", http.MethodDelete, "/users/"+testAdmin.ID, "", h.DeactivateUser, testAdmin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("статус = %d", rec.Code)
	}
}

func TestStreamPublicStats(t *testing.T) {
	h := newTestHandler(Services{Stats: &mockStats{
		publicFn: func(context.Context) (*service.PublicStats, error) {
			return &service.PublicStats{TotalRegistrations: 120, CheckedIn: 45, Timestamp: time.Now()}, nil
		},
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 35*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/stats/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.StreamPublicStats(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	events := strings.Count(rec.Body.String(), "event: stats\n")
	if events < 2 {
		t.Errorf("событий = %d, ожидалось не меньше 2 (начальное + периодические)", events)
	}
	if !strings.Contains(rec.Body.String(), `"totalRegistrations":120`) {
		t.Errorf("тело = %s", rec.Body.String())
	}
}

func TestHealthReady(t *testing.T) {
	tests := []struct {
		name       string
		pg         ReadinessChecker
		deps       DependencyHealth
		wantStatus int
		wantValue  string
	}{
		{"всё доступно", fakeReadiness{"ok"}, fakeDeps{"postgresql": true, "idp-jwks": true}, http.StatusOK, "ok"},
		{"IdP недоступен", fakeReadiness{"ok"}, fakeDeps{"postgresql": true, "idp-jwks": false}, http.StatusOK, "degraded"},
		{"PostgreSQL недоступен", fakeReadiness{"fail"}, nil, http.StatusServiceUnavailable, "fail"},
		{"нет проверки PostgreSQL", nil, nil, http.StatusServiceUnavailable, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pg, tt.deps)
			rec := httptest.NewRecorder()
			h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
			var resp healthReadyResponse
			_ = json.NewDecoder(rec.Body).Decode(&resp)
			if resp.Status != tt.wantValue {
				t.Errorf("status = %s, ожидался %s", resp.Status, tt.wantValue)
			}
		})
	}
}

func TestWorse(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"ok", "ok", "ok"},
		{"ok", "degraded", "degraded"},
		{"degraded", "ok", "degraded"},
		{"degraded", "fail", "fail"},
		{"ok", "unknown", "fail"},
	}
	for _, tt := range tests {
		if got := worse(tt.a, tt.b); got != tt.want {
			t.Errorf("worse(%s, %s) = %s, ожидался %s", tt.a, tt.b, got, tt.want)
		}
	}
}
