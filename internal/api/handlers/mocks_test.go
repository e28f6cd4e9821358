package handlers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/domain/qid"
	"github.com/bigkaa/eventgate/internal/notify"
	"github.com/bigkaa/eventgate/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(svc Services) *APIHandler {
	return NewAPIHandler(svc, 10*time.Millisecond, testLogger())
}

type mockIntake struct {
	submitFn   func(ctx context.Context, req *service.IntakeRequest) (*service.IntakeResult, error)
	checkDupFn func(ctx context.Context, rawQID, email string) (*service.DuplicateCheck, error)
	prefillFn  func(raw string) qid.Prefill
}

func (m *mockIntake) Submit(ctx context.Context, req *service.IntakeRequest) (*service.IntakeResult, error) {
	return m.submitFn(ctx, req)
}

func (m *mockIntake) CheckDuplicate(ctx context.Context, rawQID, email string) (*service.DuplicateCheck, error) {
	return m.checkDupFn(ctx, rawQID, email)
}

func (m *mockIntake) Prefill(raw string) qid.Prefill {
	return m.prefillFn(raw)
}

type mockGate struct {
	checkInFn func(ctx context.Context, code string, actor *model.User) (*model.Registration, error)
	lookupFn  func(ctx context.Context, lookupType, value string) (*model.Registration, error)
}

func (m *mockGate) CheckIn(ctx context.Context, code string, actor *model.User) (*model.Registration, error) {
	return m.checkInFn(ctx, code, actor)
}

func (m *mockGate) Lookup(ctx context.Context, lookupType, value string) (*model.Registration, error) {
	return m.lookupFn(ctx, lookupType, value)
}

type mockRegistrations struct {
	getFn    func(ctx context.Context, id string) (*model.Registration, error)
	listFn   func(ctx context.Context, q service.ListQuery) (*service.RegistrationPage, error)
	updateFn func(ctx context.Context, id, newStatus string, actor *model.User) (*model.Registration, error)
	deleteFn func(ctx context.Context, id string, actor *model.User) error
}

func (m *mockRegistrations) Get(ctx context.Context, id string) (*model.Registration, error) {
	return m.getFn(ctx, id)
}

func (m *mockRegistrations) List(ctx context.Context, q service.ListQuery) (*service.RegistrationPage, error) {
	return m.listFn(ctx, q)
}

func (m *mockRegistrations) UpdateStatus(ctx context.Context, id, newStatus string, actor *model.User) (*model.Registration, error) {
	return m.updateFn(ctx, id, newStatus, actor)
}

func (m *mockRegistrations) Delete(ctx context.Context, id string, actor *model.User) error {
	return m.deleteFn(ctx, id, actor)
}

type mockExporter struct {
	exportFn func(ctx context.Context, req service.ExportRequest, actor *model.User) (*service.ExportFile, error)
}

func (m *mockExporter) Export(ctx context.Context, req service.ExportRequest, actor *model.User) (*service.ExportFile, error) {
	return m.exportFn(ctx, req, actor)
}

type mockStats struct {
	dashboardFn func(ctx context.Context) (*service.DashboardStats, error)
	publicFn    func(ctx context.Context) (*service.PublicStats, error)
}

func (m *mockStats) Dashboard(ctx context.Context) (*service.DashboardStats, error) {
	return m.dashboardFn(ctx)
}

func (m *mockStats) Public(ctx context.Context) (*service.PublicStats, error) {
	return m.publicFn(ctx)
}

type mockUsers struct {
	listFn       func(ctx context.Context) ([]*model.User, error)
	getFn        func(ctx context.Context, id string) (*model.User, error)
	createFn     func(ctx context.Context, req *service.CreateUserRequest, actor *model.User) (*model.User, error)
	updateFn     func(ctx context.Context, id string, req *service.UpdateUserRequest, actor *model.User) (*model.User, error)
	deactivateFn func(ctx context.Context, id string, actor *model.User) error
}

func (m *mockUsers) List(ctx context.Context) ([]*model.User, error) { return m.listFn(ctx) }

func (m *mockUsers) Get(ctx context.Context, id string) (*model.User, error) { return m.getFn(ctx, id) }

func (m *mockUsers) Create(ctx context.Context, req *service.CreateUserRequest, actor *model.User) (*model.User, error) {
	return m.createFn(ctx, req, actor)
}

func (m *mockUsers) Update(ctx context.Context, id string, req *service.UpdateUserRequest, actor *model.User) (*model.User, error) {
	return m.updateFn(ctx, id, req, actor)
}

func (m *mockUsers) Deactivate(ctx context.Context, id string, actor *model.User) error {
	return m.deactivateFn(ctx, id, actor)
}

type mockSettings struct {
	getFn    func(ctx context.Context) (*model.SystemSettings, error)
	updateFn func(ctx context.Context, upd *service.SettingsUpdate, actor *model.User) (*model.SystemSettings, error)
}

func (m *mockSettings) Get(ctx context.Context) (*model.SystemSettings, error) { return m.getFn(ctx) }

func (m *mockSettings) Update(ctx context.Context, upd *service.SettingsUpdate, actor *model.User) (*model.SystemSettings, error) {
	return m.updateFn(ctx, upd, actor)
}

func (m *mockSettings) EventInfo(context.Context) (notify.EventInfo, error) {
	return notify.EventInfo{}, nil
}

// forgetRecorder записывает сброшенные subject.
type forgetRecorder struct {
	forgotten []string
}

func (f *forgetRecorder) Forget(subject string) {
	f.forgotten = append(f.forgotten, subject)
}

type fakeReadiness struct {
	status string
}

func (f fakeReadiness) CheckReady() (string, string) { return f.status, "" }

type fakeDeps map[string]bool

func (f fakeDeps) Health() map[string]bool { return f }
