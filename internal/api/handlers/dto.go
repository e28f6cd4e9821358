// dto.go: JSON-представления ответов API и маппинг domain → API.
package handlers

import (
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/repository"
	"github.com/bigkaa/eventgate/internal/service"
)

type staffSummary struct {
	ID    string              `json:"id"`
	Name  string              `json:"name"`
	Email openapi_types.Email `json:"email"`
}

type registrationResponse struct {
	ID          string              `json:"id"`
	QID         string              `json:"qid"`
	FullName    string              `json:"fullName"`
	AgeGroup    model.AgeGroup      `json:"ageGroup"`
	Email       openapi_types.Email `json:"email"`
	Nationality string              `json:"nationality"`
	Gender      model.Gender        `json:"gender"`
	AccessToken string              `json:"accessToken"`
	IsPrimary   bool                `json:"isPrimary"`
	Status      model.Status        `json:"status"`
	CheckedInAt *time.Time          `json:"checkedInAt"`
	CheckedInBy *staffSummary       `json:"checkedInBy"`
	CreatedAt   time.Time           `json:"createdAt"`
	UpdatedAt   time.Time           `json:"updatedAt"`
}

func mapRegistration(r *model.Registration) registrationResponse {
	resp := registrationResponse{
		ID:          r.ID,
		QID:         r.QID,
		FullName:    r.FullName,
		AgeGroup:    r.AgeGroup,
		Email:       openapi_types.Email(r.Email),
		Nationality: r.Nationality,
		Gender:      r.Gender,
		AccessToken: r.AccessToken,
		IsPrimary:   r.IsPrimary,
		Status:      r.Status,
		CheckedInAt: r.CheckedInAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if s := r.CheckedInByUser; s != nil {
		resp.CheckedInBy = &staffSummary{ID: s.ID, Name: s.Name, Email: openapi_types.Email(s.Email)}
	}
	return resp
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type registrationListResponse struct {
	Items      []registrationResponse `json:"items"`
	Pagination pagination             `json:"pagination"`
}

type userResponse struct {
	ID            string              `json:"id"`
	Email         openapi_types.Email `json:"email"`
	Name          string              `json:"name"`
	Role          string              `json:"role"`
	IsActive      bool                `json:"isActive"`
	Linked        bool                `json:"linked"`
	LastLogin     *time.Time          `json:"lastLogin"`
	CheckInsCount int                 `json:"checkInsCount"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func mapUser(u *model.User) userResponse {
	return userResponse{
		ID:            u.ID,
		Email:         openapi_types.Email(u.Email),
		Name:          u.Name,
		Role:          u.Role,
		IsActive:      u.IsActive,
		Linked:        u.Subject != nil,
		LastLogin:     u.LastLogin,
		CheckInsCount: u.CheckInsCount,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type settingsResponse struct {
	RegistrationOpen bool                `json:"registrationOpen"`
	MaxRegistrations int                 `json:"maxRegistrations"`
	EventName        string              `json:"eventName"`
	EventDate        *openapi_types.Date `json:"eventDate"`
	EventLocation    string              `json:"eventLocation"`
	ContactEmail     string              `json:"contactEmail"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

func mapSettings(s *model.SystemSettings) settingsResponse {
	return settingsResponse{
		RegistrationOpen: s.RegistrationOpen,
		MaxRegistrations: s.MaxRegistrations,
		EventName:        s.EventName,
		EventDate:        toDate(s.EventDate),
		EventLocation:    s.EventLocation,
		ContactEmail:     s.ContactEmail,
		UpdatedAt:        s.UpdatedAt,
	}
}

func toDate(t *time.Time) *openapi_types.Date {
	if t == nil {
		return nil
	}
	return &openapi_types.Date{Time: *t}
}

type auditEntryResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	UserName  string            `json:"userName"`
	Action    model.AuditAction `json:"action"`
	Entity    string            `json:"entity"`
	EntityID  *string           `json:"entityId"`
	Metadata  map[string]any    `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

type auditListResponse struct {
	Items      []auditEntryResponse `json:"items"`
	Pagination pagination           `json:"pagination"`
}

func mapAuditPage(p *service.AuditPage) auditListResponse {
	resp := auditListResponse{
		Items:      make([]auditEntryResponse, len(p.Items)),
		Pagination: pagination{Page: p.Page, Limit: p.Limit, Total: p.Total, TotalPages: p.TotalPages},
	}
	for i, e := range p.Items {
		resp.Items[i] = auditEntryResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			UserName:  e.UserName,
			Action:    e.Action,
			Entity:    e.Entity,
			EntityID:  e.EntityID,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		}
	}
	return resp
}

type dayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type nationalityCount struct {
	Nationality string `json:"nationality"`
	Count       int    `json:"count"`
}

type recentCheckIn struct {
	ID          string         `json:"id"`
	FullName    string         `json:"fullName"`
	AgeGroup    model.AgeGroup `json:"ageGroup"`
	CheckedInAt time.Time      `json:"checkedInAt"`
	StaffName   string         `json:"staffName"`
}

type dashboardResponse struct {
	Total          int                    `json:"total"`
	CheckedIn      int                    `json:"checkedIn"`
	Cancelled      int                    `json:"cancelled"`
	Pending        int                    `json:"pending"`
	Today          int                    `json:"todayRegistrations"`
	ByAgeGroup     map[model.AgeGroup]int `json:"byAgeGroup"`
	ByGender       map[model.Gender]int   `json:"byGender"`
	Nationalities  []nationalityCount     `json:"nationalities"`
	RecentCheckIns []recentCheckIn        `json:"recentCheckIns"`
	Daily          []dayCount             `json:"registrationsByDay"`
}

func mapDashboard(s *service.DashboardStats) dashboardResponse {
	resp := dashboardResponse{
		Total:          s.Total,
		CheckedIn:      s.CheckedIn,
		Cancelled:      s.Cancelled,
		Pending:        s.Pending,
		Today:          s.Today,
		ByAgeGroup:     s.ByAgeGroup,
		ByGender:       s.ByGender,
		Nationalities:  make([]nationalityCount, len(s.Nationalities)),
		RecentCheckIns: make([]recentCheckIn, len(s.RecentCheckIns)),
		Daily:          make([]dayCount, len(s.Daily)),
	}
	for i, n := range s.Nationalities {
		resp.Nationalities[i] = nationalityCount{Nationality: n.Nationality, Count: n.Count}
	}
	for i, c := range s.RecentCheckIns {
		resp.RecentCheckIns[i] = mapCheckInRecord(c)
	}
	for i, d := range s.Daily {
		resp.Daily[i] = dayCount{Date: d.Date, Count: d.Count}
	}
	return resp
}

func mapCheckInRecord(c repository.CheckInRecord) recentCheckIn {
	return recentCheckIn{
		ID:          c.RegistrationID,
		FullName:    c.FullName,
		AgeGroup:    c.AgeGroup,
		CheckedInAt: c.CheckedInAt,
		StaffName:   c.StaffName,
	}
}

type publicStatsResponse struct {
	TotalRegistrations int       `json:"totalRegistrations"`
	CheckedIn          int       `json:"checkedIn"`
	Timestamp          time.Time `json:"timestamp"`
}

func mapPublicStats(s *service.PublicStats) publicStatsResponse {
	return publicStatsResponse{
		TotalRegistrations: s.TotalRegistrations,
		CheckedIn:          s.CheckedIn,
		Timestamp:          s.Timestamp,
	}
}
