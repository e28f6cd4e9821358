// stats.go: агрегированная статистика для дашборда и публичных табло.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/bigkaa/eventgate/internal/domain/model"
	"github.com/bigkaa/eventgate/internal/repository"
)

const (
	topNationalities = 10
	recentCheckIns   = 10
	trailingDays     = 7
)

// DayCount: количество регистраций за день (YYYY-MM-DD).
type DayCount struct {
	Date  string
	Count int
}

// NationalityCount: количество регистраций по гражданству.
type NationalityCount struct {
	Nationality string
	Count       int
}

// DashboardStats: сводка для административного дашборда.
type DashboardStats struct {
	Total          int
	CheckedIn      int
	Cancelled      int
	Pending        int
	Today          int
	ByAgeGroup     map[model.AgeGroup]int
	ByGender       map[model.Gender]int
	Nationalities  []NationalityCount
	RecentCheckIns []repository.CheckInRecord
	Daily          []DayCount
}

// PublicStats: агрегаты для публичного табло (без персональных данных).
type PublicStats struct {
	TotalRegistrations int
	CheckedIn          int
	Timestamp          time.Time
}

// StatsService отдаёт счётчики, разбивки и ряды по дням (только чтение).
type StatsService struct {
	regs   repository.RegistrationRepository
	loc    *time.Location
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	cached *PublicStats
}

// NewStatsService создаёт агрегатор статистики.
// ttl: время жизни общего кэша публичной статистики.
func NewStatsService(regs repository.RegistrationRepository, loc *time.Location, ttl time.Duration, logger *slog.Logger) *StatsService {
	return &StatsService{
		regs:   regs,
		loc:    loc,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "stats_service")),
	}
}

// Dashboard собирает сводку. Запросы независимы и выполняются параллельно.
func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	now := s.now().In(s.loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	tomorrow := todayStart.AddDate(0, 0, 1)
	seriesStart := todayStart.AddDate(0, 0, -(trailingDays - 1))

	var (
		byStatus, byAge, byGender, byNat []repository.GroupCount
		daily                            []repository.DailyCount
		recent                           []repository.CheckInRecord
		today                            int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = s.regs.GroupCount(gctx, repository.DimStatus, 0)
		return err
	})
	g.Go(func() (err error) {
		byAge, err = s.regs.GroupCount(gctx, repository.DimAgeGroup, 0)
		return err
	})
	g.Go(func() (err error) {
		byGender, err = s.regs.GroupCount(gctx, repository.DimGender, 0)
		return err
	})
	g.Go(func() (err error) {
		byNat, err = s.regs.GroupCount(gctx, repository.DimNationality, topNationalities)
		return err
	})
	g.Go(func() (err error) {
		today, err = s.regs.Count(gctx, repository.RegistrationFilter{CreatedFrom: &todayStart, CreatedTo: &tomorrow})
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.regs.RecentCheckIns(gctx, recentCheckIns)
		return err
	})
	g.Go(func() (err error) {
		daily, err = s.regs.DailyCounts(gctx, seriesStart, tomorrow, s.loc.String())
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("сбор статистики: %w", err)
	}

	stats := &DashboardStats{
		Today:          today,
		ByAgeGroup:     make(map[model.AgeGroup]int, len(model.AgeGroups)),
		ByGender:       make(map[model.Gender]int, len(model.Genders)),
		Nationalities:  make([]NationalityCount, 0, len(byNat)),
		RecentCheckIns: recent,
	}
	if stats.RecentCheckIns == nil {
		stats.RecentCheckIns = []repository.CheckInRecord{}
	}

	for _, gc := range byStatus {
		stats.Total += gc.Count
		switch model.Status(gc.Key) {
		case model.StatusCheckedIn:
			stats.CheckedIn = gc.Count
		case model.StatusCancelled:
			stats.Cancelled = gc.Count
		}
	}
	stats.Pending = stats.Total - stats.CheckedIn - stats.Cancelled

	for _, ag := range model.AgeGroups {
		stats.ByAgeGroup[ag] = 0
	}
	for _, gc := range byAge {
		stats.ByAgeGroup[model.AgeGroup(gc.Key)] = gc.Count
	}
	for _, gn := range model.Genders {
		stats.ByGender[gn] = 0
	}
	for _, gc := range byGender {
		stats.ByGender[model.Gender(gc.Key)] = gc.Count
	}
	for _, gc := range byNat {
		stats.Nationalities = append(stats.Nationalities, NationalityCount{Nationality: gc.Key, Count: gc.Count})
	}

	stats.Daily = fillDays(seriesStart, trailingDays, daily)
	return stats, nil
}

// fillDays строит непрерывный ряд из days дней начиная со start,
// дни без регистраций заполняются нулями.
func fillDays(start time.Time, days int, counts []repository.DailyCount) []DayCount {
	byDay := make(map[string]int, len(counts))
	for _, dc := range counts {
		byDay[dc.Day.Format(time.DateOnly)] = dc.Count
	}

	series := make([]DayCount, 0, days)
	for i := range days {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		series = append(series, DayCount{Date: day, Count: byDay[day]})
	}
	return series
}

// Public возвращает общие счётчики из кэша процесса. Кэш обновляется
// не чаще раза в ttl; одновременные обновления схлопываются в один запрос.
func (s *StatsService) Public(ctx context.Context) (*PublicStats, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if cached != nil && s.now().Sub(cached.Timestamp) < s.ttl {
		return cached, nil
	}

	v, err, _ := s.group.Do("public", func() (any, error) {
		return s.refreshPublic(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(*PublicStats), nil
}

func (s *StatsService) refreshPublic(ctx context.Context) (*PublicStats, error) {
	groups, err := s.regs.GroupCount(ctx, repository.DimStatus, 0)
	if err != nil {
		return nil, fmt.Errorf("публичная статистика: %w", err)
	}

	stats := &PublicStats{Timestamp: s.now()}
	for _, gc := range groups {
		stats.TotalRegistrations += gc.Count
		if model.Status(gc.Key) == model.StatusCheckedIn {
			stats.CheckedIn = gc.Count
		}
	}

	// Значение заменяется целиком, читатели не видят частичных данных
	s.mu.Lock()
	s.cached = stats
	s.mu.Unlock()
	return stats, nil
}
