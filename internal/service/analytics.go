package service

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"qrtrack/internal/apperr"
)

// Period is the bucket width of the activity timeline.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

const (
	DefaultQRCodeLimit = 10
	MaxQRCodeLimit     = 100
)

func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	default:
		return "", apperr.Validation("period must be day, week or month")
	}
}

// Since returns the start of the lookback window: 14 days, 4 weeks or 6 months,
// each including the bucket that contains now.
func (p Period) Since(now time.Time) time.Time {
	start := p.Truncate(now)
	switch p {
	case PeriodWeek:
		return start.AddDate(0, 0, -7*3)
	case PeriodMonth:
		return start.AddDate(0, -5, 0)
	default:
		return start.AddDate(0, 0, -13)
	}
}

// Truncate returns the UTC start of the bucket containing t. Weeks start on Monday.
func (p Period) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case PeriodMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Label formats a bucket start for display.
func (p Period) Label(start time.Time) string {
	if p == PeriodMonth {
		return start.UTC().Format("2006-01")
	}
	return start.UTC().Format("2006-01-02")
}

type DeviceCounts struct {
	Total   int64
	Android int64
	IOS     int64
	Desktop int64
	Mobile  int64
	Tablet  int64
}

type DeviceStat struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DeviceBreakdown struct {
	Total   int64      `json:"total"`
	Android DeviceStat `json:"android"`
	IOS     DeviceStat `json:"ios"`
	Desktop DeviceStat `json:"desktop"`
	Mobile  DeviceStat `json:"mobile"`
	Tablet  DeviceStat `json:"tablet"`
}

type TimeBucket struct {
	Label string    `json:"bucket"`
	Start time.Time `json:"start"`
	Count int64     `json:"count"`
}

type Activity struct {
	Period  Period       `json:"period"`
	Since   time.Time    `json:"since"`
	Total   int64        `json:"total"`
	Buckets []TimeBucket `json:"buckets"`
}

type CategoryTotal struct {
	CategoryID uint   `json:"categoryId"`
	Name       string `json:"name"`
	Color      string `json:"color"`
	QRCodes    int64  `json:"qrCodes"`
	Scans      int64  `json:"scans"`
}

type CategoryStat struct {
	CategoryTotal
	Rank       int     `json:"rank"`
	Percentage float64 `json:"percentage"`
}

type CategoryPerformance struct {
	Total      int64          `json:"total"`
	Categories []CategoryStat `json:"categories"`
}

type QRCodeTotal struct {
	CodeID       string `json:"codeId"`
	WebsiteTitle string `json:"websiteTitle"`
	WebsiteURL   string `json:"websiteURL"`
	CategoryName string `json:"categoryName"`
	IsActive     bool   `json:"isActive"`
	Scans        int64  `json:"scans"`
}

type QRCodeStat struct {
	QRCodeTotal
	Rank       int     `json:"rank"`
	Percentage float64 `json:"percentage"`
}

type QRCodePerformance struct {
	Total   int64        `json:"total"`
	QRCodes []QRCodeStat `json:"qrCodes"`
}

type Overview struct {
	Devices    *DeviceBreakdown     `json:"devices"`
	Activity   *Activity            `json:"activity"`
	Categories *CategoryPerformance `json:"categories"`
	QRCodes    *QRCodePerformance   `json:"qrCodes"`
}

// AnalyticsService runs read-only aggregations. Every method is safe to call
// concurrently.
type AnalyticsService struct {
	repo AnalyticsRepository
	now  func() time.Time
}

func NewAnalyticsService(repo AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo, now: time.Now}
}

func (s *AnalyticsService) DeviceBreakdown(ctx context.Context, ownerID uint) (*DeviceBreakdown, error) {
	c, err := s.repo.DeviceCounts(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	stat := func(n int64) DeviceStat {
		return DeviceStat{Count: n, Percentage: percentage(n, c.Total)}
	}
	return &DeviceBreakdown{
		Total:   c.Total,
		Android: stat(c.Android),
		IOS:     stat(c.IOS),
		Desktop: stat(c.Desktop),
		Mobile:  stat(c.Mobile),
		Tablet:  stat(c.Tablet),
	}, nil
}

// Activity groups scans into buckets over the period's lookback window. Empty buckets
// are omitted.
func (s *AnalyticsService) Activity(ctx context.Context, ownerID uint, period Period) (*Activity, error) {
	since := period.Since(s.now())
	buckets, err := s.repo.ScanBuckets(ctx, ownerID, period, since)
	if err != nil {
		return nil, err
	}

	out := &Activity{Period: period, Since: since, Buckets: make([]TimeBucket, 0, len(buckets))}
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		b.Start = b.Start.UTC()
		b.Label = period.Label(b.Start)
		out.Total += b.Count
		out.Buckets = append(out.Buckets, b)
	}
	sort.Slice(out.Buckets, func(i, j int) bool { return out.Buckets[i].Start.Before(out.Buckets[j].Start) })
	return out, nil
}

func (s *AnalyticsService) CategoryPerformance(ctx context.Context, ownerID uint) (*CategoryPerformance, error) {
	totals, err := s.repo.CategoryScanTotals(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Scans != totals[j].Scans {
			return totals[i].Scans > totals[j].Scans
		}
		return totals[i].Name < totals[j].Name
	})

	out := &CategoryPerformance{Categories: make([]CategoryStat, 0, len(totals))}
	for _, t := range totals {
		out.Total += t.Scans
	}
	for i, t := range totals {
		out.Categories = append(out.Categories, CategoryStat{
			CategoryTotal: t,
			Rank:          i + 1,
			Percentage:    percentage(t.Scans, out.Total),
		})
	}
	return out, nil
}

// QRCodePerformance ranks the owner's codes by scan count. Percentages are relative to
// all of the owner's scans, not only the returned top limit.
func (s *AnalyticsService) QRCodePerformance(ctx context.Context, ownerID uint, limit int) (*QRCodePerformance, error) {
	if limit <= 0 {
		limit = DefaultQRCodeLimit
	}
	if limit > MaxQRCodeLimit {
		limit = MaxQRCodeLimit
	}

	total, err := s.repo.TotalScanCount(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.QRCodeScanTotals(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Scans != totals[j].Scans {
			return totals[i].Scans > totals[j].Scans
		}
		return totals[i].CodeID < totals[j].CodeID
	})

	out := &QRCodePerformance{Total: total, QRCodes: make([]QRCodeStat, 0, len(totals))}
	for i, t := range totals {
		out.QRCodes = append(out.QRCodes, QRCodeStat{
			QRCodeTotal: t,
			Rank:        i + 1,
			Percentage:  percentage(t.Scans, total),
		})
	}
	return out, nil
}

// Overview runs all four aggregations concurrently.
func (s *AnalyticsService) Overview(ctx context.Context, ownerID uint, period Period, limit int) (*Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.Devices, err = s.DeviceBreakdown(gctx, ownerID)
		return err
	})
	g.Go(func() (err error) {
		out.Activity, err = s.Activity(gctx, ownerID, period)
		return err
	})
	g.Go(func() (err error) {
		out.Categories, err = s.CategoryPerformance(gctx, ownerID)
		return err
	})
	g.Go(func() (err error) {
		out.QRCodes, err = s.QRCodePerformance(gctx, ownerID, limit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

func percentage(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)*10000/float64(total)) / 100
}
