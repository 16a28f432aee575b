// Package memstore is an in-process implementation of service.Store. It backs the
// "memory" database driver for local runs and the service and handler tests.
//
// Aggregations are computed with a map-reduce over the stored rows.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"qrtrack/internal/apperr"
	"qrtrack/internal/service"
	"qrtrack/models"
)

type Store struct {
	mu sync.RWMutex

	users      map[uint]*models.User
	categories map[uint]*models.Category
	qrcodes    map[uint]*models.QRCode
	byCodeID   map[string]uint
	scans      []models.Scan

	nextID uint
	now    func() time.Time
}

var _ service.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[uint]*models.User),
		categories: make(map[uint]*models.Category),
		qrcodes:    make(map[uint]*models.QRCode),
		byCodeID:   make(map[string]uint),
		now:        time.Now,
	}
}

func (s *Store) id() uint {
	s.nextID++
	return s.nextID
}

func (s *Store) stamp() time.Time { return s.now().UTC() }

// Users

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperr.Conflict("email already in use")
		}
	}
	u.ID = s.id()
	u.CreatedAt = s.stamp()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	return cloneUser(u), nil
}

func (s *Store) SaveUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return apperr.NotFound("user not found")
	}
	u.UpdatedAt = s.stamp()
	s.users[u.ID] = cloneUser(u)
	return nil
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.WebsiteURLs = append([]models.WebsiteURL(nil), u.WebsiteURLs...)
	return &c
}

// Categories

func (s *Store) CreateCategory(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if existing.NameKey == c.NameKey {
			return apperr.Conflict("category already exists")
		}
	}
	c.ID = s.id()
	c.CreatedAt = s.stamp()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) GetCategory(_ context.Context, id uint) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, apperr.NotFound("category not found")
	}
	cp := *c
	return &cp, nil
}

func (s *Store) FindCategoryByKey(_ context.Context, key string) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.categories {
		if c.NameKey == key {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("category not found")
}

func (s *Store) ListCategories(_ context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveCategory(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[c.ID]; !ok {
		return apperr.NotFound("category not found")
	}
	for _, existing := range s.categories {
		if existing.ID != c.ID && existing.NameKey == c.NameKey {
			return apperr.Conflict("category already exists")
		}
	}
	c.UpdatedAt = s.stamp()
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return apperr.NotFound("category not found")
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CountQRCodesByCategory(_ context.Context, categoryID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, q := range s.qrcodes {
		if q.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// QR codes

func (s *Store) CreateQRCode(_ context.Context, q *models.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCodeID[q.CodeID]; ok {
		return apperr.Conflict("code id already exists")
	}
	q.ID = s.id()
	q.CreatedAt = s.stamp()
	q.UpdatedAt = q.CreatedAt
	s.qrcodes[q.ID] = stripQRCode(q)
	s.byCodeID[q.CodeID] = q.ID
	return nil
}

func (s *Store) GetQRCode(_ context.Context, codeID string) (*models.QRCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCodeID[codeID]
	if !ok {
		return nil, apperr.UnknownCode(codeID)
	}
	return s.loadQRCode(s.qrcodes[id]), nil
}

func (s *Store) ListQRCodes(_ context.Context, ownerID uint) ([]models.QRCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.QRCode, 0)
	for _, q := range s.qrcodes {
		if ownerID != 0 && q.AssignedToID != ownerID {
			continue
		}
		out = append(out, *s.loadQRCode(q))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) SaveQRCode(_ context.Context, q *models.QRCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.qrcodes[q.ID]
	if !ok {
		return apperr.UnknownCode(q.CodeID)
	}
	q.UpdatedAt = s.stamp()
	stored := stripQRCode(q)
	// Counters are only ever moved by IncrementScanCount and RecountScans.
	stored.ScanCount = existing.ScanCount
	stored.LastScanned = existing.LastScanned
	s.qrcodes[q.ID] = stored
	return nil
}

func (s *Store) IncrementScanCount(_ context.Context, id uint, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.qrcodes[id]
	if !ok {
		return 0, apperr.NotFound("qr code not found")
	}
	q.ScanCount++
	t := at
	q.LastScanned = &t
	return q.ScanCount, nil
}

func stripQRCode(q *models.QRCode) *models.QRCode {
	c := *q
	c.AssignedTo = nil
	c.Category = nil
	return &c
}

// loadQRCode returns a copy with associations attached. Callers hold s.mu.
func (s *Store) loadQRCode(q *models.QRCode) *models.QRCode {
	c := *q
	if u, ok := s.users[q.AssignedToID]; ok {
		c.AssignedTo = cloneUser(u)
	}
	if cat, ok := s.categories[q.CategoryID]; ok {
		cp := *cat
		c.Category = &cp
	}
	return &c
}

// Scans

func (s *Store) CreateScan(_ context.Context, scan *models.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scan.ID = s.id()
	s.scans = append(s.scans, *scan)
	return nil
}

// Scans returns a copy of every stored scan row.
func (s *Store) Scans() []models.Scan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Scan(nil), s.scans...)
}

func (s *Store) FindScanCountDrift(_ context.Context, settledBefore time.Time) ([]service.ScanCountDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := s.scanCountsLocked()
	out := make([]service.ScanCountDrift, 0)
	for _, q := range s.qrcodes {
		if s.hasScanSinceLocked(q.ID, settledBefore) {
			continue
		}
		if actual := counts[q.ID]; actual != q.ScanCount {
			out = append(out, service.ScanCountDrift{QRCodeID: q.ID, CodeID: q.CodeID, Cached: q.ScanCount, Actual: actual})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QRCodeID < out[j].QRCodeID })
	return out, nil
}

func (s *Store) RecountScans(_ context.Context, qrCodeID uint, settledBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.qrcodes[qrCodeID]
	if !ok {
		return 0, apperr.NotFound("qr code not found")
	}
	if s.hasScanSinceLocked(qrCodeID, settledBefore) {
		return 0, apperr.Conflict("recent scans not settled")
	}
	q.ScanCount = s.scanCountsLocked()[qrCodeID]
	return q.ScanCount, nil
}

func (s *Store) hasScanSinceLocked(qrCodeID uint, t time.Time) bool {
	for _, sc := range s.scans {
		if sc.QRCodeID == qrCodeID && !sc.Timestamp.Before(t) {
			return true
		}
	}
	return false
}

func (s *Store) scanCountsLocked() map[uint]int64 {
	counts := make(map[uint]int64, len(s.qrcodes))
	for _, sc := range s.scans {
		counts[sc.QRCodeID]++
	}
	return counts
}

// Analytics

func (s *Store) ownedBy(qrCodeID, ownerID uint) bool {
	if ownerID == 0 {
		return true
	}
	q, ok := s.qrcodes[qrCodeID]
	return ok && q.AssignedToID == ownerID
}

func (s *Store) DeviceCounts(_ context.Context, ownerID uint) (service.DeviceCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c service.DeviceCounts
	for _, sc := range s.scans {
		if !s.ownedBy(sc.QRCodeID, ownerID) {
			continue
		}
		c.Total++
		d := sc.DeviceInfo
		if d.IsAndroid {
			c.Android++
		}
		if d.IsIOS {
			c.IOS++
		}
		if d.IsDesktop {
			c.Desktop++
		}
		if d.IsMobile {
			c.Mobile++
		}
		if d.IsTablet {
			c.Tablet++
		}
	}
	return c, nil
}

func (s *Store) ScanBuckets(_ context.Context, ownerID uint, period service.Period, since time.Time) ([]service.TimeBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[time.Time]int64)
	for _, sc := range s.scans {
		if sc.Timestamp.Before(since) || !s.ownedBy(sc.QRCodeID, ownerID) {
			continue
		}
		counts[period.Truncate(sc.Timestamp)]++
	}

	out := make([]service.TimeBucket, 0, len(counts))
	for start, n := range counts {
		out = append(out, service.TimeBucket{Start: start, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (s *Store) CategoryScanTotals(_ context.Context, ownerID uint) ([]service.CategoryTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := make(map[uint]*service.CategoryTotal)
	for _, q := range s.qrcodes {
		if ownerID != 0 && q.AssignedToID != ownerID {
			continue
		}
		cat, ok := s.categories[q.CategoryID]
		if !ok {
			continue
		}
		t, ok := byCategory[cat.ID]
		if !ok {
			t = &service.CategoryTotal{CategoryID: cat.ID, Name: cat.Name, Color: cat.Color}
			byCategory[cat.ID] = t
		}
		t.QRCodes++
		t.Scans += q.ScanCount
	}

	out := make([]service.CategoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scans != out[j].Scans {
			return out[i].Scans > out[j].Scans
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) QRCodeScanTotals(_ context.Context, ownerID uint, limit int) ([]service.QRCodeTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]service.QRCodeTotal, 0)
	for _, q := range s.qrcodes {
		if ownerID != 0 && q.AssignedToID != ownerID {
			continue
		}
		t := service.QRCodeTotal{
			CodeID:       q.CodeID,
			WebsiteTitle: q.WebsiteTitle,
			WebsiteURL:   q.WebsiteURL,
			IsActive:     q.IsActive,
			Scans:        q.ScanCount,
		}
		if cat, ok := s.categories[q.CategoryID]; ok {
			t.CategoryName = cat.Name
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scans != out[j].Scans {
			return out[i].Scans > out[j].Scans
		}
		return out[i].CodeID < out[j].CodeID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TotalScanCount(_ context.Context, ownerID uint) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, q := range s.qrcodes {
		if ownerID == 0 || q.AssignedToID == ownerID {
			total += q.ScanCount
		}
	}
	return total, nil
}
