package service

import (
	"context"
	"time"

	"qrtrack/internal/apperr"
	"qrtrack/internal/device"
	"qrtrack/internal/logging"
	"qrtrack/internal/metrics"
	"qrtrack/models"
	"qrtrack/utils"
)

// ScanResult describes one recorded scan.
type ScanResult struct {
	Target      models.QRTarget
	Scan        *models.Scan
	ScanCount   int64
	LastScanned time.Time
	// CounterLag is set when the scan row was stored but the counter increment failed.
	CounterLag bool
}

// DefaultSettleWindow is how long a scan must be old before Reconcile touches its code.
const DefaultSettleWindow = time.Minute

type ScanService struct {
	qrcodes  QRCodeRepository
	scans    ScanRepository
	resolver Resolver
	settle   time.Duration
	now      func() time.Time
}

func NewScanService(qrcodes QRCodeRepository, scans ScanRepository, resolver Resolver) *ScanService {
	return &ScanService{
		qrcodes:  qrcodes,
		scans:    scans,
		resolver: resolver,
		settle:   DefaultSettleWindow,
		now:      time.Now,
	}
}

// SetSettleWindow changes how old the newest scan of a code must be before Reconcile
// recounts it. Negative values are treated as zero.
func (s *ScanService) SetSettleWindow(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.settle = d
}

// Verify returns the public view of an active code. It records nothing.
func (s *ScanService) Verify(ctx context.Context, codeID string) (*QRCodeView, error) {
	if !utils.ValidCodeID(codeID) {
		metrics.InvalidCodeLookups.WithLabelValues("verify", "not_found").Inc()
		return nil, apperr.UnknownCode(codeID)
	}
	qr, err := s.qrcodes.GetQRCode(ctx, codeID)
	if err != nil {
		if apperr.IsInvalidCode(err) {
			metrics.InvalidCodeLookups.WithLabelValues("verify", "not_found").Inc()
		}
		return nil, err
	}
	if !qr.IsActive {
		metrics.InvalidCodeLookups.WithLabelValues("verify", "inactive").Inc()
		return nil, apperr.InactiveCode(codeID)
	}
	return NewQRCodeView(qr), nil
}

// RecordScan stores one scan of an active code and bumps its counter by one.
//
// The scan insert happens before the counter increment and the two writes are not
// in one transaction. If the increment fails the scan stays recorded and the counter
// lags until the next reconcile.
func (s *ScanService) RecordScan(ctx context.Context, codeID, ipAddress, userAgent string) (*ScanResult, error) {
	target, err := s.resolveActive(ctx, codeID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	info := device.Parse(userAgent)
	scan := &models.Scan{
		CodeID:     target.CodeID,
		QRCodeID:   target.ID,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		DeviceInfo: info,
		Timestamp:  now,
	}
	if err := s.scans.CreateScan(ctx, scan); err != nil {
		return nil, err
	}
	metrics.ScansRecorded.WithLabelValues(info.DeviceType).Inc()

	result := &ScanResult{Target: *target, Scan: scan, LastScanned: now}

	count, err := s.qrcodes.IncrementScanCount(ctx, target.ID, now)
	if err != nil {
		metrics.ScanCounterDrift.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("code_id", codeID).Uint("scan_id", scan.ID).
			Msg("Scan stored but counter increment failed; scan count will lag until reconcile")
		result.CounterLag = true
		return result, nil
	}
	result.ScanCount = count
	return result, nil
}

// ScanAndVerify records a scan and returns the verify view with the updated count.
func (s *ScanService) ScanAndVerify(ctx context.Context, codeID, ipAddress, userAgent string) (*QRCodeView, error) {
	res, err := s.RecordScan(ctx, codeID, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	qr, err := s.qrcodes.GetQRCode(ctx, codeID)
	if err != nil {
		return nil, err
	}
	view := NewQRCodeView(qr)
	if res.ScanCount > view.ScanCount {
		view.ScanCount = res.ScanCount
	}
	return view, nil
}

func (s *ScanService) resolveActive(ctx context.Context, codeID string) (*models.QRTarget, error) {
	if !utils.ValidCodeID(codeID) {
		metrics.InvalidCodeLookups.WithLabelValues("scan", "not_found").Inc()
		return nil, apperr.UnknownCode(codeID)
	}
	target, err := s.resolver.Resolve(ctx, codeID)
	if err != nil {
		if apperr.IsInvalidCode(err) {
			metrics.InvalidCodeLookups.WithLabelValues("scan", "not_found").Inc()
		}
		return nil, err
	}
	if !target.IsActive {
		metrics.InvalidCodeLookups.WithLabelValues("scan", "inactive").Inc()
		return nil, apperr.InactiveCode(codeID)
	}
	return target, nil
}

// Reconcile recomputes scan_count for every code whose cached counter disagrees with
// its scan rows and returns what it corrected.
//
// Codes scanned within the settle window are left alone: their newest scan may still
// be between its insert and its increment, and recounting it then would count it twice.
// They are picked up by a later run.
func (s *ScanService) Reconcile(ctx context.Context) ([]ScanCountDrift, error) {
	settledBefore := s.now().UTC().Add(-s.settle)
	drifts, err := s.scans.FindScanCountDrift(ctx, settledBefore)
	if err != nil {
		return nil, err
	}

	fixed := make([]ScanCountDrift, 0, len(drifts))
	for _, d := range drifts {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}
		count, err := s.scans.RecountScans(ctx, d.QRCodeID, settledBefore)
		if apperr.CodeOf(err) == apperr.CodeConflict {
			logging.Ctx(ctx).Debug().Str("code_id", d.CodeID).Msg("Scan count not settled, skipping recount")
			continue
		}
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("code_id", d.CodeID).Msg("Failed to recount scans")
			continue
		}
		d.Actual = count
		fixed = append(fixed, d)
		metrics.CountersReconciled.Inc()
		logging.Ctx(ctx).Info().Str("code_id", d.CodeID).Int64("cached", d.Cached).
			Int64("actual", count).Msg("Scan count reconciled")
	}
	return fixed, nil
}

// RunReconcileLoop reconciles every interval until ctx is done.
func (s *ScanService) RunReconcileLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				logging.Error().Err(err).Msg("Scan count reconcile failed")
			}
		case <-ctx.Done():
			return
		}
	}
}
