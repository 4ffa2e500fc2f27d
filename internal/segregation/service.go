// Package segregation owns the invariant that a profile's data lives only in
// that profile's namespaced collections. It encrypts sensitive payloads
// through the layered encryptor, stamps every stored item with integrity
// checksums, and provides the scans that prove the invariant still holds.
package segregation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"profilevault/internal/cryptoprov"
	"profilevault/internal/encryption"
	"profilevault/internal/platform/metrics"
	"profilevault/internal/recordstore"
	id "profilevault/pkg/domain"
	dErrors "profilevault/pkg/domain-errors"
	audit "profilevault/pkg/platform/audit"
	"profilevault/pkg/requestcontext"
)

var tracer = otel.Tracer("profilevault.segregation")

// scanConcurrency bounds parallel collection scans in verify and leakage
// passes.
const scanConcurrency = 4

// Segregator stores and retrieves profile data under namespaced collections.
type Segregator struct {
	records   recordstore.Store
	encryptor *encryption.Encryptor
	provider  cryptoprov.Provider
	audit     *audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Segregator.
type Option func(*Segregator)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Segregator) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Segregator) { s.metrics = m }
}

func WithAudit(pub *audit.Publisher) Option {
	return func(s *Segregator) { s.audit = pub }
}

func NewSegregator(records recordstore.Store, encryptor *encryption.Encryptor, provider cryptoprov.Provider, opts ...Option) *Segregator {
	s := &Segregator{
		records:   records,
		encryptor: encryptor,
		provider:  provider,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Isolate stores data under the profile's namespaced collection. Payloads at
// CONFIDENTIAL sensitivity and above are encrypted before storage; everything
// gets a payload checksum and a namespace-binding checksum.
func (s *Segregator) Isolate(ctx context.Context, profileID id.ProfileID, collection id.CollectionName, data any, sensitivity id.Sensitivity) (*IsolatedData, error) {
	ctx, span := tracer.Start(ctx, "segregation.Isolate",
		trace.WithAttributes(
			attribute.String("profile_id", profileID.String()),
			attribute.String("collection", collection.String()),
			attribute.String("sensitivity", sensitivity.String()),
		),
	)
	defer span.End()

	if _, err := id.ParseProfileID(profileID.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid profile id")
	}
	if _, err := id.ParseCollectionName(collection.String()); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid collection name")
	}
	if !sensitivity.Valid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid sensitivity %d", sensitivity)
	}

	encrypted := sensitivity.AtLeast(id.SensitivityConfidential)
	var payload []byte
	var err error
	if encrypted {
		envelope, encErr := s.encryptor.EncryptForProfile(profileID, data, sensitivity)
		if encErr != nil {
			span.RecordError(encErr)
			span.SetStatus(codes.Error, "encrypt failed")
			return nil, encErr
		}
		payload, err = json.Marshal(envelope)
	} else {
		payload, err = json.Marshal(data)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "serialize payload")
	}

	now := requestcontext.Now(ctx).UTC()
	namespaced := id.Namespaced(profileID, collection)
	item := &IsolatedData{
		ID:        id.NewRecordID().String(),
		ProfileID: profileID,
		Data:      payload,
		Isolation: IsolationState{
			Encrypted:  encrypted,
			Segregated: true,
			Verified:   true,
		},
		Metadata: ItemMetadata{
			Created:         now,
			Modified:        now,
			Checksum:        s.provider.Digest(payload),
			ProfileChecksum: s.namespaceChecksum(profileID, namespaced),
		},
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "serialize isolated item")
	}
	if err := s.records.Set(ctx, namespaced, item.ID, raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return nil, fmt.Errorf("store isolated item: %w", err)
	}

	s.emit(ctx, audit.Event{
		Severity:   audit.SeverityLow,
		Action:     audit.ActionDataIsolated,
		ProfileID:  profileID,
		Collection: collection.String(),
		Resource:   item.ID,
		Decision:   "stored",
	})
	return item, nil
}

// Retrieve fetches a record from the caller's namespace. The embedded owner
// must match the caller, the checksum must verify, and encrypted payloads are
// decrypted with the caller's keys only.
func (s *Segregator) Retrieve(ctx context.Context, profileID id.ProfileID, collection id.CollectionName, recordID string, out any) error {
	ctx, span := tracer.Start(ctx, "segregation.Retrieve",
		trace.WithAttributes(
			attribute.String("profile_id", profileID.String()),
			attribute.String("collection", collection.String()),
			attribute.String("record_id", recordID),
		),
	)
	defer span.End()

	namespaced := id.Namespaced(profileID, collection)
	raw, err := s.records.Get(ctx, namespaced, recordID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "record %s not found in %s", recordID, collection)
		}
		return fmt.Errorf("fetch isolated item: %w", err)
	}

	var item IsolatedData
	if err := json.Unmarshal(raw, &item); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode isolated item")
	}

	if item.ProfileID != profileID {
		s.recordViolation(ctx, span, audit.Event{
			Severity:      audit.SeverityHigh,
			Action:        audit.ActionCrossProfileDenied,
			ProfileID:     profileID,
			TargetProfile: item.ProfileID,
			Collection:    collection.String(),
			Resource:      recordID,
			Decision:      "denied",
			Reason:        "stored owner does not match requesting profile",
		}, string(ViolationContamination))
		return dErrors.Newf(dErrors.CodeCrossProfileAccess,
			"record %s is owned by another profile", recordID)
	}

	if !bytes.Equal(s.provider.Digest(item.Data), item.Metadata.Checksum) {
		s.recordViolation(ctx, span, audit.Event{
			Severity:   audit.SeverityCritical,
			Action:     audit.ActionIntegrityViolation,
			ProfileID:  profileID,
			Collection: collection.String(),
			Resource:   recordID,
			Decision:   "denied",
			Reason:     "payload checksum mismatch",
		}, string(ViolationCorruption))
		return dErrors.Newf(dErrors.CodeIntegrityViolation,
			"record %s failed its integrity check", recordID)
	}

	if item.Isolation.Encrypted {
		var envelope encryption.Envelope
		if err := json.Unmarshal(item.Data, &envelope); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode envelope")
		}
		if err := s.encryptor.DecryptForProfile(profileID, &envelope, out); err != nil {
			span.RecordError(err)
			return err
		}
	} else if err := json.Unmarshal(item.Data, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode payload")
	}

	s.emit(ctx, audit.Event{
		Severity:   audit.SeverityLow,
		Action:     audit.ActionDataRetrieved,
		ProfileID:  profileID,
		Collection: collection.String(),
		Resource:   recordID,
		Decision:   "allowed",
	})
	return nil
}

// Remove deletes a record from the caller's namespace.
func (s *Segregator) Remove(ctx context.Context, profileID id.ProfileID, collection id.CollectionName, recordID string) error {
	if err := s.records.Delete(ctx, id.Namespaced(profileID, collection), recordID); err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "record %s not found in %s", recordID, collection)
		}
		return fmt.Errorf("delete isolated item: %w", err)
	}
	return nil
}

// VerifyIsolation scans every collection in the profile's namespace and
// tallies contamination (wrong embedded owner) and corruption (checksum
// mismatch). The score is the percentage of items that passed both checks;
// scans are read-only so repeated calls over unchanged data return the same
// score.
func (s *Segregator) VerifyIsolation(ctx context.Context, profileID id.ProfileID) (*IsolationReport, error) {
	ctx, span := tracer.Start(ctx, "segregation.VerifyIsolation",
		trace.WithAttributes(attribute.String("profile_id", profileID.String())),
	)
	defer span.End()

	collections, err := s.records.Collections(ctx, id.NamespacePrefix(profileID))
	if err != nil {
		return nil, fmt.Errorf("list profile collections: %w", err)
	}

	var mu sync.Mutex
	report := &IsolationReport{
		ProfileID:   profileID,
		Collections: len(collections),
		CheckedAt:   requestcontext.Now(ctx).UTC(),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scanConcurrency)
	for _, collection := range collections {
		if recordstore.IsGlobal(collection) {
			report.Collections--
			continue
		}
		group.Go(func() error {
			items, violations, err := s.scanCollection(groupCtx, collection, profileID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			report.Items += items
			for _, violation := range violations {
				switch violation.Type {
				case ViolationContamination:
					report.Contaminated++
				case ViolationCorruption:
					report.Corrupted++
				}
				report.Violations = append(report.Violations, violation)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sortViolations(report.Violations)
	report.Score = 100
	if report.Items > 0 {
		passed := report.Items - report.Contaminated - report.Corrupted
		report.Score = 100 * float64(passed) / float64(report.Items)
	}

	s.emit(ctx, audit.Event{
		Severity:  severityForScore(report.Score),
		Action:    audit.ActionIsolationVerified,
		ProfileID: profileID,
		Decision:  "verified",
		Reason:    fmt.Sprintf("score %.1f over %d items", report.Score, report.Items),
	})
	return report, nil
}

// DetectLeakage scans every profile namespace in the store plus the share
// ledger and produces a global security score.
func (s *Segregator) DetectLeakage(ctx context.Context) (*LeakageReport, error) {
	ctx, span := tracer.Start(ctx, "segregation.DetectLeakage")
	defer span.End()

	collections, err := s.records.Collections(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	profiles := make(map[id.ProfileID][]string)
	for _, collection := range collections {
		if recordstore.IsGlobal(collection) {
			continue
		}
		owner, ok := ownerOf(collection)
		if !ok {
			continue
		}
		profiles[owner] = append(profiles[owner], collection)
	}

	now := requestcontext.Now(ctx).UTC()
	report := &LeakageReport{
		ProfilesScanned: len(profiles),
		GeneratedAt:     now,
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(scanConcurrency)
	for owner, owned := range profiles {
		group.Go(func() error {
			for _, collection := range owned {
				items, violations, err := s.scanCollection(groupCtx, collection, owner)
				if err != nil {
					return err
				}
				mu.Lock()
				report.ItemsScanned += items
				report.Violations = append(report.Violations, violations...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	expired, err := s.expiredShares(ctx, now)
	if err != nil {
		return nil, err
	}
	report.ExpiredShares = expired
	for _, share := range expired {
		report.Violations = append(report.Violations, Violation{
			Type:       ViolationExpiredShare,
			Collection: share.Collection.String(),
			RecordID:   share.RecordID,
			Found:      share.Recipient,
			Expected:   share.Owner,
			Detail:     fmt.Sprintf("share %s expired %s without revocation", share.ID, share.ExpiresAt.Format(time.RFC3339)),
		})
	}

	sortViolations(report.Violations)
	report.SecurityScore = 100 - 10*len(report.Violations)
	if report.SecurityScore < 0 {
		report.SecurityScore = 0
	}
	report.Recommendations = recommendationsFor(report)

	s.emit(ctx, audit.Event{
		Severity: severityForScore(float64(report.SecurityScore)),
		Action:   audit.ActionLeakageScan,
		Decision: "scanned",
		Reason:   fmt.Sprintf("security score %d across %d profiles", report.SecurityScore, report.ProfilesScanned),
	})
	return report, nil
}

func (s *Segregator) scanCollection(ctx context.Context, collection string, owner id.ProfileID) (int, []Violation, error) {
	entries, err := s.records.Query(ctx, collection, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("scan collection %s: %w", collection, err)
	}

	var violations []Violation
	for _, entry := range entries {
		var item IsolatedData
		if err := json.Unmarshal(entry.Data, &item); err != nil {
			violations = append(violations, Violation{
				Type:       ViolationCorruption,
				Collection: collection,
				RecordID:   entry.ID,
				Expected:   owner,
				Detail:     "item is not decodable",
			})
			continue
		}
		if item.ProfileID != owner {
			violations = append(violations, Violation{
				Type:       ViolationContamination,
				Collection: collection,
				RecordID:   entry.ID,
				Expected:   owner,
				Found:      item.ProfileID,
			})
			continue
		}
		if !bytes.Equal(s.provider.Digest(item.Data), item.Metadata.Checksum) {
			violations = append(violations, Violation{
				Type:       ViolationCorruption,
				Collection: collection,
				RecordID:   entry.ID,
				Expected:   owner,
				Detail:     "payload checksum mismatch",
			})
		}
	}
	return len(entries), violations, nil
}

func (s *Segregator) namespaceChecksum(profileID id.ProfileID, namespaced string) []byte {
	return s.provider.Digest([]byte(profileID.String() + "\x00" + namespaced))
}

func (s *Segregator) recordViolation(ctx context.Context, span trace.Span, event audit.Event, violationType string) {
	span.SetStatus(codes.Error, event.Reason)
	if s.metrics != nil {
		s.metrics.IncViolation(violationType)
	}
	s.logger.WarnContext(ctx, "isolation violation",
		"action", event.Action,
		"profile_id", event.ProfileID,
		"collection", event.Collection,
		"reason", event.Reason,
	)
	s.emit(ctx, event)
}

func (s *Segregator) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	s.audit.Emit(ctx, event)
}

// ownerOf splits a namespaced collection into its owning profile. Profile IDs
// cannot contain underscores, so the first underscore is always the namespace
// separator.
func ownerOf(collection string) (id.ProfileID, bool) {
	idx := strings.Index(collection, "_")
	if idx <= 0 {
		return "", false
	}
	owner, err := id.ParseProfileID(collection[:idx])
	if err != nil {
		return "", false
	}
	return owner, true
}

func sortViolations(violations []Violation) {
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Collection != violations[j].Collection {
			return violations[i].Collection < violations[j].Collection
		}
		return violations[i].RecordID < violations[j].RecordID
	})
}

func severityForScore(score float64) audit.Severity {
	switch {
	case score >= 100:
		return audit.SeverityLow
	case score >= 70:
		return audit.SeverityMedium
	case score >= 40:
		return audit.SeverityHigh
	default:
		return audit.SeverityCritical
	}
}

func recommendationsFor(report *LeakageReport) []string {
	var out []string
	var contaminated, corrupted int
	for _, violation := range report.Violations {
		switch violation.Type {
		case ViolationContamination:
			contaminated++
		case ViolationCorruption:
			corrupted++
		}
	}
	if contaminated > 0 {
		out = append(out, fmt.Sprintf("quarantine and re-isolate %d contaminated record(s); rotate the affected profiles' keys", contaminated))
	}
	if corrupted > 0 {
		out = append(out, fmt.Sprintf("restore %d corrupted record(s) from profile backups", corrupted))
	}
	if len(report.ExpiredShares) > 0 {
		out = append(out, fmt.Sprintf("revoke %d expired data share(s)", len(report.ExpiredShares)))
	}
	if len(out) == 0 {
		out = append(out, "no action required")
	}
	return out
}
