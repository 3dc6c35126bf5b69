// Package repository defines the durable assessment store interface and errors.
package repository

import (
	"context"
	"time"

	"github.com/okian/sonder/internal/domain/calibration"
	"github.com/okian/sonder/internal/domain/model"
)

// Store provides read/write access to sessions, responses, scores and
// profiles. Implementations must make SaveProfile a single atomic
// compare-and-set on results_version.
type Store interface {
	// CreateSession starts a new session in in_progress state.
	CreateSession(ctx context.Context, ownerID string) (model.Session, error)

	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (model.Session, error)

	// SetSessionStatus moves a session between lifecycle states.
	SetSessionStatus(ctx context.Context, id string, status model.SessionStatus) error

	// StampFinalized marks a session finalized and records the versions used.
	StampFinalized(ctx context.Context, id, engineVersion, fcVersion string) error

	// RotateShareToken replaces the session's valid share token id,
	// revoking all previously issued tokens.
	RotateShareToken(ctx context.Context, sessionID, tokenID string) error

	// DeleteSession removes a session and its dependents. Deleting an
	// already-deleted session is a no-op, not an error.
	DeleteSession(ctx context.Context, id string) error

	// CleanupSessions purges in_progress sessions last touched before the
	// cutoff. Returns the purge count. Idempotent.
	CleanupSessions(ctx context.Context, before time.Time) (int, error)

	// ListCompletedSessions returns ids of completed or finalized sessions
	// updated since the given time, bounded by limit.
	ListCompletedSessions(ctx context.Context, since time.Time, limit int) ([]string, error)

	// SaveResponses stores a batch of answers. Resubmitting an already
	// stored (session, question) pair is ignored; returns inserted count.
	SaveResponses(ctx context.Context, rs []model.Response) (int, error)

	// ListResponses returns a session's answers, optionally filtered by kind.
	ListResponses(ctx context.Context, sessionID string, kind model.ResponseKind) ([]model.Response, error)

	// NormalizeLikertScale rebases legacy 0-based Likert values to the
	// 1-based scale and stamps them. Already-normalized rows are untouched,
	// so re-running is a no-op. Returns the rewritten row count.
	NormalizeLikertScale(ctx context.Context, sessionID string) (int, error)

	// UpsertFCScore replaces the row for (session, version) entirely.
	UpsertFCScore(ctx context.Context, s model.FCScore) error

	// GetFCScore returns ErrNotFound when no row exists for the pair.
	GetFCScore(ctx context.Context, sessionID, version string) (model.FCScore, error)

	// SaveProfile persists the profile iff its results_version is not older
	// than the stored one (compare-and-set inside one transaction).
	// Returns ErrStaleVersion when a newer profile is already stored.
	SaveProfile(ctx context.Context, p model.Profile) error

	// GetProfile returns the current profile, or ErrNotFound.
	GetProfile(ctx context.Context, sessionID string) (model.Profile, error)

	// CalibrationAnchors returns the fitted anchors for one table version
	// and metric ("fit" or "confidence"), ordered by raw ascending.
	// Returns ErrNoCalibration when the version has no table.
	CalibrationAnchors(ctx context.Context, version, metric string) ([]calibration.Anchor, error)

	// ReplaceCalibrationTable swaps in a new anchor set for a version and
	// metric. Used by the external calibration job; the pipeline only reads.
	ReplaceCalibrationTable(ctx context.Context, version, metric string, anchors []calibration.Anchor) error
}
