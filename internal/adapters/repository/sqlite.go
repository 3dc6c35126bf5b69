package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // database/sql driver

	"github.com/okian/sonder/internal/domain/calibration"
	"github.com/okian/sonder/internal/domain/model"
)

// SQLiteStore implements Store on a single sqlite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the database at path. Use ":memory:" for tests.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows one writer; a single connection sidesteps busy errors
	// between the request path and batch recompute.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateSession(ctx context.Context, ownerID string) (model.Session, error) {
	now := s.now().UTC()
	sess := model.Session{
		ID:        uuid.NewString(),
		Status:    model.StatusInProgress,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, status, owner_id, created_at_unix, updated_at_unix) VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.Status, sess.OwnerID, now.Unix(), now.Unix(),
	)
	if err != nil {
		return model.Session{}, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, owner_id, share_token_id, engine_version, fc_version, created_at_unix, updated_at_unix
		 FROM sessions WHERE id = ?`, id)

	var sess model.Session
	var created, updated int64
	err := row.Scan(&sess.ID, &sess.Status, &sess.OwnerID, &sess.ShareTokenID,
		&sess.EngineVersion, &sess.FCVersion, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("reading session: %w", err)
	}
	sess.CreatedAt = time.Unix(created, 0).UTC()
	sess.UpdatedAt = time.Unix(updated, 0).UTC()
	return sess, nil
}

func (s *SQLiteStore) SetSessionStatus(ctx context.Context, id string, status model.SessionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at_unix = ? WHERE id = ?`,
		status, s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	return s.requireRow(res, id)
}

func (s *SQLiteStore) StampFinalized(ctx context.Context, id, engineVersion, fcVersion string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, engine_version = ?, fc_version = ?, updated_at_unix = ? WHERE id = ?`,
		model.StatusFinalized, engineVersion, fcVersion, s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("stamping session: %w", err)
	}
	return s.requireRow(res, id)
}

func (s *SQLiteStore) RotateShareToken(ctx context.Context, sessionID, tokenID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET share_token_id = ?, updated_at_unix = ? WHERE id = ?`,
		tokenID, s.now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("rotating share token: %w", err)
	}
	return s.requireRow(res, sessionID)
}

func (s *SQLiteStore) requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, stmt := range []string{
		`DELETE FROM profiles WHERE session_id = ?`,
		`DELETE FROM fc_scores WHERE session_id = ?`,
		`DELETE FROM responses WHERE session_id = ?`,
		`DELETE FROM sessions WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CleanupSessions(ctx context.Context, before time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE status = ? AND updated_at_unix < ?`,
		model.StatusInProgress, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("listing stale sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := s.DeleteSession(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *SQLiteStore) ListCompletedSessions(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE status IN (?, ?) AND updated_at_unix >= ?
		 ORDER BY updated_at_unix ASC LIMIT ?`,
		model.StatusCompleted, model.StatusFinalized, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing completed sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SaveResponses(ctx context.Context, rs []model.Response) (int, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("saving responses: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO responses (session_id, question_id, kind, tag, block_id, value, scale_version, submitted_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, question_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("saving responses: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rs {
		at := r.SubmittedAt
		if at.IsZero() {
			at = s.now().UTC()
		}
		res, err := stmt.ExecContext(ctx, r.SessionID, r.QuestionID, r.Kind, r.Tag,
			r.BlockID, r.Value, r.ScaleVersion, at.Unix())
		if err != nil {
			return 0, fmt.Errorf("saving response %s: %w", r.QuestionID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at_unix = ? WHERE id = ?`,
		s.now().Unix(), rs[0].SessionID); err != nil {
		return 0, err
	}
	return inserted, tx.Commit()
}

func (s *SQLiteStore) ListResponses(ctx context.Context, sessionID string, kind model.ResponseKind) ([]model.Response, error) {
	q := `SELECT session_id, question_id, kind, tag, block_id, value, scale_version, submitted_at_unix
	      FROM responses WHERE session_id = ?`
	args := []any{sessionID}
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += ` ORDER BY question_id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	var out []model.Response
	for rows.Next() {
		var r model.Response
		var at int64
		if err := rows.Scan(&r.SessionID, &r.QuestionID, &r.Kind, &r.Tag,
			&r.BlockID, &r.Value, &r.ScaleVersion, &at); err != nil {
			return nil, err
		}
		r.SubmittedAt = time.Unix(at, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) NormalizeLikertScale(ctx context.Context, sessionID string) (int, error) {
	// scale_version is the idempotence marker: only legacy rows move.
	res, err := s.db.ExecContext(ctx,
		`UPDATE responses SET value = value + 1, scale_version = 1
		 WHERE session_id = ? AND kind = ? AND scale_version = 0`,
		sessionID, model.KindLikert)
	if err != nil {
		return 0, fmt.Errorf("normalizing likert scale: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) UpsertFCScore(ctx context.Context, sc model.FCScore) error {
	scores, err := json.Marshal(sc.Scores)
	if err != nil {
		return fmt.Errorf("encoding fc scores: %w", err)
	}
	at := sc.ComputedAt
	if at.IsZero() {
		at = s.now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fc_scores (session_id, version, basis, blocks_answered, scores_json, computed_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, version) DO UPDATE SET
		   basis = excluded.basis,
		   blocks_answered = excluded.blocks_answered,
		   scores_json = excluded.scores_json,
		   computed_at_unix = excluded.computed_at_unix`,
		sc.SessionID, sc.Version, sc.Basis, sc.BlocksAnswered, string(scores), at.Unix())
	if err != nil {
		return fmt.Errorf("upserting fc score: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetFCScore(ctx context.Context, sessionID, version string) (model.FCScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, version, basis, blocks_answered, scores_json, computed_at_unix
		 FROM fc_scores WHERE session_id = ? AND version = ?`, sessionID, version)

	var sc model.FCScore
	var scoresJSON string
	var at int64
	err := row.Scan(&sc.SessionID, &sc.Version, &sc.Basis, &sc.BlocksAnswered, &scoresJSON, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.FCScore{}, fmt.Errorf("fc score %s@%s: %w", sessionID, version, ErrNotFound)
	}
	if err != nil {
		return model.FCScore{}, fmt.Errorf("reading fc score: %w", err)
	}
	if err := json.Unmarshal([]byte(scoresJSON), &sc.Scores); err != nil {
		return model.FCScore{}, fmt.Errorf("decoding fc scores: %w", err)
	}
	sc.ComputedAt = time.Unix(at, 0).UTC()
	return sc, nil
}

// SaveProfile performs the optimistic-concurrency write: the profile lands
// only when its results_version is not older than the stored one. The check
// and the write share one transaction, so a racing older-version writer
// loses without corrupting state.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p model.Profile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var stored string
	err = tx.QueryRowContext(ctx,
		`SELECT results_version FROM profiles WHERE session_id = ?`, p.SessionID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// first profile for this session
	case err != nil:
		return fmt.Errorf("reading stored results_version: %w", err)
	case model.CompareResultsVersions(p.ResultsVersion, stored) < 0:
		return fmt.Errorf("stored %s, got %s: %w", stored, p.ResultsVersion, ErrStaleVersion)
	}

	dimScores, err := json.Marshal(p.DimScores)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	traitScores, err := json.Marshal(p.TraitScores)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	topTypes, err := json.Marshal(p.TopTypes)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	typeScores, err := json.Marshal(p.TypeScores)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO profiles (
			session_id, results_version, type_code, base_function, creative_function,
			dim_scores_json, trait_scores_json, neuro_mean, neuro_z, overlay,
			fit_raw, fit_calibrated, fit_band, conf_raw, conf_calibrated, conf_band,
			close_call, top_gap, top_types_json, type_scores_json, source,
			low_confidence, finalized_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.ResultsVersion, p.TypeCode, p.BaseFunction, p.CreativeFunction,
		string(dimScores), string(traitScores), p.NeuroMean, p.NeuroZ, p.Overlay,
		p.FitRaw, p.FitCalibrated, p.FitBand, p.ConfidenceRaw, p.ConfidenceCal, p.ConfidenceBand,
		boolToInt(p.CloseCall), p.TopGap, string(topTypes), string(typeScores), p.Source,
		boolToInt(p.LowConfidence), p.FinalizedAt.Unix())
	if err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetProfile(ctx context.Context, sessionID string) (model.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, results_version, type_code, base_function, creative_function,
		        dim_scores_json, trait_scores_json, neuro_mean, neuro_z, overlay,
		        fit_raw, fit_calibrated, fit_band, conf_raw, conf_calibrated, conf_band,
		        close_call, top_gap, top_types_json, type_scores_json, source,
		        low_confidence, finalized_at_unix
		 FROM profiles WHERE session_id = ?`, sessionID)

	var p model.Profile
	var dimScores, traitScores, topTypes, typeScores string
	var closeCall, lowConf int
	var at int64
	err := row.Scan(&p.SessionID, &p.ResultsVersion, &p.TypeCode, &p.BaseFunction, &p.CreativeFunction,
		&dimScores, &traitScores, &p.NeuroMean, &p.NeuroZ, &p.Overlay,
		&p.FitRaw, &p.FitCalibrated, &p.FitBand, &p.ConfidenceRaw, &p.ConfidenceCal, &p.ConfidenceBand,
		&closeCall, &p.TopGap, &topTypes, &typeScores, &p.Source,
		&lowConf, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, fmt.Errorf("profile %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return model.Profile{}, fmt.Errorf("reading profile: %w", err)
	}

	if err := json.Unmarshal([]byte(dimScores), &p.DimScores); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := json.Unmarshal([]byte(traitScores), &p.TraitScores); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := json.Unmarshal([]byte(topTypes), &p.TopTypes); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if err := json.Unmarshal([]byte(typeScores), &p.TypeScores); err != nil {
		return model.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	p.CloseCall = closeCall != 0
	p.LowConfidence = lowConf != 0
	p.FinalizedAt = time.Unix(at, 0).UTC()
	return p, nil
}

func (s *SQLiteStore) CalibrationAnchors(ctx context.Context, version, metric string) ([]calibration.Anchor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT raw, calibrated, band FROM calibration_anchors
		 WHERE version = ? AND metric = ? ORDER BY raw ASC`, version, metric)
	if err != nil {
		return nil, fmt.Errorf("reading calibration anchors: %w", err)
	}
	defer rows.Close()

	var anchors []calibration.Anchor
	for rows.Next() {
		var a calibration.Anchor
		if err := rows.Scan(&a.Raw, &a.Calibrated, &a.Band); err != nil {
			return nil, err
		}
		anchors = append(anchors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(anchors) == 0 {
		return nil, fmt.Errorf("version %s metric %s: %w", version, metric, ErrNoCalibration)
	}
	return anchors, nil
}

func (s *SQLiteStore) ReplaceCalibrationTable(ctx context.Context, version, metric string, anchors []calibration.Anchor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replacing calibration table: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM calibration_anchors WHERE version = ? AND metric = ?`, version, metric); err != nil {
		return fmt.Errorf("replacing calibration table: %w", err)
	}
	for _, a := range anchors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calibration_anchors (version, metric, raw, calibrated, band) VALUES (?, ?, ?, ?, ?)`,
			version, metric, a.Raw, a.Calibrated, a.Band); err != nil {
			return fmt.Errorf("replacing calibration table: %w", err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
