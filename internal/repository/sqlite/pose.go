package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"posevault/internal/domain"
)

// PoseRepository implements domain.PoseRepository using SQLite. Keypoint
// sequences are stored as JSON columns; the optional landmark subset and
// visibility vector are NULL when absent.
type PoseRepository struct {
	db *sql.DB
}

// NewPoseRepository creates a new SQLite-backed PoseRepository.
func NewPoseRepository(db *DB) *PoseRepository {
	return &PoseRepository{db: db.SqlDB}
}

const poseColumns = `id, image_ref, keypoints, landmarks, visibility, confidence, image_width, image_height, created_at, updated_at`

func (r *PoseRepository) Create(ctx context.Context, rec *domain.PoseRecord) error {
	keypoints, err := json.Marshal(rec.Keypoints)
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "encode keypoints", Err: err}
	}

	var landmarks, visibility sql.NullString
	if len(rec.Landmarks) > 0 {
		b, err := json.Marshal(rec.Landmarks)
		if err != nil {
			return &domain.StoreError{Store: "pose", Op: "encode landmarks", Err: err}
		}
		landmarks = sql.NullString{String: string(b), Valid: true}
	}
	if len(rec.Visibility) > 0 {
		b, err := json.Marshal(rec.Visibility)
		if err != nil {
			return &domain.StoreError{Store: "pose", Op: "encode visibility", Err: err}
		}
		visibility = sql.NullString{String: string(b), Valid: true}
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pose_records (id, image_ref, keypoints, landmarks, visibility, confidence, image_width, image_height, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ImageRef, string(keypoints), landmarks, visibility,
		rec.Confidence, rec.ImageWidth, rec.ImageHeight, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.ErrDuplicateImage
		}
		return &domain.StoreError{Store: "pose", Op: "insert record", Err: err}
	}

	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (r *PoseRepository) GetByID(ctx context.Context, id string) (*domain.PoseRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+poseColumns+` FROM pose_records WHERE id = ?`, id)
	return scanPose(row.Scan, "query record by id")
}

func (r *PoseRepository) GetByImageRef(ctx context.Context, ref string) (*domain.PoseRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+poseColumns+` FROM pose_records WHERE image_ref = ?`, ref)
	return scanPose(row.Scan, "query record by image ref")
}

func (r *PoseRepository) List(ctx context.Context, offset, limit int) ([]domain.PoseRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+poseColumns+` FROM pose_records
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, &domain.StoreError{Store: "pose", Op: "list records", Err: err}
	}
	defer rows.Close()

	var records []domain.PoseRecord
	for rows.Next() {
		rec, err := scanPose(rows.Scan, "scan record")
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Store: "pose", Op: "list records", Err: err}
	}
	return records, nil
}

func (r *PoseRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pose_records`).Scan(&count)
	if err != nil {
		return 0, &domain.StoreError{Store: "pose", Op: "count records", Err: err}
	}
	return count, nil
}

func (r *PoseRepository) ReplaceKeypoints(ctx context.Context, id string, keypoints, landmarks []domain.Keypoint, visibility []float64) error {
	kps, err := json.Marshal(keypoints)
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "encode keypoints", Err: err}
	}

	var lms, vis sql.NullString
	if len(landmarks) > 0 {
		b, err := json.Marshal(landmarks)
		if err != nil {
			return &domain.StoreError{Store: "pose", Op: "encode landmarks", Err: err}
		}
		lms = sql.NullString{String: string(b), Valid: true}
	}
	if len(visibility) > 0 {
		b, err := json.Marshal(visibility)
		if err != nil {
			return &domain.StoreError{Store: "pose", Op: "encode visibility", Err: err}
		}
		vis = sql.NullString{String: string(b), Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE pose_records SET keypoints = ?, landmarks = ?, visibility = ?, updated_at = ? WHERE id = ?`,
		string(kps), lms, vis, time.Now().UTC(), id,
	)
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "update keypoints", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "update keypoints", Err: err}
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PoseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pose_records WHERE id = ?`, id)
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "delete record", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return &domain.StoreError{Store: "pose", Op: "delete record", Err: err}
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// scanPose scans one pose_records row and decodes its JSON columns.
func scanPose(scan func(dest ...any) error, op string) (*domain.PoseRecord, error) {
	rec := &domain.PoseRecord{}
	var keypoints string
	var landmarks, visibility sql.NullString
	err := scan(&rec.ID, &rec.ImageRef, &keypoints, &landmarks, &visibility,
		&rec.Confidence, &rec.ImageWidth, &rec.ImageHeight, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Store: "pose", Op: op, Err: err}
	}

	if err := json.Unmarshal([]byte(keypoints), &rec.Keypoints); err != nil {
		return nil, &domain.StoreError{Store: "pose", Op: "decode keypoints", Err: err}
	}
	if landmarks.Valid {
		if err := json.Unmarshal([]byte(landmarks.String), &rec.Landmarks); err != nil {
			return nil, &domain.StoreError{Store: "pose", Op: "decode landmarks", Err: err}
		}
	}
	if visibility.Valid {
		if err := json.Unmarshal([]byte(visibility.String), &rec.Visibility); err != nil {
			return nil, &domain.StoreError{Store: "pose", Op: "decode visibility", Err: err}
		}
	}
	return rec, nil
}

// isUniqueConstraintError checks if the error is a SQLite unique constraint
// violation.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
