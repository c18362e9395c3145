package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
)

// PGStore is the Postgres Store, used through database/sql with the pgx driver.
type PGStore struct {
	DB *sql.DB
}

var _ Store = (*PGStore)(nil)

const intakeColumns = `id, user_id, status, document_id, original_name, storage_type, fields,
  extracted_text, extracted_content, ai_metadata, error_message,
  started_at, finished_at, finalized_at, created_at, updated_at`

const documentColumns = `id, user_id, title, reference_number, issuer, category_id,
  document_date, received_at, notes, tags, extracted_content, ai_metadata,
  status, binder_id, created_at, updated_at`

const mediaColumns = `id, owner_type, owner_id, collection, file_name, mime_type, size,
  storage_key, properties, conversions, created_at`

const resetAnalysis = `fields = NULL,
  extracted_text = NULL,
  extracted_content = NULL,
  ai_metadata = NULL,
  error_message = NULL,
  started_at = NULL,
  finished_at = NULL`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *PGStore) CreateIntake(ctx context.Context, intake *models.Intake) error {
	const query = `
INSERT INTO document_intakes (user_id, status, original_name, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
RETURNING id, created_at, updated_at`
	if intake.Status == "" {
		intake.Status = models.IntakeUploaded
	}
	return r.DB.QueryRowContext(ctx, query, intake.UserID, string(intake.Status), intake.OriginalName).
		Scan(&intake.ID, &intake.CreatedAt, &intake.UpdatedAt)
}

func (r *PGStore) GetIntake(ctx context.Context, id int64) (*models.Intake, error) {
	query := `SELECT ` + intakeColumns + ` FROM document_intakes WHERE id = $1`
	in, err := scanIntake(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	return in, err
}

func (r *PGStore) ListIntakes(ctx context.Context, userID int64, ids []int64) ([]*models.Intake, error) {
	if ids != nil && len(ids) == 0 {
		return []*models.Intake{}, nil
	}
	query := `SELECT ` + intakeColumns + ` FROM document_intakes WHERE user_id = $1`
	args := []any{userID}
	if ids != nil {
		placeholders := make([]string, len(ids))
		for i, id := range ids {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", i+2)
		}
		query += ` AND id IN (` + strings.Join(placeholders, ", ") + `)`
	}
	query += ` ORDER BY id DESC`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Intake, 0)
	for rows.Next() {
		in, err := scanIntake(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *PGStore) QueueIntake(ctx context.Context, id int64, mode QueueMode) (*models.Intake, error) {
	cond := `status = 'uploaded'`
	if mode == QueueRetry {
		cond = `(status = 'failed' OR (status = 'done' AND document_id IS NULL))`
	}
	query := `
UPDATE document_intakes SET status = 'queued', ` + resetAnalysis + `, updated_at = now()
WHERE id = $1 AND ` + cond + `
RETURNING ` + intakeColumns
	in, err := scanIntake(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missingOrConflict(ctx, r.DB, id)
	}
	return in, err
}

func (r *PGStore) MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error) {
	const query = `
UPDATE document_intakes
SET status = 'processing', started_at = $2, finished_at = NULL, error_message = NULL, updated_at = now()
WHERE id = $1 AND status NOT IN ('done', 'finalized')`
	return r.execGuarded(ctx, id, query, id, at)
}

func (r *PGStore) MarkDone(ctx context.Context, id int64, result models.AnalysisResult, at time.Time) error {
	const query = `
UPDATE document_intakes
SET status = 'done', document_id = $2, fields = $3, extracted_text = $4, extracted_content = $5,
  ai_metadata = $6, error_message = NULL, finished_at = $7, updated_at = now()
WHERE id = $1 AND status = 'processing'`
	fields, err := fieldsArg(result.Fields)
	if err != nil {
		return err
	}
	content, err := mapArg(result.ExtractedContent)
	if err != nil {
		return err
	}
	meta, err := mapArg(result.AIMetadata)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, query, id, result.DocumentID, fields, nullString(result.ExtractedText), content, meta, at)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return missingOrConflict(ctx, r.DB, id)
	}
	return nil
}

func (r *PGStore) MarkFailed(ctx context.Context, id int64, message string, at time.Time) (bool, error) {
	const query = `
UPDATE document_intakes
SET status = 'failed', error_message = $2, finished_at = $3, updated_at = now()
WHERE id = $1 AND status NOT IN ('done', 'finalized')`
	return r.execGuarded(ctx, id, query, id, pgText(message), at)
}

func (r *PGStore) FailQueued(ctx context.Context, id int64, message string, at time.Time) (bool, error) {
	const query = `
UPDATE document_intakes
SET status = 'failed', error_message = $2, finished_at = $3, updated_at = now()
WHERE id = $1 AND status = 'queued'`
	return r.execGuarded(ctx, id, query, id, message, at)
}

func (r *PGStore) FinalizeIntake(ctx context.Context, id int64, storageType models.StorageType, binderID *int64, at time.Time) (*models.Intake, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
UPDATE document_intakes
SET status = 'finalized', storage_type = $2, finalized_at = $3, updated_at = now()
WHERE id = $1 AND status = 'done' AND document_id IS NOT NULL
RETURNING ` + intakeColumns
	in, err := scanIntake(tx.QueryRowContext(ctx, query, id, string(storageType), at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missingOrConflict(ctx, tx, id)
	}
	if err != nil {
		return nil, err
	}

	const docQuery = `UPDATE documents SET binder_id = $2, status = 'ready', updated_at = now() WHERE id = $1`
	res, err := tx.ExecContext(ctx, docQuery, *in.DocumentID, nullInt64(binderID))
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, fmt.Errorf("document %d: %w", *in.DocumentID, apperr.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return in, nil
}

func (r *PGStore) DeleteIntake(ctx context.Context, id int64) error {
	const query = `DELETE FROM document_intakes WHERE id = $1 AND status <> 'finalized'`
	res, err := r.DB.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return missingOrConflict(ctx, r.DB, id)
	}
	return nil
}

// execGuarded runs a conditional update. Zero affected rows on an existing
// intake means the guard rejected it.
func (r *PGStore) execGuarded(ctx context.Context, id int64, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	err = missingOrConflict(ctx, r.DB, id)
	if errors.Is(err, apperr.ErrConflict) {
		return false, nil
	}
	return false, err
}

func missingOrConflict(ctx context.Context, q queryRower, id int64) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM document_intakes WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("intake %d is %s: %w", id, status, apperr.ErrConflict)
}

func (r *PGStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	content, err := mapArg(doc.ExtractedContent)
	if err != nil {
		return err
	}
	meta, err := mapArg(doc.AIMetadata)
	if err != nil {
		return err
	}
	if doc.Status == "" {
		doc.Status = models.DocumentDraft
	}
	args := []any{
		doc.UserID,
		pgText(doc.Title),
		nullString(doc.ReferenceNumber),
		nullString(doc.Issuer),
		nullInt64(doc.CategoryID),
		nullTime(doc.DocumentDate),
		nullTime(doc.ReceivedAt),
		nullString(doc.Notes),
		nullString(doc.Tags),
		content,
		meta,
		string(doc.Status),
		nullInt64(doc.BinderID),
	}

	if doc.ID == 0 {
		const query = `
INSERT INTO documents (user_id, title, reference_number, issuer, category_id, document_date, received_at,
  notes, tags, extracted_content, ai_metadata, status, binder_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
RETURNING id, created_at, updated_at`
		return r.DB.QueryRowContext(ctx, query, args...).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	}

	const query = `
UPDATE documents SET user_id = $1, title = $2, reference_number = $3, issuer = $4, category_id = $5,
  document_date = $6, received_at = $7, notes = $8, tags = $9, extracted_content = $10,
  ai_metadata = $11, status = $12, binder_id = $13, updated_at = now()
WHERE id = $14
RETURNING created_at, updated_at`
	err = r.DB.QueryRowContext(ctx, query, append(args, doc.ID)...).Scan(&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %d: %w", doc.ID, apperr.ErrNotFound)
	}
	return err
}

func (r *PGStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, apperr.ErrNotFound)
	}
	return doc, err
}

func (r *PGStore) DeleteDocument(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("document %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PGStore) AddMedia(ctx context.Context, m *models.Media) error {
	const query = `
INSERT INTO media (owner_type, owner_id, collection, file_name, mime_type, size, storage_key, properties, conversions, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
RETURNING id, created_at`
	props, err := json.Marshal(m.Properties)
	if err != nil {
		return err
	}
	conversions := m.Conversions
	if conversions == nil {
		conversions = map[string]string{}
	}
	conv, err := json.Marshal(conversions)
	if err != nil {
		return err
	}
	return r.DB.QueryRowContext(ctx, query,
		string(m.Owner.Type),
		m.Owner.ID,
		m.Collection,
		m.FileName,
		m.MimeType,
		m.Size,
		m.StorageKey,
		string(props),
		string(conv),
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *PGStore) GetMedia(ctx context.Context, id int64) (*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE id = $1`
	m, err := scanMedia(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %d: %w", id, apperr.ErrNotFound)
	}
	return m, err
}

func (r *PGStore) ListMedia(ctx context.Context, owner models.Owner, collection string) ([]*models.Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media WHERE owner_type = $1 AND owner_id = $2`
	args := []any{string(owner.Type), owner.ID}
	if collection != "" {
		query += ` AND collection = $3`
		args = append(args, collection)
	}
	query += ` ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.Media, 0)
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PGStore) MoveMedia(ctx context.Context, from, to models.Owner, collection string) (int64, error) {
	const query = `
UPDATE media SET owner_type = $3, owner_id = $4
WHERE owner_type = $1 AND owner_id = $2 AND collection = $5`
	res, err := r.DB.ExecContext(ctx, query, string(from.Type), from.ID, string(to.Type), to.ID, collection)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PGStore) SetConversion(ctx context.Context, id int64, name, key string) error {
	const query = `UPDATE media SET conversions = conversions || jsonb_build_object($2::text, $3::text) WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, name, key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("media %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *PGStore) DeleteMedia(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	return err
}

func (r *PGStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, name, description FROM categories ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PGStore) GetBinder(ctx context.Context, id int64) (*models.Binder, error) {
	var b models.Binder
	err := r.DB.QueryRowContext(ctx, `SELECT id, name, location, sort_order FROM binders WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Location, &b.SortOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("binder %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanIntake(row rowScanner) (*models.Intake, error) {
	var (
		in            models.Intake
		status        string
		documentID    sql.NullInt64
		storageType   sql.NullString
		fields        []byte
		extractedText sql.NullString
		content       []byte
		meta          []byte
		errorMessage  sql.NullString
		startedAt     sql.NullTime
		finishedAt    sql.NullTime
		finalizedAt   sql.NullTime
	)
	err := row.Scan(
		&in.ID,
		&in.UserID,
		&status,
		&documentID,
		&in.OriginalName,
		&storageType,
		&fields,
		&extractedText,
		&content,
		&meta,
		&errorMessage,
		&startedAt,
		&finishedAt,
		&finalizedAt,
		&in.CreatedAt,
		&in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.Status = models.IntakeStatus(status)
	in.DocumentID = ptrInt64(documentID)
	in.StorageType = models.StorageType(storageType.String)
	in.ExtractedText = ptrString(extractedText)
	in.ErrorMessage = ptrString(errorMessage)
	in.StartedAt = ptrTime(startedAt)
	in.FinishedAt = ptrTime(finishedAt)
	in.FinalizedAt = ptrTime(finalizedAt)

	if !isJSONNull(fields) {
		in.Fields = &models.Fields{}
		if err := json.Unmarshal(fields, in.Fields); err != nil {
			return nil, fmt.Errorf("decode intake %d fields: %w", in.ID, err)
		}
	}
	if in.ExtractedContent, err = decodeMap(content); err != nil {
		return nil, fmt.Errorf("decode intake %d extracted_content: %w", in.ID, err)
	}
	if in.AIMetadata, err = decodeMap(meta); err != nil {
		return nil, fmt.Errorf("decode intake %d ai_metadata: %w", in.ID, err)
	}
	return &in, nil
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		doc             models.Document
		status          string
		referenceNumber sql.NullString
		issuer          sql.NullString
		categoryID      sql.NullInt64
		documentDate    sql.NullTime
		receivedAt      sql.NullTime
		notes           sql.NullString
		tags            sql.NullString
		content         []byte
		meta            []byte
		binderID        sql.NullInt64
	)
	err := row.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Title,
		&referenceNumber,
		&issuer,
		&categoryID,
		&documentDate,
		&receivedAt,
		&notes,
		&tags,
		&content,
		&meta,
		&status,
		&binderID,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.Status = models.DocumentStatus(status)
	doc.ReferenceNumber = ptrString(referenceNumber)
	doc.Issuer = ptrString(issuer)
	doc.CategoryID = ptrInt64(categoryID)
	doc.DocumentDate = ptrTime(documentDate)
	doc.ReceivedAt = ptrTime(receivedAt)
	doc.Notes = ptrString(notes)
	doc.Tags = ptrString(tags)
	doc.BinderID = ptrInt64(binderID)
	if doc.ExtractedContent, err = decodeMap(content); err != nil {
		return nil, err
	}
	if doc.AIMetadata, err = decodeMap(meta); err != nil {
		return nil, err
	}
	return &doc, nil
}

func scanMedia(row rowScanner) (*models.Media, error) {
	var (
		m           models.Media
		ownerType   string
		props       []byte
		conversions []byte
	)
	err := row.Scan(
		&m.ID,
		&ownerType,
		&m.Owner.ID,
		&m.Collection,
		&m.FileName,
		&m.MimeType,
		&m.Size,
		&m.StorageKey,
		&props,
		&conversions,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Owner.Type = models.OwnerType(ownerType)
	if !isJSONNull(props) {
		if err := json.Unmarshal(props, &m.Properties); err != nil {
			return nil, fmt.Errorf("decode media %d properties: %w", m.ID, err)
		}
	}
	if !isJSONNull(conversions) {
		if err := json.Unmarshal(conversions, &m.Conversions); err != nil {
			return nil, fmt.Errorf("decode media %d conversions: %w", m.ID, err)
		}
	}
	return &m, nil
}

func fieldsArg(f *models.Fields) (any, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(pgJSON(b)), nil
}

func mapArg(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(pgJSON(b)), nil
}

func decodeMap(b []byte) (map[string]any, error) {
	if isJSONNull(b) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func isJSONNull(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return pgText(*s)
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func ptrTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
