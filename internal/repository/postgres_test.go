package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
)

var intakeCols = []string{
	"id", "user_id", "status", "document_id", "original_name", "storage_type", "fields",
	"extracted_text", "extracted_content", "ai_metadata", "error_message",
	"started_at", "finished_at", "finalized_at", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &PGStore{DB: db}, mock
}

func intakeRow(id int64, status string, documentID any, fields any) *sqlmock.Rows {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(intakeCols).AddRow(
		id, int64(1), status, documentID, "scan.pdf", nil, fields,
		nil, nil, nil, nil,
		nil, nil, nil, now, now,
	)
}

func TestPGQueueIntakeStartGuard(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1 AND status = 'uploaded'")).
		WithArgs(int64(7)).
		WillReturnRows(intakeRow(7, "queued", nil, nil))

	in, err := store.QueueIntake(context.Background(), 7, QueueStart)
	require.NoError(t, err)
	assert.Equal(t, models.IntakeQueued, in.Status)
	assert.Nil(t, in.DocumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGQueueIntakeRetryConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("(status = 'failed' OR (status = 'done' AND document_id IS NULL))")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(intakeCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM document_intakes")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("finalized"))

	_, err := store.QueueIntake(context.Background(), 7, QueueRetry)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkProcessingSkipsSettled(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("status NOT IN ('done', 'finalized')")).
		WithArgs(int64(3), at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM document_intakes")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("done"))

	ok, err := store.MarkProcessing(context.Background(), 3, at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkFailedMissingIntake(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'failed'")).
		WithArgs(int64(9), "boom", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM document_intakes")).
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	ok, err := store.MarkFailed(context.Background(), 9, "boom", at)
	assert.False(t, ok)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPGFailQueuedLeavesClaimedIntake(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'queued'")).
		WithArgs(int64(5), "busy", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM document_intakes")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))

	ok, err := store.FailQueued(context.Background(), 5, "busy", at)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkDoneWritesResult(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()
	text := "hello"
	fields := &models.Fields{}
	fields.Set(models.FieldTitle, []byte(`"Invoice"`))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'processing'")).
		WithArgs(int64(4), int64(11), `{"title":"Invoice"}`, "hello", `{"summary":"s"}`, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkDone(context.Background(), 4, models.AnalysisResult{
		DocumentID:       11,
		Fields:           fields,
		ExtractedText:    &text,
		ExtractedContent: models.ExtractedContent{"summary": "s"},
	}, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMarkDoneStripsNUL(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()
	text := "page\x00one"
	fields := &models.Fields{}
	fields.Set(models.FieldTitle, []byte(`"In\u0000voice"`))

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'processing'")).
		WithArgs(int64(4), int64(11), `{"title":"Invoice"}`, "pageone", `{"summary":"ab"}`, `{"raw":"x"}`, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.MarkDone(context.Background(), 4, models.AnalysisResult{
		DocumentID:       11,
		Fields:           fields,
		ExtractedText:    &text,
		ExtractedContent: models.ExtractedContent{"summary": "a\x00b"},
		AIMetadata:       models.AIMetadata{"raw": "\x00x"},
	}, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFinalizeIntakeUpdatesDocument(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()
	binder := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'finalized'")).
		WithArgs(int64(2), "paper", at).
		WillReturnRows(intakeRow(2, "finalized", int64(5), `{"title":"Invoice"}`))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET binder_id = $2, status = 'ready'")).
		WithArgs(int64(5), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in, err := store.FinalizeIntake(context.Background(), 2, models.StoragePaper, &binder, at)
	require.NoError(t, err)
	assert.Equal(t, models.IntakeFinalized, in.Status)
	require.NotNil(t, in.Fields)
	assert.Equal(t, "Invoice", in.Fields.String(models.FieldTitle))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGFinalizeIntakeRollsBackOnConflict(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SET status = 'finalized'")).
		WithArgs(int64(2), "electronic", at).
		WillReturnRows(sqlmock.NewRows(intakeCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM document_intakes")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))
	mock.ExpectRollback()

	_, err := store.FinalizeIntake(context.Background(), 2, models.StorageElectronic, nil, at)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPGListIntakesFiltersIDs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND id IN ($2, $3) ORDER BY id DESC")).
		WithArgs(int64(1), int64(4), int64(5)).
		WillReturnRows(intakeRow(5, "done", int64(8), nil))

	out, err := store.ListIntakes(context.Background(), 1, []int64{4, 5})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(8), *out[0].DocumentID)

	out, err = store.ListIntakes(context.Background(), 1, []int64{})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSaveDocumentInsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	category := int64(2)
	tags := "tax, 2024"

	mock.ExpectQuery("INSERT INTO documents").
		WithArgs(
			int64(1), "Invoice", nil, nil, int64(2), nil, nil, nil, "tax, 2024",
			nil, nil, "draft", nil,
		).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))

	doc := &models.Document{UserID: 1, Title: "Invoice", CategoryID: &category, Tags: &tags}
	require.NoError(t, store.SaveDocument(context.Background(), doc))
	assert.Equal(t, int64(10), doc.ID)
	assert.Equal(t, models.DocumentDraft, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGMoveMedia(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE media SET owner_type = $3, owner_id = $4")).
		WithArgs("intake", int64(1), "document", int64(9), models.CollectionPages).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.MoveMedia(context.Background(), models.IntakeOwner(1), models.DocumentOwner(9), models.CollectionPages)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestPGListMediaDecodesProperties(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "owner_type", "owner_id", "collection", "file_name", "mime_type", "size",
		"storage_key", "properties", "conversions", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta("AND collection = $3 ORDER BY id")).
		WithArgs("intake", int64(1), models.CollectionPages).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(5), "intake", int64(1), "pages", "scan-01.jpg", "image/jpeg", int64(100),
			"k/scan-01.jpg", `{"source_media_id":4,"page":1}`, `{"thumb":"k/thumb.jpg"}`, now,
		))

	out, err := store.ListMedia(context.Background(), models.IntakeOwner(1), models.CollectionPages)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.MediaProperties{SourceMediaID: 4, Page: 1}, out[0].Properties)
	key, ok := out[0].ConversionKey(models.ConversionThumb)
	assert.True(t, ok)
	assert.Equal(t, "k/thumb.jpg", key)
}
