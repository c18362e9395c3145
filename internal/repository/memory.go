package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu         sync.Mutex
	seq        int64
	intakes    map[int64]*models.Intake
	documents  map[int64]*models.Document
	media      map[int64]*models.Media
	categories map[int64]models.Category
	binders    map[int64]models.Binder
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intakes:    make(map[int64]*models.Intake),
		documents:  make(map[int64]*models.Document),
		media:      make(map[int64]*models.Media),
		categories: make(map[int64]models.Category),
		binders:    make(map[int64]models.Binder),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) nextID() int64 {
	s.seq++
	return s.seq
}

// AddCategory seeds a category and returns its id.
func (s *MemoryStore) AddCategory(c models.Category) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.categories[c.ID] = c
	return c.ID
}

// AddBinder seeds a binder and returns its id.
func (s *MemoryStore) AddBinder(b models.Binder) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.nextID()
	}
	s.binders[b.ID] = b
	return b.ID
}

func (s *MemoryStore) CreateIntake(ctx context.Context, intake *models.Intake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	intake.ID = s.nextID()
	intake.CreatedAt = now
	intake.UpdatedAt = now
	if intake.Status == "" {
		intake.Status = models.IntakeUploaded
	}
	cp := *intake
	s.intakes[intake.ID] = &cp
	return nil
}

func (s *MemoryStore) GetIntake(ctx context.Context, id int64) (*models.Intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intakes[id]
	if !ok {
		return nil, fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	cp := *in
	return &cp, nil
}

func (s *MemoryStore) ListIntakes(ctx context.Context, userID int64, ids []int64) ([]*models.Intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var wanted map[int64]bool
	if ids != nil {
		wanted = make(map[int64]bool, len(ids))
		for _, id := range ids {
			wanted[id] = true
		}
	}
	out := make([]*models.Intake, 0)
	for _, in := range s.intakes {
		if in.UserID != userID || (wanted != nil && !wanted[in.ID]) {
			continue
		}
		cp := *in
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// transition applies fn to the intake when accept reports true.
func (s *MemoryStore) transition(id int64, accept func(*models.Intake) bool, fn func(*models.Intake)) (*models.Intake, error) {
	in, ok := s.intakes[id]
	if !ok {
		return nil, fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	if !accept(in) {
		return nil, fmt.Errorf("intake %d is %s: %w", id, in.Status, apperr.ErrConflict)
	}
	fn(in)
	in.UpdatedAt = s.now()
	cp := *in
	return &cp, nil
}

func (s *MemoryStore) QueueIntake(ctx context.Context, id int64, mode QueueMode) (*models.Intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	accept := (*models.Intake).CanStart
	if mode == QueueRetry {
		accept = (*models.Intake).CanRetry
	}
	return s.transition(id, accept, func(in *models.Intake) {
		in.ResetAnalysis()
		in.Status = models.IntakeQueued
	})
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, func(in *models.Intake) bool { return !in.Settled() }, func(in *models.Intake) {
		in.Status = models.IntakeProcessing
		in.StartedAt = &at
		in.FinishedAt = nil
		in.ErrorMessage = nil
	})
	if isConflict(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) MarkDone(ctx context.Context, id int64, result models.AnalysisResult, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, func(in *models.Intake) bool { return in.Status == models.IntakeProcessing }, func(in *models.Intake) {
		docID := result.DocumentID
		in.Status = models.IntakeDone
		in.DocumentID = &docID
		in.Fields = result.Fields
		in.ExtractedText = result.ExtractedText
		in.ExtractedContent = result.ExtractedContent
		in.AIMetadata = result.AIMetadata
		in.ErrorMessage = nil
		in.FinishedAt = &at
	})
	return err
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id int64, message string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, func(in *models.Intake) bool { return !in.Settled() }, func(in *models.Intake) {
		msg := message
		in.Status = models.IntakeFailed
		in.ErrorMessage = &msg
		in.FinishedAt = &at
	})
	if isConflict(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) FailQueued(ctx context.Context, id int64, message string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.transition(id, func(in *models.Intake) bool { return in.Status == models.IntakeQueued }, func(in *models.Intake) {
		msg := message
		in.Status = models.IntakeFailed
		in.ErrorMessage = &msg
		in.FinishedAt = &at
	})
	if isConflict(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *MemoryStore) FinalizeIntake(ctx context.Context, id int64, storageType models.StorageType, binderID *int64, at time.Time) (*models.Intake, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intakes[id]
	if !ok {
		return nil, fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	if in.Status != models.IntakeDone || in.DocumentID == nil {
		return nil, fmt.Errorf("intake %d is %s: %w", id, in.Status, apperr.ErrConflict)
	}
	doc, ok := s.documents[*in.DocumentID]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", *in.DocumentID, apperr.ErrNotFound)
	}

	doc.BinderID = copyID(binderID)
	doc.Status = models.DocumentReady
	doc.UpdatedAt = s.now()

	in.StorageType = storageType
	in.Status = models.IntakeFinalized
	in.FinalizedAt = &at
	in.UpdatedAt = s.now()
	cp := *in
	return &cp, nil
}

func (s *MemoryStore) DeleteIntake(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intakes[id]
	if !ok {
		return fmt.Errorf("intake %d: %w", id, apperr.ErrNotFound)
	}
	if in.Status == models.IntakeFinalized {
		return fmt.Errorf("intake %d is finalized: %w", id, apperr.ErrConflict)
	}
	delete(s.intakes, id)
	return nil
}

func (s *MemoryStore) SaveDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if doc.ID == 0 {
		doc.ID = s.nextID()
		doc.CreatedAt = now
	} else if existing, ok := s.documents[doc.ID]; !ok {
		return fmt.Errorf("document %d: %w", doc.ID, apperr.ErrNotFound)
	} else {
		doc.CreatedAt = existing.CreatedAt
	}
	doc.UpdatedAt = now
	cp := *doc
	s.documents[doc.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %d: %w", id, apperr.ErrNotFound)
	}
	cp := *doc
	return &cp, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %d: %w", id, apperr.ErrNotFound)
	}
	delete(s.documents, id)
	for _, in := range s.intakes {
		if in.DocumentID != nil && *in.DocumentID == id {
			in.DocumentID = nil
		}
	}
	return nil
}

func (s *MemoryStore) AddMedia(ctx context.Context, m *models.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID()
	m.CreatedAt = s.now()
	s.media[m.ID] = cloneMedia(m)
	return nil
}

func (s *MemoryStore) GetMedia(ctx context.Context, id int64) (*models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return nil, fmt.Errorf("media %d: %w", id, apperr.ErrNotFound)
	}
	return cloneMedia(m), nil
}

func (s *MemoryStore) ListMedia(ctx context.Context, owner models.Owner, collection string) ([]*models.Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Media, 0)
	for _, m := range s.media {
		if m.Owner != owner || (collection != "" && m.Collection != collection) {
			continue
		}
		out = append(out, cloneMedia(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MoveMedia(ctx context.Context, from, to models.Owner, collection string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.media {
		if m.Owner == from && m.Collection == collection {
			m.Owner = to
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SetConversion(ctx context.Context, id int64, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.media[id]
	if !ok {
		return fmt.Errorf("media %d: %w", id, apperr.ErrNotFound)
	}
	if m.Conversions == nil {
		m.Conversions = make(map[string]string)
	}
	m.Conversions[name] = key
	return nil
}

func (s *MemoryStore) DeleteMedia(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.media, id)
	return nil
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

func (s *MemoryStore) GetBinder(ctx context.Context, id int64) (*models.Binder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.binders[id]
	if !ok {
		return nil, fmt.Errorf("binder %d: %w", id, apperr.ErrNotFound)
	}
	return &b, nil
}

func cloneMedia(m *models.Media) *models.Media {
	cp := *m
	if m.Conversions != nil {
		cp.Conversions = make(map[string]string, len(m.Conversions))
		for k, v := range m.Conversions {
			cp.Conversions[k] = v
		}
	}
	return &cp
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func isConflict(err error) bool {
	return errors.Is(err, apperr.ErrConflict)
}
