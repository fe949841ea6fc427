// Package entity exposes uniform CRUD over any persistence backend, one
// Accessor per collection.
package entity

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/onoacademic/campusid/internal/domain"
	"github.com/onoacademic/campusid/internal/observability/tracing"
)

const (
	fieldID          = "id"
	fieldCreatedDate = "created_date"
	fieldUpdatedDate = "updated_date"
)

// Normalizer reshapes a record the same way on read and on write
type Normalizer func(domain.Record) domain.Record

// Accessor is a collection-bound proxy over a domain.Store
type Accessor struct {
	collection string
	store      domain.Store
	sortField  string
	normalize  Normalizer
	now        func() time.Time
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures an Accessor
type Option func(*Accessor)

// WithSortField orders List results by field using Hebrew collation
func WithSortField(field string) Option {
	return func(a *Accessor) { a.sortField = field }
}

// WithNormalizer replaces the collection default normalizer
func WithNormalizer(n Normalizer) Option {
	return func(a *Accessor) { a.normalize = n }
}

// WithClock replaces the time source used for ids and timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) { a.now = now }
}

// WithLogger sets the accessor logger
func WithLogger(l *slog.Logger) Option {
	return func(a *Accessor) { a.logger = l }
}

// New creates an accessor for collection on store
func New(collection string, store domain.Store, opts ...Option) *Accessor {
	a := &Accessor{
		collection: collection,
		store:      store,
		sortField:  defaultSortField(collection),
		normalize:  defaultNormalizer(collection),
		now:        time.Now,
		logger:     slog.Default(),
		tracer:     tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Collection returns the bound collection name
func (a *Accessor) Collection() string {
	return a.collection
}

// List returns every record. Name-bearing collections are ordered by display
// name in Hebrew collation, the rest newest first.
func (a *Accessor) List(ctx context.Context) (_ []domain.Record, err error) {
	ctx, span := a.start(ctx, "list")
	defer func() { end(span, err) }()

	recs, err := a.store.List(ctx, a.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", a.collection, err)
	}
	for i := range recs {
		recs[i] = a.normalize(recs[i])
	}
	a.sort(recs)
	span.SetAttributes(attribute.Int("records", len(recs)))
	return recs, nil
}

// Get returns the record or an error wrapping domain.ErrNotFound
func (a *Accessor) Get(ctx context.Context, id string) (_ domain.Record, err error) {
	ctx, span := a.start(ctx, "get")
	defer func() { end(span, err) }()

	rec, err := a.store.Get(ctx, a.collection, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", a.collection, id, err)
	}
	return a.normalize(rec), nil
}

// Create assigns a fresh id and timestamps to data and writes it
func (a *Accessor) Create(ctx context.Context, data domain.Record) (_ domain.Record, err error) {
	ctx, span := a.start(ctx, "create")
	defer func() { end(span, err) }()

	now := a.now().UTC()
	rec := data.Clone()
	rec[fieldID] = NewID(a.collection, now)
	stamp := now.Format(time.RFC3339Nano)
	rec[fieldCreatedDate] = stamp
	rec[fieldUpdatedDate] = stamp

	out, err := a.write(ctx, rec)
	if err != nil {
		return nil, err
	}
	a.logger.DebugContext(ctx, "record created",
		slog.String("collection", a.collection),
		slog.String("id", out.ID()),
	)
	return out, nil
}

// Update merges patch into the stored record. id and created_date are never
// overwritten. ok is false when the record does not exist.
func (a *Accessor) Update(ctx context.Context, id string, patch domain.Record) (_ domain.Record, ok bool, err error) {
	ctx, span := a.start(ctx, "update")
	defer func() { end(span, err) }()

	current, err := a.store.Get(ctx, a.collection, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s/%s: %w", a.collection, id, err)
	}

	rec := current.Clone()
	for k, v := range patch {
		if k == fieldID || k == fieldCreatedDate {
			continue
		}
		rec[k] = v
	}
	rec[fieldUpdatedDate] = a.now().UTC().Format(time.RFC3339Nano)

	out, err := a.write(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Upsert writes rec under its own id, keeping the original created_date when
// the record already exists
func (a *Accessor) Upsert(ctx context.Context, rec domain.Record) (_ domain.Record, err error) {
	ctx, span := a.start(ctx, "upsert")
	defer func() { end(span, err) }()

	id := rec.ID()
	if id == "" {
		return nil, fmt.Errorf("upsert %s: record has no id", a.collection)
	}
	stamp := a.now().UTC().Format(time.RFC3339Nano)
	out := rec.Clone()
	out[fieldCreatedDate] = stamp
	if current, err := a.store.Get(ctx, a.collection, id); err == nil {
		if created := current.String(fieldCreatedDate); created != "" {
			out[fieldCreatedDate] = created
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to load %s/%s: %w", a.collection, id, err)
	}
	out[fieldUpdatedDate] = stamp
	return a.write(ctx, out)
}

// Delete removes the record and reports whether it existed
func (a *Accessor) Delete(ctx context.Context, id string) (_ bool, err error) {
	ctx, span := a.start(ctx, "delete")
	defer func() { end(span, err) }()

	ok, err := a.store.Delete(ctx, a.collection, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", a.collection, id, err)
	}
	return ok, nil
}

// Filter returns the List results whose fields equal every predicate value
func (a *Accessor) Filter(ctx context.Context, predicate map[string]string) ([]domain.Record, error) {
	recs, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(recs, func(rec domain.Record) bool {
		for k, v := range predicate {
			if rec.String(k) != v {
				return true
			}
		}
		return false
	}), nil
}

func (a *Accessor) write(ctx context.Context, rec domain.Record) (domain.Record, error) {
	rec = a.normalize(rec)
	// the stored shape is the JSON shape on every backend
	shaped, err := domain.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, a.collection, shaped); err != nil {
		return nil, fmt.Errorf("failed to write %s/%s: %w", a.collection, shaped.ID(), err)
	}
	return shaped, nil
}

func (a *Accessor) sort(recs []domain.Record) {
	if a.sortField == "" {
		slices.SortStableFunc(recs, func(x, y domain.Record) int {
			return cmp.Compare(y.String(fieldCreatedDate), x.String(fieldCreatedDate))
		})
		return
	}
	// collators are not safe for concurrent use
	col := collate.New(language.Hebrew)
	slices.SortStableFunc(recs, func(x, y domain.Record) int {
		if c := col.CompareString(x.String(a.sortField), y.String(a.sortField)); c != 0 {
			return c
		}
		return cmp.Compare(x.ID(), y.ID())
	})
}

func (a *Accessor) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, "entity."+op,
		trace.WithAttributes(attribute.String("entity.collection", a.collection)))
}

func end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NewID builds a collection-namespaced id from a timestamp and a random suffix
func NewID(collection string, now time.Time) string {
	return collection + "_" + strconv.FormatInt(now.UnixMilli(), 36) + "_" + uuid.NewString()[:8]
}

func defaultSortField(collection string) string {
	switch collection {
	case domain.CollectionUsers, domain.CollectionStudents, domain.CollectionLecturers:
		return "full_name"
	case domain.CollectionCourses, domain.CollectionAcademicTracks:
		return "name"
	default:
		return ""
	}
}

func defaultNormalizer(collection string) Normalizer {
	switch collection {
	case domain.CollectionStudents, domain.CollectionLecturers:
		return NormalizeAcademicTracks
	default:
		return func(r domain.Record) domain.Record { return r }
	}
}

// NormalizeAcademicTracks makes sure academic_track_ids is a list, deriving a
// singleton from the legacy academic_track_id field when the list is absent.
func NormalizeAcademicTracks(rec domain.Record) domain.Record {
	if v, ok := rec["academic_track_ids"]; ok && v != nil {
		return rec
	}
	out := maps.Clone(rec)
	if out == nil {
		out = domain.Record{}
	}
	if legacy := rec.String("academic_track_id"); legacy != "" {
		out["academic_track_ids"] = []any{legacy}
	} else {
		out["academic_track_ids"] = []any{}
	}
	return out
}
