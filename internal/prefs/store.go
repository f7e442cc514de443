package prefs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dshills/prefstore/internal/prefs/codec"
	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/notify"
	"github.com/dshills/prefstore/internal/prefs/schema"
	"github.com/dshills/prefstore/internal/prefs/storage"
)

// DefaultKey is the storage key used when none is configured.
const DefaultKey = "accessibility-preferences"

// Op names the store operation that produced an event.
type Op string

const (
	OpInitialize Op = "initialize"
	OpUpdate     Op = "update"
	OpReset      Op = "reset"
	OpImport     Op = "import"
	OpSave       Op = "save"
)

// Event is the payload delivered to subscribers.
type Event struct {
	// ID uniquely identifies the event.
	ID string
	// Kind is the event class.
	Kind notify.Kind
	// Key is the storage key of the store that published the event.
	Key string
	// Op is the operation that produced the event.
	Op Op
	// Time is when the event was published.
	Time time.Time

	// Diff is the accepted patch for updates and the minimal patch from the
	// previous document for reset and import. Set on change events. On reset
	// and import a non-nil Diff.Metadata means metadata was replaced.
	Diff Patch
	// Previous is the full document before the change. Set on change events.
	Previous *Document

	// Errors holds the field errors of a rejected update. Set on invalid events.
	Errors []*schema.ValidationError
	// Err is the failure. Set on error events and on invalid events caused
	// by malformed input.
	Err error
}

// Option configures a Store.
type Option func(*Store)

// WithStorage sets the storage adapter. The default is an in-memory adapter.
func WithStorage(a storage.Adapter) Option {
	return func(s *Store) {
		s.storage = a
	}
}

// WithKey sets the storage key the document lives under.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithAutoSave controls whether commits are persisted immediately.
// It defaults to true.
func WithAutoSave(enable bool) Option {
	return func(s *Store) {
		s.autoSave = enable
	}
}

// WithRegistry sets the migration registry. The default is DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(s *Store) {
		s.registry = r
	}
}

// WithValidator replaces the schema validator. The validator's schema
// supplies defaults as well as rules.
func WithValidator(v *schema.Validator) Option {
	return func(s *Store) {
		s.validator = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the time source used to stamp lastModified.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.clock = now
	}
}

// Store owns one preferences document and coordinates validation,
// persistence and notification for it.
type Store struct {
	mu     sync.RWMutex
	initMu sync.Mutex

	doc    Document
	ready  bool
	closed bool

	key       string
	autoSave  bool
	storage   storage.Adapter
	registry  *Registry
	validator *schema.Validator
	logger    *slog.Logger
	clock     func() time.Time

	events *notify.Notifier[Event]
}

// New creates a Store. Call Initialize before using it.
func New(opts ...Option) *Store {
	s := &Store{
		key:      DefaultKey,
		autoSave: true,
		clock:    time.Now,
		events:   notify.New[Event](),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.storage == nil {
		s.storage = storage.NewMemory()
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.validator == nil {
		s.validator = schema.NewValidator(schema.MustLoadEmbedded()).WithStrictMode(true)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "prefs.store", "key", s.key)

	return s
}

// Key returns the storage key of the document.
func (s *Store) Key() string {
	return s.key
}

// Ready reports whether Initialize has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Initialize loads the document from storage. When nothing is stored the
// defaults are seeded and persisted. A stored document is migrated to the
// current version, unknown fields are moved to metadata.preserved, missing
// fields are filled with defaults and the result is validated.
//
// Initialize is idempotent: once it has succeeded, further calls return nil
// without touching storage or publishing events.
func (s *Store) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.RLock()
	ready, closed := s.ready, s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if ready {
		return nil
	}

	data, err := s.storage.Get(ctx, s.key)
	if err != nil {
		serr := &StorageError{Op: "get", Key: s.key, Err: err}
		s.logger.Error("loading preferences failed", "error", err)
		s.publish(notify.KindError, Event{Op: OpInitialize, Err: serr})
		return serr
	}

	now := s.now(time.Time{})

	if data == nil {
		doc := Defaults(now)
		doc.SchemaVersion = s.registry.Current().String()
		s.setReady(doc)
		s.logger.Info("seeded default preferences", "version", doc.SchemaVersion)
		if !s.autoSave {
			return nil
		}
		return s.persist(ctx, OpInitialize, doc)
	}

	s.logger.Debug("loading stored preferences", "version", gjson.GetBytes(data, "schemaVersion").String())

	raw, err := codec.Decode(codec.JSON, data)
	if err != nil {
		perr := newParseError(err)
		s.logger.Error("stored preferences are malformed", "error", err)
		s.publish(notify.KindError, Event{Op: OpInitialize, Err: perr})
		return perr
	}

	res, err := upgrade(raw, s.registry, s.validator, now)
	if err != nil {
		s.logger.Error("stored preferences rejected", "error", err)
		s.publish(notify.KindError, Event{Op: OpInitialize, Err: err})
		return err
	}

	doc, err := documentFromMap(res.doc)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}
	s.setReady(doc)

	for _, step := range res.steps {
		s.logger.Info("migrated preferences", "from", step.From.String(), "to", step.To.String(), "description", step.Description)
	}
	if len(res.preserved) > 0 {
		s.logger.Info("preserved unknown fields", "paths", res.preserved)
	}

	if !res.changed || !s.autoSave {
		return nil
	}
	return s.persist(ctx, OpInitialize, doc)
}

func (s *Store) setReady(doc Document) {
	s.mu.Lock()
	s.doc = doc
	s.ready = true
	s.mu.Unlock()
}

// Preferences returns a deep copy of the current document. Before
// Initialize it returns the zero Document.
func (s *Store) Preferences() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return Document{}
	}
	return s.doc.Clone()
}

// Sensory returns a copy of the sensory section.
func (s *Store) Sensory() Sensory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Sensory
}

// Cognitive returns a copy of the cognitive section.
func (s *Store) Cognitive() Cognitive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Cognitive
}

// AI returns a copy of the ai section.
func (s *Store) AI() AI {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.AI
}

// VR returns a copy of the vr section.
func (s *Store) VR() VR {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.VR
}

// Motor returns a copy of the motor section.
func (s *Store) Motor() Motor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Motor
}

// Audio returns a copy of the audio section.
func (s *Store) Audio() Audio {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Audio
}

// Metadata returns a deep copy of the metadata map.
func (s *Store) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := merge.Clone(s.doc.Metadata)
	if m == nil {
		m = make(map[string]any)
	}
	return m
}

// Update merges p onto the current document, validates the result and
// commits it. On a validation failure an invalid event is published, the
// document is left untouched and a *ValidationError is returned. An empty
// patch is a no-op.
func (s *Store) Update(ctx context.Context, p Patch) error {
	if err := s.usable(); err != nil {
		return err
	}
	if p.IsEmpty() {
		return nil
	}

	accepted := p.Clone()
	if verr := s.checkPatch(accepted); verr != nil {
		s.rejected(OpUpdate, verr)
		return verr
	}
	return s.commit(ctx, OpUpdate, &accepted, func(current Document) (map[string]any, error) {
		return Merge(current, accepted).toMap()
	})
}

// UpdateMap applies a dynamic partial document. The fields present are
// validated first, so a wrong type or unknown field is reported as a field
// error at its path; the merged document is then validated as Update does.
func (s *Store) UpdateMap(ctx context.Context, partial map[string]any) error {
	if err := s.usable(); err != nil {
		return err
	}

	if verr := s.checkPartial(partial); verr != nil {
		s.rejected(OpUpdate, verr)
		return verr
	}

	p, err := PatchFromMap(partial)
	if err != nil {
		return fmt.Errorf("updating preferences: %w", err)
	}
	return s.Update(ctx, p)
}

// UpdateJSON applies a partial document encoded as a JSON object.
// Malformed input yields a *ParseError.
func (s *Store) UpdateJSON(ctx context.Context, data []byte) error {
	if err := s.usable(); err != nil {
		return err
	}

	partial, err := codec.Decode(codec.JSON, data)
	if err != nil {
		perr := newParseError(err)
		s.rejected(OpUpdate, perr)
		return perr
	}
	return s.UpdateMap(ctx, partial)
}

// checkPatch validates the numbers and metadata of a typed patch before it
// is merged, since NaN and the infinities cannot be encoded.
func (s *Store) checkPatch(p Patch) *ValidationError {
	partial := map[string]any{}
	for path, v := range p.numbers() {
		merge.SetByPath(partial, path, *v)
	}
	if len(p.Metadata) > 0 {
		partial[SectionMetadata] = p.Metadata
	}
	if len(partial) == 0 {
		return nil
	}
	return newValidationError(s.validator.ValidatePartial(partial))
}

// checkPartial validates the fields of a dynamic partial. schemaVersion
// and lastModified belong to the store and may not be set.
func (s *Store) checkPartial(partial map[string]any) *ValidationError {
	errs := &schema.ValidationErrors{}
	for _, managed := range []string{"lastModified", "schemaVersion"} {
		if _, ok := partial[managed]; ok {
			errs.Add(managed, schema.CodeUnknownProperty, "field is managed by the store")
		}
	}
	if errs.HasErrors() {
		return newValidationError(errs)
	}
	return newValidationError(s.validator.ValidatePartial(partial))
}

// Reset replaces the document with the defaults and commits it as one
// change.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.usable(); err != nil {
		return err
	}

	version := s.registry.Current().String()
	return s.commit(ctx, OpReset, nil, func(current Document) (map[string]any, error) {
		doc := Defaults(current.LastModified)
		doc.SchemaVersion = version
		return doc.toMap()
	})
}

// Export returns the current document as indented JSON.
func (s *Store) Export() (string, error) {
	data, err := s.ExportFormat(codec.JSON)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExportFormat serializes the current document in the given format.
func (s *Store) ExportFormat(f codec.Format) ([]byte, error) {
	s.mu.RLock()
	if !s.ready {
		s.mu.RUnlock()
		return nil, ErrNotInitialized
	}
	doc := s.doc.Clone()
	s.mu.RUnlock()

	m, err := doc.toMap()
	if err != nil {
		return nil, fmt.Errorf("exporting preferences: %w", err)
	}
	data, err := codec.Encode(f, m)
	if err != nil {
		return nil, fmt.Errorf("exporting preferences: %w", err)
	}
	return data, nil
}

// Import replaces the document with one produced by Export.
func (s *Store) Import(ctx context.Context, serialized string) error {
	return s.ImportFormat(ctx, codec.JSON, []byte(serialized))
}

// ImportFormat parses data, migrates it to the current version, moves
// unknown fields to metadata.preserved and validates the whole document.
// Missing fields are not filled with defaults. lastModified is always
// refreshed. Malformed input yields a *ParseError; a well-formed but
// invalid document yields a *ValidationError.
func (s *Store) ImportFormat(ctx context.Context, f codec.Format, data []byte) error {
	if err := s.usable(); err != nil {
		return err
	}

	raw, err := codec.Decode(f, data)
	if err != nil {
		perr := newParseError(err)
		s.rejected(OpImport, perr)
		return perr
	}

	migrated, _, err := s.registry.Apply(raw)
	if err != nil {
		s.rejected(OpImport, err)
		return err
	}
	if paths := preserveUnknown(migrated, s.validator.Schema()); len(paths) > 0 {
		s.logger.Info("preserved unknown fields on import", "paths", paths)
	}

	return s.commit(ctx, OpImport, nil, func(Document) (map[string]any, error) {
		return migrated, nil
	})
}

// Save persists the current document. It is the way to write a store
// created with auto-save disabled.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	if !s.ready {
		s.mu.RUnlock()
		return ErrNotInitialized
	}
	doc := s.doc.Clone()
	s.mu.RUnlock()

	return s.persist(ctx, OpSave, doc)
}

// On subscribes handler to one event kind.
func (s *Store) On(kind notify.Kind, handler func(Event)) *notify.Subscription {
	return s.events.Subscribe(kind, handler)
}

// Off cancels a subscription returned by On.
func (s *Store) Off(sub *notify.Subscription) {
	sub.Unsubscribe()
}

// OnChange subscribes to committed changes.
func (s *Store) OnChange(handler func(Event)) *notify.Subscription {
	return s.On(notify.KindChange, handler)
}

// OnInvalid subscribes to rejected updates and imports.
func (s *Store) OnInvalid(handler func(Event)) *notify.Subscription {
	return s.On(notify.KindInvalid, handler)
}

// OnSaved subscribes to successful persists.
func (s *Store) OnSaved(handler func(Event)) *notify.Subscription {
	return s.On(notify.KindSaved, handler)
}

// OnError subscribes to storage and load failures.
func (s *Store) OnError(handler func(Event)) *notify.Subscription {
	return s.On(notify.KindError, handler)
}

// Close drops every subscription. Later operations return ErrClosed.
// The storage adapter is not closed; it belongs to the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.events.Close()
	return nil
}

func (s *Store) usable() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usableLocked()
}

func (s *Store) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.ready {
		return ErrNotInitialized
	}
	return nil
}

// commit validates the candidate built from the current document and, if
// it is valid, swaps it in. Validation and the swap happen under the lock;
// events and persistence happen after it is released. accepted is reported
// as the diff; when nil the minimal diff from the previous document is used.
func (s *Store) commit(ctx context.Context, op Op, accepted *Patch, build func(current Document) (map[string]any, error)) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	prev := s.doc
	candidate, err := build(prev)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s preferences: %w", op, err)
	}
	candidate["lastModified"] = formatTime(s.now(prev.LastModified))

	if verr := newValidationError(s.validator.Validate(candidate)); verr != nil {
		s.mu.Unlock()
		s.rejected(op, verr)
		return verr
	}

	next, err := documentFromMap(candidate)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s preferences: %w", op, err)
	}
	s.doc = next
	s.mu.Unlock()

	previous := prev.Clone()
	var diff Patch
	if accepted != nil {
		diff = *accepted
	} else {
		diff = minimalDiff(previous, next)
	}

	s.logger.Debug("preferences committed", "op", string(op))
	s.publish(notify.KindChange, Event{Op: op, Diff: diff, Previous: &previous})

	if !s.autoSave {
		return nil
	}
	return s.persist(ctx, op, next)
}

// rejected publishes an invalid event for a failed update or import.
func (s *Store) rejected(op Op, err error) {
	ev := Event{Op: op, Err: err}
	var verr *ValidationError
	if errors.As(err, &verr) {
		ev.Errors = verr.Errors
	}
	s.logger.Debug("preferences rejected", "op", string(op), "error", err)
	s.publish(notify.KindInvalid, ev)
}

// persist writes doc to storage and publishes saved or error. A failed
// write leaves the in-memory document as it is.
func (s *Store) persist(ctx context.Context, op Op, doc Document) error {
	m, err := doc.toMap()
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	data, err := codec.Encode(codec.JSON, m)
	if err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}

	if err := s.storage.Set(ctx, s.key, data); err != nil {
		serr := &StorageError{Op: "set", Key: s.key, Err: err}
		s.logger.Error("saving preferences failed", "op", string(op), "error", err)
		s.publish(notify.KindError, Event{Op: op, Err: serr})
		return serr
	}

	s.publish(notify.KindSaved, Event{Op: op})
	return nil
}

func (s *Store) publish(kind notify.Kind, ev Event) {
	ev.ID = uuid.NewString()
	ev.Kind = kind
	ev.Key = s.key
	ev.Time = s.clock().UTC()
	s.events.Publish(kind, ev)
}

// now returns the commit stamp: the clock reading, or prev if the clock
// has gone backwards.
func (s *Store) now(prev time.Time) time.Time {
	t := s.clock().UTC()
	if t.Before(prev) {
		return prev
	}
	return t
}

// minimalDiff returns the patch that turns prev into next. Section fields
// are compared one by one. Metadata is opaque: when it differs, the diff
// carries the whole new metadata, non-nil even when it was cleared.
func minimalDiff(prev, next Document) Patch {
	a, errA := prev.toMap()
	b, errB := next.toMap()
	if errA != nil || errB != nil {
		return Patch{}
	}

	changed := map[string]any{}
	for _, name := range Sections() {
		if name == SectionMetadata {
			continue
		}
		before, _ := a[name].(map[string]any)
		after, _ := b[name].(map[string]any)
		fields := map[string]any{}
		for field, v := range after {
			if old, ok := before[field]; !ok || !merge.Equal(old, v) {
				fields[field] = v
			}
		}
		if len(fields) > 0 {
			changed[name] = fields
		}
	}

	p, _ := PatchFromMap(changed)
	if !merge.Equal(a[SectionMetadata], b[SectionMetadata]) {
		p.Metadata = merge.Clone(next.Metadata)
		if p.Metadata == nil {
			p.Metadata = map[string]any{}
		}
	}
	return p
}

func newParseError(err error) *ParseError {
	var de *codec.DecodeError
	if errors.As(err, &de) {
		return &ParseError{Format: string(de.Format), Message: de.Message, Err: de.Err}
	}
	return &ParseError{Message: err.Error(), Err: err}
}
