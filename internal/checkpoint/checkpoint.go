package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/turbolytics/historian/internal"
)

const (
	keyWorkGroups           = "workGroups"
	keyLastQueryExecutionID = "lastQueryExecutionId"

	// LegacyWorkGroup receives the boundary of a checkpoint written before
	// boundaries were tracked per work group.
	LegacyWorkGroup = "primary"
)

type WorkGroupState struct {
	LastQueryExecutionID string `json:"lastQueryExecutionId"`
}

// Checkpoint is the resume boundary of every work group.
type Checkpoint struct {
	WorkGroups map[string]WorkGroupState `json:"workGroups"`
}

// LastSeen returns the boundary for workGroup, or "" when there is none.
func (c *Checkpoint) LastSeen(workGroup string) string {
	if c == nil {
		return ""
	}
	return c.WorkGroups[workGroup].LastQueryExecutionID
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Store persists the checkpoint as a single JSON document. A Store without
// a repository is disabled: it loads an empty checkpoint and drops saves.
type Store struct {
	logger *zap.Logger
	repo   internal.Repository
	key    string

	mu  sync.Mutex
	doc map[string]any
}

func New(repo internal.Repository, key string, opts ...Option) *Store {
	s := &Store{
		logger: zap.NewNop(),
		repo:   repo,
		key:    key,
		doc:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Disabled returns a Store that never touches storage.
func Disabled(opts ...Option) *Store {
	return New(nil, "", opts...)
}

func (s *Store) Enabled() bool {
	return s.repo != nil
}

func (s *Store) Load(ctx context.Context) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = make(map[string]any)
	if !s.Enabled() {
		s.logger.Info("checkpointing disabled, scanning full history")
		return &Checkpoint{WorkGroups: map[string]WorkGroupState{}}, nil
	}

	bs, err := s.repo.Read(ctx, s.key)
	if errors.Is(err, internal.ErrNotFound) {
		s.logger.Warn("no checkpoint found, starting fresh", zap.String("key", s.key))
		return &Checkpoint{WorkGroups: map[string]WorkGroupState{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %q: %w", s.key, err)
	}

	doc := make(map[string]any)
	if err := json.Unmarshal(bs, &doc); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %q: %w", s.key, err)
	}
	migrate(doc)
	s.doc = doc

	c := s.checkpoint()
	s.logger.Info("checkpoint loaded",
		zap.String("key", s.key),
		zap.Int("work_groups", len(c.WorkGroups)),
	)
	return c, nil
}

// Save records id as the boundary of workGroup and overwrites the stored
// document. Other keys of the loaded document are kept as they were.
func (s *Store) Save(ctx context.Context, workGroup, id string) error {
	if !s.Enabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	groups, _ := s.doc[keyWorkGroups].(map[string]any)
	if groups == nil {
		groups = make(map[string]any)
		s.doc[keyWorkGroups] = groups
	}
	entry, _ := groups[workGroup].(map[string]any)
	if entry == nil {
		entry = make(map[string]any)
		groups[workGroup] = entry
	}
	entry[keyLastQueryExecutionID] = id

	bs, err := json.Marshal(s.doc)
	if err != nil {
		return err
	}
	if err := s.repo.Write(ctx, s.key, bytes.NewReader(bs)); err != nil {
		return fmt.Errorf("writing checkpoint %q: %w", s.key, err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("work_group", workGroup),
		zap.String("last_query_execution_id", id),
	)
	return nil
}

func (s *Store) checkpoint() *Checkpoint {
	c := &Checkpoint{WorkGroups: map[string]WorkGroupState{}}
	groups, _ := s.doc[keyWorkGroups].(map[string]any)
	for name, v := range groups {
		entry, _ := v.(map[string]any)
		id, _ := entry[keyLastQueryExecutionID].(string)
		if id == "" {
			continue
		}
		c.WorkGroups[name] = WorkGroupState{LastQueryExecutionID: id}
	}
	return c
}

// migrate rewrites the flat single work group layout into the nested one.
func migrate(doc map[string]any) {
	if _, ok := doc[keyWorkGroups]; ok {
		return
	}
	legacy, ok := doc[keyLastQueryExecutionID]
	if !ok {
		return
	}
	delete(doc, keyLastQueryExecutionID)
	doc[keyWorkGroups] = map[string]any{
		LegacyWorkGroup: map[string]any{
			keyLastQueryExecutionID: legacy,
		},
	}
}
