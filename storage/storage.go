// Package storage persists the board registry and the user profile as two
// JSON documents in a key/value backend.
package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

const (
	BoardKey   = "taskBoardState"
	ProfileKey = "taskUser"
)

// Store reads and writes the board and profile documents.
type Store struct {
	kv         KV
	boardKey   string
	profileKey string
	log        *log.Logger

	boardSchema   *jsonschema.Schema
	profileSchema *jsonschema.Schema
}

// New creates a Store over kv. Keys are prefixed with namespace when set.
func New(kv KV, namespace string, logger *log.Logger) (*Store, error) {
	if kv == nil {
		return nil, errors.New("storage: nil kv")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	boardSchema, err := compileSchema("board", boardSchemaJSON)
	if err != nil {
		return nil, err
	}
	profileSchema, err := compileSchema("profile", profileSchemaJSON)
	if err != nil {
		return nil, err
	}
	return &Store{
		kv:            kv,
		boardKey:      namespaced(namespace, BoardKey),
		profileKey:    namespaced(namespace, ProfileKey),
		log:           logger,
		boardSchema:   boardSchema,
		profileSchema: profileSchema,
	}, nil
}

func namespaced(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}

// LoadBoard returns the persisted registry. Missing, unreadable or
// malformed documents yield the seed board; it never fails.
func (s *Store) LoadBoard(ctx context.Context) domain.Board {
	logger := s.log.WithField("key", s.boardKey)
	data, err := s.kv.Get(ctx, s.boardKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debug("no stored board, using seed")
		} else {
			logger.WithError(err).Warn("board read failed, using seed")
		}
		return domain.NewBoard()
	}

	var doc any
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		logger.WithError(err).Warn("stored board is not valid JSON, using seed")
		return domain.NewBoard()
	}
	if err := s.boardSchema.Validate(doc); err != nil {
		logger.WithField("reason", firstSchemaError(err)).Warn("stored board has unexpected shape, using seed")
		return domain.NewBoard()
	}

	var cols []domain.Column
	if err := sonic.ConfigStd.Unmarshal(data, &cols); err != nil {
		logger.WithError(err).Warn("stored board could not be decoded, using seed")
		return domain.NewBoard()
	}
	b, ok := repairBoard(cols, logger)
	if !ok {
		return domain.NewBoard()
	}
	if err := b.Check(); err != nil {
		logger.WithError(err).Warn("stored board inconsistent after repair, using seed")
		return domain.NewBoard()
	}
	return b
}

// repairBoard brings documents written by earlier versions into the current
// shape. Columns are put in canonical order and, for repeated task ids, the
// first occurrence in the document wins. It fails only when one of the three
// columns is missing.
func repairBoard(cols []domain.Column, logger *log.Entry) (domain.Board, bool) {
	byID := make(map[domain.ColumnID][]domain.Task, len(cols))
	seen := make(map[string]struct{})
	for _, col := range cols {
		title, known := domain.ColumnTitle(col.ID)
		if !known {
			logger.WithField("column", col.ID).Warn("dropping unknown column")
			continue
		}
		if _, dup := byID[col.ID]; dup {
			logger.WithField("column", col.ID).Warn("dropping duplicate column")
			continue
		}
		tasks := []domain.Task{}
		for _, t := range col.Tasks {
			if t.ID == "" {
				t.ID = "task-" + uuid.NewString()
			}
			if _, dup := seen[t.ID]; dup {
				logger.WithField("task", t.ID).Warn("dropping duplicate task id")
				continue
			}
			seen[t.ID] = struct{}{}
			tasks = append(tasks, repairTask(t, title))
		}
		byID[col.ID] = tasks
	}

	b := domain.NewBoard()
	for i := range b.Columns {
		tasks, ok := byID[b.Columns[i].ID]
		if !ok {
			logger.WithField("column", b.Columns[i].ID).Warn("stored board misses a column, using seed")
			return domain.Board{}, false
		}
		b.Columns[i].Tasks = tasks
	}
	return b, true
}

func repairTask(t domain.Task, status domain.Status) domain.Task {
	t.Status = status
	if p, ok := domain.ParsePriority(string(t.Priority)); ok {
		t.Priority = p
	} else {
		t.Priority = domain.PriorityLow
	}
	if strings.TrimSpace(t.DueDate) == "" {
		t.DueDate = domain.DueDateUnset
	}
	if t.ProgressTotal < 0 {
		t.ProgressTotal = 0
	}
	t.ProgressCurrent = max(0, min(t.ProgressCurrent, domain.ProgressCeiling(t.ProgressTotal)))
	return t
}

// SaveBoard writes the registry.
func (s *Store) SaveBoard(ctx context.Context, b domain.Board) error {
	data, err := sonic.ConfigStd.Marshal(b)
	if err != nil {
		return &PersistenceError{Op: "encode", Key: s.boardKey, Err: err}
	}
	if err := s.kv.Set(ctx, s.boardKey, data); err != nil {
		return &PersistenceError{Op: "write", Key: s.boardKey, Err: err}
	}
	return nil
}

// LoadProfile returns the onboarded user, if any.
func (s *Store) LoadProfile(ctx context.Context) (domain.UserProfile, bool) {
	logger := s.log.WithField("key", s.profileKey)
	data, err := s.kv.Get(ctx, s.profileKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.WithError(err).Warn("profile read failed")
		}
		return domain.UserProfile{}, false
	}
	var doc any
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		logger.WithError(err).Warn("stored profile is not valid JSON")
		return domain.UserProfile{}, false
	}
	if err := s.profileSchema.Validate(doc); err != nil {
		logger.WithField("reason", firstSchemaError(err)).Warn("stored profile has unexpected shape")
		return domain.UserProfile{}, false
	}
	var p domain.UserProfile
	if err := sonic.ConfigStd.Unmarshal(data, &p); err != nil {
		logger.WithError(err).Warn("stored profile could not be decoded")
		return domain.UserProfile{}, false
	}
	p.Nickname = strings.TrimSpace(p.Nickname)
	if p.Nickname == "" {
		return domain.UserProfile{}, false
	}
	return p, true
}

// SaveProfile writes the user profile.
func (s *Store) SaveProfile(ctx context.Context, p domain.UserProfile) error {
	data, err := sonic.ConfigStd.Marshal(p)
	if err != nil {
		return &PersistenceError{Op: "encode", Key: s.profileKey, Err: err}
	}
	if err := s.kv.Set(ctx, s.profileKey, data); err != nil {
		return &PersistenceError{Op: "write", Key: s.profileKey, Err: err}
	}
	return nil
}
