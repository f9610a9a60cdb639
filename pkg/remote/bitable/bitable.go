// Package bitable stores field records in Feishu Bitable tables, one table
// per collection name.
package bitable

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/httprunner/FieldSync/internal/env"
	"github.com/httprunner/FieldSync/internal/feishusdk"
	"github.com/httprunner/FieldSync/pkg/remote"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultPathField is the column holding the full collection path, which keeps
// records of different properties apart inside one shared table.
const DefaultPathField = "Path"

// RecordAPI is the subset of the Feishu client the store calls.
type RecordAPI interface {
	FindRecords(ctx context.Context, tableURL string, filter *feishusdk.FilterInfo) ([]feishusdk.Row, error)
	CreateRecord(ctx context.Context, tableURL string, fields map[string]any) (string, error)
	UpdateRecord(ctx context.Context, tableURL, recordID string, fields map[string]any) error
}

// Store implements remote.Store and remote.Counter on top of Bitable.
type Store struct {
	api       RecordAPI
	tables    map[string]string
	pathField string
}

// New builds a store. tables maps a collection name ("trips") or a full
// collection path ("properties/P1/trips") to a Bitable URL.
func New(api RecordAPI, tables map[string]string) (*Store, error) {
	if api == nil {
		return nil, errors.New("bitable: record api is nil")
	}
	routes := make(map[string]string, len(tables))
	for key, rawURL := range tables {
		key = remote.CleanPath(key)
		if key == "" {
			continue
		}
		if _, err := feishusdk.ParseTableURL(rawURL); err != nil {
			return nil, errors.Wrapf(err, "bitable: route %q", key)
		}
		routes[key] = strings.TrimSpace(rawURL)
	}
	if len(routes) == 0 {
		return nil, errors.New("bitable: no table routes configured")
	}
	return &Store{api: api, tables: routes, pathField: DefaultPathField}, nil
}

// NewFromEnv reads FEISHU_* credentials and the FIELDSYNC_TABLES routes.
func NewFromEnv() (*Store, error) {
	client, err := feishusdk.NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	return New(client, env.Pairs(env.Tables))
}

// Routes returns the configured route keys in sorted order.
func (s *Store) Routes() []string {
	keys := make([]string, 0, len(s.tables))
	for key := range s.tables {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) route(collectionPath string) (string, error) {
	path := remote.CleanPath(collectionPath)
	if rawURL, ok := s.tables[path]; ok {
		return rawURL, nil
	}
	if rawURL, ok := s.tables[remote.Collection(path)]; ok {
		return rawURL, nil
	}
	return "", errors.Wrapf(remote.ErrNoRoute, "collection %q", path)
}

func (s *Store) Exists(ctx context.Context, collectionPath, field, value string) (bool, error) {
	n, err := s.Count(ctx, collectionPath, field, value)
	return n > 0, err
}

// Count searches the routed table for rows of collectionPath whose field equals value.
func (s *Store) Count(ctx context.Context, collectionPath, field, value string) (n int, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "bitable: count records failed")
		}
	}()
	rawURL, err := s.route(collectionPath)
	if err != nil {
		return 0, err
	}
	filter := feishusdk.LocalIDFilter(field, value, s.pathField, remote.CleanPath(collectionPath))
	rows, err := s.api.FindRecords(ctx, rawURL, filter)
	if err != nil {
		return 0, err
	}
	if len(rows) > 1 {
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.RecordID)
		}
		log.Warn().Str("path", collectionPath).Str("field", field).Str("value", value).
			Strs("record_ids", ids).Msg("remote: duplicate localId")
	}
	return len(rows), nil
}

func (s *Store) Insert(ctx context.Context, collectionPath string, payload map[string]any) (id string, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "bitable: insert record failed")
		}
	}()
	rawURL, err := s.route(collectionPath)
	if err != nil {
		return "", err
	}
	fields, err := encodeFields(payload)
	if err != nil {
		return "", err
	}
	fields[s.pathField] = remote.CleanPath(collectionPath)
	return s.api.CreateRecord(ctx, rawURL, fields)
}

// Update expects recordPath as <collectionPath>/<recordID>.
func (s *Store) Update(ctx context.Context, recordPath string, fields map[string]any) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "bitable: update record failed")
		}
	}()
	collectionPath, recordID, err := remote.SplitRecordPath(recordPath)
	if err != nil {
		return err
	}
	rawURL, err := s.route(collectionPath)
	if err != nil {
		return err
	}
	encoded, err := encodeFields(fields)
	if err != nil {
		return err
	}
	delete(encoded, s.pathField)
	return s.api.UpdateRecord(ctx, rawURL, recordID, encoded)
}

// encodeFields maps payload values onto cell values: scalars pass through,
// nested objects and lists are stored as JSON text.
func encodeFields(payload map[string]any) (map[string]any, error) {
	fields := make(map[string]any, len(payload)+1)
	for key, value := range payload {
		if strings.TrimSpace(key) == "" || value == nil {
			continue
		}
		switch v := value.(type) {
		case string, bool, int, int32, int64, float32, float64, json.Number:
			fields[key] = v
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, errors.Wrapf(err, "encode field %q", key)
			}
			fields[key] = string(raw)
		}
	}
	return fields, nil
}
