package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/adapters/datasource"
	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// TableMap is the canonical internal form of a snapshot's tables, keyed by
// full name. The wire carries the list form; normalization happens on
// ingress.
type TableMap map[string]models.TableDescriptor

// NormalizeTables accepts either the list form or an already keyed map and
// returns the canonical map. Table entries missing a full name derive it
// from schema and table name.
func NormalizeTables(input any) (TableMap, error) {
	out := make(TableMap)

	switch v := input.(type) {
	case nil:
		return out, nil
	case TableMap:
		for _, t := range v {
			out[tableKey(t)] = t
		}
	case map[string]models.TableDescriptor:
		for _, t := range v {
			out[tableKey(t)] = t
		}
	case []models.TableDescriptor:
		for _, t := range v {
			out[tableKey(t)] = t
		}
	case *models.SchemaSnapshot:
		for _, t := range v.Tables {
			out[tableKey(t)] = t
		}
	default:
		return nil, fmt.Errorf("unsupported schema form %T", input)
	}
	return out, nil
}

func tableKey(t models.TableDescriptor) string {
	if t.FullName != "" {
		return t.FullName
	}
	if t.SchemaName != "" {
		return t.SchemaName + "." + t.TableName
	}
	return t.TableName
}

// RelevantTables orders the snapshot's tables by textual overlap with the
// question and returns at most limit of them. Ordering is deterministic:
// score descending, then full name ascending.
func RelevantTables(snap *models.SchemaSnapshot, question string, limit int) []models.TableDescriptor {
	type scored struct {
		table models.TableDescriptor
		score int
	}

	terms := questionTerms(question)
	ranked := make([]scored, 0, len(snap.Tables))
	for _, t := range snap.Tables {
		ranked = append(ranked, scored{table: t, score: scoreTable(t, terms)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].table.FullName < ranked[j].table.FullName
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]models.TableDescriptor, len(ranked))
	for i, r := range ranked {
		out[i] = r.table
	}
	return out
}

// scoreTable counts question-term hits: table-name hits weigh more than
// column hits.
func scoreTable(t models.TableDescriptor, terms []string) int {
	score := 0
	name := strings.ToLower(t.TableName)
	for _, term := range terms {
		if strings.Contains(name, term) || strings.Contains(term, name) {
			score += 3
		}
		for _, col := range t.Columns {
			if strings.Contains(strings.ToLower(col.Name), term) {
				score++
			}
		}
	}
	return score
}

func questionTerms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '_'
	})
	terms := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// SchemaService fetches schema snapshots for sessions, consulting the
// session cache before the adapter.
type SchemaService struct {
	pools    *datasource.PoolManager
	sessions *SessionRegistry
	logger   *zap.Logger
}

// NewSchemaService wires the schema service.
func NewSchemaService(pools *datasource.PoolManager, sessions *SessionRegistry, logger *zap.Logger) *SchemaService {
	return &SchemaService{
		pools:    pools,
		sessions: sessions,
		logger:   logger.Named("schema-service"),
	}
}

// Snapshot returns the schema snapshot for the session, scoped to schema
// when non-empty. The session cache is consulted first; adapter-level TTL
// caching sits below this.
func (s *SchemaService) Snapshot(ctx context.Context, session *models.Session, schema string) (*models.SchemaSnapshot, error) {
	if snap, scope, ok := s.sessions.CachedSchema(session.ID); ok && cacheCovers(scope, schema) {
		return snap, nil
	}

	adapter, err := s.pools.Acquire(ctx, session.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterUnavailable, err)
	}
	defer s.pools.Release(session.Params, adapter)

	var snap *models.SchemaSnapshot
	if schema == "" {
		snap, err = adapter.DatabaseSnapshot(ctx)
	} else {
		snap, err = adapter.SchemaSnapshot(ctx, schema)
	}
	if err != nil {
		return nil, err
	}

	snap, err = canonicalize(snap)
	if err != nil {
		return nil, err
	}

	s.sessions.CacheSchema(session.ID, snap, schema)
	return snap, nil
}

// canonicalize rebuilds the snapshot's table list through the canonical map
// form: full names filled in, duplicates collapsed, deterministic order.
// Works on a copy so adapter-owned snapshots stay untouched.
func canonicalize(snap *models.SchemaSnapshot) (*models.SchemaSnapshot, error) {
	byName, err := NormalizeTables(snap)
	if err != nil {
		return nil, err
	}

	out := *snap
	out.Tables = make([]models.TableDescriptor, 0, len(byName))
	for name, t := range byName {
		if t.FullName == "" {
			t.FullName = name
		}
		out.Tables = append(out.Tables, t)
	}
	sort.Slice(out.Tables, func(i, j int) bool {
		return out.Tables[i].FullName < out.Tables[j].FullName
	})
	return &out, nil
}

// ListSchemas lists the user-visible schemas of the session's database.
func (s *SchemaService) ListSchemas(ctx context.Context, session *models.Session) ([]models.SchemaSummary, error) {
	adapter, err := s.pools.Acquire(ctx, session.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterUnavailable, err)
	}
	defer s.pools.Release(session.Params, adapter)

	return adapter.ListSchemas(ctx)
}

// TableInfo returns one table with its full column list.
func (s *SchemaService) TableInfo(ctx context.Context, session *models.Session, schema, table string) (*models.TableDescriptor, error) {
	adapter, err := s.pools.Acquire(ctx, session.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAdapterUnavailable, err)
	}
	defer s.pools.Release(session.Params, adapter)

	return adapter.TableInfo(ctx, schema, table)
}

// cacheCovers reports whether a snapshot cached for scope can serve a
// request for schema. A whole-database snapshot (scope "") covers anything;
// a schema-scoped one only covers the same schema, so a later whole-database
// request refetches instead of serving the narrow slice.
func cacheCovers(scope, schema string) bool {
	if scope == "" {
		return true
	}
	return scope == schema
}
