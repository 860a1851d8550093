// Package flow implements the conversation-authoring Flow Store (C9):
// CRUD over Intent/Condition/Action/FlowEdge plus the two read
// operations the conversation engine drives off of (match_intent,
// next_conditions), adapted from the teacher's SQLite checkpoint-store
// idiom to this schema. Flow-graph nodes (intents, conditions, actions)
// are linked purely through FlowEdge rows keyed by node id, mirroring
// the generic node/edge shape of spec §3's Flow Graph.
package flow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/graphrag/model"
)

// Store is the flow-authoring contract (spec §4.7/§3).
type Store struct {
	db *sql.DB
}

// Options configures a Store.
type Options struct {
	Path string // ":memory:" or a file path
}

// New opens (and migrates) a SQLite-backed flow store.
func New(opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("flow: open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS intents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			display_name TEXT,
			description TEXT,
			keywords TEXT,
			examples TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1
		);
		CREATE TABLE IF NOT EXISTS conditions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			display_name TEXT,
			condition_type TEXT NOT NULL,
			question_template TEXT,
			options TEXT,
			options_source TEXT,
			is_required INTEGER NOT NULL DEFAULT 0,
			order_num INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS actions (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			action_type TEXT NOT NULL,
			config TEXT
		);
		CREATE TABLE IF NOT EXISTS flow_edges (
			id TEXT PRIMARY KEY,
			source_node_id TEXT NOT NULL,
			target_node_id TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			condition_expr TEXT,
			order_num INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_flow_edges_source ON flow_edges (source_node_id, edge_type);
	`)
	if err != nil {
		return fmt.Errorf("flow: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveIntent upserts an intent, assigning an id if absent.
func (s *Store) SaveIntent(ctx context.Context, in *model.Intent) error {
	if in.ID == "" {
		in.ID = "intent_" + uuid.NewString()
	}
	keywordsJSON, _ := json.Marshal(in.Keywords)
	examplesJSON, _ := json.Marshal(in.Examples)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO intents (id, name, display_name, description, keywords, examples, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, display_name=excluded.display_name,
			description=excluded.description, keywords=excluded.keywords, examples=excluded.examples,
			priority=excluded.priority, is_active=excluded.is_active
	`, in.ID, in.Name, in.DisplayName, in.Description, string(keywordsJSON), string(examplesJSON), in.Priority, boolToInt(in.IsActive))
	if err != nil {
		return fmt.Errorf("flow: save intent: %w", err)
	}
	return nil
}

// GetIntent loads one intent by id.
func (s *Store) GetIntent(ctx context.Context, id string) (*model.Intent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, description, keywords, examples, priority, is_active
		FROM intents WHERE id = ?
	`, id)
	in, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: get intent: %w", err)
	}
	return in, nil
}

// ListIntents returns every active intent ordered by priority descending.
func (s *Store) ListIntents(ctx context.Context) ([]model.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, description, keywords, examples, priority, is_active
		FROM intents WHERE is_active = 1 ORDER BY priority DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("flow: list intents: %w", err)
	}
	defer rows.Close()

	var out []model.Intent
	for rows.Next() {
		in, err := scanIntentRows(rows)
		if err != nil {
			return nil, fmt.Errorf("flow: scan intent: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row *sql.Row) (*model.Intent, error) {
	return scanIntentGeneric(row)
}

func scanIntentRows(rows *sql.Rows) (*model.Intent, error) {
	return scanIntentGeneric(rows)
}

func scanIntentGeneric(s rowScanner) (*model.Intent, error) {
	var in model.Intent
	var keywordsJSON, examplesJSON string
	var isActive int
	if err := s.Scan(&in.ID, &in.Name, &in.DisplayName, &in.Description, &keywordsJSON, &examplesJSON, &in.Priority, &isActive); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(keywordsJSON), &in.Keywords)
	_ = json.Unmarshal([]byte(examplesJSON), &in.Examples)
	in.IsActive = isActive != 0
	return &in, nil
}

// ListAllIntents returns every intent regardless of is_active, for the
// authoring overview endpoint (unlike ListIntents, which is the engine's
// active-only matching view).
func (s *Store) ListAllIntents(ctx context.Context) ([]model.Intent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, description, keywords, examples, priority, is_active
		FROM intents ORDER BY priority DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("flow: list all intents: %w", err)
	}
	defer rows.Close()

	var out []model.Intent
	for rows.Next() {
		in, err := scanIntentRows(rows)
		if err != nil {
			return nil, fmt.Errorf("flow: scan intent: %w", err)
		}
		out = append(out, *in)
	}
	return out, rows.Err()
}

// DeleteIntent removes an intent and every flow edge touching it.
func (s *Store) DeleteIntent(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "intents", id)
}

func (s *Store) deleteNode(ctx context.Context, table, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("flow: begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM flow_edges WHERE source_node_id = ? OR target_node_id = ?`, id, id); err != nil {
		return fmt.Errorf("flow: delete edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("flow: delete node: %w", err)
	}
	return tx.Commit()
}

// SaveCondition upserts a flow-graph condition node.
func (s *Store) SaveCondition(ctx context.Context, c *model.Condition) error {
	if c.ID == "" {
		c.ID = "cond_" + uuid.NewString()
	}
	optionsJSON, _ := json.Marshal(c.Options)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conditions (id, name, display_name, condition_type, question_template, options, options_source, is_required, order_num)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, display_name=excluded.display_name,
			condition_type=excluded.condition_type, question_template=excluded.question_template,
			options=excluded.options, options_source=excluded.options_source,
			is_required=excluded.is_required, order_num=excluded.order_num
	`, c.ID, c.Name, c.DisplayName, string(c.ConditionType), c.QuestionTemplate,
		string(optionsJSON), c.OptionsSource, boolToInt(c.IsRequired), c.Order)
	if err != nil {
		return fmt.Errorf("flow: save condition: %w", err)
	}
	return nil
}

// GetCondition loads one condition node by id.
func (s *Store) GetCondition(ctx context.Context, id string) (*model.Condition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, display_name, condition_type, question_template, options, options_source, is_required, order_num
		FROM conditions WHERE id = ?
	`, id)
	var c model.Condition
	var conditionType, optionsJSON string
	var isRequired int
	err := row.Scan(&c.ID, &c.Name, &c.DisplayName, &conditionType, &c.QuestionTemplate,
		&optionsJSON, &c.OptionsSource, &isRequired, &c.Order)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: get condition: %w", err)
	}
	c.ConditionType = model.ConditionType(conditionType)
	c.IsRequired = isRequired != 0
	_ = json.Unmarshal([]byte(optionsJSON), &c.Options)
	return &c, nil
}

// DeleteCondition removes a condition node and its edges.
func (s *Store) DeleteCondition(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "conditions", id)
}

// SaveAction upserts a flow-graph terminal action node.
func (s *Store) SaveAction(ctx context.Context, a *model.Action) error {
	if a.ID == "" {
		a.ID = "action_" + uuid.NewString()
	}
	configJSON, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("flow: marshal action config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO actions (id, name, action_type, config) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, action_type=excluded.action_type, config=excluded.config
	`, a.ID, a.Name, string(a.ActionType), string(configJSON))
	if err != nil {
		return fmt.Errorf("flow: save action: %w", err)
	}
	return nil
}

// GetAction loads one terminal action node by id.
func (s *Store) GetAction(ctx context.Context, id string) (*model.Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, action_type, config FROM actions WHERE id = ?`, id)
	var a model.Action
	var actionType, configJSON string
	err := row.Scan(&a.ID, &a.Name, &actionType, &configJSON)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flow: get action: %w", err)
	}
	a.ActionType = model.ActionType(actionType)
	if configJSON != "" {
		_ = json.Unmarshal([]byte(configJSON), &a.Config)
	}
	return &a, nil
}

// DeleteAction removes an action node and its edges.
func (s *Store) DeleteAction(ctx context.Context, id string) error {
	return s.deleteNode(ctx, "actions", id)
}

// ListConditions returns every authored condition node ordered by Order.
func (s *Store) ListConditions(ctx context.Context) ([]model.Condition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, display_name, condition_type, question_template, options, options_source, is_required, order_num
		FROM conditions ORDER BY order_num ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("flow: list conditions: %w", err)
	}
	defer rows.Close()

	var out []model.Condition
	for rows.Next() {
		var c model.Condition
		var conditionType, optionsJSON string
		var isRequired int
		if err := rows.Scan(&c.ID, &c.Name, &c.DisplayName, &conditionType, &c.QuestionTemplate,
			&optionsJSON, &c.OptionsSource, &isRequired, &c.Order); err != nil {
			return nil, fmt.Errorf("flow: scan condition: %w", err)
		}
		c.ConditionType = model.ConditionType(conditionType)
		c.IsRequired = isRequired != 0
		_ = json.Unmarshal([]byte(optionsJSON), &c.Options)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListActions returns every authored terminal action node.
func (s *Store) ListActions(ctx context.Context) ([]model.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, action_type, config FROM actions`)
	if err != nil {
		return nil, fmt.Errorf("flow: list actions: %w", err)
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		var a model.Action
		var actionType, configJSON string
		if err := rows.Scan(&a.ID, &a.Name, &actionType, &configJSON); err != nil {
			return nil, fmt.Errorf("flow: scan action: %w", err)
		}
		a.ActionType = model.ActionType(actionType)
		if configJSON != "" {
			_ = json.Unmarshal([]byte(configJSON), &a.Config)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListEdges returns every flow edge, ordered by Order.
func (s *Store) ListEdges(ctx context.Context) ([]model.FlowEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, edge_type, condition_expr, order_num
		FROM flow_edges ORDER BY order_num ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("flow: list edges: %w", err)
	}
	defer rows.Close()

	var out []model.FlowEdge
	for rows.Next() {
		var e model.FlowEdge
		var typ string
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &typ, &e.ConditionExpr, &e.Order); err != nil {
			return nil, fmt.Errorf("flow: scan edge: %w", err)
		}
		e.EdgeType = model.EdgeType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveEdge upserts a flow edge between two nodes, after verifying both
// endpoints exist in at least one of the three node tables (spec §4.7:
// "Must enforce FlowEdge endpoints exist").
func (s *Store) SaveEdge(ctx context.Context, e *model.FlowEdge) error {
	for _, id := range []string{e.SourceNodeID, e.TargetNodeID} {
		if ok, err := s.nodeExists(ctx, id); err != nil {
			return err
		} else if !ok {
			return model.NewError(model.KindValidation, fmt.Sprintf("flow: edge endpoint %q does not exist", id), nil)
		}
	}
	if e.ID == "" {
		e.ID = "edge_" + uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_edges (id, source_node_id, target_node_id, edge_type, condition_expr, order_num)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET source_node_id=excluded.source_node_id, target_node_id=excluded.target_node_id,
			edge_type=excluded.edge_type, condition_expr=excluded.condition_expr, order_num=excluded.order_num
	`, e.ID, e.SourceNodeID, e.TargetNodeID, string(e.EdgeType), e.ConditionExpr, e.Order)
	if err != nil {
		return fmt.Errorf("flow: save edge: %w", err)
	}
	return nil
}

func (s *Store) nodeExists(ctx context.Context, id string) (bool, error) {
	for _, table := range []string{"intents", "conditions", "actions"} {
		var found int
		err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&found)
		if err == nil {
			return true, nil
		}
		if err != sql.ErrNoRows {
			return false, fmt.Errorf("flow: check node existence: %w", err)
		}
	}
	return false, nil
}

// EdgesFrom lists every outgoing edge from a node, ordered by Order,
// optionally restricted to one edge type ("" matches any type).
func (s *Store) EdgesFrom(ctx context.Context, sourceNodeID string, edgeType model.EdgeType) ([]model.FlowEdge, error) {
	query := `SELECT id, source_node_id, target_node_id, edge_type, condition_expr, order_num FROM flow_edges WHERE source_node_id = ?`
	args := []any{sourceNodeID}
	if edgeType != "" {
		query += ` AND edge_type = ?`
		args = append(args, string(edgeType))
	}
	query += ` ORDER BY order_num ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("flow: list edges: %w", err)
	}
	defer rows.Close()

	var out []model.FlowEdge
	for rows.Next() {
		var e model.FlowEdge
		var typ string
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &typ, &e.ConditionExpr, &e.Order); err != nil {
			return nil, fmt.Errorf("flow: scan edge: %w", err)
		}
		e.EdgeType = model.EdgeType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MatchIntent implements match_intent(message): case-insensitive keyword
// containment over every active intent, ordered by priority (spec §4.7).
func (s *Store) MatchIntent(ctx context.Context, message string) (*model.Intent, error) {
	intents, err := s.ListIntents(ctx)
	if err != nil {
		return nil, err
	}
	lower := strings.ToLower(message)
	for i := range intents {
		for _, kw := range intents[i].Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return &intents[i], nil
			}
		}
	}
	return nil, model.ErrNotFound
}

// NextConditions implements next_conditions(current_node_id, collected_values,
// current_intent): walks NEXT and BRANCH edges out of currentNodeID,
// evaluating BRANCH condition_expr over the sandboxed vars map, and
// returns the node ids of every edge that is unconditional or whose
// expression evaluates true (spec §4.7, I5).
func (s *Store) NextConditions(ctx context.Context, currentNodeID string, collectedValues map[string]any, currentIntent string) ([]string, error) {
	edges, err := s.EdgesFrom(ctx, currentNodeID, "")
	if err != nil {
		return nil, err
	}
	vars := make(map[string]any, len(collectedValues)+1)
	for k, v := range collectedValues {
		vars[k] = v
	}
	vars["intent"] = currentIntent

	var targets []string
	for _, e := range edges {
		switch e.EdgeType {
		case model.EdgeNext:
			targets = append(targets, e.TargetNodeID)
		case model.EdgeBranch:
			if e.ConditionExpr == "" {
				targets = append(targets, e.TargetNodeID)
				continue
			}
			ok, err := EvalBranch(e.ConditionExpr, vars)
			if err != nil {
				return nil, fmt.Errorf("flow: evaluate branch for edge %s: %w", e.ID, err)
			}
			if ok {
				targets = append(targets, e.TargetNodeID)
			}
		}
	}
	return targets, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
