package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	loadSql "github.com/castellan/storygraph/sql"
	"github.com/google/uuid"
)

// NodesDBHandlerFunctions defines the interface for Nodes database operations.
type NodesDBHandlerFunctions interface {
	UpsertNode(node *model.GraphNode) error
	UpsertNodeFromCandidate(candidate *model.Candidate, scope string) (*model.GraphNode, error)
	SelectNode(id uuid.UUID) (*model.GraphNode, error)
	SelectNodeByName(name string, entityType *model.EntityType) (*model.GraphNode, error)
	SearchNodes(term string, entityType *model.EntityType, limit int) ([]*model.GraphNode, error)
	SelectNodesByScope(scope string) ([]*model.GraphNode, error)
	DeleteNode(id uuid.UUID) error
	InsertNodeMention(mention *model.NodeMention) error
	SelectChunksMentioningNode(nodeID uuid.UUID, limit int) ([]model.SearchResult, error)
}

// NodesDBHandler handles node-related database operations.
// Nodes are keyed by a content-derived id, so upserting the same entity
// twice updates the existing row instead of creating a duplicate.
type NodesDBHandler struct {
	db *helper.Database
}

// NewNodesDBHandler creates a new nodes database handler.
// It initializes the database connection and loads node-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewNodesDBHandler(db *helper.Database, force bool) (*NodesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	nodesDbHandler := &NodesDBHandler{
		db: db,
	}

	err := loadSql.LoadNodesSql(nodesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load nodes sql", err)
	}

	err = nodesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized NodesDBHandler")

	return nodesDbHandler, nil
}

// CreateTable creates the 'nodes' and 'node_mentions' tables in the database.
// If the tables already exist, it does not create them again.
func (h *NodesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_nodes();`)
	if err != nil {
		log.Panicf("error initializing nodes table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table nodes")

	return nil
}

// UpsertNode inserts a node or merges it into the existing row with the
// same id. The node id must be set by the caller.
func (h *NodesDBHandler) UpsertNode(node *model.GraphNode) error {
	if node.ID == uuid.Nil {
		node.ID = model.DeriveNodeID(node.Name, node.Type)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_node($1, $2, $3, $4, $5, $6)`,
		node.ID,
		node.Name,
		string(node.Type),
		node.Summary,
		node.Attributes,
		node.Scope,
	)

	err := scanNode(row, node)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// UpsertNodeFromCandidate promotes an accepted candidate to a graph
// node. Candidates that have not been accepted are refused.
func (h *NodesDBHandler) UpsertNodeFromCandidate(candidate *model.Candidate, scope string) (*model.GraphNode, error) {
	if candidate.Status != model.CandidateStatusAccepted {
		return nil, helper.NewError("candidate validation", ErrCandidateNotAccepted)
	}

	node := &model.GraphNode{
		ID:         model.DeriveNodeID(candidate.CanonicalText, candidate.Type),
		Name:       candidate.CanonicalText,
		Type:       candidate.Type,
		Summary:    summaryFromContexts(candidate.Contexts),
		Attributes: model.Attributes{},
		Scope:      scope,
	}
	if len(candidate.Aliases) > 0 {
		node.Attributes["aliases"] = strings.Join(candidate.Aliases, ", ")
	}
	node.Attributes["confidence"] = fmt.Sprintf("%.2f", candidate.Confidence)

	err := h.UpsertNode(node)
	if err != nil {
		return nil, helper.NewError("upsert node", err)
	}

	return node, nil
}

// SelectNode retrieves a node by id.
// Returns ErrNodeNotFound if no node with the id exists.
func (h *NodesDBHandler) SelectNode(id uuid.UUID) (*model.GraphNode, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_node($1)`,
		id,
	)

	node := &model.GraphNode{}
	err := scanNode(row, node)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select node", ErrNodeNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return node, nil
}

// SelectNodeByName retrieves the most recently updated node with an
// exact case-insensitive name match, optionally filtered by type.
// Returns ErrNodeNotFound if no node matches.
func (h *NodesDBHandler) SelectNodeByName(name string, entityType *model.EntityType) (*model.GraphNode, error) {
	var nodeType interface{}
	if entityType != nil {
		nodeType = string(*entityType)
	}

	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_node_by_name($1, $2)`,
		name,
		nodeType,
	)

	node := &model.GraphNode{}
	err := scanNode(row, node)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, helper.NewError("select node by name", ErrNodeNotFound)
	}
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return node, nil
}

// SearchNodes retrieves nodes whose name contains the term, shortest
// names first, optionally filtered by type.
func (h *NodesDBHandler) SearchNodes(term string, entityType *model.EntityType, limit int) ([]*model.GraphNode, error) {
	var nodeType interface{}
	if entityType != nil {
		nodeType = string(*entityType)
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM search_nodes($1, $2, $3)`,
		term,
		nodeType,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// SelectNodesByScope retrieves all nodes of a scope ordered by name.
func (h *NodesDBHandler) SelectNodesByScope(scope string) ([]*model.GraphNode, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_nodes_by_scope($1)`,
		scope,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// DeleteNode deletes a node by id. Edges and mentions referencing the
// node are removed by cascade.
func (h *NodesDBHandler) DeleteNode(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_node($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// InsertNodeMention records that a chunk mentions a node. Repeated
// mentions keep the highest confidence seen.
func (h *NodesDBHandler) InsertNodeMention(mention *model.NodeMention) error {
	_, err := h.db.Instance.Exec(
		`SELECT insert_node_mention($1, $2, $3)`,
		mention.NodeID,
		mention.ChunkID,
		mention.Confidence,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectChunksMentioningNode returns a ranking of chunk ids that
// mention the node, highest mention confidence first.
func (h *NodesDBHandler) SelectChunksMentioningNode(nodeID uuid.UUID, limit int) ([]model.SearchResult, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_chunks_mentioning_node($1, $2)`,
		nodeID,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []model.SearchResult
	for rows.Next() {
		var chunkID string
		var confidence float64
		err := rows.Scan(&chunkID, &confidence)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, model.SearchResult{
			DocumentID: chunkID,
			Score:      confidence,
			Rank:       len(results),
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner, node *model.GraphNode) error {
	var nodeType string
	err := row.Scan(
		&node.ID,
		&node.Name,
		&nodeType,
		&node.Summary,
		&node.Attributes,
		&node.Scope,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return err
	}
	node.Type = model.EntityType(nodeType)
	return nil
}

func collectNodes(rows *sql.Rows) ([]*model.GraphNode, error) {
	var nodes []*model.GraphNode
	for rows.Next() {
		node := &model.GraphNode{}
		err := scanNode(rows, node)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		nodes = append(nodes, node)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return nodes, nil
}

// summaryFromContexts builds a short node summary from review contexts.
func summaryFromContexts(contexts []string) string {
	if len(contexts) == 0 {
		return ""
	}
	summary := contexts[0]
	if len(summary) > 280 {
		summary = summary[:280]
	}
	return summary
}
