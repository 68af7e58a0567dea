package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/castellan/storygraph/helper"
	"github.com/castellan/storygraph/model"
	loadSql "github.com/castellan/storygraph/sql"
	"github.com/google/uuid"
)

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	InsertEdge(edge *model.GraphEdge) error
	SelectEdge(id uuid.UUID) (*model.GraphEdge, error)
	SelectEdgesFromNode(fromID uuid.UUID) ([]*model.GraphEdge, error)
	SelectEdgesToNode(toID uuid.UUID) ([]*model.GraphEdge, error)
	SelectEdgesByScope(scope string) ([]*model.GraphEdge, error)
	UpdateEdgeConfidence(id uuid.UUID, confidence float64) error
	DeleteEdge(id uuid.UUID) error
}

// EdgesDBHandler handles edge-related database operations
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler.
// It initializes the database connection and loads edge-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{
		db: db,
	}

	err := loadSql.LoadEdgesSql(edgesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	err = edgesDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table in the database.
// If the table already exists, it does not create it again.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing edges table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// InsertEdge inserts an edge between two existing nodes.
// Returns ErrDanglingReference if either endpoint does not exist; the
// graph is left unchanged in that case.
func (h *EdgesDBHandler) InsertEdge(edge *model.GraphEdge) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_edge($1, $2, $3, $4, $5)`,
		edge.FromID,
		edge.ToID,
		edge.Label,
		edge.Confidence,
		edge.Metadata,
	)

	err := scanEdge(row, edge)
	if err != nil {
		if strings.Contains(err.Error(), "dangling reference") {
			return helper.NewError("insert edge", ErrDanglingReference)
		}
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEdge retrieves an edge by id
func (h *EdgesDBHandler) SelectEdge(id uuid.UUID) (*model.GraphEdge, error) {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_edge($1)`,
		id,
	)

	edge := &model.GraphEdge{}
	err := scanEdge(row, edge)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return edge, nil
}

// SelectEdgesFromNode retrieves all edges starting at a node
func (h *EdgesDBHandler) SelectEdgesFromNode(fromID uuid.UUID) ([]*model.GraphEdge, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_edges_from_node($1)`,
		fromID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

// SelectEdgesToNode retrieves all edges ending at a node
func (h *EdgesDBHandler) SelectEdgesToNode(toID uuid.UUID) ([]*model.GraphEdge, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_edges_to_node($1)`,
		toID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

// SelectEdgesByScope retrieves all edges whose source node belongs to
// the scope.
func (h *EdgesDBHandler) SelectEdgesByScope(scope string) ([]*model.GraphEdge, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_edges_by_scope($1)`,
		scope,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return collectEdges(rows)
}

// UpdateEdgeConfidence updates the confidence of an edge
func (h *EdgesDBHandler) UpdateEdgeConfidence(id uuid.UUID, confidence float64) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_edge_confidence($1, $2)`,
		id,
		confidence,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEdge deletes an edge by id
func (h *EdgesDBHandler) DeleteEdge(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_edge($1)`,
		id,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

func scanEdge(row rowScanner, edge *model.GraphEdge) error {
	return row.Scan(
		&edge.ID,
		&edge.FromID,
		&edge.ToID,
		&edge.Label,
		&edge.Confidence,
		&edge.Metadata,
		&edge.CreatedAt,
	)
}

func collectEdges(rows *sql.Rows) ([]*model.GraphEdge, error) {
	var edges []*model.GraphEdge
	for rows.Next() {
		edge := &model.GraphEdge{}
		err := scanEdge(rows, edge)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		edges = append(edges, edge)
	}

	err := rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return edges, nil
}
