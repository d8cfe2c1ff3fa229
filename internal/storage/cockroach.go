package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ghostmesh/gateway/pkg/models"
)

// NewCockroachStoresFromDSN creates Cockroach-backed stores using a DSN.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	stores := StoreSet{
		Operators:  &cockroachOperatorStore{db: db},
		Ghosts:     &cockroachGhostStore{db: db},
		Interfaces: &cockroachInterfaceStore{db: db},
		closer:     db.Close,
	}
	return stores, nil
}

type cockroachOperatorStore struct {
	db *sql.DB
}

func (s *cockroachOperatorStore) Create(ctx context.Context, operator *models.Operator) error {
	if operator.ID == "" {
		operator.ID = uuid.NewString()
	}
	if operator.CreatedAt.IsZero() {
		operator.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, handle, created_at) VALUES ($1, $2, $3)
	`, operator.ID, operator.Handle, operator.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create operator: %w", err)
	}
	return nil
}

func (s *cockroachOperatorStore) Get(ctx context.Context, id string) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.db.QueryRowContext(ctx, `SELECT id, handle, created_at FROM operators WHERE id = $1`, id).
		Scan(&op.ID, &op.Handle, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operator: %w", err)
	}
	return op, nil
}

func (s *cockroachOperatorStore) GetByHandle(ctx context.Context, handle string) (*models.Operator, error) {
	op := &models.Operator{}
	err := s.db.QueryRowContext(ctx, `SELECT id, handle, created_at FROM operators WHERE handle = $1`, handle).
		Scan(&op.ID, &op.Handle, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get operator by handle: %w", err)
	}
	return op, nil
}

type cockroachGhostStore struct {
	db *sql.DB
}

func (s *cockroachGhostStore) Create(ctx context.Context, ghost *models.Ghost) error {
	if ghost.ID == "" {
		ghost.ID = uuid.NewString()
	}
	now := time.Now()
	if ghost.CreatedAt.IsZero() {
		ghost.CreatedAt = now
	}
	ghost.UpdatedAt = now

	configJSON, err := json.Marshal(ghost.Config)
	if err != nil {
		return fmt.Errorf("marshal ghost config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ghosts (id, operator_id, name, workspace_dir, model_chain, tool_policy, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		ghost.ID, ghost.OperatorID, ghost.Name, ghost.WorkspaceDir,
		pq.Array(ghost.ModelChain), pq.Array(ghost.ToolPolicy), configJSON,
		ghost.CreatedAt, ghost.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create ghost: %w", err)
	}
	return nil
}

func (s *cockroachGhostStore) Get(ctx context.Context, id string) (*models.Ghost, error) {
	return scanGhostRow(s.db.QueryRowContext(ctx, `
		SELECT id, operator_id, name, workspace_dir, model_chain, tool_policy, config, created_at, updated_at
		FROM ghosts WHERE id = $1
	`, id))
}

func (s *cockroachGhostStore) List(ctx context.Context, operatorID string) ([]*models.Ghost, error) {
	query := `SELECT id, operator_id, name, workspace_dir, model_chain, tool_policy, config, created_at, updated_at FROM ghosts`
	var args []any
	if operatorID != "" {
		query += " WHERE operator_id = $1"
		args = append(args, operatorID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ghosts: %w", err)
	}
	defer rows.Close()

	var out []*models.Ghost
	for rows.Next() {
		ghost, err := scanGhostRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ghost)
	}
	return out, rows.Err()
}

func (s *cockroachGhostStore) Update(ctx context.Context, ghost *models.Ghost) error {
	ghost.UpdatedAt = time.Now()
	configJSON, err := json.Marshal(ghost.Config)
	if err != nil {
		return fmt.Errorf("marshal ghost config: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE ghosts SET name = $1, workspace_dir = $2, model_chain = $3, tool_policy = $4, config = $5, updated_at = $6
		WHERE id = $7
	`, ghost.Name, ghost.WorkspaceDir, pq.Array(ghost.ModelChain), pq.Array(ghost.ToolPolicy), configJSON, ghost.UpdatedAt, ghost.ID)
	if err != nil {
		return fmt.Errorf("update ghost: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ghost: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachGhostStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ghosts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ghost: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ghost: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type ghostScanner interface {
	Scan(dest ...any) error
}

func scanGhostRow(scanner ghostScanner) (*models.Ghost, error) {
	ghost := &models.Ghost{}
	var configJSON []byte
	err := scanner.Scan(
		&ghost.ID, &ghost.OperatorID, &ghost.Name, &ghost.WorkspaceDir,
		pq.Array(&ghost.ModelChain), pq.Array(&ghost.ToolPolicy), &configJSON,
		&ghost.CreatedAt, &ghost.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ghost: %w", err)
	}
	if len(configJSON) > 0 && string(configJSON) != "null" {
		if err := json.Unmarshal(configJSON, &ghost.Config); err != nil {
			return nil, fmt.Errorf("unmarshal ghost config: %w", err)
		}
	}
	return ghost, nil
}

type cockroachInterfaceStore struct {
	db *sql.DB
}

func (s *cockroachInterfaceStore) Create(ctx context.Context, iface *models.Interface) error {
	if iface.ID == "" {
		iface.ID = uuid.NewString()
	}
	now := time.Now()
	if iface.CreatedAt.IsZero() {
		iface.CreatedAt = now
	}
	iface.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interfaces (id, kind, external_id, operator_id, status, code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, iface.ID, string(iface.Kind), iface.ExternalID, nullableString(iface.OperatorID),
		string(iface.Status), nullableString(iface.Code), iface.CreatedAt, iface.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create interface: %w", err)
	}
	return nil
}

func (s *cockroachInterfaceStore) Get(ctx context.Context, id string) (*models.Interface, error) {
	return scanInterfaceRow(s.db.QueryRowContext(ctx, `
		SELECT id, kind, external_id, operator_id, status, code, created_at, updated_at
		FROM interfaces WHERE id = $1
	`, id))
}

func (s *cockroachInterfaceStore) GetByExternalID(ctx context.Context, kind models.InterfaceKind, externalID string) (*models.Interface, error) {
	return scanInterfaceRow(s.db.QueryRowContext(ctx, `
		SELECT id, kind, external_id, operator_id, status, code, created_at, updated_at
		FROM interfaces WHERE kind = $1 AND external_id = $2
	`, string(kind), externalID))
}

func (s *cockroachInterfaceStore) List(ctx context.Context, operatorID string) ([]*models.Interface, error) {
	query := `SELECT id, kind, external_id, operator_id, status, code, created_at, updated_at FROM interfaces`
	var args []any
	if operatorID != "" {
		query += " WHERE operator_id = $1"
		args = append(args, operatorID)
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	defer rows.Close()

	var out []*models.Interface
	for rows.Next() {
		iface, err := scanInterfaceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, iface)
	}
	return out, rows.Err()
}

func (s *cockroachInterfaceStore) Update(ctx context.Context, iface *models.Interface) error {
	iface.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, `
		UPDATE interfaces SET operator_id = $1, status = $2, code = $3, updated_at = $4
		WHERE id = $5
	`, nullableString(iface.OperatorID), string(iface.Status), nullableString(iface.Code), iface.UpdatedAt, iface.ID)
	if err != nil {
		return fmt.Errorf("update interface: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update interface: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachInterfaceStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM interfaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete interface: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete interface: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type interfaceScanner interface {
	Scan(dest ...any) error
}

func scanInterfaceRow(scanner interfaceScanner) (*models.Interface, error) {
	iface := &models.Interface{}
	var kind, status string
	var operatorID, code sql.NullString
	err := scanner.Scan(&iface.ID, &kind, &iface.ExternalID, &operatorID, &status, &code, &iface.CreatedAt, &iface.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan interface: %w", err)
	}
	iface.Kind = models.InterfaceKind(kind)
	iface.Status = models.InterfaceStatus(status)
	iface.OperatorID = operatorID.String
	iface.Code = code.String
	return iface, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
