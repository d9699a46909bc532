package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/thingflow/thingflow/common/model"
)

// PostgresRegistry implements DeviceRegistry on a pgx connection pool.
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistry connects to the registry database and verifies the
// connection.
func NewPostgresRegistry(ctx context.Context, connString string) (*PostgresRegistry, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRegistry{pool: pool}, nil
}

// Migrate applies registry schema migrations from the given directory.
func Migrate(migrationsPath, databaseURL string) error {
	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

// GetDeviceByToken resolves a device by its token.
func (r *PostgresRegistry) GetDeviceByToken(ctx context.Context, token string) (*model.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, token, device_type_id, assignment_id
		FROM devices
		WHERE token = $1 AND deleted_at IS NULL
	`

	var device model.Device
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&device.ID, &device.Token, &device.DeviceTypeID, &device.AssignmentID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return &device, nil
}

// GetDeviceType resolves a device type by id.
func (r *PostgresRegistry) GetDeviceType(ctx context.Context, id uuid.UUID) (*model.DeviceType, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, token, name
		FROM device_types
		WHERE id = $1
	`

	var dt model.DeviceType
	err := r.pool.QueryRow(ctx, query, id).Scan(&dt.ID, &dt.Token, &dt.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceTypeNotFound
		}
		return nil, fmt.Errorf("failed to get device type: %w", err)
	}

	return &dt, nil
}

// GetAssignment resolves a device assignment by id.
func (r *PostgresRegistry) GetAssignment(ctx context.Context, id uuid.UUID) (*model.DeviceAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, device_id, customer_id, area_id, asset_id, status
		FROM device_assignments
		WHERE id = $1
	`

	var a model.DeviceAssignment
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.DeviceID, &a.CustomerID, &a.AreaID, &a.AssetID, &a.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &a, nil
}
