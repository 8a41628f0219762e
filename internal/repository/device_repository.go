// internal/repository/device_repository.go
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hardware-service/internal/database"
	"hardware-service/internal/model"
)

// DeviceRepository persists the device inventory. It backs the registry as a
// write-behind store and reseeds it on startup.
type DeviceRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDeviceRepository creates a device repository.
func NewDeviceRepository(db *database.DB, logger *zap.Logger) *DeviceRepository {
	return &DeviceRepository{db: db, logger: logger}
}

// SaveDevice upserts a device row. Registry writes are frequent and
// idempotent, so insert and update share one statement.
func (r *DeviceRepository) SaveDevice(device *model.Device) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
		INSERT INTO devices (
			id, name, kind, transport, transport_config, status, enabled,
			last_connected_at, last_error, operation_count, error_count,
			profile, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			kind = EXCLUDED.kind,
			transport = EXCLUDED.transport,
			transport_config = EXCLUDED.transport_config,
			status = EXCLUDED.status,
			enabled = EXCLUDED.enabled,
			last_connected_at = EXCLUDED.last_connected_at,
			last_error = EXCLUDED.last_error,
			operation_count = EXCLUDED.operation_count,
			error_count = EXCLUDED.error_count,
			profile = EXCLUDED.profile,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		device.ID, device.Name, device.Kind, device.Transport,
		device.TransportConfig, device.Status, device.Enabled,
		device.LastConnectedAt, device.LastError,
		int64(device.OperationCount), int64(device.ErrorCount),
		device.Profile, device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save device: %w", err)
	}
	return nil
}

// DeleteDevice removes a device row.
func (r *DeviceRepository) DeleteDevice(id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("device not found with id: %s", id)
	}
	return nil
}

// ListDevices returns every persisted device, for seeding the registry.
func (r *DeviceRepository) ListDevices(ctx context.Context) ([]*model.Device, error) {
	query := `
		SELECT id, name, kind, transport, transport_config, status, enabled,
			   last_connected_at, last_error, operation_count, error_count,
			   profile, created_at, updated_at
		FROM devices
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*model.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	r.logger.Debug("Devices loaded from store", zap.Int("count", len(devices)))
	return devices, nil
}

// GetDevice returns a single persisted device.
func (r *DeviceRepository) GetDevice(ctx context.Context, id uuid.UUID) (*model.Device, error) {
	query := `
		SELECT id, name, kind, transport, transport_config, status, enabled,
			   last_connected_at, last_error, operation_count, error_count,
			   profile, created_at, updated_at
		FROM devices WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)
	device, err := scanDevice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, model.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return device, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*model.Device, error) {
	device := &model.Device{}
	var opCount, errCount int64

	err := row.Scan(
		&device.ID, &device.Name, &device.Kind, &device.Transport,
		&device.TransportConfig, &device.Status, &device.Enabled,
		&device.LastConnectedAt, &device.LastError,
		&opCount, &errCount,
		&device.Profile, &device.CreatedAt, &device.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	device.OperationCount = uint64(opCount)
	device.ErrorCount = uint64(errCount)
	return device, nil
}
