package access

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/quillcms/quill/pkg/observability"
)

// Synchronizer reconciles the registry's declared permissions into the
// permissions table at boot. Route code is the source of truth: rows are
// created for new declarations, rows whose declaration disappeared are
// unmounted (never deleted), and grants pointing at unmounted rows are
// purged. The whole reconciliation is one transaction; a partial sync is
// never observable.
type Synchronizer struct {
	db       *sql.DB
	registry *Registry
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewSynchronizer creates a synchronizer for the given registry
func NewSynchronizer(db *sql.DB, registry *Registry, logger *observability.Logger, metrics *observability.Metrics) *Synchronizer {
	return &Synchronizer{
		db:       db,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

type persistedPermission struct {
	id    int64
	name  string
	mod   string
	mount MountStatus
}

// Synchronize runs the reconciliation. Call once at startup, after the
// registry is frozen. Every failure rolls the transaction back and
// propagates; the caller decides whether boot continues.
func (s *Synchronizer) Synchronize(ctx context.Context) error {
	declared := s.registry.Declared()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	defer tx.Rollback()

	persisted, err := loadPersisted(ctx, tx)
	if err != nil {
		return err
	}

	declaredSet := make(map[Meta]struct{}, len(declared))
	for _, meta := range declared {
		declaredSet[meta] = struct{}{}
	}
	persistedSet := make(map[Meta]*persistedPermission, len(persisted))
	for i := range persisted {
		p := &persisted[i]
		persistedSet[Meta{Permission: p.name, Module: p.mod}] = p
	}

	now := time.Now()
	var created int

	for _, meta := range declared {
		if _, ok := persistedSet[meta]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (name, module, mount, create_time, update_time)
			VALUES ($1, $2, $3, $4, $4)
		`, meta.Permission, meta.Module, Mounted, now); err != nil {
			return fmt.Errorf("failed to insert permission %q/%q: %w", meta.Module, meta.Permission, err)
		}
		created++
	}

	var remounted, stale []int64
	for i := range persisted {
		p := &persisted[i]
		_, live := declaredSet[Meta{Permission: p.name, Module: p.mod}]
		switch {
		case live && p.mount != Mounted:
			remounted = append(remounted, p.id)
		case !live && p.mount != Unmounted:
			stale = append(stale, p.id)
		}
	}

	if len(remounted) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE permissions SET mount = $1, update_time = $2 WHERE id = ANY($3)
		`, Mounted, now, pq.Array(remounted)); err != nil {
			return fmt.Errorf("failed to remount permissions: %w", err)
		}
	}
	if len(stale) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE permissions SET mount = $1, update_time = $2 WHERE id = ANY($3)
		`, Unmounted, now, pq.Array(stale)); err != nil {
			return fmt.Errorf("failed to unmount permissions: %w", err)
		}
	}

	// Grants must be purged after the unmount flags land in the same
	// transaction, so no committed state ever grants a retired permission.
	var purged int64
	if len(stale) > 0 {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM group_permissions WHERE permission_id = ANY($1)
		`, pq.Array(stale))
		if err != nil {
			return fmt.Errorf("failed to purge stale grants: %w", err)
		}
		purged, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to count purged grants: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission sync: %w", err)
	}

	if s.metrics != nil {
		s.metrics.PermissionsMounted.Set(float64(len(declared)))
		s.metrics.PermissionsUnmounted.Set(float64(len(persisted) - len(declared) + created))
		s.metrics.GrantsPurgedTotal.Add(float64(purged))
	}
	if s.logger != nil {
		s.logger.WithFields(map[string]interface{}{
			"declared":      len(declared),
			"created":       created,
			"remounted":     len(remounted),
			"unmounted":     len(stale),
			"grants_purged": purged,
		}).Info("permission synchronization complete")
	}
	return nil
}

func loadPersisted(ctx context.Context, tx *sql.Tx) ([]persistedPermission, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, module, mount
		FROM permissions
		WHERE delete_time IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted permissions: %w", err)
	}
	defer rows.Close()

	var persisted []persistedPermission
	for rows.Next() {
		var p persistedPermission
		if err := rows.Scan(&p.id, &p.name, &p.mod, &p.mount); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		persisted = append(persisted, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate permissions: %w", err)
	}
	return persisted, nil
}
