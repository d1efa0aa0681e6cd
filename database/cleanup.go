package database

import (
	"fmt"
	"log"
	"time"
)

// CleanupAuditLog deletes audit entries older than the retention window.
// Run by the maintenance cadence; the audit trail of recent items is never
// touched because retention is measured in months, not runs.
func (s *Store) CleanupAuditLog(retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)

	res, err := s.db.Exec(`DELETE FROM audit_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit log: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get pruned row count: %w", err)
	}

	if rowsAffected > 0 {
		log.Printf("Pruned %d audit entries older than %s", rowsAffected, cutoff)
	}
	return rowsAffected, nil
}
