package database

import (
	"fmt"

	"social-poster/models"
)

// Stats returns the aggregate counts used by the health endpoint and the
// periodic health check.
func (s *Store) Stats() (*models.Stats, error) {
	stats := &models.Stats{
		ByStatus:  make(map[string]int),
		ByChannel: make(map[string]map[string]int),
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&stats.TotalItems); err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}

	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count items by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chanRows, err := s.db.Query(`
        SELECT channel, status, COUNT(*)
        FROM channel_attempts GROUP BY channel, status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts by channel: %w", err)
	}
	defer chanRows.Close()
	for chanRows.Next() {
		var channel, status string
		var count int
		if err := chanRows.Scan(&channel, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan channel count: %w", err)
		}
		if stats.ByChannel[channel] == nil {
			stats.ByChannel[channel] = make(map[string]int)
		}
		stats.ByChannel[channel][status] = count
	}
	return stats, chanRows.Err()
}

// RecentItems returns the newest items with their attempt rows attached.
func (s *Store) RecentItems(limit int) ([]models.ItemWithAttempts, error) {
	rows, err := s.db.Query(
		`SELECT `+itemColumns+` FROM items ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent items: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	result := make([]models.ItemWithAttempts, 0, len(items))
	for _, it := range items {
		attempts, err := s.ChannelAttempts(it.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, models.ItemWithAttempts{Item: it, Attempts: attempts})
	}
	return result, nil
}
