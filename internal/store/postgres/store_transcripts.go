package postgres

import (
	"context"
	"fmt"
	"log"

	"finstack-backend/internal/models"
)

// --- Chat Exchange Methods ---

func (s *PostgresStore) CreateExchange(ctx context.Context, exchange *models.ChatExchange) error {
	query := `
        INSERT INTO chat_exchanges (id, user_id, channel_cid, route, encrypted_user_message, encrypted_reply)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		exchange.ID,
		exchange.UserID,
		exchange.ChannelCID,
		exchange.Route,
		exchange.EncryptedUserMessage,
		exchange.EncryptedReply,
	).Scan(&exchange.CreatedAt)
	if err != nil {
		log.Printf("ERROR [PostgresStore] CreateExchange: Failed for user %s: %v", exchange.UserID, err)
		return fmt.Errorf("database error creating exchange: %w", err)
	}
	return nil
}

// ListExchanges returns up to limit exchanges for the user, newest first.
func (s *PostgresStore) ListExchanges(ctx context.Context, userID string, limit int) ([]models.ChatExchange, error) {
	query := `
        SELECT id, user_id, channel_cid, route, encrypted_user_message, encrypted_reply, created_at
        FROM chat_exchanges
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		log.Printf("ERROR [PostgresStore] ListExchanges: Query failed for user %s: %v", userID, err)
		return nil, fmt.Errorf("database error listing exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []models.ChatExchange{}
	for rows.Next() {
		var e models.ChatExchange
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.ChannelCID,
			&e.Route,
			&e.EncryptedUserMessage,
			&e.EncryptedReply,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error scanning exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database error iterating exchanges: %w", err)
	}
	return exchanges, nil
}

func (s *PostgresStore) DeleteExchanges(ctx context.Context, userID string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_exchanges WHERE user_id = $1`, userID)
	if err != nil {
		log.Printf("ERROR [PostgresStore] DeleteExchanges: Failed for user %s: %v", userID, err)
		return 0, fmt.Errorf("database error deleting exchanges: %w", err)
	}
	log.Printf("[PostgresStore] DeleteExchanges: removed %d exchanges for user %s", tag.RowsAffected(), userID)
	return tag.RowsAffected(), nil
}
