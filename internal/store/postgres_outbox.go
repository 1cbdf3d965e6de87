package store

import (
	"context"
	"fmt"
)

func (r *PostgresRepository) ClaimOutboxMessages(
	ctx context.Context,
	limit int,
	staleAfterSeconds int,
) ([]OutboxMessage, error) {
	limit, staleAfter := normalizeClaim(limit, staleAfterSeconds)

	query := `
		WITH candidates AS (
			SELECT id
			FROM event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox AS o
		SET status = 'processing',
			processing_started_at = NOW(),
			attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts
	`

	rows, err := r.db.Query(ctx, query, limit, int(staleAfter.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox messages: %w", err)
	}
	defer rows.Close()

	messages := make([]OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg         OutboxMessage
			payloadText string
		)
		if err := rows.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payloadText, &msg.Attempts); err != nil {
			return nil, err
		}
		msg.Payload = []byte(payloadText)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published',
			published_at = NOW(),
			processing_started_at = NULL,
			last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (r *PostgresRepository) MarkOutboxFailed(
	ctx context.Context,
	id int64,
	retryAfterSeconds int,
	reason string,
) error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1
	`, id, retryAfterSeconds, truncateReason(reason))
	return err
}
