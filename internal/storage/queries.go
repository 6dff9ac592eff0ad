package storage

// SQL for the mail_messages table. The column list is shared by every
// statement that returns whole rows so scanMessage stays in one place.
const messageColumns = `id, status, priority, server, sender, recipients, subject,
	headers, body, body_ref, failure_reason, created_at, updated_at`

const (
	queryInsertMessage = `
INSERT INTO mail_messages (id, status, priority, server, sender, recipients, subject, headers, body, body_ref)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + messageColumns

	// queryUpdateMessages applies only the non-NULL parameters and returns
	// the new state of every affected row.
	queryUpdateMessages = `
UPDATE mail_messages
SET status     = COALESCE($2, status),
    priority   = COALESCE($3, priority),
    server     = COALESCE($4, server),
    sender     = COALESCE($5, sender),
    recipients = COALESCE($6, recipients),
    subject    = COALESCE($7, subject),
    headers    = COALESCE($8, headers),
    body       = COALESCE($9, body),
    body_ref   = COALESCE($10, body_ref),
    updated_at = now()
WHERE id = ANY($1)
RETURNING ` + messageColumns

	queryGetMessage = `SELECT ` + messageColumns + ` FROM mail_messages WHERE id = $1`

	queryListMessagesByStatus = `
SELECT ` + messageColumns + `
FROM mail_messages
WHERE status = $1
ORDER BY priority ASC, created_at ASC
LIMIT $2`

	queryDeleteMessage = `DELETE FROM mail_messages WHERE id = $1`

	// queryLockMessageNoWait fails with SQLSTATE 55P03 instead of waiting
	// when another transaction holds the row.
	queryLockMessageNoWait = `SELECT id FROM mail_messages WHERE id = $1 FOR UPDATE NOWAIT`

	queryMessageExists = `SELECT EXISTS (SELECT 1 FROM mail_messages WHERE id = $1)`

	queryMessageStatus = `SELECT status FROM mail_messages WHERE id = $1`

	querySetMessageStatus = `
UPDATE mail_messages
SET status = $2, failure_reason = $3, updated_at = now()
WHERE id = $1`
)
