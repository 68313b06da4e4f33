package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"storefront/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresRepo struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// NewPostgres returns a Repository backed by Postgres.
func NewPostgres(pool *pgxpool.Pool, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &postgresRepo{pool: pool, logger: logger}
}

const roomColumns = `id::text, customer_id::text, agent_id::text, status, priority, subject, created_at, updated_at, closed_at`

const messageSelect = `
SELECT m.id::text, m.room_id::text, m.sender_id::text, m.message, m.message_type, m.file_url, m.is_read, m.created_at,
       u.first_name, u.last_name, u.role
FROM chat_messages m
LEFT JOIN users u ON u.id = m.sender_id
`

const availabilitySelect = `
SELECT a.user_id::text, a.is_available, a.status_message, a.updated_at,
       u.first_name, u.last_name, u.role
FROM agent_availability a
LEFT JOIN users u ON u.id = a.user_id
`

func (r *postgresRepo) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.ChatRoom, error) {
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	q := `
INSERT INTO chat_rooms (customer_id, status, priority, subject)
VALUES ($1, 'waiting', $2, $3)
RETURNING ` + roomColumns
	room, err := scanRoom(r.pool.QueryRow(ctx, q, in.CustomerID, string(priority), in.Subject))
	if err != nil {
		r.logger.Printf("chat repo: create room customer_id=%s error=%v", in.CustomerID, err)
		return nil, err
	}
	r.logger.Printf("chat repo: created room id=%s customer_id=%s", room.ID, room.CustomerID)
	return room, nil
}

func (r *postgresRepo) GetRoom(ctx context.Context, id string) (*domain.ChatRoom, error) {
	q := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE id = $1`
	room, err := scanRoom(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("chat repo: get room id=%s error=%v", id, err)
		return nil, err
	}
	return room, nil
}

func (r *postgresRepo) ListRoomsForUser(ctx context.Context, userID string) ([]domain.ChatRoom, error) {
	q := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE customer_id = $1 OR agent_id = $1 ORDER BY updated_at DESC`
	return r.queryRooms(ctx, q, userID)
}

func (r *postgresRepo) ListRoomsByStatus(ctx context.Context, status domain.RoomStatus) ([]domain.ChatRoom, error) {
	q := `SELECT ` + roomColumns + ` FROM chat_rooms WHERE status = $1 ORDER BY updated_at DESC`
	return r.queryRooms(ctx, q, string(status))
}

func (r *postgresRepo) queryRooms(ctx context.Context, q string, args ...interface{}) ([]domain.ChatRoom, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		r.logger.Printf("chat repo: list rooms error=%v", err)
		return nil, err
	}
	defer rows.Close()

	var rooms []domain.ChatRoom
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

func (r *postgresRepo) ListMessages(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, messageSelect+`WHERE m.room_id = $1 ORDER BY m.created_at ASC, m.id ASC`, roomID)
	if err != nil {
		r.logger.Printf("chat repo: list messages room_id=%s error=%v", roomID, err)
		return nil, err
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func (r *postgresRepo) GetMessage(ctx context.Context, id string) (*domain.ChatMessage, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, messageSelect+`WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		r.logger.Printf("chat repo: get message id=%s error=%v", id, err)
		return nil, err
	}
	return msg, nil
}

func (r *postgresRepo) InsertMessage(ctx context.Context, in InsertMessageInput) (*domain.ChatMessage, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := lockOpenRoom(ctx, tx, in.RoomID); err != nil {
		return nil, err
	}
	id, err := insertMessage(ctx, tx, in)
	if err != nil {
		r.logger.Printf("chat repo: insert message room_id=%s error=%v", in.RoomID, err)
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE chat_rooms SET updated_at = now() WHERE id = $1`, in.RoomID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetMessage(ctx, id)
}

func (r *postgresRepo) MarkRead(ctx context.Context, roomID, readerID string) (int64, error) {
	const q = `
UPDATE chat_messages
SET is_read = true
WHERE room_id = $1 AND sender_id <> $2 AND is_read = false
`
	cmd, err := r.pool.Exec(ctx, q, roomID, readerID)
	if err != nil {
		r.logger.Printf("chat repo: mark read room_id=%s reader_id=%s error=%v", roomID, readerID, err)
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *postgresRepo) CountUnread(ctx context.Context, roomID, readerID string) (int, error) {
	const q = `
SELECT count(*)
FROM chat_messages
WHERE room_id = $1 AND sender_id <> $2 AND is_read = false
`
	var n int
	if err := r.pool.QueryRow(ctx, q, roomID, readerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *postgresRepo) AssignAgent(ctx context.Context, roomID, agentID string) (*domain.ChatRoom, *domain.ChatMessage, error) {
	return r.transition(ctx, roomID, agentID, `
UPDATE chat_rooms
SET agent_id = $2, status = 'active', updated_at = now()
WHERE id = $1
`, []interface{}{roomID, agentID}, domain.SystemMessageAgentJoined)
}

func (r *postgresRepo) Close(ctx context.Context, roomID, actorID string) (*domain.ChatRoom, *domain.ChatMessage, error) {
	return r.transition(ctx, roomID, actorID, `
UPDATE chat_rooms
SET status = 'closed', closed_at = now(), updated_at = now()
WHERE id = $1
`, []interface{}{roomID}, domain.SystemMessageChatClosed)
}

// transition applies a room update and appends its system message atomically.
func (r *postgresRepo) transition(ctx context.Context, roomID, senderID, update string, args []interface{}, systemText string) (*domain.ChatRoom, *domain.ChatMessage, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := lockOpenRoom(ctx, tx, roomID); err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, update, args...); err != nil {
		r.logger.Printf("chat repo: transition room_id=%s error=%v", roomID, err)
		return nil, nil, err
	}
	msgID, err := insertMessage(ctx, tx, InsertMessageInput{
		RoomID:      roomID,
		SenderID:    senderID,
		Message:     systemText,
		MessageType: domain.MessageTypeSystem,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	room, err := r.GetRoom(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	msg, err := r.GetMessage(ctx, msgID)
	if err != nil {
		return nil, nil, err
	}
	r.logger.Printf("chat repo: room id=%s status=%s", room.ID, room.Status)
	return room, msg, nil
}

func (r *postgresRepo) UpsertAvailability(ctx context.Context, in AvailabilityInput) (*domain.AgentAvailability, error) {
	const q = `
INSERT INTO agent_availability (user_id, is_available, status_message, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (user_id) DO UPDATE SET
    is_available = EXCLUDED.is_available,
    status_message = EXCLUDED.status_message,
    updated_at = now()
`
	if _, err := r.pool.Exec(ctx, q, in.UserID, in.IsAvailable, in.StatusMessage); err != nil {
		r.logger.Printf("chat repo: upsert availability user_id=%s error=%v", in.UserID, err)
		return nil, err
	}
	a, err := scanAvailability(r.pool.QueryRow(ctx, availabilitySelect+`WHERE a.user_id = $1`, in.UserID))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *postgresRepo) ListAvailability(ctx context.Context) ([]domain.AgentAvailability, error) {
	return r.queryAvailability(ctx, availabilitySelect+`ORDER BY a.updated_at DESC`)
}

func (r *postgresRepo) ListAvailableAgents(ctx context.Context) ([]domain.AgentAvailability, error) {
	return r.queryAvailability(ctx, availabilitySelect+`WHERE a.is_available = true ORDER BY a.updated_at DESC`)
}

func (r *postgresRepo) queryAvailability(ctx context.Context, q string) ([]domain.AgentAvailability, error) {
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		r.logger.Printf("chat repo: list availability error=%v", err)
		return nil, err
	}
	defer rows.Close()

	var result []domain.AgentAvailability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func lockOpenRoom(ctx context.Context, tx pgx.Tx, roomID string) (domain.RoomStatus, error) {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM chat_rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("lock room %s: %w", roomID, err)
	}
	if domain.RoomStatus(status) == domain.RoomStatusClosed {
		return "", domain.ErrRoomClosed
	}
	return domain.RoomStatus(status), nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, in InsertMessageInput) (string, error) {
	msgType := in.MessageType
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	var id string
	err := tx.QueryRow(ctx, `
INSERT INTO chat_messages (room_id, sender_id, message, message_type, file_url)
VALUES ($1, $2, $3, $4, $5)
RETURNING id::text
`, in.RoomID, in.SenderID, in.Message, string(msgType), in.FileURL).Scan(&id)
	return id, err
}

func scanRoom(row pgx.Row) (*domain.ChatRoom, error) {
	var (
		room     domain.ChatRoom
		status   string
		priority string
	)
	if err := row.Scan(
		&room.ID,
		&room.CustomerID,
		&room.AgentID,
		&status,
		&priority,
		&room.Subject,
		&room.CreatedAt,
		&room.UpdatedAt,
		&room.ClosedAt,
	); err != nil {
		return nil, err
	}
	room.Status = domain.RoomStatus(status)
	room.Priority = domain.Priority(priority)
	return &room, nil
}

func scanMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var (
		msg               domain.ChatMessage
		msgType           string
		first, last, role *string
	)
	if err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.Message,
		&msgType,
		&msg.FileURL,
		&msg.IsRead,
		&msg.CreatedAt,
		&first,
		&last,
		&role,
	); err != nil {
		return nil, err
	}
	msg.MessageType = domain.MessageType(msgType)
	msg.Sender = identity(first, last, role)
	return &msg, nil
}

func scanAvailability(row pgx.Row) (*domain.AgentAvailability, error) {
	var (
		a                 domain.AgentAvailability
		first, last, role *string
	)
	if err := row.Scan(&a.UserID, &a.IsAvailable, &a.StatusMessage, &a.UpdatedAt, &first, &last, &role); err != nil {
		return nil, err
	}
	a.Agent = identity(first, last, role)
	return &a, nil
}

func identity(first, last, role *string) *domain.UserIdentity {
	if first == nil && last == nil && role == nil {
		return nil
	}
	id := &domain.UserIdentity{}
	if first != nil {
		id.FirstName = *first
	}
	if last != nil {
		id.LastName = *last
	}
	if role != nil {
		id.Role = domain.Role(*role)
	}
	return id
}
