package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playsync/backend/internal/db"
	"github.com/playsync/backend/internal/models"
)

const userColumns = `id, username, email, password_hash, first_name, last_name, bio, profile_picture_url, online_status, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	status := user.OnlineStatus
	if status == "" {
		status = models.OnlineStatusOffline
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, user.ID, user.Username, strings.ToLower(user.Email), user.Password, user.FirstName, user.LastName,
		user.Bio, user.ProfilePictureURL, status, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if translated := translatePgError(err); translated != err {
			return translated
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user and its relationship sets by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id = $1", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email = $1", strings.ToLower(email))
}

// FindByUsername fetches a user by username, ignoring case.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "lower(username) = $1", strings.ToLower(username))
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	if err := loadRelations(ctx, conn, &user); err != nil {
		return models.User{}, err
	}

	return user, nil
}

// FindProfiles returns the users found among ids in the order requested.
func (r *PostgresUserRepository) FindProfiles(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query user profiles: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]models.User, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user profile: %w", err)
		}
		byID[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user profiles: %w", err)
	}

	profiles := make([]models.User, 0, len(byID))
	for _, id := range ids {
		if user, ok := byID[id]; ok {
			profiles = append(profiles, user)
		}
	}
	return profiles, nil
}

// SearchByUsername returns up to limit users whose username starts with prefix.
func (r *PostgresUserRepository) SearchByUsername(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE lower(username) LIKE $1
        ORDER BY lower(username)
        LIMIT $2
    `, likePrefix(strings.ToLower(prefix)), limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// UpdateOnlineStatus sets the presence value of a user.
func (r *PostgresUserRepository) UpdateOnlineStatus(ctx context.Context, id, status string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET online_status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
}

// UpdateProfile overwrites the editable profile fields of a user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) error {
	return r.update(ctx, `
        UPDATE users
        SET first_name = $2, last_name = $3, username = $4, bio = $5,
            online_status = COALESCE(NULLIF($6::text, ''), online_status), updated_at = $7
        WHERE id = $1
    `, id, update.FirstName, update.LastName, update.Username, update.Bio, update.OnlineStatus, update.UpdatedAt)
}

func (r *PostgresUserRepository) update(ctx context.Context, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		if translated := translatePgError(err); translated != err {
			return translated
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresFriendRepository provides PostgreSQL-backed persistence for friend requests
// and friendships. Each transition runs in one serializable transaction that is
// retried on serialization failures.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

const requestColumns = `id, recipient_id, requestor_id, status, created_at`

// FindRequest fetches a friend request by id.
func (r *PostgresFriendRepository) FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	return r.findRequest(ctx, "id = $1", requestID)
}

// FindRequestBetween fetches the request linking two users in either direction.
func (r *PostgresFriendRepository) FindRequestBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error) {
	return r.findRequest(ctx, "pair_key = $1", models.PairKey(userA, userB))
}

func (r *PostgresFriendRepository) findRequest(ctx context.Context, where string, arg any) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+requestColumns+` FROM friend_requests WHERE `+where, arg)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request: %w", err)
	}
	return request, nil
}

// ListPendingForRecipient returns pending requests addressed to userID in creation order.
func (r *PostgresFriendRepository) ListPendingForRecipient(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+requestColumns+`
        FROM friend_requests
        WHERE recipient_id = $1 AND status = $2
        ORDER BY created_at, id
    `, userID, string(models.RequestStatusPending))
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

// ApplyTransition runs t inside a retried serializable transaction.
func (r *PostgresFriendRepository) ApplyTransition(ctx context.Context, t models.Transition) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	at := t.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return crdbpgx.ExecuteTx(ctx, conn, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		switch t.Kind {
		case models.TransitionSend:
			return insertRequest(ctx, tx, t.Request)
		case models.TransitionAccept:
			request, err := deleteRequest(ctx, tx, t.Request.ID)
			if err != nil {
				return err
			}
			return insertFriendship(ctx, tx, request.RecipientID, request.RequestorID, at)
		case models.TransitionDecline, models.TransitionCancel:
			_, err := deleteRequest(ctx, tx, t.Request.ID)
			return err
		case models.TransitionRemove:
			return deleteFriendship(ctx, tx, t.UserID, t.FriendID)
		default:
			return fmt.Errorf("apply %s: unsupported transition", t.Kind)
		}
	})
}

func insertRequest(ctx context.Context, tx pgx.Tx, request models.FriendRequest) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO friend_requests (id, recipient_id, requestor_id, pair_key, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, request.ID, request.RecipientID, request.RequestorID, request.PairKey(), string(request.Status), request.CreatedAt)
	if err != nil {
		if translated := translatePgError(err); translated != err {
			return translated
		}
		return fmt.Errorf("insert friend request: %w", err)
	}
	return nil
}

func deleteRequest(ctx context.Context, tx pgx.Tx, requestID string) (models.FriendRequest, error) {
	row := tx.QueryRow(ctx, `
        DELETE FROM friend_requests
        WHERE id = $1
        RETURNING `+requestColumns, requestID)

	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("delete friend request: %w", err)
	}
	return request, nil
}

func insertFriendship(ctx context.Context, tx pgx.Tx, userID, friendID string, at time.Time) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO friendships (user_id, friend_id, created_at)
        VALUES ($1, $2, $3), ($2, $1, $3)
        ON CONFLICT (user_id, friend_id) DO NOTHING
    `, userID, friendID, at)
	if err != nil {
		if translated := translatePgError(err); errors.Is(translated, ErrNotFound) {
			return translated
		}
		return fmt.Errorf("insert friendship: %w", err)
	}
	return nil
}

func deleteFriendship(ctx context.Context, tx pgx.Tx, userID, friendID string) error {
	tag, err := tx.Exec(ctx, `
        DELETE FROM friendships
        WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
    `, userID, friendID)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}

	// A one-sided row is left untouched by the rollback.
	if tag.RowsAffected() != 2 {
		return ErrNotFound
	}
	return nil
}

func loadRelations(ctx context.Context, conn *pgxpool.Conn, user *models.User) error {
	friends, err := collectIDs(ctx, conn, `
        SELECT friend_id FROM friendships
        WHERE user_id = $1
        ORDER BY created_at, friend_id
    `, user.ID)
	if err != nil {
		return fmt.Errorf("load friends list: %w", err)
	}

	requests, err := collectIDs(ctx, conn, `
        SELECT id FROM friend_requests
        WHERE recipient_id = $1 AND status = 'pending'
        ORDER BY created_at, id
    `, user.ID)
	if err != nil {
		return fmt.Errorf("load friend requests: %w", err)
	}

	user.FriendsList = friends
	user.FriendRequests = requests
	return nil
}

func collectIDs(ctx context.Context, conn *pgxpool.Conn, query string, arg any) ([]string, error) {
	rows, err := conn.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.FirstName, &user.LastName,
		&user.Bio, &user.ProfilePictureURL, &user.OnlineStatus, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func scanRequest(row pgx.Row) (models.FriendRequest, error) {
	var (
		request models.FriendRequest
		status  string
	)
	if err := row.Scan(&request.ID, &request.RecipientID, &request.RequestorID, &status, &request.CreatedAt); err != nil {
		return models.FriendRequest{}, err
	}

	parsed, err := models.ParseRequestStatus(status)
	if err != nil {
		return models.FriendRequest{}, err
	}
	request.Status = parsed
	request.CreatedAt = request.CreatedAt.UTC()
	return request, nil
}

func likePrefix(prefix string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(prefix) + "%"
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FriendRepository = (*PostgresFriendRepository)(nil)
