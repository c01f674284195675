package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ DB = (*pgxpool.Pool)(nil)

// Repository implements authcore.IdentityRepository.
type Repository struct {
	db DB
}

var _ authcore.IdentityRepository = (*Repository)(nil)

// New returns a Repository over db, usually a *pgxpool.Pool.
func New(db DB) *Repository {
	return &Repository{db: db}
}

const identityColumns = `id, username, password_hash, role, first_name, last_name, phone_number, phone_verified, created_at, updated_at`

const (
	selectByUsernameSQL = `SELECT ` + identityColumns + ` FROM identities WHERE username = $1`
	selectByIDSQL       = `SELECT ` + identityColumns + ` FROM identities WHERE id = $1`
	selectByPhoneSQL    = `SELECT ` + identityColumns + ` FROM identities WHERE phone_number = $1`
	insertIdentitySQL   = `INSERT INTO identities (` + identityColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	// Each update writes only the columns its operation owns. Conditional
	// updates report whether a row changed and whether the id exists.
	updatePasswordSQL = `WITH updated AS (
		UPDATE identities SET password_hash = $3, updated_at = $4
		WHERE id = $1 AND ($2 = '' OR password_hash = $2) RETURNING id)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM identities WHERE id = $1)`
	updateRoleSQL = `WITH updated AS (
		UPDATE identities SET role = $3, updated_at = $4
		WHERE id = $1 AND role = $2 RETURNING id)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM identities WHERE id = $1)`
	markPhoneVerifiedSQL = `WITH updated AS (
		UPDATE identities SET phone_verified = TRUE, updated_at = $3
		WHERE id = $1 AND phone_number = $2 RETURNING id)
		SELECT EXISTS (SELECT 1 FROM updated), EXISTS (SELECT 1 FROM identities WHERE id = $1)`
	// SET expressions read the pre-update row, so phone_verified compares
	// against the old phone_number.
	updateProfileSQL = `UPDATE identities SET
		first_name = COALESCE($2, first_name),
		last_name = COALESCE($3, last_name),
		phone_verified = CASE WHEN $4::text IS NULL OR $4::text = phone_number THEN phone_verified ELSE FALSE END,
		phone_number = COALESCE($4, phone_number),
		updated_at = $5
		WHERE id = $1 RETURNING ` + identityColumns
)

func (r *Repository) FindByIdentifier(ctx context.Context, username string) (authcore.Identity, error) {
	return r.findOne(ctx, selectByUsernameSQL, username)
}

func (r *Repository) FindByID(ctx context.Context, id string) (authcore.Identity, error) {
	return r.findOne(ctx, selectByIDSQL, id)
}

func (r *Repository) FindByContact(ctx context.Context, phone string) (authcore.Identity, error) {
	return r.findOne(ctx, selectByPhoneSQL, phone)
}

// Create inserts identity. A taken id, username or phone number returns
// authcore.ErrDuplicateIdentity.
func (r *Repository) Create(ctx context.Context, identity authcore.Identity) error {
	_, err := r.db.Exec(ctx, insertIdentitySQL,
		identity.ID,
		identity.Username,
		identity.PasswordHash,
		string(identity.Role),
		identity.FirstName,
		identity.LastName,
		identity.PhoneNumber,
		identity.PhoneVerified,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	return mapError(err)
}

// UpdatePassword stores hash. With expectedHash set, a stored hash that no
// longer matches returns authcore.ErrIdentityChanged.
func (r *Repository) UpdatePassword(ctx context.Context, id, expectedHash, hash string, at time.Time) error {
	return r.conditionalUpdate(ctx, updatePasswordSQL, id, expectedHash, hash, at)
}

// UpdateRole moves id from role from to role to. A stored role other than
// from returns authcore.ErrIdentityChanged.
func (r *Repository) UpdateRole(ctx context.Context, id string, from, to authcore.Role, at time.Time) error {
	return r.conditionalUpdate(ctx, updateRoleSQL, id, string(from), string(to), at)
}

// MarkPhoneVerified flags phone as verified. A stored phone number other
// than phone returns authcore.ErrIdentityChanged.
func (r *Repository) MarkPhoneVerified(ctx context.Context, id, phone string, at time.Time) error {
	return r.conditionalUpdate(ctx, markPhoneVerifiedSQL, id, phone, at)
}

// UpdateProfile writes the non-nil fields of changes. A new phone number is
// stored unverified; one owned by another identity returns
// authcore.ErrDuplicateIdentity.
func (r *Repository) UpdateProfile(ctx context.Context, id string, changes authcore.ProfileChanges, at time.Time) (authcore.Identity, error) {
	return scanIdentity(r.db.QueryRow(ctx, updateProfileSQL,
		id,
		changes.FirstName,
		changes.LastName,
		changes.PhoneNumber,
		at,
	))
}

func (r *Repository) conditionalUpdate(ctx context.Context, query string, args ...any) error {
	var updated, exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&updated, &exists); err != nil {
		return mapError(err)
	}
	switch {
	case updated:
		return nil
	case exists:
		return authcore.ErrIdentityChanged
	default:
		return authcore.ErrIdentityNotFound
	}
}

func (r *Repository) findOne(ctx context.Context, query string, arg string) (authcore.Identity, error) {
	return scanIdentity(r.db.QueryRow(ctx, query, arg))
}

func scanIdentity(row pgx.Row) (authcore.Identity, error) {
	var (
		id   authcore.Identity
		role string
	)
	err := row.Scan(
		&id.ID,
		&id.Username,
		&id.PasswordHash,
		&role,
		&id.FirstName,
		&id.LastName,
		&id.PhoneNumber,
		&id.PhoneVerified,
		&id.CreatedAt,
		&id.UpdatedAt,
	)
	if err != nil {
		return authcore.Identity{}, mapError(err)
	}
	id.Role = authcore.Role(role)
	return id, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return authcore.ErrIdentityNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return authcore.ErrDuplicateIdentity
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("postgres: %w", err)
}
