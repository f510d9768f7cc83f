package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"contactbook/internal/models"
)

var ErrContactNotFound = errors.New("contact not found")

type ContactSearchField string

const (
	SearchByEmail     ContactSearchField = "email"
	SearchByFirstName ContactSearchField = "first_name"
	SearchByLastName  ContactSearchField = "last_name"
)

const contactColumns = `id, user_id, first_name, last_name, email, phone, birthday, description, created_at, updated_at`

// ContactRepository scopes every statement by owner; a contact of another
// user is indistinguishable from a missing one.
type ContactRepository struct {
	pool *pgxpool.Pool
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{pool: pool}
}

func (r *ContactRepository) Create(ctx context.Context, userID string, fields models.ContactFields) (models.Contact, error) {
	query := `
		INSERT INTO contacts (
			user_id, first_name, last_name, email, phone, birthday, description, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW(), NOW()
		)
		RETURNING ` + contactColumns

	return scanContact(r.pool.QueryRow(ctx, query,
		userID,
		fields.FirstName,
		fields.LastName,
		fields.Email,
		fields.Phone,
		fields.Birthday,
		fields.Description,
	))
}

func (r *ContactRepository) List(ctx context.Context, userID string, limit, offset int) ([]models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`
	return r.collect(ctx, query, userID, limit, offset)
}

// ListAll returns every contact of the user; used by the birthday queries.
func (r *ContactRepository) ListAll(ctx context.Context, userID string) ([]models.Contact, error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		ORDER BY id
	`
	return r.collect(ctx, query, userID)
}

func (r *ContactRepository) GetByID(ctx context.Context, userID string, id int64) (models.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`
	return scanContact(r.pool.QueryRow(ctx, query, id, userID))
}

// Search does a case-sensitive substring match on one column.
func (r *ContactRepository) Search(ctx context.Context, userID string, field ContactSearchField, term string) ([]models.Contact, error) {
	switch field {
	case SearchByEmail, SearchByFirstName, SearchByLastName:
	default:
		return nil, errors.New("unsupported search field: " + string(field))
	}

	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1 AND ` + string(field) + ` LIKE $2 ESCAPE '\'
		ORDER BY id
	`
	return r.collect(ctx, query, userID, "%"+escapeLike(term)+"%")
}

func (r *ContactRepository) Update(ctx context.Context, userID string, id int64, fields models.ContactFields) (models.Contact, error) {
	query := `
		UPDATE contacts
		SET first_name = $3,
		    last_name = $4,
		    email = $5,
		    phone = $6,
		    birthday = $7,
		    description = $8,
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contactColumns

	return scanContact(r.pool.QueryRow(ctx, query,
		id,
		userID,
		fields.FirstName,
		fields.LastName,
		fields.Email,
		fields.Phone,
		fields.Birthday,
		fields.Description,
	))
}

func (r *ContactRepository) Delete(ctx context.Context, userID string, id int64) (models.Contact, error) {
	query := `DELETE FROM contacts WHERE id = $1 AND user_id = $2 RETURNING ` + contactColumns
	return scanContact(r.pool.QueryRow(ctx, query, id, userID))
}

func (r *ContactRepository) collect(ctx context.Context, query string, args ...any) ([]models.Contact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := make([]models.Contact, 0)
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	return contacts, rows.Err()
}

func scanContact(row pgx.Row) (models.Contact, error) {
	var contact models.Contact
	if err := row.Scan(
		&contact.ID,
		&contact.UserID,
		&contact.FirstName,
		&contact.LastName,
		&contact.Email,
		&contact.Phone,
		&contact.Birthday,
		&contact.Description,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Contact{}, ErrContactNotFound
		}
		return models.Contact{}, err
	}
	return contact, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
