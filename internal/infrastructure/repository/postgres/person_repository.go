package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kondrup/gdprscan/internal/core/domain"
)

type PersonRepository struct {
	db *sql.DB
}

func NewPersonRepository(db *sql.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

func (r *PersonRepository) ListPersons(ctx context.Context, companyID string) ([]domain.GDPRPerson, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, company_id, name, relation
FROM gdpr_persons
WHERE company_id = $1
ORDER BY name
`, companyID)
	if err != nil {
		return nil, fmt.Errorf("query gdpr persons: %w", err)
	}
	defer rows.Close()

	var people []domain.GDPRPerson
	for rows.Next() {
		var (
			person   domain.GDPRPerson
			relation string
		)
		if err := rows.Scan(&person.ID, &person.CompanyID, &person.Name, &relation); err != nil {
			return nil, fmt.Errorf("scan gdpr person: %w", err)
		}
		person.Relation = domain.PersonRelation(relation)
		people = append(people, person)
	}
	return people, rows.Err()
}
