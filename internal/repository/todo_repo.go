package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"inboxagent/internal/model"
)

type TodoRepository struct {
	db *pgxpool.Pool
}

func NewTodoRepository(db *pgxpool.Pool) *TodoRepository {
	return &TodoRepository{db: db}
}

func (r *TodoRepository) Insert(ctx context.Context, todo *model.Todo) (uuid.UUID, error) {
	if todo.ID == uuid.Nil {
		todo.ID = uuid.New()
	}
	query := `
        INSERT INTO todos (
            id, title, description, completed, source, source_id,
            due_date, category_id, decision_id, created_at, updated_at
        )
        VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $8, NOW(), NOW())
        RETURNING id
    `
	var id uuid.UUID
	err := r.db.QueryRow(ctx, query,
		todo.ID,
		todo.Title,
		todo.Description,
		todo.Source,
		todo.SourceID,
		todo.DueDate,
		todo.CategoryID,
		todo.DecisionID,
	).Scan(&id)
	return id, err
}
