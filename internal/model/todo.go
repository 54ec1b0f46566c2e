package model

import (
	"time"

	"github.com/google/uuid"
)

// Todo is the executed form of a create_todo decision.
type Todo struct {
	ID          uuid.UUID
	Title       string
	Description string
	Completed   bool
	Source      SourceType
	SourceID    string
	DueDate     *time.Time
	CategoryID  *uuid.UUID
	DecisionID  *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
