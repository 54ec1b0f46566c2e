package decision

import (
	"fmt"
	"time"

	"inboxagent/internal/model"
)

const maxTitleLen = 100

// BuildAction constructs the proposed action for a signal. Rule action
// params take precedence; anything missing falls back to signal-derived
// defaults. deadline is the heuristic due date, ignored when the rule
// supplies its own offset.
func BuildAction(params *model.ActionParams, sig model.Signal, deadline *time.Time) model.ProposedAction {
	title := sig.Subject
	if title == "" {
		title = fmt.Sprintf("Follow up: %s", sig.Sender)
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen-3]) + "..."
	}

	description := sig.BodyPreview
	if sig.SenderName != "" {
		description = fmt.Sprintf("%s\n\n---\nFrom: %s <%s>", sig.BodyPreview, sig.SenderName, sig.Sender)
	} else {
		description = fmt.Sprintf("%s\n\n---\nFrom: %s", sig.BodyPreview, sig.Sender)
	}

	action := model.ProposedAction{
		TodoTitle:       title,
		TodoDescription: description,
		DueDate:         deadline,
	}

	if params == nil {
		return action
	}

	if params.TodoTitle != "" {
		action.TodoTitle = params.TodoTitle
	}
	if params.TodoDescription != "" {
		action.TodoDescription = params.TodoDescription
	}
	if params.CategoryID != nil {
		action.CategoryID = params.CategoryID
	}
	if params.Priority != "" {
		action.Priority = params.Priority
	}
	if params.DueDateOffsetDays != nil {
		due := sig.ReceivedAt.AddDate(0, 0, *params.DueDateOffsetDays)
		action.DueDate = &due
	}
	return action
}
