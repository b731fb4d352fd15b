// ABOUTME: Note tool handlers: create, list, get, update, delete
// ABOUTME: Every response names the parent opportunity for context

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

type noteHandlers struct {
	store store.Store
}

type createNoteInput struct {
	OpportunityID string   `json:"opportunity_id"`
	Text          string   `json:"text"`
	Date          *string  `json:"date"`
	Attachments   []string `json:"attachments"`
}

func (n *noteHandlers) Create(ctx context.Context, input json.RawMessage) (string, error) {
	var in createNoteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("opportunity_id", in.OpportunityID); err != nil {
		return "", err
	}
	if in.Text == "" {
		return "", errors.New("Note text is required")
	}

	date, err := parseNoteDate(in.Date)
	if err != nil {
		return "", err
	}

	// Verify the parent exists before inserting. Not transactional: a
	// concurrent parent delete between the check and the insert is
	// caught by the foreign key instead.
	parent, err := n.store.GetOpportunity(ctx, in.OpportunityID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Opportunity not found with id: %s", in.OpportunityID)
	}
	if err != nil {
		return "", err
	}

	note := &store.Note{
		ID:            uuid.New().String(),
		OpportunityID: in.OpportunityID,
		Text:          in.Text,
		Date:          date,
		Attachments:   in.Attachments,
	}
	if err := n.store.CreateNote(ctx, note); err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully created note for opportunity: %s\n\nNote Details:\n• ID: %s\n• Date: %s\n• Text: %s%s",
		parent.Name, note.ID, note.Date.Format(time.RFC3339), note.Text,
		renderAttachments(note.Attachments)), nil
}

func parseNoteDate(raw *string) (time.Time, error) {
	if raw == nil || *raw == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be an ISO 8601 datetime")
	}
	return date, nil
}

func renderAttachments(attachments []string) string {
	if len(attachments) == 0 {
		return ""
	}
	return "\n• Attachments: " + strings.Join(attachments, ", ")
}

type listNotesInput struct {
	OpportunityID  string  `json:"opportunity_id"`
	Limit          *int    `json:"limit"`
	Offset         *int    `json:"offset"`
	OrderBy        *string `json:"order_by"`
	OrderDirection *string `json:"order_direction"`
}

var validNoteOrder = map[string]bool{
	store.NoteOrderDate: true, store.NoteOrderCreatedAt: true, store.NoteOrderUpdatedAt: true,
}

func (n *noteHandlers) List(ctx context.Context, input json.RawMessage) (string, error) {
	var in listNotesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("opportunity_id", in.OpportunityID); err != nil {
		return "", err
	}
	limit, offset, err := page(in.Limit, in.Offset)
	if err != nil {
		return "", err
	}

	orderBy := store.NoteOrderDate
	if in.OrderBy != nil {
		if !validNoteOrder[*in.OrderBy] {
			return "", fmt.Errorf("invalid order_by: %q", *in.OrderBy)
		}
		orderBy = *in.OrderBy
	}
	descending := true
	if in.OrderDirection != nil {
		switch *in.OrderDirection {
		case "asc":
			descending = false
		case "desc":
			descending = true
		default:
			return "", fmt.Errorf("invalid order_direction: %q", *in.OrderDirection)
		}
	}

	parent, err := n.store.GetOpportunity(ctx, in.OpportunityID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Opportunity not found with id: %s", in.OpportunityID)
	}
	if err != nil {
		return "", err
	}

	notes, total, err := n.store.ListNotes(ctx, store.NoteListParams{
		OpportunityID: in.OpportunityID,
		OrderBy:       orderBy,
		Descending:    descending,
		Limit:         limit,
		Offset:        offset,
	})
	if err != nil {
		return "", err
	}

	lines := make([]string, len(notes))
	for i, note := range notes {
		lines[i] = fmt.Sprintf("• [%s] %s - %s", note.ID, note.Date.Format(time.RFC3339), note.Text)
	}
	return fmt.Sprintf("Found %d notes for opportunity: %s\n\n%s\n\nShowing %d of %d (offset: %d, limit: %d)",
		total, parent.Name, strings.Join(lines, "\n"), len(notes), total, offset, limit), nil
}

func (n *noteHandlers) Get(ctx context.Context, input json.RawMessage) (string, error) {
	var in idInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}

	note, err := n.store.GetNote(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Note not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Note Details:\n• ID: %s\n• Opportunity: %s\n• Date: %s\n• Text: %s%s\n• Created: %s\n• Updated: %s",
		note.ID, note.OpportunityName, note.Date.Format(time.RFC3339), note.Text,
		renderAttachments(note.Attachments),
		note.CreatedAt.Format(time.RFC3339), note.UpdatedAt.Format(time.RFC3339)), nil
}

type updateNoteInput struct {
	ID          string    `json:"id"`
	Text        *string   `json:"text"`
	Date        *string   `json:"date"`
	Attachments *[]string `json:"attachments"`
}

func (n *noteHandlers) Update(ctx context.Context, input json.RawMessage) (string, error) {
	var in updateNoteInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}
	if in.Text != nil && *in.Text == "" {
		return "", errors.New("Note text is required")
	}

	patch := store.NotePatch{Text: in.Text, Attachments: in.Attachments}
	if in.Date != nil {
		date, err := parseNoteDate(in.Date)
		if err != nil {
			return "", err
		}
		patch.Date = &date
	}

	note, err := n.store.UpdateNote(ctx, in.ID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Note not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully updated note for opportunity: %s\n\nNote Details:\n• ID: %s\n• Date: %s\n• Text: %s%s\n• Updated: %s",
		note.OpportunityName, note.ID, note.Date.Format(time.RFC3339), note.Text,
		renderAttachments(note.Attachments), note.UpdatedAt.Format(time.RFC3339)), nil
}

func (n *noteHandlers) Delete(ctx context.Context, input json.RawMessage) (string, error) {
	var in idInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}

	note, err := n.store.DeleteNote(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Note not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully deleted note from opportunity: %s\n\nDeleted Note:\n• ID: %s\n• Text: %s",
		note.OpportunityName, note.ID, note.Text), nil
}
