// ABOUTME: Tool registry: the ten pipeline CRUD tools with JSON Schema definitions
// ABOUTME: Handlers decode and validate input, hit the store, and render display text

package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

// Definition describes a tool to MCP clients.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// Handler executes a tool call and returns the text to display.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool pairs a definition with its handler. ErrVerb is the gerund used
// when reporting a failure ("Error listing opportunities: ...").
type Tool struct {
	Definition Definition
	ErrVerb    string
	Handler    Handler
}

// Registry holds the tool set backed by a single store handle.
type Registry struct {
	tools  []*Tool
	byName map[string]*Tool
	logger *slog.Logger
}

func NewRegistry(st store.Store) *Registry {
	o := &opportunityHandlers{store: st}
	n := &noteHandlers{store: st}

	r := &Registry{
		logger: slog.Default().With("component", "tools"),
	}

	r.tools = []*Tool{
		{
			Definition: Definition{
				Name:        "list_opportunities",
				Description: "List opportunities with optional filters on status, priority, and agency",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"status":{"type":"string","enum":["Not Started","Pre-Capture","Capture","Proposal","Submitted","Won","Lost","No Bid"]},"priority":{"type":"string","enum":["1 - Top","2 - Nice to Have","3 - Maybe","4 - No Bid"]},"agency":{"type":"string"},"limit":{"type":"integer","minimum":1,"maximum":100,"default":50},"offset":{"type":"integer","minimum":0,"default":0}}}`),
			},
			ErrVerb: "listing opportunities",
			Handler: o.List,
		},
		{
			Definition: Definition{
				Name:        "create_opportunity",
				Description: "Create a new opportunity; name and agency are required",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"opportunity_name":{"type":"string"},"agency":{"type":"string"},"vehicle":{"type":"string"},"sub_vehicle":{"type":"string"},"type":{"type":"string","enum":["RFQ","RFI","RTEP","Other"]},"priority":{"type":"string","enum":["1 - Top","2 - Nice to Have","3 - Maybe","4 - No Bid"]},"rfi_due":{"type":"string"},"rfi_submitted":{"type":"boolean"},"status":{"type":"string","enum":["Not Started","Pre-Capture","Capture","Proposal","Submitted","Won","Lost","No Bid"]},"anticipated_solicitation_release":{"type":"string"},"anticipated_award":{"type":"string"},"actual_solicitation_release":{"type":"string"},"submission_due":{"type":"string"},"award_date":{"type":"string"},"start_date":{"type":"string"},"bidding_entity":{"type":"string"},"prime_sub":{"type":"string","enum":["Prime","Sub"]},"new_recompete":{"type":"string","enum":["New","Recompete","Vehicle"]},"outcome":{"type":"string"},"awardee":{"type":"string"},"period_of_performance":{"type":"string"},"est_value":{"type":"number"},"est_fte":{"type":"number"},"notes":{"type":"string"},"ai_research":{"type":"string"},"partner_id":{"type":"string"},"project_deliverables":{"type":"string"},"lcats":{"type":"string"},"solicitation_number":{"type":"string"},"probability":{"type":"integer","minimum":0,"maximum":100}},"required":["opportunity_name","agency"]}`),
			},
			ErrVerb: "creating opportunity",
			Handler: o.Create,
		},
		{
			Definition: Definition{
				Name:        "get_opportunity",
				Description: "Retrieve the full details of a single opportunity",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"}},"required":["id"]}`),
			},
			ErrVerb: "retrieving opportunity",
			Handler: o.Get,
		},
		{
			Definition: Definition{
				Name:        "update_opportunity",
				Description: "Update fields on an existing opportunity; only supplied fields change",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"},"opportunity_name":{"type":"string"},"agency":{"type":"string"},"vehicle":{"type":"string"},"sub_vehicle":{"type":"string"},"type":{"type":"string","enum":["RFQ","RFI","RTEP","Other"]},"priority":{"type":"string","enum":["1 - Top","2 - Nice to Have","3 - Maybe","4 - No Bid"]},"rfi_due":{"type":"string"},"rfi_submitted":{"type":"boolean"},"status":{"type":"string","enum":["Not Started","Pre-Capture","Capture","Proposal","Submitted","Won","Lost","No Bid"]},"anticipated_solicitation_release":{"type":"string"},"anticipated_award":{"type":"string"},"actual_solicitation_release":{"type":"string"},"submission_due":{"type":"string"},"award_date":{"type":"string"},"start_date":{"type":"string"},"bidding_entity":{"type":"string"},"prime_sub":{"type":"string","enum":["Prime","Sub"]},"new_recompete":{"type":"string","enum":["New","Recompete","Vehicle"]},"outcome":{"type":"string"},"awardee":{"type":"string"},"period_of_performance":{"type":"string"},"est_value":{"type":"number"},"est_fte":{"type":"number"},"notes":{"type":"string"},"ai_research":{"type":"string"},"partner_id":{"type":"string"},"project_deliverables":{"type":"string"},"lcats":{"type":"string"},"solicitation_number":{"type":"string"},"probability":{"type":"integer","minimum":0,"maximum":100}},"required":["id"]}`),
			},
			ErrVerb: "updating opportunity",
			Handler: o.Update,
		},
		{
			Definition: Definition{
				Name:        "delete_opportunity",
				Description: "Delete an opportunity and its notes",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"}},"required":["id"]}`),
			},
			ErrVerb: "deleting opportunity",
			Handler: o.Delete,
		},
		{
			Definition: Definition{
				Name:        "create_opportunity_note",
				Description: "Attach a note to an opportunity",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"opportunity_id":{"type":"string","format":"uuid"},"text":{"type":"string","minLength":1},"date":{"type":"string","format":"date-time","description":"ISO 8601 datetime for the note. Defaults to current timestamp if not provided"},"attachments":{"type":"array","items":{"type":"string"},"description":"Array of attachment URLs or references"}},"required":["opportunity_id","text"]}`),
			},
			ErrVerb: "creating note",
			Handler: n.Create,
		},
		{
			Definition: Definition{
				Name:        "list_opportunity_notes",
				Description: "List the notes attached to an opportunity",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"opportunity_id":{"type":"string","format":"uuid"},"limit":{"type":"integer","minimum":1,"maximum":100,"default":50},"offset":{"type":"integer","minimum":0,"default":0},"order_by":{"type":"string","enum":["date","created_at","updated_at"],"default":"date"},"order_direction":{"type":"string","enum":["asc","desc"],"default":"desc"}},"required":["opportunity_id"]}`),
			},
			ErrVerb: "listing notes",
			Handler: n.List,
		},
		{
			Definition: Definition{
				Name:        "get_opportunity_note",
				Description: "Retrieve a single note with its parent opportunity's name",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"}},"required":["id"]}`),
			},
			ErrVerb: "retrieving note",
			Handler: n.Get,
		},
		{
			Definition: Definition{
				Name:        "update_opportunity_note",
				Description: "Update a note's text, date, or attachments",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"},"text":{"type":"string","minLength":1},"date":{"type":"string","format":"date-time"},"attachments":{"type":"array","items":{"type":"string"}}},"required":["id"]}`),
			},
			ErrVerb: "updating note",
			Handler: n.Update,
		},
		{
			Definition: Definition{
				Name:        "delete_opportunity_note",
				Description: "Delete a note from an opportunity",
				InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string","format":"uuid"}},"required":["id"]}`),
			},
			ErrVerb: "deleting note",
			Handler: n.Delete,
		},
	}

	r.byName = make(map[string]*Tool, len(r.tools))
	for _, t := range r.tools {
		r.byName[t.Definition.Name] = t
	}
	return r
}

// Definitions returns the tool definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.Definition
	}
	return defs
}

// Lookup finds a tool by name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}
