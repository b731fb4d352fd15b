// ABOUTME: Tests for the tool handlers against a real SQLite store
// ABOUTME: Validation failures, rendered text, and not-found messages

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tools.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st), st
}

func call(t *testing.T, r *Registry, name, input string) (string, error) {
	t.Helper()
	tool, ok := r.Lookup(name)
	require.True(t, ok, "tool %s not registered", name)
	return tool.Handler(context.Background(), json.RawMessage(input))
}

func mustCall(t *testing.T, r *Registry, name, input string) string {
	t.Helper()
	out, err := call(t, r, name, input)
	require.NoError(t, err)
	return out
}

func createdID(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "• ID: ") {
			return strings.TrimPrefix(line, "• ID: ")
		}
	}
	t.Fatalf("no ID line in output:\n%s", out)
	return ""
}

func TestRegistryHasAllTools(t *testing.T) {
	r, _ := newTestRegistry(t)

	defs := r.Definitions()
	require.Len(t, defs, 10)
	for _, tool := range store.AllTools() {
		_, ok := r.Lookup(string(tool))
		assert.True(t, ok, "missing tool %s", tool)
	}
	for _, def := range defs {
		var schema map[string]any
		require.NoError(t, json.Unmarshal(def.InputSchema, &schema), "bad schema for %s", def.Name)
		assert.Equal(t, "object", schema["type"])
	}
}

func TestCreateOpportunityTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	out := mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"Cloud Migration","agency":"GSA","status":"Capture","probability":60}`)
	assert.Contains(t, out, "Successfully created opportunity: Cloud Migration")
	assert.Contains(t, out, "• Agency: GSA")
	assert.Contains(t, out, "• Status: Capture")
}

func TestCreateOpportunityValidation(t *testing.T) {
	r, _ := newTestRegistry(t)

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"missing name", `{"agency":"GSA"}`, "opportunity_name is required"},
		{"missing agency", `{"opportunity_name":"X"}`, "agency is required"},
		{"empty name", `{"opportunity_name":"","agency":"GSA"}`, "opportunity_name is required"},
		{"bad type", `{"opportunity_name":"X","agency":"GSA","type":"IDIQ"}`, "invalid type"},
		{"bad priority", `{"opportunity_name":"X","agency":"GSA","priority":"urgent"}`, "invalid priority"},
		{"bad status", `{"opportunity_name":"X","agency":"GSA","status":"Done"}`, "invalid status"},
		{"bad prime_sub", `{"opportunity_name":"X","agency":"GSA","prime_sub":"Both"}`, "invalid prime_sub"},
		{"bad new_recompete", `{"opportunity_name":"X","agency":"GSA","new_recompete":"Old"}`, "invalid new_recompete"},
		{"probability high", `{"opportunity_name":"X","agency":"GSA","probability":101}`, "between 0 and 100"},
		{"probability low", `{"opportunity_name":"X","agency":"GSA","probability":-1}`, "between 0 and 100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := call(t, r, "create_opportunity", tc.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestGetOpportunityTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	out := mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"Full Dump","agency":"DOE","type":"RFQ","probability":45,"est_value":1250000,"rfi_submitted":true}`)
	id := createdID(t, out)

	details := mustCall(t, r, "get_opportunity", fmt.Sprintf(`{"id":%q}`, id))
	assert.Contains(t, details, "Opportunity Details:")
	assert.Contains(t, details, "• Probability: 45%")
	assert.Contains(t, details, "• Estimated Value: $1,250,000")
	assert.Contains(t, details, "• RFI Submitted: Yes")
	assert.Contains(t, details, "• Vehicle: Not specified")
	assert.Contains(t, details, "• Notes: None")
}

func TestGetOpportunityNotFound(t *testing.T) {
	r, _ := newTestRegistry(t)

	missing := uuid.New().String()
	_, err := call(t, r, "get_opportunity", fmt.Sprintf(`{"id":%q}`, missing))
	require.Error(t, err)
	assert.Equal(t, "Opportunity not found with id: "+missing, err.Error())

	_, err = call(t, r, "get_opportunity", `{"id":"not-a-uuid"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid UUID")
}

func TestUpdateOpportunityTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	id := createdID(t, mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"Before","agency":"GSA","status":"Pre-Capture"}`))

	out := mustCall(t, r, "update_opportunity",
		fmt.Sprintf(`{"id":%q,"status":"Proposal","probability":80}`, id))
	assert.Contains(t, out, "Successfully updated opportunity: Before")
	assert.Contains(t, out, "• Status: Proposal")

	details := mustCall(t, r, "get_opportunity", fmt.Sprintf(`{"id":%q}`, id))
	assert.Contains(t, details, "• Probability: 80%")
}

func TestDeleteOpportunityTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	id := createdID(t, mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"Short Lived","agency":"GSA"}`))

	out := mustCall(t, r, "delete_opportunity", fmt.Sprintf(`{"id":%q}`, id))
	assert.Contains(t, out, "Successfully deleted opportunity: Short Lived")

	_, err := call(t, r, "delete_opportunity", fmt.Sprintf(`{"id":%q}`, id))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Opportunity not found with id:")
}

func TestListOpportunitiesTool(t *testing.T) {
	r, _ := newTestRegistry(t)

	mustCall(t, r, "create_opportunity", `{"opportunity_name":"One","agency":"GSA","status":"Capture"}`)
	mustCall(t, r, "create_opportunity", `{"opportunity_name":"Two","agency":"DOE","status":"Won","priority":"1 - Top"}`)

	out := mustCall(t, r, "list_opportunities", `{}`)
	assert.Contains(t, out, "Found 2 opportunities:")
	assert.Contains(t, out, "(offset: 0, limit: 50)")

	out = mustCall(t, r, "list_opportunities", `{"status":"Won"}`)
	assert.Contains(t, out, "Found 1 opportunities:")
	assert.Contains(t, out, "Two (DOE) - Status: Won - Priority: 1 - Top")

	_, err := call(t, r, "list_opportunities", `{"limit":0}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 1 and 100")

	_, err = call(t, r, "list_opportunities", `{"limit":101}`)
	require.Error(t, err)

	_, err = call(t, r, "list_opportunities", `{"offset":-1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-negative")

	_, err = call(t, r, "list_opportunities", `{"status":"Finished"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
}

func TestListOpportunitiesPagesAreDisjoint(t *testing.T) {
	r, _ := newTestRegistry(t)

	mustCall(t, r, "create_opportunity", `{"opportunity_name":"First","agency":"GSA"}`)
	mustCall(t, r, "create_opportunity", `{"opportunity_name":"Second","agency":"DOE"}`)
	mustCall(t, r, "create_opportunity", `{"opportunity_name":"Third","agency":"DOD"}`)

	// Newest first: consecutive single-row pages walk back in creation
	// order and never repeat a row.
	page0 := mustCall(t, r, "list_opportunities", `{"limit":1,"offset":0}`)
	assert.Contains(t, page0, "Third (DOD)")
	assert.NotContains(t, page0, "Second (DOE)")
	assert.NotContains(t, page0, "First (GSA)")
	assert.Contains(t, page0, "(offset: 0, limit: 1)")

	page1 := mustCall(t, r, "list_opportunities", `{"limit":1,"offset":1}`)
	assert.Contains(t, page1, "Second (DOE)")
	assert.NotContains(t, page1, "Third (DOD)")
	assert.NotContains(t, page1, "First (GSA)")
	assert.Contains(t, page1, "(offset: 1, limit: 1)")

	page2 := mustCall(t, r, "list_opportunities", `{"limit":1,"offset":2}`)
	assert.Contains(t, page2, "First (GSA)")
	assert.NotContains(t, page2, "Third (DOD)")
	assert.NotContains(t, page2, "Second (DOE)")
}

func TestNoteToolsLifecycle(t *testing.T) {
	r, _ := newTestRegistry(t)

	oppID := createdID(t, mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"Parent Opp","agency":"GSA"}`))

	out := mustCall(t, r, "create_opportunity_note",
		fmt.Sprintf(`{"opportunity_id":%q,"text":"Kickoff meeting held","attachments":["https://x/minutes.pdf"]}`, oppID))
	assert.Contains(t, out, "Successfully created note for opportunity: Parent Opp")
	assert.Contains(t, out, "• Attachments: https://x/minutes.pdf")
	noteID := createdID(t, out)

	got := mustCall(t, r, "get_opportunity_note", fmt.Sprintf(`{"id":%q}`, noteID))
	assert.Contains(t, got, "• Opportunity: Parent Opp")
	assert.Contains(t, got, "• Text: Kickoff meeting held")

	updated := mustCall(t, r, "update_opportunity_note",
		fmt.Sprintf(`{"id":%q,"text":"Kickoff rescheduled"}`, noteID))
	assert.Contains(t, updated, "Successfully updated note for opportunity: Parent Opp")
	assert.Contains(t, updated, "Kickoff rescheduled")

	listed := mustCall(t, r, "list_opportunity_notes", fmt.Sprintf(`{"opportunity_id":%q}`, oppID))
	assert.Contains(t, listed, "Found 1 notes for opportunity: Parent Opp")

	deleted := mustCall(t, r, "delete_opportunity_note", fmt.Sprintf(`{"id":%q}`, noteID))
	assert.Contains(t, deleted, "Successfully deleted note from opportunity: Parent Opp")

	_, err := call(t, r, "get_opportunity_note", fmt.Sprintf(`{"id":%q}`, noteID))
	require.Error(t, err)
	assert.Equal(t, "Note not found with id: "+noteID, err.Error())
}

func TestCreateNoteMissingParent(t *testing.T) {
	r, _ := newTestRegistry(t)

	missing := uuid.New().String()
	_, err := call(t, r, "create_opportunity_note",
		fmt.Sprintf(`{"opportunity_id":%q,"text":"orphan"}`, missing))
	require.Error(t, err)
	assert.Equal(t, "Opportunity not found with id: "+missing, err.Error())
}

func TestCreateNoteValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	oppID := createdID(t, mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"P","agency":"GSA"}`))

	_, err := call(t, r, "create_opportunity_note",
		fmt.Sprintf(`{"opportunity_id":%q,"text":""}`, oppID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Note text is required")

	_, err = call(t, r, "create_opportunity_note",
		fmt.Sprintf(`{"opportunity_id":%q,"text":"x","date":"yesterday"}`, oppID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ISO 8601")

	_, err = call(t, r, "create_opportunity_note", `{"opportunity_id":"nope","text":"x"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid UUID")
}

func TestListNotesOrdering(t *testing.T) {
	r, _ := newTestRegistry(t)
	oppID := createdID(t, mustCall(t, r, "create_opportunity",
		`{"opportunity_name":"P","agency":"GSA"}`))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"oldest", "middle", "newest"} {
		mustCall(t, r, "create_opportunity_note", fmt.Sprintf(
			`{"opportunity_id":%q,"text":%q,"date":%q}`,
			oppID, text, base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339)))
	}

	out := mustCall(t, r, "list_opportunity_notes",
		fmt.Sprintf(`{"opportunity_id":%q,"order_by":"date","order_direction":"desc","limit":1}`, oppID))
	assert.Contains(t, out, "newest")
	assert.Contains(t, out, "Showing 1 of 3")

	out = mustCall(t, r, "list_opportunity_notes",
		fmt.Sprintf(`{"opportunity_id":%q,"order_by":"date","order_direction":"asc","limit":1}`, oppID))
	assert.Contains(t, out, "oldest")

	_, err := call(t, r, "list_opportunity_notes",
		fmt.Sprintf(`{"opportunity_id":%q,"order_by":"text"}`, oppID))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid order_by")
}

func TestSchemaCache(t *testing.T) {
	_, st := newTestRegistry(t)

	cache := NewSchemaCache(st, time.Hour)
	cols, err := cache.Columns(context.Background())
	require.NoError(t, err)
	require.Contains(t, cols, "opportunities")
	require.Contains(t, cols, "opportunity_notes")

	names := map[string]bool{}
	for _, c := range cols["opportunities"] {
		names[c.Name] = true
	}
	assert.True(t, names["opportunity_name"])
	assert.True(t, names["probability"])

	// Second read inside the TTL serves the same snapshot.
	again, err := cache.Columns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cols, again)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "Not specified", formatMoney(nil))
	v := 1234567.0
	assert.Equal(t, "$1,234,567", formatMoney(&v))
	small := 950.0
	assert.Equal(t, "$950", formatMoney(&small))
}
