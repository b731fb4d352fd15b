// ABOUTME: Integration tests for the SQLite-backed store
// ABOUTME: Each test opens a real database in a temp directory

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testUser(email string) *User {
	return &User{
		ID:            uuid.New().String(),
		ExternalID:    "ext-" + email,
		Email:         email,
		FullName:      "Test User",
		AccessEnabled: true,
		Permissions:   DefaultPermissions(),
	}
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUser("alice@example.com")
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.ExternalID, got.ExternalID)
	assert.True(t, got.AccessEnabled)
	assert.True(t, got.Permissions.ListOpportunities)
	assert.False(t, got.Permissions.CreateOpportunity)
	assert.Nil(t, got.LastLoginAt)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("dup@example.com")))

	other := testUser("dup@example.com")
	other.ExternalID = "different-ext"
	err := s.CreateUser(ctx, other)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestGetUserByExternalIDEnabledOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUser("bob@example.com")
	u.AccessEnabled = false
	require.NoError(t, s.CreateUser(ctx, u))

	// Enabled-only lookup must not see the disabled record.
	_, err := s.GetUserByExternalID(ctx, u.ExternalID, true)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.GetUserByExternalID(ctx, u.ExternalID, false)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestGetUserByEmailAndLink(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUser("carol@example.com")
	u.ExternalID = ""
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByEmail(ctx, "carol@example.com", true)
	require.NoError(t, err)
	assert.Empty(t, got.ExternalID)

	require.NoError(t, s.LinkExternalID(ctx, u.ID, "google-sub-123"))

	got, err = s.GetUserByExternalID(ctx, "google-sub-123", true)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestTouchLastLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUser("dave@example.com")
	require.NoError(t, s.CreateUser(ctx, u))
	require.NoError(t, s.TouchLastLogin(ctx, u.ID))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)

	assert.ErrorIs(t, s.TouchLastLogin(ctx, "missing"), ErrNotFound)
}

func TestSetUserAccessAndPermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := testUser("erin@example.com")
	require.NoError(t, s.CreateUser(ctx, u))

	require.NoError(t, s.SetUserAccess(ctx, u.ID, false))

	perms := u.Permissions
	perms.CreateOpportunity = true
	require.NoError(t, s.SetUserPermissions(ctx, u.ID, perms))

	got, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, got.AccessEnabled)
	assert.True(t, got.Permissions.CreateOpportunity)
}

func TestListUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, testUser("zed@example.com")))
	require.NoError(t, s.CreateUser(ctx, testUser("amy@example.com")))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy@example.com", users[0].Email)
}

func TestOAuthClientRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &Client{
		ID:           uuid.New().String(),
		Name:         "Test Client",
		RedirectURIs: []string{"https://client.example.com/callback"},
	}
	require.NoError(t, s.CreateClient(ctx, c))

	got, err := s.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, got.Name)
	assert.Equal(t, c.RedirectURIs, got.RedirectURIs)

	_, err = s.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func strp(s string) *string    { return &s }
func intp(i int) *int          { return &i }
func floatp(f float64) *float64 { return &f }
func boolp(b bool) *bool       { return &b }

func testOpportunity(name string) *Opportunity {
	return &Opportunity{
		ID:     uuid.New().String(),
		Name:   name,
		Agency: "Department of Energy",
	}
}

func TestCreateOpportunityEchoesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Grid Modernization Support")
	opp.Type = strp("RFQ")
	opp.Priority = strp("1 - Top")
	opp.Status = strp("Capture")
	opp.Probability = intp(65)
	opp.EstValue = floatp(2500000)
	opp.RFISubmitted = boolp(true)
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	got, err := s.GetOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grid Modernization Support", got.Name)
	assert.Equal(t, "Department of Energy", got.Agency)
	assert.Equal(t, "RFQ", *got.Type)
	assert.Equal(t, "1 - Top", *got.Priority)
	assert.Equal(t, 65, *got.Probability)
	assert.Equal(t, 2500000.0, *got.EstValue)
	assert.True(t, *got.RFISubmitted)
	assert.Nil(t, got.Vehicle)
	assert.Nil(t, got.Outcome)
}

func TestListOpportunitiesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testOpportunity("Alpha")
	a.Status = strp("Capture")
	a.Priority = strp("1 - Top")
	require.NoError(t, s.CreateOpportunity(ctx, a))

	b := testOpportunity("Beta")
	b.Agency = "Health and Human Services"
	b.Status = strp("Won")
	require.NoError(t, s.CreateOpportunity(ctx, b))

	opps, err := s.ListOpportunities(ctx, OpportunityFilter{Status: "Capture", Limit: 50})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "Alpha", opps[0].Name)

	// Agency filter is a case-insensitive substring match.
	opps, err = s.ListOpportunities(ctx, OpportunityFilter{Agency: "health", Limit: 50})
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "Beta", opps[0].Name)

	opps, err = s.ListOpportunities(ctx, OpportunityFilter{Status: "No Bid", Limit: 50})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestListOpportunitiesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.CreateOpportunity(ctx, testOpportunity("Opp")))
	}

	first, err := s.ListOpportunities(ctx, OpportunityFilter{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := s.ListOpportunities(ctx, OpportunityFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, second, 2)

	// Pages must be disjoint.
	seen := map[string]bool{}
	for _, o := range append(first, second...) {
		assert.False(t, seen[o.ID])
		seen[o.ID] = true
	}

	last, err := s.ListOpportunities(ctx, OpportunityFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, last, 1)

	past, err := s.ListOpportunities(ctx, OpportunityFilter{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestUpdateOpportunityPartialPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Original")
	opp.Status = strp("Pre-Capture")
	opp.Probability = intp(20)
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	got, err := s.UpdateOpportunity(ctx, opp.ID, OpportunityPatch{
		Status:      strp("Capture"),
		Probability: intp(40),
	})
	require.NoError(t, err)
	assert.Equal(t, "Capture", *got.Status)
	assert.Equal(t, 40, *got.Probability)
	// Untouched fields survive.
	assert.Equal(t, "Original", got.Name)
	assert.Equal(t, "Department of Energy", got.Agency)

	_, err = s.UpdateOpportunity(ctx, "missing", OpportunityPatch{Status: strp("Won")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOpportunityReturnsSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Doomed")
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	got, err := s.DeleteOpportunity(ctx, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Doomed", got.Name)

	_, err = s.GetOpportunity(ctx, opp.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.DeleteOpportunity(ctx, opp.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNoteLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Parent")
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	note := &Note{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Text:          "Spoke with the contracting officer",
		Attachments:   []string{"https://docs.example.com/minutes.pdf"},
	}
	require.NoError(t, s.CreateNote(ctx, note))
	assert.False(t, note.Date.IsZero())

	got, err := s.GetNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, note.Text, got.Text)
	assert.Equal(t, note.Attachments, got.Attachments)
	assert.Equal(t, "Parent", got.OpportunityName)

	updated, err := s.UpdateNote(ctx, note.ID, NotePatch{Text: strp("Revised summary")})
	require.NoError(t, err)
	assert.Equal(t, "Revised summary", updated.Text)
	assert.Equal(t, "Parent", updated.OpportunityName)
	assert.Equal(t, note.Attachments, updated.Attachments)

	deleted, err := s.DeleteNote(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "Revised summary", deleted.Text)
	assert.Equal(t, "Parent", deleted.OpportunityName)

	_, err = s.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNotesOrderAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Parent")
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	for _, text := range []string{"first", "second", "third"} {
		require.NoError(t, s.CreateNote(ctx, &Note{
			ID:            uuid.New().String(),
			OpportunityID: opp.ID,
			Text:          text,
		}))
	}

	notes, total, err := s.ListNotes(ctx, NoteListParams{
		OpportunityID: opp.ID,
		OrderBy:       NoteOrderCreatedAt,
		Descending:    true,
		Limit:         2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, notes, 2)
	assert.Equal(t, "third", notes[0].Text)

	notes, total, err = s.ListNotes(ctx, NoteListParams{
		OpportunityID: opp.ID,
		OrderBy:       NoteOrderCreatedAt,
		Limit:         10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, "first", notes[0].Text)
}

func TestDeleteOpportunityCascadesNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	opp := testOpportunity("Parent")
	require.NoError(t, s.CreateOpportunity(ctx, opp))

	note := &Note{ID: uuid.New().String(), OpportunityID: opp.ID, Text: "orphan-to-be"}
	require.NoError(t, s.CreateNote(ctx, note))

	_, err := s.DeleteOpportunity(ctx, opp.ID)
	require.NoError(t, err)

	_, err = s.GetNote(ctx, note.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateNoteMissingParent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateNote(ctx, &Note{
		ID:            uuid.New().String(),
		OpportunityID: "no-such-opportunity",
		Text:          "lost",
	})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestTableColumns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cols, err := s.TableColumns(ctx, "opportunities")
	require.NoError(t, err)

	byName := map[string]Column{}
	for _, c := range cols {
		byName[c.Name] = c
	}
	require.Contains(t, byName, "opportunity_name")
	assert.False(t, byName["opportunity_name"].Nullable)
	require.Contains(t, byName, "probability")
	assert.True(t, byName["probability"].Nullable)

	_, err = s.TableColumns(ctx, "sqlite_master")
	assert.Error(t, err)
}
