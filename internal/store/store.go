// ABOUTME: Store interface and data types for pursuit-gateway persistence
// ABOUTME: Defines User, Opportunity, Note structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when creating a user whose email is already taken
var ErrDuplicateEmail = errors.New("email already registered")

// Tool identifies one of the ten CRUD tools exposed over MCP.
// The set is closed: permission checks switch over these values so an
// unknown tool name is a bug caught in code review, not a silent deny.
type Tool string

const (
	ToolListOpportunities Tool = "list_opportunities"
	ToolCreateOpportunity Tool = "create_opportunity"
	ToolGetOpportunity    Tool = "get_opportunity"
	ToolUpdateOpportunity Tool = "update_opportunity"
	ToolDeleteOpportunity Tool = "delete_opportunity"

	ToolCreateNote Tool = "create_opportunity_note"
	ToolListNotes  Tool = "list_opportunity_notes"
	ToolGetNote    Tool = "get_opportunity_note"
	ToolUpdateNote Tool = "update_opportunity_note"
	ToolDeleteNote Tool = "delete_opportunity_note"
)

// AllTools returns the ten tool identifiers in registration order.
func AllTools() []Tool {
	return []Tool{
		ToolListOpportunities,
		ToolCreateOpportunity,
		ToolGetOpportunity,
		ToolUpdateOpportunity,
		ToolDeleteOpportunity,
		ToolCreateNote,
		ToolListNotes,
		ToolGetNote,
		ToolUpdateNote,
		ToolDeleteNote,
	}
}

// Permissions is the per-user tool permission map: one boolean per tool.
// It is stored as a JSON column on the user row and baked into issued
// grant tokens, so a tool call never needs a store round-trip to check it.
type Permissions struct {
	ListOpportunities bool `json:"list_opportunities"`
	CreateOpportunity bool `json:"create_opportunity"`
	GetOpportunity    bool `json:"get_opportunity"`
	UpdateOpportunity bool `json:"update_opportunity"`
	DeleteOpportunity bool `json:"delete_opportunity"`

	CreateNote bool `json:"create_opportunity_note"`
	ListNotes  bool `json:"list_opportunity_notes"`
	GetNote    bool `json:"get_opportunity_note"`
	UpdateNote bool `json:"update_opportunity_note"`
	DeleteNote bool `json:"delete_opportunity_note"`
}

// Allows reports whether the map grants the given tool.
func (p Permissions) Allows(t Tool) bool {
	switch t {
	case ToolListOpportunities:
		return p.ListOpportunities
	case ToolCreateOpportunity:
		return p.CreateOpportunity
	case ToolGetOpportunity:
		return p.GetOpportunity
	case ToolUpdateOpportunity:
		return p.UpdateOpportunity
	case ToolDeleteOpportunity:
		return p.DeleteOpportunity
	case ToolCreateNote:
		return p.CreateNote
	case ToolListNotes:
		return p.ListNotes
	case ToolGetNote:
		return p.GetNote
	case ToolUpdateNote:
		return p.UpdateNote
	case ToolDeleteNote:
		return p.DeleteNote
	}
	return false
}

// Set grants or revokes a single tool. Returns false for an unknown tool.
func (p *Permissions) Set(t Tool, allowed bool) bool {
	switch t {
	case ToolListOpportunities:
		p.ListOpportunities = allowed
	case ToolCreateOpportunity:
		p.CreateOpportunity = allowed
	case ToolGetOpportunity:
		p.GetOpportunity = allowed
	case ToolUpdateOpportunity:
		p.UpdateOpportunity = allowed
	case ToolDeleteOpportunity:
		p.DeleteOpportunity = allowed
	case ToolCreateNote:
		p.CreateNote = allowed
	case ToolListNotes:
		p.ListNotes = allowed
	case ToolGetNote:
		p.GetNote = allowed
	case ToolUpdateNote:
		p.UpdateNote = allowed
	case ToolDeleteNote:
		p.DeleteNote = allowed
	default:
		return false
	}
	return true
}

// DefaultPermissions is the read-biased map assigned to newly provisioned
// users: listing and reading allowed, every mutation denied.
func DefaultPermissions() Permissions {
	return Permissions{
		ListOpportunities: true,
		GetOpportunity:    true,
		ListNotes:         true,
		GetNote:           true,
	}
}

// User is an access record: one row per human allowed (or pending
// approval) to use the tool surface.
type User struct {
	ID             string
	ExternalID     string // upstream provider subject id; empty until linked
	Email          string
	FullName       string
	AccessEnabled  bool
	Permissions    Permissions
	LinkedRecordID string // optional reference to a CRM-side person record
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// Client is a registered downstream OAuth client (an MCP client
// application that sends users through the authorize flow).
type Client struct {
	ID           string
	Name         string
	RedirectURIs []string
	LogoURI      string
	CreatedAt    time.Time
}

// Opportunity statuses, priorities and other closed enumerations.
// Validation happens at the tool layer before values reach the store.
const (
	OpportunityTypeRFQ   = "RFQ"
	OpportunityTypeRFI   = "RFI"
	OpportunityTypeRTEP  = "RTEP"
	OpportunityTypeOther = "Other"
)

// Opportunity is a tracked business pursuit/bid record.
// The many descriptive fields are optional; pointers distinguish
// "absent" from zero values for partial updates and NULL columns.
type Opportunity struct {
	ID     string
	Name   string
	Agency string

	Vehicle                        *string
	SubVehicle                     *string
	Type                           *string
	Priority                       *string
	RFIDue                         *string
	RFISubmitted                   *bool
	Status                         *string
	AnticipatedSolicitationRelease *string
	AnticipatedAward               *string
	ActualSolicitationRelease      *string
	SubmissionDue                  *string
	AwardDate                      *string
	StartDate                      *string
	BiddingEntity                  *string
	PrimeSub                       *string
	NewRecompete                   *string
	Outcome                        *string
	Awardee                        *string
	PeriodOfPerformance            *string
	EstValue                       *float64
	EstFTE                         *float64
	Notes                          *string
	AIResearch                     *string
	PartnerID                      *string
	ProjectDeliverables            *string
	LCATs                          *string
	SolicitationNumber             *string
	Probability                    *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OpportunityPatch carries partial-update fields for an opportunity.
// Nil means "leave unchanged"; the store only writes non-nil fields.
type OpportunityPatch struct {
	Name   *string
	Agency *string

	Vehicle                        *string
	SubVehicle                     *string
	Type                           *string
	Priority                       *string
	RFIDue                         *string
	RFISubmitted                   *bool
	Status                         *string
	AnticipatedSolicitationRelease *string
	AnticipatedAward               *string
	ActualSolicitationRelease      *string
	SubmissionDue                  *string
	AwardDate                      *string
	StartDate                      *string
	BiddingEntity                  *string
	PrimeSub                       *string
	NewRecompete                   *string
	Outcome                        *string
	Awardee                        *string
	PeriodOfPerformance            *string
	EstValue                       *float64
	EstFTE                         *float64
	Notes                          *string
	AIResearch                     *string
	PartnerID                      *string
	ProjectDeliverables            *string
	LCATs                          *string
	SolicitationNumber             *string
	Probability                    *int
}

// OpportunityFilter narrows ListOpportunities. Zero values mean "no filter".
type OpportunityFilter struct {
	Status   string // exact match
	Priority string // exact match
	Agency   string // substring match, case-insensitive
	Limit    int
	Offset   int
}

// Note is a timestamped annotation attached to exactly one opportunity.
type Note struct {
	ID            string
	OpportunityID string
	Text          string
	Date          time.Time // event timestamp, distinct from CreatedAt
	Attachments   []string  // nil when none
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// OpportunityName is the parent's display name, populated by
	// join-fetching reads. Not a column on the notes table.
	OpportunityName string
}

// NotePatch carries partial-update fields for a note.
type NotePatch struct {
	Text        *string
	Date        *time.Time
	Attachments *[]string
}

// Note list ordering fields.
const (
	NoteOrderDate      = "date"
	NoteOrderCreatedAt = "created_at"
	NoteOrderUpdatedAt = "updated_at"
)

// NoteListParams narrows and orders ListNotes.
type NoteListParams struct {
	OpportunityID string
	Limit         int
	Offset        int
	OrderBy       string // one of the NoteOrder constants
	Descending    bool
}

// Column describes one column of a stored table, as reported by the
// backend's schema introspection.
type Column struct {
	Name     string `json:"column_name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"is_nullable"`
	Default  string `json:"column_default,omitempty"`
}

// Store defines the persistence contract for access records,
// opportunities, notes, and registered OAuth clients.
type Store interface {
	// Access records
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string, enabledOnly bool) (*User, error)
	GetUserByEmail(ctx context.Context, email string, enabledOnly bool) (*User, error)
	LinkExternalID(ctx context.Context, userID, externalID string) error
	TouchLastLogin(ctx context.Context, userID string) error
	ListUsers(ctx context.Context) ([]*User, error)
	SetUserAccess(ctx context.Context, userID string, enabled bool) error
	SetUserPermissions(ctx context.Context, userID string, perms Permissions) error

	// OAuth clients
	CreateClient(ctx context.Context, client *Client) error
	GetClient(ctx context.Context, id string) (*Client, error)

	// Opportunities
	CreateOpportunity(ctx context.Context, opp *Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*Opportunity, error)
	ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]*Opportunity, error)
	UpdateOpportunity(ctx context.Context, id string, patch OpportunityPatch) (*Opportunity, error)
	DeleteOpportunity(ctx context.Context, id string) (*Opportunity, error)

	// Notes
	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, id string) (*Note, error)
	ListNotes(ctx context.Context, params NoteListParams) ([]*Note, int, error)
	UpdateNote(ctx context.Context, id string, patch NotePatch) (*Note, error)
	DeleteNote(ctx context.Context, id string) (*Note, error)

	// TableColumns introspects the named table's columns. Used by the
	// tool registry's schema cache.
	TableColumns(ctx context.Context, table string) ([]Column, error)

	// Close releases any resources held by the store
	Close() error
}
