// ABOUTME: Shared database/sql implementation of the Store interface
// ABOUTME: One code path serves both backends; a small dialect handles placeholder and introspection differences

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// dialect captures the differences between the two supported backends.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// rebind rewrites ? placeholders to $N for Postgres. Queries in this
// file never contain a literal question mark outside placeholders.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore implements Store over database/sql. Construct via
// NewSQLiteStore or NewPostgresStore.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

func newSQLStore(db *sql.DB, d dialect, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, dialect: d, logger: logger.With("component", "store")}
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// Null conversion helpers for optional columns.

func nullStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// Users

const userColumns = `id, external_id, email, full_name, access_enabled, permissions, linked_record_id, created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u        User
		external sql.NullString
		fullName sql.NullString
		linked   sql.NullString
		perms    string
		lastSeen sql.NullTime
	)
	err := row.Scan(&u.ID, &external, &u.Email, &fullName, &u.AccessEnabled, &perms, &linked, &u.CreatedAt, &u.UpdatedAt, &lastSeen)
	if err != nil {
		return nil, err
	}
	if external.Valid {
		u.ExternalID = external.String
	}
	if fullName.Valid {
		u.FullName = fullName.String
	}
	if linked.Valid {
		u.LinkedRecordID = linked.String
	}
	u.LastLoginAt = timePtr(lastSeen)
	if err := json.Unmarshal([]byte(perms), &u.Permissions); err != nil {
		return nil, fmt.Errorf("decoding permissions: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new access record. The caller supplies the id
// (or leaves it empty to have one generated by the caller layer).
func (s *SQLStore) CreateUser(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	perms, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	var external any
	if user.ExternalID != "" {
		external = user.ExternalID
	}
	var linked any
	if user.LinkedRecordID != "" {
		linked = user.LinkedRecordID
	}

	_, err = s.exec(ctx, `
		INSERT INTO users (id, external_id, email, full_name, access_enabled, permissions, linked_record_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, external, user.Email, user.FullName, user.AccessEnabled, string(perms), linked, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// isUniqueViolation detects a unique-constraint failure from either backend.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres 23505
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) GetUserByExternalID(ctx context.Context, externalID string, enabledOnly bool) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE external_id = ?`
	if enabledOnly {
		q += ` AND access_enabled = ?`
		row := s.queryRow(ctx, q, externalID, true)
		return userOrNotFound(row)
	}
	row := s.queryRow(ctx, q, externalID)
	return userOrNotFound(row)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string, enabledOnly bool) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	if enabledOnly {
		q += ` AND access_enabled = ?`
		row := s.queryRow(ctx, q, email, true)
		return userOrNotFound(row)
	}
	row := s.queryRow(ctx, q, email)
	return userOrNotFound(row)
}

func userOrNotFound(row *sql.Row) (*User, error) {
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// LinkExternalID back-fills the upstream subject id onto an existing
// record, completing identity linking after an email-match login.
func (s *SQLStore) LinkExternalID(ctx context.Context, userID, externalID string) error {
	res, err := s.exec(ctx, `UPDATE users SET external_id = ?, updated_at = ? WHERE id = ?`,
		externalID, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("linking external id: %w", err)
	}
	return requireRow(res)
}

func (s *SQLStore) TouchLastLogin(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	res, err := s.exec(ctx, `UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		now, now, userID)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return requireRow(res)
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLStore) SetUserAccess(ctx context.Context, userID string, enabled bool) error {
	res, err := s.exec(ctx, `UPDATE users SET access_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("setting user access: %w", err)
	}
	return requireRow(res)
}

func (s *SQLStore) SetUserPermissions(ctx context.Context, userID string, perms Permissions) error {
	encoded, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}
	res, err := s.exec(ctx, `UPDATE users SET permissions = ?, updated_at = ? WHERE id = ?`,
		string(encoded), time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("setting user permissions: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// OAuth clients

func (s *SQLStore) CreateClient(ctx context.Context, client *Client) error {
	client.CreatedAt = time.Now().UTC()

	uris, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect uris: %w", err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO oauth_clients (id, name, redirect_uris, logo_uri, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		client.ID, client.Name, string(uris), client.LogoURI, client.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

func (s *SQLStore) GetClient(ctx context.Context, id string) (*Client, error) {
	var (
		c    Client
		uris string
		logo sql.NullString
	)
	err := s.queryRow(ctx, `SELECT id, name, redirect_uris, logo_uri, created_at FROM oauth_clients WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &uris, &logo, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting client: %w", err)
	}
	if logo.Valid {
		c.LogoURI = logo.String
	}
	if err := json.Unmarshal([]byte(uris), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect uris: %w", err)
	}
	return &c, nil
}

// Opportunities

const opportunityColumns = `id, opportunity_name, agency, vehicle, sub_vehicle, type, priority,
	rfi_due, rfi_submitted, status, anticipated_solicitation_release, anticipated_award,
	actual_solicitation_release, submission_due, award_date, start_date, bidding_entity,
	prime_sub, new_recompete, outcome, awardee, period_of_performance, est_value, est_fte,
	notes, ai_research, partner_id, project_deliverables, lcats, solicitation_number,
	probability, created_at, updated_at`

func scanOpportunity(row rowScanner) (*Opportunity, error) {
	var (
		o            Opportunity
		vehicle      sql.NullString
		subVehicle   sql.NullString
		typ          sql.NullString
		priority     sql.NullString
		rfiDue       sql.NullString
		rfiSubmitted sql.NullBool
		status       sql.NullString
		anticSol     sql.NullString
		anticAward   sql.NullString
		actualSol    sql.NullString
		submission   sql.NullString
		awardDate    sql.NullString
		startDate    sql.NullString
		bidding      sql.NullString
		primeSub     sql.NullString
		newRecompete sql.NullString
		outcome      sql.NullString
		awardee      sql.NullString
		pop          sql.NullString
		estValue     sql.NullFloat64
		estFTE       sql.NullFloat64
		notes        sql.NullString
		aiResearch   sql.NullString
		partnerID    sql.NullString
		deliverables sql.NullString
		lcats        sql.NullString
		solNumber    sql.NullString
		probability  sql.NullInt64
	)

	err := row.Scan(&o.ID, &o.Name, &o.Agency, &vehicle, &subVehicle, &typ, &priority,
		&rfiDue, &rfiSubmitted, &status, &anticSol, &anticAward,
		&actualSol, &submission, &awardDate, &startDate, &bidding,
		&primeSub, &newRecompete, &outcome, &awardee, &pop, &estValue, &estFTE,
		&notes, &aiResearch, &partnerID, &deliverables, &lcats, &solNumber,
		&probability, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Vehicle = strPtr(vehicle)
	o.SubVehicle = strPtr(subVehicle)
	o.Type = strPtr(typ)
	o.Priority = strPtr(priority)
	o.RFIDue = strPtr(rfiDue)
	o.RFISubmitted = boolPtr(rfiSubmitted)
	o.Status = strPtr(status)
	o.AnticipatedSolicitationRelease = strPtr(anticSol)
	o.AnticipatedAward = strPtr(anticAward)
	o.ActualSolicitationRelease = strPtr(actualSol)
	o.SubmissionDue = strPtr(submission)
	o.AwardDate = strPtr(awardDate)
	o.StartDate = strPtr(startDate)
	o.BiddingEntity = strPtr(bidding)
	o.PrimeSub = strPtr(primeSub)
	o.NewRecompete = strPtr(newRecompete)
	o.Outcome = strPtr(outcome)
	o.Awardee = strPtr(awardee)
	o.PeriodOfPerformance = strPtr(pop)
	o.EstValue = floatPtr(estValue)
	o.EstFTE = floatPtr(estFTE)
	o.Notes = strPtr(notes)
	o.AIResearch = strPtr(aiResearch)
	o.PartnerID = strPtr(partnerID)
	o.ProjectDeliverables = strPtr(deliverables)
	o.LCATs = strPtr(lcats)
	o.SolicitationNumber = strPtr(solNumber)
	o.Probability = intPtr(probability)

	return &o, nil
}

func (s *SQLStore) CreateOpportunity(ctx context.Context, opp *Opportunity) error {
	now := time.Now().UTC()
	opp.CreatedAt = now
	opp.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO opportunities (`+opportunityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opp.ID, opp.Name, opp.Agency, nullStr(opp.Vehicle), nullStr(opp.SubVehicle),
		nullStr(opp.Type), nullStr(opp.Priority), nullStr(opp.RFIDue), nullBool(opp.RFISubmitted),
		nullStr(opp.Status), nullStr(opp.AnticipatedSolicitationRelease), nullStr(opp.AnticipatedAward),
		nullStr(opp.ActualSolicitationRelease), nullStr(opp.SubmissionDue), nullStr(opp.AwardDate),
		nullStr(opp.StartDate), nullStr(opp.BiddingEntity), nullStr(opp.PrimeSub),
		nullStr(opp.NewRecompete), nullStr(opp.Outcome), nullStr(opp.Awardee),
		nullStr(opp.PeriodOfPerformance), nullFloat(opp.EstValue), nullFloat(opp.EstFTE),
		nullStr(opp.Notes), nullStr(opp.AIResearch), nullStr(opp.PartnerID),
		nullStr(opp.ProjectDeliverables), nullStr(opp.LCATs), nullStr(opp.SolicitationNumber),
		nullInt(opp.Probability), now, now)
	if err != nil {
		return fmt.Errorf("inserting opportunity: %w", err)
	}
	return nil
}

func (s *SQLStore) GetOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	row := s.queryRow(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id = ?`, id)
	o, err := scanOpportunity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting opportunity: %w", err)
	}
	return o, nil
}

func (s *SQLStore) ListOpportunities(ctx context.Context, filter OpportunityFilter) ([]*Opportunity, error) {
	q := `SELECT ` + opportunityColumns + ` FROM opportunities`
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, `status = ?`)
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		conds = append(conds, `priority = ?`)
		args = append(args, filter.Priority)
	}
	if filter.Agency != "" {
		conds = append(conds, `LOWER(agency) LIKE ?`)
		args = append(args, "%"+strings.ToLower(filter.Agency)+"%")
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	q += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing opportunities: %w", err)
	}
	defer rows.Close()

	var opps []*Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	return opps, rows.Err()
}

// patchColumn appends a SET clause and argument when the pointer is non-nil.
type setBuilder struct {
	sets []string
	args []any
}

func (b *setBuilder) add(column string, value any) {
	b.sets = append(b.sets, column+" = ?")
	b.args = append(b.args, value)
}

func (b *setBuilder) addStr(column string, p *string) {
	if p != nil {
		b.add(column, *p)
	}
}

func (b *setBuilder) addBool(column string, p *bool) {
	if p != nil {
		b.add(column, *p)
	}
}

func (b *setBuilder) addFloat(column string, p *float64) {
	if p != nil {
		b.add(column, *p)
	}
}

func (b *setBuilder) addInt(column string, p *int) {
	if p != nil {
		b.add(column, int64(*p))
	}
}

func (s *SQLStore) UpdateOpportunity(ctx context.Context, id string, patch OpportunityPatch) (*Opportunity, error) {
	b := &setBuilder{}
	b.add("updated_at", time.Now().UTC())
	b.addStr("opportunity_name", patch.Name)
	b.addStr("agency", patch.Agency)
	b.addStr("vehicle", patch.Vehicle)
	b.addStr("sub_vehicle", patch.SubVehicle)
	b.addStr("type", patch.Type)
	b.addStr("priority", patch.Priority)
	b.addStr("rfi_due", patch.RFIDue)
	b.addBool("rfi_submitted", patch.RFISubmitted)
	b.addStr("status", patch.Status)
	b.addStr("anticipated_solicitation_release", patch.AnticipatedSolicitationRelease)
	b.addStr("anticipated_award", patch.AnticipatedAward)
	b.addStr("actual_solicitation_release", patch.ActualSolicitationRelease)
	b.addStr("submission_due", patch.SubmissionDue)
	b.addStr("award_date", patch.AwardDate)
	b.addStr("start_date", patch.StartDate)
	b.addStr("bidding_entity", patch.BiddingEntity)
	b.addStr("prime_sub", patch.PrimeSub)
	b.addStr("new_recompete", patch.NewRecompete)
	b.addStr("outcome", patch.Outcome)
	b.addStr("awardee", patch.Awardee)
	b.addStr("period_of_performance", patch.PeriodOfPerformance)
	b.addFloat("est_value", patch.EstValue)
	b.addFloat("est_fte", patch.EstFTE)
	b.addStr("notes", patch.Notes)
	b.addStr("ai_research", patch.AIResearch)
	b.addStr("partner_id", patch.PartnerID)
	b.addStr("project_deliverables", patch.ProjectDeliverables)
	b.addStr("lcats", patch.LCATs)
	b.addStr("solicitation_number", patch.SolicitationNumber)
	b.addInt("probability", patch.Probability)

	q := `UPDATE opportunities SET ` + strings.Join(b.sets, ", ") + ` WHERE id = ? RETURNING ` + opportunityColumns
	args := append(b.args, id)

	row := s.queryRow(ctx, q, args...)
	o, err := scanOpportunity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating opportunity: %w", err)
	}
	return o, nil
}

func (s *SQLStore) DeleteOpportunity(ctx context.Context, id string) (*Opportunity, error) {
	row := s.queryRow(ctx, `DELETE FROM opportunities WHERE id = ? RETURNING `+opportunityColumns, id)
	o, err := scanOpportunity(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deleting opportunity: %w", err)
	}
	return o, nil
}

// Notes

const noteColumns = `id, opportunity_id, text, date, attachments, created_at, updated_at`

func scanNote(row rowScanner, withParent bool) (*Note, error) {
	var (
		n           Note
		attachments sql.NullString
		parentName  sql.NullString
	)
	dest := []any{&n.ID, &n.OpportunityID, &n.Text, &n.Date, &attachments, &n.CreatedAt, &n.UpdatedAt}
	if withParent {
		dest = append(dest, &parentName)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if attachments.Valid && attachments.String != "" {
		if err := json.Unmarshal([]byte(attachments.String), &n.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments: %w", err)
		}
	}
	if parentName.Valid {
		n.OpportunityName = parentName.String
	}
	return &n, nil
}

func encodeAttachments(attachments []string) (any, error) {
	if attachments == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return nil, fmt.Errorf("encoding attachments: %w", err)
	}
	return string(encoded), nil
}

func (s *SQLStore) CreateNote(ctx context.Context, note *Note) error {
	now := time.Now().UTC()
	note.CreatedAt = now
	note.UpdatedAt = now
	if note.Date.IsZero() {
		note.Date = now
	}

	attachments, err := encodeAttachments(note.Attachments)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `
		INSERT INTO opportunity_notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.ID, note.OpportunityID, note.Text, note.Date, attachments, now, now)
	if err != nil {
		return fmt.Errorf("inserting note: %w", err)
	}
	return nil
}

const noteJoinQuery = `
	SELECT n.id, n.opportunity_id, n.text, n.date, n.attachments, n.created_at, n.updated_at, o.opportunity_name
	FROM opportunity_notes n
	JOIN opportunities o ON o.id = n.opportunity_id`

func (s *SQLStore) GetNote(ctx context.Context, id string) (*Note, error) {
	row := s.queryRow(ctx, noteJoinQuery+` WHERE n.id = ?`, id)
	n, err := scanNote(row, true)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting note: %w", err)
	}
	return n, nil
}

func (s *SQLStore) ListNotes(ctx context.Context, params NoteListParams) ([]*Note, int, error) {
	orderBy := params.OrderBy
	switch orderBy {
	case NoteOrderDate, NoteOrderCreatedAt, NoteOrderUpdatedAt:
	default:
		orderBy = NoteOrderDate
	}
	direction := "ASC"
	if params.Descending {
		direction = "DESC"
	}

	var total int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM opportunity_notes WHERE opportunity_id = ?`, params.OpportunityID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting notes: %w", err)
	}

	q := `SELECT ` + noteColumns + ` FROM opportunity_notes WHERE opportunity_id = ?` +
		` ORDER BY ` + orderBy + ` ` + direction + ` LIMIT ? OFFSET ?`
	rows, err := s.query(ctx, q, params.OpportunityID, params.Limit, params.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n, err := scanNote(rows, false)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, total, rows.Err()
}

func (s *SQLStore) UpdateNote(ctx context.Context, id string, patch NotePatch) (*Note, error) {
	// Join-fetch first to re-verify parent linkage and capture the
	// parent's name for display.
	existing, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}

	b := &setBuilder{}
	b.add("updated_at", time.Now().UTC())
	b.addStr("text", patch.Text)
	if patch.Date != nil {
		b.add("date", patch.Date.UTC())
	}
	if patch.Attachments != nil {
		attachments, err := encodeAttachments(*patch.Attachments)
		if err != nil {
			return nil, err
		}
		b.add("attachments", attachments)
	}

	q := `UPDATE opportunity_notes SET ` + strings.Join(b.sets, ", ") + ` WHERE id = ? RETURNING ` + noteColumns
	args := append(b.args, id)

	row := s.queryRow(ctx, q, args...)
	n, err := scanNote(row, false)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating note: %w", err)
	}
	n.OpportunityName = existing.OpportunityName
	return n, nil
}

func (s *SQLStore) DeleteNote(ctx context.Context, id string) (*Note, error) {
	// Fetch-then-delete: the snapshot (with parent name) is returned
	// for display after the row is gone.
	existing, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.exec(ctx, `DELETE FROM opportunity_notes WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("deleting note: %w", err)
	}
	return existing, nil
}

// Introspection

// introspectableTables guards TableColumns against arbitrary table names.
var introspectableTables = map[string]bool{
	"users":             true,
	"opportunities":     true,
	"opportunity_notes": true,
	"oauth_clients":     true,
}

// TableColumns reports the named table's column metadata using the
// backend's own catalog (PRAGMA table_info for SQLite,
// information_schema for Postgres).
func (s *SQLStore) TableColumns(ctx context.Context, table string) ([]Column, error) {
	if !introspectableTables[table] {
		return nil, fmt.Errorf("unknown table: %s", table)
	}

	switch s.dialect {
	case dialectPostgres:
		return s.tableColumnsPostgres(ctx, table)
	default:
		return s.tableColumnsSQLite(ctx, table)
	}
}

func (s *SQLStore) tableColumnsSQLite(ctx context.Context, table string) ([]Column, error) {
	// Table name is allowlisted above; PRAGMA does not take placeholders.
	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(`+table+`)`)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		col := Column{Name: name, DataType: strings.ToLower(typ), Nullable: notNull == 0}
		if dflt.Valid {
			col.Default = dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (s *SQLStore) tableColumnsPostgres(ctx context.Context, table string) ([]Column, error) {
	rows, err := s.query(ctx, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = 'public'
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			name     string
			typ      string
			nullable string
			dflt     sql.NullString
		)
		if err := rows.Scan(&name, &typ, &nullable, &dflt); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		col := Column{Name: name, DataType: typ, Nullable: nullable == "YES"}
		if dflt.Valid {
			col.Default = dflt.String
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}
