// ABOUTME: Opportunity tool handlers: list, create, get, update, delete
// ABOUTME: Rendered text leads with the record's identifying fields

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pursuitworks/pursuit-gateway/internal/store"
)

type opportunityHandlers struct {
	store store.Store
}

// opportunityFields are the writable fields shared by create and update.
type opportunityFields struct {
	Name                           *string  `json:"opportunity_name"`
	Agency                         *string  `json:"agency"`
	Vehicle                        *string  `json:"vehicle"`
	SubVehicle                     *string  `json:"sub_vehicle"`
	Type                           *string  `json:"type"`
	Priority                       *string  `json:"priority"`
	RFIDue                         *string  `json:"rfi_due"`
	RFISubmitted                   *bool    `json:"rfi_submitted"`
	Status                         *string  `json:"status"`
	AnticipatedSolicitationRelease *string  `json:"anticipated_solicitation_release"`
	AnticipatedAward               *string  `json:"anticipated_award"`
	ActualSolicitationRelease      *string  `json:"actual_solicitation_release"`
	SubmissionDue                  *string  `json:"submission_due"`
	AwardDate                      *string  `json:"award_date"`
	StartDate                      *string  `json:"start_date"`
	BiddingEntity                  *string  `json:"bidding_entity"`
	PrimeSub                       *string  `json:"prime_sub"`
	NewRecompete                   *string  `json:"new_recompete"`
	Outcome                        *string  `json:"outcome"`
	Awardee                        *string  `json:"awardee"`
	PeriodOfPerformance            *string  `json:"period_of_performance"`
	EstValue                       *float64 `json:"est_value"`
	EstFTE                         *float64 `json:"est_fte"`
	Notes                          *string  `json:"notes"`
	AIResearch                     *string  `json:"ai_research"`
	PartnerID                      *string  `json:"partner_id"`
	ProjectDeliverables            *string  `json:"project_deliverables"`
	LCATs                          *string  `json:"lcats"`
	SolicitationNumber             *string  `json:"solicitation_number"`
	Probability                    *int     `json:"probability"`
}

func (f *opportunityFields) validate() error {
	if err := checkEnumPtr("type", f.Type, validType); err != nil {
		return err
	}
	if err := checkEnumPtr("priority", f.Priority, validPriority); err != nil {
		return err
	}
	if err := checkEnumPtr("status", f.Status, validStatus); err != nil {
		return err
	}
	if err := checkEnumPtr("prime_sub", f.PrimeSub, validPrimeSub); err != nil {
		return err
	}
	if err := checkEnumPtr("new_recompete", f.NewRecompete, validNewRecompete); err != nil {
		return err
	}
	return checkProbability(f.Probability)
}

func (f *opportunityFields) toPatch() store.OpportunityPatch {
	return store.OpportunityPatch{
		Name:                           f.Name,
		Agency:                         f.Agency,
		Vehicle:                        f.Vehicle,
		SubVehicle:                     f.SubVehicle,
		Type:                           f.Type,
		Priority:                       f.Priority,
		RFIDue:                         f.RFIDue,
		RFISubmitted:                   f.RFISubmitted,
		Status:                         f.Status,
		AnticipatedSolicitationRelease: f.AnticipatedSolicitationRelease,
		AnticipatedAward:               f.AnticipatedAward,
		ActualSolicitationRelease:      f.ActualSolicitationRelease,
		SubmissionDue:                  f.SubmissionDue,
		AwardDate:                      f.AwardDate,
		StartDate:                      f.StartDate,
		BiddingEntity:                  f.BiddingEntity,
		PrimeSub:                       f.PrimeSub,
		NewRecompete:                   f.NewRecompete,
		Outcome:                        f.Outcome,
		Awardee:                        f.Awardee,
		PeriodOfPerformance:            f.PeriodOfPerformance,
		EstValue:                       f.EstValue,
		EstFTE:                         f.EstFTE,
		Notes:                          f.Notes,
		AIResearch:                     f.AIResearch,
		PartnerID:                      f.PartnerID,
		ProjectDeliverables:            f.ProjectDeliverables,
		LCATs:                          f.LCATs,
		SolicitationNumber:             f.SolicitationNumber,
		Probability:                    f.Probability,
	}
}

type listOpportunitiesInput struct {
	Status   *string `json:"status"`
	Priority *string `json:"priority"`
	Agency   *string `json:"agency"`
	Limit    *int    `json:"limit"`
	Offset   *int    `json:"offset"`
}

func (o *opportunityHandlers) List(ctx context.Context, input json.RawMessage) (string, error) {
	var in listOpportunitiesInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkEnumPtr("status", in.Status, validStatus); err != nil {
		return "", err
	}
	if err := checkEnumPtr("priority", in.Priority, validPriority); err != nil {
		return "", err
	}
	limit, offset, err := page(in.Limit, in.Offset)
	if err != nil {
		return "", err
	}

	filter := store.OpportunityFilter{Limit: limit, Offset: offset}
	if in.Status != nil {
		filter.Status = *in.Status
	}
	if in.Priority != nil {
		filter.Priority = *in.Priority
	}
	if in.Agency != nil {
		filter.Agency = *in.Agency
	}

	opps, err := o.store.ListOpportunities(ctx, filter)
	if err != nil {
		return "", err
	}

	lines := make([]string, len(opps))
	for i, opp := range opps {
		lines[i] = fmt.Sprintf("• [%s] %s (%s) - Status: %s - Priority: %s",
			opp.ID, opp.Name, opp.Agency,
			orDefault(opp.Status, "Not Started"),
			orDefault(opp.Priority, "Not Set"))
	}
	return fmt.Sprintf("Found %d opportunities:\n\n%s\n\nShowing %d results (offset: %d, limit: %d)",
		len(opps), strings.Join(lines, "\n"), len(opps), offset, limit), nil
}

type createOpportunityInput struct {
	opportunityFields
}

func (o *opportunityHandlers) Create(ctx context.Context, input json.RawMessage) (string, error) {
	var in createOpportunityInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if in.Name == nil || *in.Name == "" {
		return "", errors.New("opportunity_name is required")
	}
	if in.Agency == nil || *in.Agency == "" {
		return "", errors.New("agency is required")
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	opp := &store.Opportunity{
		ID:     uuid.New().String(),
		Name:   *in.Name,
		Agency: *in.Agency,
	}
	applyFields(opp, &in.opportunityFields)

	if err := o.store.CreateOpportunity(ctx, opp); err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully created opportunity: %s\n\nOpportunity Details:\n• ID: %s\n• Name: %s\n• Agency: %s\n• Status: %s\n• Created: %s",
		opp.Name, opp.ID, opp.Name, opp.Agency,
		orDefault(opp.Status, "Not Started"),
		opp.CreatedAt.Format(time.RFC3339)), nil
}

func applyFields(opp *store.Opportunity, f *opportunityFields) {
	opp.Vehicle = f.Vehicle
	opp.SubVehicle = f.SubVehicle
	opp.Type = f.Type
	opp.Priority = f.Priority
	opp.RFIDue = f.RFIDue
	opp.RFISubmitted = f.RFISubmitted
	opp.Status = f.Status
	opp.AnticipatedSolicitationRelease = f.AnticipatedSolicitationRelease
	opp.AnticipatedAward = f.AnticipatedAward
	opp.ActualSolicitationRelease = f.ActualSolicitationRelease
	opp.SubmissionDue = f.SubmissionDue
	opp.AwardDate = f.AwardDate
	opp.StartDate = f.StartDate
	opp.BiddingEntity = f.BiddingEntity
	opp.PrimeSub = f.PrimeSub
	opp.NewRecompete = f.NewRecompete
	opp.Outcome = f.Outcome
	opp.Awardee = f.Awardee
	opp.PeriodOfPerformance = f.PeriodOfPerformance
	opp.EstValue = f.EstValue
	opp.EstFTE = f.EstFTE
	opp.Notes = f.Notes
	opp.AIResearch = f.AIResearch
	opp.PartnerID = f.PartnerID
	opp.ProjectDeliverables = f.ProjectDeliverables
	opp.LCATs = f.LCATs
	opp.SolicitationNumber = f.SolicitationNumber
	opp.Probability = f.Probability
}

type idInput struct {
	ID string `json:"id"`
}

func (o *opportunityHandlers) Get(ctx context.Context, input json.RawMessage) (string, error) {
	var in idInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}

	opp, err := o.store.GetOpportunity(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Opportunity not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}
	return renderOpportunityDetails(opp), nil
}

type updateOpportunityInput struct {
	ID string `json:"id"`
	opportunityFields
}

func (o *opportunityHandlers) Update(ctx context.Context, input json.RawMessage) (string, error) {
	var in updateOpportunityInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	opp, err := o.store.UpdateOpportunity(ctx, in.ID, in.toPatch())
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Opportunity not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully updated opportunity: %s\n\nUpdated Opportunity Details:\n• ID: %s\n• Name: %s\n• Agency: %s\n• Status: %s\n• Updated: %s",
		opp.Name, opp.ID, opp.Name, opp.Agency,
		orDefault(opp.Status, "Not Started"),
		opp.UpdatedAt.Format(time.RFC3339)), nil
}

func (o *opportunityHandlers) Delete(ctx context.Context, input json.RawMessage) (string, error) {
	var in idInput
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if err := checkUUID("id", in.ID); err != nil {
		return "", err
	}

	opp, err := o.store.DeleteOpportunity(ctx, in.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("Opportunity not found with id: %s", in.ID)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully deleted opportunity: %s\n\nDeleted Opportunity:\n• ID: %s\n• Name: %s\n• Agency: %s",
		opp.Name, opp.ID, opp.Name, opp.Agency), nil
}

// Rendering helpers

func orDefault(p *string, fallback string) string {
	if p == nil || *p == "" {
		return fallback
	}
	return *p
}

func yesNo(p *bool) string {
	if p != nil && *p {
		return "Yes"
	}
	return "No"
}

func formatMoney(p *float64) string {
	if p == nil {
		return "Not specified"
	}
	whole := strconv.FormatFloat(*p, 'f', 0, 64)
	neg := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")
	var b strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	out := "$" + b.String()
	if neg {
		out = "-" + out
	}
	return out
}

func formatFloat(p *float64) string {
	if p == nil {
		return "Not specified"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func formatProbability(p *int) string {
	if p == nil {
		return "Not specified"
	}
	return strconv.Itoa(*p) + "%"
}

func renderOpportunityDetails(opp *store.Opportunity) string {
	var b strings.Builder
	b.WriteString("Opportunity Details:\n")
	fmt.Fprintf(&b, "• ID: %s\n", opp.ID)
	fmt.Fprintf(&b, "• Name: %s\n", opp.Name)
	fmt.Fprintf(&b, "• Agency: %s\n", opp.Agency)
	fmt.Fprintf(&b, "• Vehicle: %s\n", orDefault(opp.Vehicle, "Not specified"))
	fmt.Fprintf(&b, "• Sub-vehicle: %s\n", orDefault(opp.SubVehicle, "Not specified"))
	fmt.Fprintf(&b, "• Type: %s\n", orDefault(opp.Type, "Not specified"))
	fmt.Fprintf(&b, "• Priority: %s\n", orDefault(opp.Priority, "Not specified"))
	fmt.Fprintf(&b, "• Status: %s\n", orDefault(opp.Status, "Not Started"))
	fmt.Fprintf(&b, "• Probability: %s\n", formatProbability(opp.Probability))
	fmt.Fprintf(&b, "• Solicitation Number: %s\n", orDefault(opp.SolicitationNumber, "Not specified"))
	fmt.Fprintf(&b, "• RFI Due: %s\n", orDefault(opp.RFIDue, "Not specified"))
	fmt.Fprintf(&b, "• RFI Submitted: %s\n", yesNo(opp.RFISubmitted))
	fmt.Fprintf(&b, "• Anticipated Solicitation Release: %s\n", orDefault(opp.AnticipatedSolicitationRelease, "Not specified"))
	fmt.Fprintf(&b, "• Anticipated Award: %s\n", orDefault(opp.AnticipatedAward, "Not specified"))
	fmt.Fprintf(&b, "• Actual Solicitation Release: %s\n", orDefault(opp.ActualSolicitationRelease, "Not specified"))
	fmt.Fprintf(&b, "• Submission Due: %s\n", orDefault(opp.SubmissionDue, "Not specified"))
	fmt.Fprintf(&b, "• Award Date: %s\n", orDefault(opp.AwardDate, "Not specified"))
	fmt.Fprintf(&b, "• Start Date: %s\n", orDefault(opp.StartDate, "Not specified"))
	fmt.Fprintf(&b, "• Bidding Entity: %s\n", orDefault(opp.BiddingEntity, "Not specified"))
	fmt.Fprintf(&b, "• Prime/Sub: %s\n", orDefault(opp.PrimeSub, "Not specified"))
	fmt.Fprintf(&b, "• New/Recompete: %s\n", orDefault(opp.NewRecompete, "Not specified"))
	fmt.Fprintf(&b, "• Outcome: %s\n", orDefault(opp.Outcome, "Not specified"))
	fmt.Fprintf(&b, "• Awardee: %s\n", orDefault(opp.Awardee, "Not specified"))
	fmt.Fprintf(&b, "• Period of Performance: %s\n", orDefault(opp.PeriodOfPerformance, "Not specified"))
	fmt.Fprintf(&b, "• Estimated Value: %s\n", formatMoney(opp.EstValue))
	fmt.Fprintf(&b, "• Estimated FTE: %s\n", formatFloat(opp.EstFTE))
	fmt.Fprintf(&b, "• LCATs: %s\n", orDefault(opp.LCATs, "Not specified"))
	fmt.Fprintf(&b, "• Project Deliverables: %s\n", orDefault(opp.ProjectDeliverables, "Not specified"))
	fmt.Fprintf(&b, "• Partner ID: %s\n", orDefault(opp.PartnerID, "Not specified"))
	fmt.Fprintf(&b, "• Notes: %s\n", orDefault(opp.Notes, "None"))
	fmt.Fprintf(&b, "• AI Research: %s\n", orDefault(opp.AIResearch, "None"))
	fmt.Fprintf(&b, "• Created: %s\n", opp.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "• Updated: %s", opp.UpdatedAt.Format(time.RFC3339))
	return b.String()
}
