package core

import (
	"context"
	"fmt"

	"journeycore/pkg/domain"
)

// phaseTextFields maps editable row keys to the phase field they store.
// phaseHealth is derived and jobs/opportunities are first-class records, so
// none of them accept free text.
var phaseTextFields = map[string]func(*Phase) *string{
	domain.RowDescription:       func(p *Phase) *string { return &p.Description },
	domain.RowCustomerActions:   func(p *Phase) *string { return &p.CustomerActions },
	domain.RowCustomerStruggles: func(p *Phase) *string { return &p.CustomerStruggles },
	domain.RowInternalStruggles: func(p *Phase) *string { return &p.InternalStruggles },
	domain.RowSystems:           func(p *Phase) *string { return &p.Systems },
	domain.RowDepartments:       func(p *Phase) *string { return &p.Departments },
	domain.RowRelatedDocuments:  func(p *Phase) *string { return &p.RelatedDocuments },
}

// SetPhaseText writes one text cell of a phase. The commit is immediate in
// memory but the durable save is debounced, so bursts of keystrokes collapse
// into one write.
func (s *Service) SetPhaseText(ctx context.Context, phaseID, rowKey, value string) (Phase, Result, error) {
	field, ok := phaseTextFields[rowKey]
	if !ok {
		return Phase{}, Result{}, fmt.Errorf("row %s does not accept text", rowKey)
	}
	var updated Phase
	res, err := s.runDeferred(ctx, "set_phase_text", &phaseID, func(tx Transaction) error {
		var ok bool
		updated, ok = tx.UpdatePhase(phaseID, func(p *Phase) {
			*field(p) = value
		})
		if !ok {
			return ErrNotFound{Entity: EntityPhase, ID: phaseID}
		}
		return nil
	})
	if err == nil {
		s.scheduleFlush()
	}
	return updated, res, err
}

// SetCustomRowValue writes a phase's cell of a journey custom row, with the
// same debounced durability as SetPhaseText.
func (s *Service) SetCustomRowValue(ctx context.Context, phaseID, rowID, value string) (Phase, Result, error) {
	var updated Phase
	res, err := s.runDeferred(ctx, "set_custom_value", &phaseID, func(tx Transaction) error {
		view := tx.Snapshot()
		phase, ok := view.FindPhase(phaseID)
		if !ok {
			return ErrNotFound{Entity: EntityPhase, ID: phaseID}
		}
		journey, ok := view.FindJourney(phase.JourneyID)
		if !ok {
			return ErrNotFound{Entity: EntityJourney, ID: phase.JourneyID}
		}
		known := false
		for _, row := range journey.CustomRows {
			if row.ID == rowID {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("journey %s has no custom row %s", journey.ID, rowID)
		}
		updated, _ = tx.UpdatePhase(phaseID, func(p *Phase) {
			if p.CustomRowValues == nil {
				p.CustomRowValues = make(map[string]string, 1)
			}
			p.CustomRowValues[rowID] = value
		})
		return nil
	})
	if err == nil {
		s.scheduleFlush()
	}
	return updated, res, err
}
