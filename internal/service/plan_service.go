package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// PlanService owns the take-profit / stop-loss plan lifecycle and evaluates
// ACTIVE plans against price snapshots.
type PlanService struct {
	positions domain.PositionStore
	plans     domain.PlanStore
	bus       domain.SignalBus
	audit     domain.AuditStore
	sink      domain.TriggerSink
	logger    *slog.Logger
	now       func() time.Time
}

// NewPlanService creates a PlanService. sink may be nil, in which case
// trigger events are only returned and published on the bus.
func NewPlanService(
	positions domain.PositionStore,
	plans domain.PlanStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	sink domain.TriggerSink,
	logger *slog.Logger,
) *PlanService {
	return &PlanService{
		positions: positions,
		plans:     plans,
		bus:       bus,
		audit:     audit,
		sink:      sink,
		logger:    logger.With(slog.String("component", "plan_service")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePricePlan attaches an absolute-price plan to a held position.
func (s *PlanService) CreatePricePlan(ctx context.Context, positionID string, takeProfit, stopLoss *float64, autoExecute bool) (domain.Plan, error) {
	plan, err := domain.NewPricePlan(uuid.NewString(), positionID, takeProfit, stopLoss, autoExecute, s.now())
	if err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: create price plan: %w", err)
	}
	return s.attach(ctx, plan)
}

// CreatePercentagePlan attaches a ratio plan (0.10 = 10%) to a held position.
func (s *PlanService) CreatePercentagePlan(ctx context.Context, positionID string, takeProfitRatio, stopLossRatio *float64, autoExecute bool) (domain.Plan, error) {
	plan, err := domain.NewPercentagePlan(uuid.NewString(), positionID, takeProfitRatio, stopLossRatio, autoExecute, s.now())
	if err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: create percentage plan: %w", err)
	}
	return s.attach(ctx, plan)
}

func (s *PlanService) attach(ctx context.Context, plan domain.Plan) (domain.Plan, error) {
	pos, err := s.holdingPosition(ctx, plan.PositionID)
	if err != nil {
		return domain.Plan{}, err
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: store plan: %w", err)
	}
	pos.AddPlan(plan.ID)
	pos.UpdatedAt = s.now()
	if err := s.positions.Update(ctx, pos); err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: link plan to position %q: %w", pos.ID, err)
	}

	s.changed(ctx, "plan_created", plan, pos.Code)
	return plan, nil
}

// Get returns a plan by id.
func (s *PlanService) Get(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Plan{}, fmt.Errorf("plan_service: get %q: %w", id, domain.ErrPlanNotFound)
		}
		return domain.Plan{}, fmt.Errorf("plan_service: get %q: %w", id, err)
	}
	return plan, nil
}

// List returns plans ordered by creation time. A non-empty positionID
// restricts the result to that position.
func (s *PlanService) List(ctx context.Context, positionID string) ([]domain.Plan, error) {
	all, err := s.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan_service: list: %w", err)
	}
	out := make([]domain.Plan, 0, len(all))
	for _, p := range all {
		if positionID == "" || p.PositionID == positionID {
			out = append(out, p)
		}
	}
	sortPlans(out)
	return out, nil
}

// Execute manually moves an ACTIVE plan to EXECUTED.
func (s *PlanService) Execute(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}
	if !plan.IsActive() {
		return domain.Plan{}, fmt.Errorf("plan_service: execute %q: status %s: %w", id, plan.Status, domain.ErrPlanNotActive)
	}

	plan.Execute(s.now())
	if err := s.plans.Update(ctx, plan); err != nil {
		return domain.Plan{}, fmt.Errorf("plan_service: update plan %q: %w", id, err)
	}
	s.changed(ctx, "plan_executed", plan, "")
	return plan, nil
}

// Cancel moves an ACTIVE plan to CANCELLED, unlinks it from its position
// and removes it from the plan store. The cancelled plan is returned.
func (s *PlanService) Cancel(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return domain.Plan{}, err
	}
	if !plan.IsActive() {
		return domain.Plan{}, fmt.Errorf("plan_service: cancel %q: status %s: %w", id, plan.Status, domain.ErrPlanNotActive)
	}

	plan.Cancel(s.now())

	code := ""
	pos, err := s.positions.GetByID(ctx, plan.PositionID)
	switch {
	case err == nil:
		code = pos.Code
		if pos.RemovePlan(plan.ID) {
			pos.UpdatedAt = s.now()
			if err := s.positions.Update(ctx, pos); err != nil {
				return domain.Plan{}, fmt.Errorf("plan_service: unlink plan from position %q: %w", pos.ID, err)
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		// Orphaned plan; nothing to unlink.
	default:
		return domain.Plan{}, fmt.Errorf("plan_service: get position %q: %w", plan.PositionID, err)
	}

	if err := s.plans.Delete(ctx, plan.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Plan{}, fmt.Errorf("plan_service: delete plan %q: %w", plan.ID, err)
	}

	s.changed(ctx, "plan_cancelled", plan, code)
	return plan, nil
}

// EvaluateAll checks every ACTIVE plan whose position is HOLDING against
// the snapshot. Codes missing from prices are skipped for this round.
// Auto-execute plans are moved to EXECUTED and persisted; others produce an
// advisory event and stay ACTIVE. Every event is emitted to the sink and
// also returned, in plan creation order.
func (s *PlanService) EvaluateAll(ctx context.Context, prices map[string]float64) ([]domain.TriggerEvent, error) {
	plans, err := s.plans.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan_service: list plans: %w", err)
	}
	positions, err := s.positions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("plan_service: list positions: %w", err)
	}
	byID := make(map[string]domain.Position, len(positions))
	for _, p := range positions {
		byID[p.ID] = p
	}

	sortPlans(plans)

	var events []domain.TriggerEvent
	for _, plan := range plans {
		if !plan.IsActive() {
			continue
		}
		pos, ok := byID[plan.PositionID]
		if !ok || !pos.IsHolding() {
			continue
		}
		price, ok := prices[pos.Code]
		if !ok {
			continue
		}

		triggered, kind := plan.CheckTrigger(price, pos.CostPrice)
		if !triggered {
			continue
		}

		now := s.now()
		evt := domain.TriggerEvent{
			PlanID:            plan.ID,
			PositionID:        pos.ID,
			Code:              pos.Code,
			Name:              pos.Name,
			Trigger:           kind,
			Price:             price,
			SuggestedQuantity: pos.Quantity,
			At:                now,
		}

		if plan.AutoExecute {
			plan.Execute(now)
			if err := s.plans.Update(ctx, plan); err != nil {
				return events, fmt.Errorf("plan_service: persist executed plan %q: %w", plan.ID, err)
			}
			evt.Executed = true
		}

		s.emit(ctx, evt)
		events = append(events, evt)
	}

	if len(events) > 0 {
		s.logger.InfoContext(ctx, "plan_service: evaluation triggered plans",
			slog.Int("plans", len(plans)),
			slog.Int("events", len(events)),
		)
	}
	return events, nil
}

func (s *PlanService) holdingPosition(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Position{}, fmt.Errorf("plan_service: position %q: %w", id, domain.ErrPositionNotFound)
		}
		return domain.Position{}, fmt.Errorf("plan_service: get position %q: %w", id, err)
	}
	if !pos.IsHolding() {
		return domain.Position{}, fmt.Errorf("plan_service: position %q is %s: %w", id, pos.Status, domain.ErrPositionNotFound)
	}
	return pos, nil
}

func (s *PlanService) emit(ctx context.Context, evt domain.TriggerEvent) {
	name := "plan_triggered"
	if evt.Executed {
		name = "plan_executed"
	}

	if s.sink != nil {
		if err := s.sink.Emit(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "plan_service: trigger sink failed",
				slog.String("plan_id", evt.PlanID),
				slog.String("error", err.Error()),
			)
		}
	}

	payload, err := json.Marshal(evt)
	if err == nil {
		if err := s.bus.StreamAppend(ctx, domain.StreamTriggers, payload); err != nil {
			s.logger.WarnContext(ctx, "plan_service: stream append failed",
				slog.String("stream", domain.StreamTriggers),
				slog.String("error", err.Error()),
			)
		}
	}

	detail := map[string]any{
		"event":              name,
		"plan_id":            evt.PlanID,
		"position_id":        evt.PositionID,
		"code":               evt.Code,
		"trigger":            string(evt.Trigger),
		"price":              evt.Price,
		"suggested_quantity": evt.SuggestedQuantity,
		"executed":           evt.Executed,
	}
	publish(ctx, s.bus, s.logger, domain.ChannelTriggers, detail)
	auditLog(ctx, s.audit, s.logger, name, detail)

	s.logger.InfoContext(ctx, "plan_service: "+name,
		slog.String("plan_id", evt.PlanID),
		slog.String("code", evt.Code),
		slog.String("trigger", string(evt.Trigger)),
		slog.Float64("price", evt.Price),
	)
}

func (s *PlanService) changed(ctx context.Context, event string, plan domain.Plan, code string) {
	detail := map[string]any{
		"event":        event,
		"plan_id":      plan.ID,
		"position_id":  plan.PositionID,
		"kind":         string(plan.Kind),
		"status":       string(plan.Status),
		"auto_execute": plan.AutoExecute,
	}
	if code != "" {
		detail["code"] = code
	}
	publish(ctx, s.bus, s.logger, domain.ChannelPlans, detail)
	auditLog(ctx, s.audit, s.logger, event, detail)

	s.logger.InfoContext(ctx, "plan_service: "+event,
		slog.String("plan_id", plan.ID),
		slog.String("position_id", plan.PositionID),
	)
}

func sortPlans(plans []domain.Plan) {
	sort.SliceStable(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
}
