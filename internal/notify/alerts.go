package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// Alert event names used by the filter.
const (
	EventPlanExecuted  = "plan_executed"
	EventPlanTriggered = "plan_triggered"
)

// TriggerAlerts turns plan trigger events into chat notifications.
type TriggerAlerts struct {
	n *Notifier
}

// NewTriggerAlerts wraps n as a domain.TriggerSink.
func NewTriggerAlerts(n *Notifier) *TriggerAlerts {
	return &TriggerAlerts{n: n}
}

// Emit implements domain.TriggerSink.
func (a *TriggerAlerts) Emit(ctx context.Context, evt domain.TriggerEvent) error {
	event, title := alertTitle(evt)
	return a.n.Notify(ctx, event, title, alertBody(evt))
}

func alertTitle(evt domain.TriggerEvent) (string, string) {
	label := "Take profit"
	if evt.Trigger == domain.TriggerStopLoss {
		label = "Stop loss"
	}
	if evt.Executed {
		return EventPlanExecuted, fmt.Sprintf("%s executed: %s", label, evt.Code)
	}
	return EventPlanTriggered, fmt.Sprintf("%s reached: %s", label, evt.Code)
}

func alertBody(evt domain.TriggerEvent) string {
	name := evt.Name
	if name == "" {
		name = evt.Code
	}
	action := "consider selling"
	if evt.Executed {
		action = "plan closed, record the sell"
	}
	return fmt.Sprintf("%s (%s) at %.2f, %s %d shares.\nplan %s, %s",
		name, evt.Code, evt.Price, action, evt.SuggestedQuantity,
		evt.PlanID, evt.At.Format("2006-01-02 15:04:05"))
}

var _ domain.TriggerSink = (*TriggerAlerts)(nil)
