package power

import (
	"context"
	"fmt"
	"log"
)

// ReconcileReport lists what a reconciliation pass found.
type ReconcileReport struct {
	Regranted  []string
	Unrecorded []string
}

// Reconcile re-requests grants for active administrators the gateway does
// not list as privileged, and reports privileged users with no governance
// record. It never revokes: those users may hold privilege from elsewhere.
func (e *Executor) Reconcile(ctx context.Context, guildID string) (ReconcileReport, error) {
	var report ReconcileReport
	if e.gateway == nil {
		return report, nil
	}

	admins, err := e.ActiveAdministrators(ctx, guildID)
	if err != nil {
		return report, fmt.Errorf("reconcile guild %s: %w", guildID, err)
	}
	privileged, err := e.gateway.ListAdmins(ctx, guildID)
	if err != nil {
		return report, fmt.Errorf("reconcile guild %s: list admins: %w", guildID, err)
	}

	have := make(map[string]struct{}, len(privileged))
	for _, id := range privileged {
		have[id] = struct{}{}
	}
	recorded := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		recorded[a.UserID] = struct{}{}
		if _, ok := have[a.UserID]; ok {
			continue
		}
		e.requestGrant(ctx, guildID, a.UserID)
		report.Regranted = append(report.Regranted, a.UserID)
	}
	for _, id := range privileged {
		if _, ok := recorded[id]; !ok {
			report.Unrecorded = append(report.Unrecorded, id)
		}
	}

	if len(report.Regranted) > 0 || len(report.Unrecorded) > 0 {
		log.Printf("power: reconcile guild %s: regranted %v, privileged without record %v",
			guildID, report.Regranted, report.Unrecorded)
	}
	return report, nil
}
