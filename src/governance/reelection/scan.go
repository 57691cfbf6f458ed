package reelection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stake-plus/guildgov/src/data"
	"github.com/stake-plus/guildgov/src/governance/records"
	"github.com/stake-plus/guildgov/src/shared/gov"
)

// Scan opens an automatic session for every administrator who has served
// longer than the minimum tenure since appointment or since their last
// session ended, and who faces no ongoing proceeding. It returns the number
// of sessions opened.
func (e *Engine) Scan(ctx context.Context, guildID string) (int, error) {
	admins, err := e.executor.ActiveAdministrators(ctx, guildID)
	if err != nil {
		return 0, err
	}
	now := e.opts.Now.Now()
	opened := 0
	var errs []error
	for _, a := range admins {
		since, err := e.tenureStart(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if now.Sub(since) <= e.opts.MinTenure {
			continue
		}
		if r, err := records.OngoingImpeachment(ctx, e.db, guildID, a.UserID); err != nil || r != nil {
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}

		reason := fmt.Sprintf("periodic review after %s in office", roundDays(now.Sub(since)))
		_, err = e.CreateSession(ctx, guildID, a.UserID, nil, true, reason)
		switch {
		case err == nil:
			opened++
		case errors.Is(err, gov.ErrProceedingOngoing), errors.Is(err, gov.ErrNotAdministrator):
		default:
			log.Printf("reelection: guild %s: auto session on %s: %v", guildID, a.UserID, err)
			errs = append(errs, err)
		}
	}
	return opened, errors.Join(errs...)
}

// tenureStart is the later of the appointment and the end of the latest
// session held on this seat.
func (e *Engine) tenureStart(ctx context.Context, a gov.Administrator) (time.Time, error) {
	var last gov.ReelectionSession
	err := e.db.WithContext(ctx).
		Where("guild_id = ? AND admin_user_id = ? AND ended_at IS NOT NULL AND started_at >= ?", a.GuildID, a.UserID, a.AppointedAt).
		Order("ended_at DESC").
		First(&last).Error
	if data.IsNotFound(err) {
		return a.AppointedAt, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if last.EndedAt.After(a.AppointedAt) {
		return *last.EndedAt, nil
	}
	return a.AppointedAt, nil
}

func roundDays(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
