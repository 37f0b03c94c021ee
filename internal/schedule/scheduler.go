// Package schedule drives the session lifecycle from the trading-day clock:
// connect before the morning session, disconnect after the evening close and
// refresh the cached access token during the mid-day lull.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scmhub/calendar"

	"github.com/stockplus/kisfeed/internal/config"
)

// krxMIC is the ISO 10383 code for the Korea Exchange.
const krxMIC = "xkrx"

// Session is the lifecycle surface the scheduler drives.
type Session interface {
	Connect()
	Disconnect()
}

// Credentials receives the daily token refresh. Refreshing replaces the
// cached bearer token and nothing else; the live session never notices.
type Credentials interface {
	RefreshAccessToken(ctx context.Context) error
}

// Scheduler fires open, close and token-refresh actions at configured
// wall-clock minutes on trading days.
type Scheduler struct {
	loc     *time.Location
	cal     *calendar.Calendar
	session Session
	creds   Credentials
	logger  *slog.Logger

	openMin    int
	closeMin   int
	refreshMin int

	lastFired string // "YYYY-MM-DD HH:MM" of the last fired minute
}

// New creates a scheduler from config. The KRX holiday calendar is used when
// available; otherwise weekdays count as trading days.
func New(cfg config.ScheduleConfig, session Session, creds Credentials, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	openMin, err := parseMinute(cfg.OpenTime)
	if err != nil {
		return nil, fmt.Errorf("parse open_time: %w", err)
	}
	closeMin, err := parseMinute(cfg.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("parse close_time: %w", err)
	}
	refreshMin, err := parseMinute(cfg.RefreshTime)
	if err != nil {
		return nil, fmt.Errorf("parse refresh_time: %w", err)
	}

	cal := calendar.GetCalendar(krxMIC)
	if cal == nil {
		logger.Warn("KRX calendar unavailable, falling back to weekday check")
	} else if cal.Loc != nil {
		loc = cal.Loc
	}

	return &Scheduler{
		loc:        loc,
		cal:        cal,
		session:    session,
		creds:      creds,
		logger:     logger,
		openMin:    openMin,
		closeMin:   closeMin,
		refreshMin: refreshMin,
	}, nil
}

// Run drives the clock until ctx is cancelled. Connecting at process start
// is the caller's trigger, not the scheduler's; the close minute tears an
// off-hours session down again.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tick(ctx, now)
		}
	}
}

// tick fires at most one action per wall-clock minute.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	now = now.In(s.loc)
	if !s.isTradingDay(now) {
		return
	}

	minute := now.Hour()*60 + now.Minute()
	stamp := now.Format("2006-01-02 15:04")
	if stamp == s.lastFired {
		return
	}

	switch minute {
	case s.openMin:
		s.lastFired = stamp
		s.logger.Info("market open, connecting session")
		s.session.Connect()
	case s.closeMin:
		s.lastFired = stamp
		s.logger.Info("market close, disconnecting session")
		s.session.Disconnect()
	case s.refreshMin:
		s.lastFired = stamp
		s.logger.Info("daily access token refresh")
		if err := s.creds.RefreshAccessToken(ctx); err != nil {
			s.logger.Error("access token refresh failed", "error", err)
		}
	}
}

func (s *Scheduler) isTradingDay(t time.Time) bool {
	if s.cal != nil {
		return s.cal.IsBusinessDay(t)
	}
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// parseMinute converts "HH:MM" to minutes since midnight.
func parseMinute(v string) (int, error) {
	parsed, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}
