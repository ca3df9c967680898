package api

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GetSchedule fetches the exchange's standard trading hours and
// scheduled maintenance windows.
func (c *Client) GetSchedule(ctx context.Context) (*ScheduleResponse, error) {
	var resp ScheduleResponse
	if err := c.get(ctx, "/exchange/schedule", nil, &resp); err != nil {
		return nil, fmt.Errorf("get exchange schedule: %w", err)
	}
	return &resp, nil
}

// IsOpenAt reports whether t falls within the exchange's standard
// trading hours for t's weekday, ported from
// original_source/.../kalshi/models/schedule.py's KalshiSchedule.is_open
// property. Matching/settlement is out of scope, so this never
// consults schedule.MaintenanceWindows; it exists solely to support
// the exchange-status projection callers build on top of
// GetExchangeStatus.
//
// t must carry an explicit zone (anything but time.Local); a bare
// wall-clock time.Time built without a *time.Location is ambiguous
// about which day/hour it names, and is rejected by panicking rather
// than silently guessing the host's zone.
func IsOpenAt(schedule ScheduleResponse, t time.Time) bool {
	if t.Location() == time.Local {
		panic("api: IsOpenAt requires a zoned time.Time, got one in the Local location")
	}

	weekday := t.Weekday().String()
	hours, ok := schedule.StandardHours[weekday]
	if !ok {
		// Try lowercase, matching the JSON key convention seen in
		// sample schedule payloads.
		hours, ok = schedule.StandardHours[strings.ToLower(weekday)]
		if !ok {
			return false
		}
	}

	open, err1 := time.Parse("1504", hours.OpenTime)
	closeT, err2 := time.Parse("1504", hours.CloseTime)
	if err1 != nil || err2 != nil {
		return false
	}

	wall := t.Hour()*60 + t.Minute()
	openMin := open.Hour()*60 + open.Minute()
	closeMin := closeT.Hour()*60 + closeT.Minute()

	if openMin <= closeMin {
		return wall >= openMin && wall <= closeMin
	}
	// Hours span midnight.
	return wall >= openMin || wall <= closeMin
}
