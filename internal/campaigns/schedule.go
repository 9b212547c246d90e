package campaigns

import "time"

// InSchedule reports whether the campaign may dial at the given
// instant. Campaigns without a daily window always dial; the weekday
// list and window are evaluated in the campaign's own timezone.
func (c Campaign) InSchedule(now time.Time) bool {
	if c.StartTime == "" || c.EndTime == "" {
		return true
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	if len(c.Weekdays) > 0 {
		dow := isoWeekday(local.Weekday())
		found := false
		for _, d := range c.Weekdays {
			if d == dow {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	start, err := time.Parse("15:04", c.StartTime)
	if err != nil {
		return true
	}
	end, err := time.Parse("15:04", c.EndTime)
	if err != nil {
		return true
	}
	cur := local.Hour()*60 + local.Minute()
	from := start.Hour()*60 + start.Minute()
	to := end.Hour()*60 + end.Minute()
	return cur >= from && cur <= to
}

// isoWeekday maps Go's Sunday-first weekday to ISO 1=Monday..7=Sunday.
func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
