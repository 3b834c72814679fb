package sessions

import (
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// DailyTotal is the focus time accumulated on one UTC calendar day.
type DailyTotal struct {
	Date    string
	Minutes int64
}

// SummarizeDaily buckets sessions by UTC start day over the last days days ending at now.
// The result is oldest first and contains a zero entry for days without sessions;
// each session contributes its duration rounded to whole minutes.
func SummarizeDaily(sessions []StudySession, days int, now time.Time) []DailyTotal {
	if days <= 0 {
		return []DailyTotal{}
	}

	perDay := make(map[string]int64, days)
	for _, session := range sessions {
		key := session.StartedAt().Format(dayLayout)
		perDay[key] += int64(math.Round(float64(session.DurationSeconds) / 60))
	}

	totals := make([]DailyTotal, 0, days)
	today := now.UTC()
	for offset := days - 1; offset >= 0; offset-- {
		key := today.AddDate(0, 0, -offset).Format(dayLayout)
		totals = append(totals, DailyTotal{Date: key, Minutes: perDay[key]})
	}
	return totals
}
