package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityMonth Granularity = "month"
)

func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityDay, "daily", "":
		return GranularityDay, nil
	case GranularityMonth, "monthly":
		return GranularityMonth, nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// Period is a calendar bucket. Start is always midnight UTC on the first day
// of the bucket.
type Period struct {
	Start       time.Time
	Granularity Granularity
}

func PeriodOf(t time.Time, g Granularity) Period {
	y, m, d := t.Date()
	if g == GranularityMonth {
		d = 1
	}
	return Period{
		Start:       time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		Granularity: g,
	}
}

func (p Period) String() string {
	if p.Granularity == GranularityMonth {
		return p.Start.Format("2006-01")
	}
	return p.Start.Format("2006-01-02")
}

func (p Period) Before(o Period) bool { return p.Start.Before(o.Start) }

func (p Period) Equal(o Period) bool {
	return p.Granularity == o.Granularity && p.Start.Equal(o.Start)
}

func (p Period) Compare(o Period) int { return p.Start.Compare(o.Start) }

// Prev returns the bucket immediately preceding p.
func (p Period) Prev() Period {
	if p.Granularity == GranularityMonth {
		return Period{Start: p.Start.AddDate(0, -1, 0), Granularity: p.Granularity}
	}
	return Period{Start: p.Start.AddDate(0, 0, -1), Granularity: p.Granularity}
}

func (p Period) IsZero() bool { return p.Start.IsZero() }

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}
