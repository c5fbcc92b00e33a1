package features

import (
	"RecessionLens/internal/domain/errs"
	"RecessionLens/internal/domain/models"
)

// CheckChronological requires strictly increasing dates. Undated series, where
// every date is zero, are accepted as already ordered.
func CheckChronological(records []models.IndicatorRecord) error {
	dated := 0
	for _, r := range records {
		if !r.Date.IsZero() {
			dated++
		}
	}
	if dated == 0 {
		return nil
	}
	if dated != len(records) {
		return errs.Data("input", "%d of %d records have no date", len(records)-dated, len(records))
	}
	for i := 1; i < len(records); i++ {
		prev, cur := records[i-1].Date, records[i].Date
		switch {
		case cur.Equal(prev):
			return errs.Data("input", "duplicate date %s at row %d", cur.Format("2006-01-02"), i)
		case cur.Before(prev):
			return errs.Data("input", "date %s at row %d is before %s", cur.Format("2006-01-02"), i, prev.Format("2006-01-02"))
		}
	}
	return nil
}
