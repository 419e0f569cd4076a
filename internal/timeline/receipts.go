package timeline

import (
	"errors"
	"strings"
	"time"

	"laborline/internal/model"
)

var receiptTimeLayouts = []string{
	"2006-01-02 3:04pm",
	"2006-01-02 3:04 pm",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// AttachReceipts files each receipt under the intervals that start on the
// receipt's date. A receipt timed within [start, end] of an interval is
// listed as Within for it, every other same-date receipt as NoTime.
// Receipts that cannot be dated are appended to rep.Errors.
func (a *Analyzer) AttachReceipts(rep *Report, receipts []model.Receipt) {
	byDate := make(map[string][]model.Receipt)
	for i, rc := range receipts {
		at, err := a.receiptTime(rc)
		if err != nil {
			rep.Errors = append(rep.Errors, model.ValidationError{
				RecordID: rc.ID,
				Index:    i,
				Reason:   "receipt: " + err.Error(),
			})
			continue
		}
		rc.At = at
		key := at.Format(dateKeyLayout)
		byDate[key] = append(byDate[key], rc)
	}

	for d := range rep.Days {
		day := &rep.Days[d]
		for _, iv := range day.Intervals {
			if iv.Synthetic {
				continue
			}
			same := byDate[iv.Start.In(a.loc).Format(dateKeyLayout)]
			if len(same) == 0 {
				continue
			}
			m := model.ReceiptMatch{
				Within: make([]model.Receipt, 0),
				NoTime: make([]model.Receipt, 0),
			}
			for _, rc := range same {
				if !rc.At.Before(iv.Start) && !rc.At.After(iv.End) {
					m.Within = append(m.Within, rc)
				} else {
					m.NoTime = append(m.NoTime, rc)
				}
			}
			if day.Receipts == nil {
				day.Receipts = make(map[string]model.ReceiptMatch)
			}
			day.Receipts[iv.ID] = m
		}
	}
}

// receiptTime combines the receipt's date and clock label. A missing or
// "null" clock label means midnight.
func (a *Analyzer) receiptTime(rc model.Receipt) (time.Time, error) {
	date := strings.TrimSpace(rc.Date)
	if date == "" {
		return time.Time{}, errors.New("missing date")
	}
	// Dates sometimes arrive with a time part attached.
	if len(date) > len(dateKeyLayout) {
		date = date[:len(dateKeyLayout)]
	}

	clock := strings.ToLower(strings.TrimSpace(rc.Time))
	if clock == "" || clock == "null" {
		clock = "12:00am"
	}

	for _, layout := range receiptTimeLayouts {
		if t, err := time.ParseInLocation(layout, date+" "+clock, a.loc); err == nil {
			return t, nil
		}
	}
	if _, err := time.ParseInLocation(dateKeyLayout, date, a.loc); err != nil {
		return time.Time{}, errors.New("invalid date " + quote(rc.Date))
	}
	return time.Time{}, errors.New("invalid time " + quote(rc.Time))
}
