package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/nhle/reminders/internal/model"
)

// wireBodyLayout is how an event's date and time travel in the post body.
const wireBodyLayout = "01/02/2006 15:04"

// Post is the remote representation of an event.
type Post struct {
	ID     FlexibleID `json:"id,omitempty"`
	Title  string     `json:"title"`
	Body   string     `json:"body"`
	UserID int        `json:"userId"`
	RRule  string     `json:"rrule,omitempty"`
}

// FlexibleID accepts a JSON number or string.
type FlexibleID string

// UnmarshalJSON decodes numbers and strings alike.
func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id %s: %w", data, err)
	}
	*id = FlexibleID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id FlexibleID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// NewPost maps a local event to its wire form.
func NewPost(e model.Event, userID int) Post {
	return Post{
		Title:  e.Name,
		Body:   FormatBody(e.Date, e.Time),
		UserID: userID,
		RRule:  EncodeRecurrence(e.Recurrence),
	}
}

// FormatBody renders "MM/DD/YYYY HH:MM". Unparseable input is sent
// verbatim, space separated.
func FormatBody(date, hhmm string) string {
	t, err := time.Parse(model.DateLayout+" "+model.TimeLayout, date+" "+hhmm)
	if err != nil {
		return strings.TrimSpace(date + " " + hhmm)
	}
	return t.Format(wireBodyLayout)
}

var recurrenceFreq = map[model.Recurrence]rrule.Frequency{
	model.RecurrenceDaily:   rrule.DAILY,
	model.RecurrenceWeekly:  rrule.WEEKLY,
	model.RecurrenceMonthly: rrule.MONTHLY,
}

// EncodeRecurrence returns the RRULE value for r, or "" for NONE.
func EncodeRecurrence(r model.Recurrence) string {
	freq, ok := recurrenceFreq[r]
	if !ok {
		return ""
	}
	opt := rrule.ROption{Freq: freq, Interval: 1}
	return opt.RRuleString()
}

// DecodeRecurrence maps an RRULE value back to a recurrence type. Rules
// the local model cannot express decode to NONE with an error.
func DecodeRecurrence(s string) (model.Recurrence, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "RRULE:"))
	if s == "" {
		return model.RecurrenceNone, nil
	}
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return model.RecurrenceNone, fmt.Errorf("parsing rrule %q: %w", s, err)
	}
	if opt.Interval > 1 || opt.Count != 0 || !opt.Until.IsZero() {
		return model.RecurrenceNone, fmt.Errorf("unsupported rrule %q", s)
	}
	for r, freq := range recurrenceFreq {
		if opt.Freq == freq {
			return r, nil
		}
	}
	return model.RecurrenceNone, fmt.Errorf("unsupported rrule frequency %v", opt.Freq)
}
