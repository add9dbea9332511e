package model

import "time"

// Firing is the payload delivered when a timer fires.
type Firing struct {
	EventID    int64      `json:"event_id"`
	Name       string     `json:"name"`
	Time       string     `json:"time"`
	Recurrence Recurrence `json:"recurrence_type"`
}

// Timer is one persisted one-shot wake-up.
type Timer struct {
	Key     string    `json:"key"`
	FireAt  time.Time `json:"fire_at"`
	Payload Firing    `json:"payload"`
}

// FireAtMillis is FireAt in epoch milliseconds, rounded up so a persisted
// timer never becomes due before its instant.
func (t Timer) FireAtMillis() int64 {
	ms := t.FireAt.UnixMilli()
	if t.FireAt.Sub(time.UnixMilli(ms)) > 0 {
		ms++
	}
	return ms
}
