package models

import "time"

// SequenceCounter is a named monotonic counter. Counters are created
// implicitly on first allocation and never reset.
type SequenceCounter struct {
	Prefix    string    `db:"prefix" json:"prefix"`
	Value     int64     `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
