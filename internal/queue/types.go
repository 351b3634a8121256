package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type OperationType string

const (
	Create OperationType = "create"
	Update OperationType = "update"
	Delete OperationType = "delete"
)

// Valid reports whether t is one of the known operation types.
func (t OperationType) Valid() bool {
	switch t {
	case Create, Update, Delete:
		return true
	}
	return false
}

var ErrMissingRecordID = errors.New("operation data has no record id")

// Record is a remote row keyed by field name. It always carries an "id" field naming the
// target record.
type Record map[string]interface{}

// ID returns the record id as a string, or "" if absent.
func (r Record) ID() string {
	v, ok := r["id"]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		// Numbers decoded from JSON arrive as float64; keep large ids out of exponent form.
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// Operation is a pending remote mutation.
type Operation struct {
	ID        string        `json:"id"`
	Type      OperationType `json:"type"`
	Table     string        `json:"table"`
	Data      Record        `json:"data"`
	Timestamp int64         `json:"timestamp"` // enqueue time, ms since epoch
	Retries   int           `json:"retries"`
}

func (o Operation) String() string {
	return fmt.Sprintf("[%s] %s/%s (op %s, retries %d)", o.Type, o.Table, o.Data.ID(), o.ID, o.Retries)
}
