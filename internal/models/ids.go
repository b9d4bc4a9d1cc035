// Package models defines the core data types shared across the capture,
// supervisor, recording, scene, and mixer components: camera/device
// descriptors, ingest and mixer state machines, recording sessions, scenes,
// and bus events. Durable entities use ULIDs (sortable, embeds creation
// time); ephemeral runtime handles (transition tokens, subscription ids)
// use UUIDs.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// ULID wraps oklog/ulid for use as a GORM column type and JSON value.
type ULID struct {
	ulid.ULID
}

// NewULID generates a new ULID seeded from the current time.
func NewULID() ULID {
	return ULID{ULID: ulid.Make()}
}

// ParseULID parses a canonical ULID string.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, fmt.Errorf("parsing ulid %q: %w", s, err)
	}
	return ULID{ULID: id}, nil
}

// Value implements driver.Valuer.
func (u ULID) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan implements sql.Scanner.
func (u *ULID) Scan(value any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		parsed, err := ulid.Parse(v)
		if err != nil {
			return fmt.Errorf("scanning ulid: %w", err)
		}
		u.ULID = parsed
		return nil
	case []byte:
		parsed, err := ulid.Parse(string(v))
		if err != nil {
			return fmt.Errorf("scanning ulid: %w", err)
		}
		u.ULID = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan type %T into ULID", value)
	}
}

// MarshalJSON implements json.Marshaler.
func (u ULID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("invalid ulid json: %q", data)
	}
	s := string(data[1 : len(data)-1])
	if s == "" {
		return nil
	}
	parsed, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("unmarshaling ulid: %w", err)
	}
	u.ULID = parsed
	return nil
}

// CameraID is the small stable identifier for a capture device (cam0..cam3).
type CameraID string
