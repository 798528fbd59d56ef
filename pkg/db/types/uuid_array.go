package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray maps a postgres uuid[] column onto a uuid slice.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		return a.decode(v)
	case []byte:
		return a.decode(string(v))
	}
	return fmt.Errorf("UUIDArray: cannot scan %T", src)
}

func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	elems := make([]string, len(a))
	for i, id := range a {
		elems[i] = id.String()
	}
	// {uuid,uuid} array literal
	return "{" + strings.Join(elems, ",") + "}", nil
}

func (a *UUIDArray) decode(literal string) error {
	body := strings.TrimSpace(literal)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	if strings.TrimSpace(body) == "" {
		*a = UUIDArray{}
		return nil
	}

	fields := strings.Split(body, ",")
	ids := make([]uuid.UUID, 0, len(fields))
	for _, field := range fields {
		id, err := uuid.Parse(strings.TrimSpace(strings.Trim(field, `"`)))
		if err != nil {
			return fmt.Errorf("UUIDArray: element %q: %w", field, err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}
