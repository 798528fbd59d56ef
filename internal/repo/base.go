package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base holds the gorm connection a read-side repository queries through.
type Base struct {
	conn *gorm.DB
}

// NewBase wraps the given connection.
func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB hands out the connection scoped to ctx. A nil context returns the raw
// connection, which some callers use during bootstrap.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}
