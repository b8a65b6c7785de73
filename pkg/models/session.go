package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionParams identifies one database a user wants to talk to.
// Host/Port/Database/Username/Password cover postgresql and mysql; Oracle
// adds SID xor ServiceName; SQLite uses FilePath (or Database ":memory:").
type ConnectionParams struct {
	DatabaseType string `json:"database_type"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Database     string `json:"database,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"-"`
	SID          string `json:"sid,omitempty"`
	ServiceName  string `json:"service_name,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// PoolKey returns the deterministic identity of the pool serving these
// parameters: a hash over host:port:database:user. SQLite folds the file
// path into the database position.
func (p ConnectionParams) PoolKey() string {
	database := p.Database
	if p.FilePath != "" {
		database = p.FilePath
	}
	raw := fmt.Sprintf("%s:%d:%s:%s", p.Host, p.Port, database, p.Username)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// SameIdentity reports whether two parameter sets address the same database
// as the same user. Passwords are deliberately excluded.
func (p ConnectionParams) SameIdentity(other ConnectionParams) bool {
	return p.DatabaseType == other.DatabaseType &&
		p.Host == other.Host &&
		p.Port == other.Port &&
		p.Database == other.Database &&
		p.Username == other.Username &&
		p.SID == other.SID &&
		p.ServiceName == other.ServiceName &&
		p.FilePath == other.FilePath
}

// Session binds a caller to connection parameters and a cached schema.
// Owned by the session registry; all fields are guarded by its lock.
type Session struct {
	ID               uuid.UUID        `json:"session_id"`
	Params           ConnectionParams `json:"params"`
	CreatedAt        time.Time        `json:"created_at"`
	LastAccessed     time.Time        `json:"last_accessed"`
	SchemaCache      *SchemaSnapshot  `json:"-"`
	SchemaCacheScope string           `json:"-"`
	SchemaCachedAt   time.Time        `json:"-"`
}
