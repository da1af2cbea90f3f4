package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported datasource types. StarRocks speaks the MySQL wire protocol and
// shares the mysql connector.
const (
	DatasourceTypePostgres  = "postgres"
	DatasourceTypeMySQL     = "mysql"
	DatasourceTypeSQLServer = "sqlserver"
	DatasourceTypeStarRocks = "starrocks"
)

// DataSource is a registered external database the catalog extracts metadata
// from. The password is stored encrypted and is write-only from the API's
// perspective: reads never include it.
type DataSource struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Username  string    `json:"username"`
	Database  string    `json:"database"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
