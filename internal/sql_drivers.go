package internal

import (
	// database/sql drivers for the watermill sql publisher (watermill.sql.driver
	// is "postgres" or "mysql").
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
