// Package all registers every relational dialect. Import it for side effects.
package all

import (
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/oracle"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-query/pkg/adapters/datasource/sqlite"
)
