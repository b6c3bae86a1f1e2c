package db

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"h1b_ingest/internal/config"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultKeyWidth = 191

type dialect struct {
	name       string
	driverName string
	types      map[columnType]string
	keyText    string
	keyWidths  map[string]int
	timestamp  string
	quoteChar  string
	numbered   bool
}

var dialects = map[string]dialect{
	"postgres": {
		name:       "postgres",
		driverName: "pgx",
		types:      map[columnType]string{colText: "TEXT", colInt: "BIGINT", colFloat: "DOUBLE PRECISION"},
		keyText:    "TEXT",
		timestamp:  "TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP",
		quoteChar:  `"`,
		numbered:   true,
	},
	"sqlite": {
		name:       "sqlite",
		driverName: "sqlite",
		types:      map[columnType]string{colText: "TEXT", colInt: "INTEGER", colFloat: "REAL"},
		keyText:    "TEXT",
		timestamp:  "TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP",
		quoteChar:  `"`,
	},
	"mysql": {
		name:       "mysql",
		driverName: "mysql",
		types:      map[columnType]string{colText: "TEXT", colInt: "BIGINT", colFloat: "DOUBLE"},
		keyText:    "VARCHAR(%d)",
		keyWidths:  map[string]int{"state": 16},
		timestamp:  "DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)",
		quoteChar:  "`",
	},
}

func lookupDialect(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
	return d, nil
}

func (d dialect) quote(ident string) string {
	return d.quoteChar + ident + d.quoteChar
}

func (d dialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

func (d dialect) quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.quote(c)
	}
	return out
}

func (d dialect) createTable(t TargetTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", d.quote(t.Name))
	for _, col := range t.UniqueKey {
		fmt.Fprintf(&b, "\t%s %s NOT NULL,\n", d.quote(col), d.keyType(col))
	}
	for _, col := range t.ManagedColumns {
		fmt.Fprintf(&b, "\t%s %s,\n", d.quote(col), d.types[columnTypes[col]])
	}
	fmt.Fprintf(&b, "\t%s %s,\n", d.quote("last_updated"), d.timestamp)
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(d.quoteAll(t.UniqueKey), ", "))
	return b.String()
}

// keyType is the column type of a primary key column. MySQL cannot index
// unbounded TEXT, so text keys get a VARCHAR sized to keep the whole
// composite key under InnoDB's 3072 byte limit in utf8mb4.
func (d dialect) keyType(col string) string {
	if columnTypes[col] != colText {
		return d.types[columnTypes[col]]
	}
	if !strings.Contains(d.keyText, "%d") {
		return d.keyText
	}
	width, ok := d.keyWidths[col]
	if !ok {
		width = defaultKeyWidth
	}
	return fmt.Sprintf(d.keyText, width)
}

func (d dialect) exists(t TargetTable) string {
	conds := make([]string, len(t.UniqueKey))
	for i, col := range t.UniqueKey {
		conds[i] = fmt.Sprintf("%s = %s", d.quote(col), d.placeholder(i+1))
	}
	return fmt.Sprintf("SELECT 1 FROM %s WHERE %s", d.quote(t.Name), strings.Join(conds, " AND "))
}

// upsert inserts the key, managed columns and last_updated, overwriting
// the managed columns and last_updated on key conflict.
func (d dialect) upsert(t TargetTable) string {
	cols := append(t.Columns(), "last_updated")
	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = d.placeholder(i + 1)
	}

	updates := append(slices.Clone(t.ManagedColumns), "last_updated")
	sets := make([]string, len(updates))
	for i, col := range updates {
		if d.name == "mysql" {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", d.quote(col), d.quote(col))
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", d.quote(col), d.quote(col))
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(t.Name), strings.Join(d.quoteAll(cols), ", "), strings.Join(ph, ", "))
	if d.name == "mysql" {
		return stmt + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		stmt, strings.Join(d.quoteAll(t.UniqueKey), ", "), strings.Join(sets, ", "))
}

// dsn builds the driver connection string for cfg.
func dsn(cfg config.DBConfig) string {
	switch cfg.Driver {
	case "sqlite":
		return cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(portOr(cfg.Port, 3306)))
		mc.DBName = cfg.Database
		mc.ParseTime = true
		return mc.FormatDSN()
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(portOr(cfg.Port, 5432))),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

func portOr(p, def int) int {
	if p == 0 {
		return def
	}
	return p
}
