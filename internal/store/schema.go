package store

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// defaultSchema is the embedded DDL applied by Migrate when no external
// schema script is configured. Portable across SQLite and Postgres.
const defaultSchema = `
CREATE TABLE IF NOT EXISTS session_sources (
	session_id             TEXT PRIMARY KEY,
	user_id                TEXT NOT NULL,
	event_date             TEXT NOT NULL,
	event_time             TEXT NOT NULL,
	channel_name           TEXT NOT NULL,
	holder_engagement      INTEGER NOT NULL DEFAULT 0,
	closer_engagement      INTEGER NOT NULL DEFAULT 0,
	impression_interaction INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversions (
	conv_id   TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	conv_date TEXT NOT NULL,
	conv_time TEXT NOT NULL,
	revenue   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS session_costs (
	session_id TEXT PRIMARY KEY,
	cost       REAL
);

CREATE TABLE IF NOT EXISTS attribution_customer_journey (
	conv_id    TEXT NOT NULL,
	session_id TEXT NOT NULL,
	ihc        REAL NOT NULL,
	run_id     TEXT
);

CREATE TABLE IF NOT EXISTS channel_reporting (
	channel_name TEXT NOT NULL,
	date         TEXT NOT NULL,
	cost         REAL,
	ihc          REAL,
	ihc_revenue  REAL,
	PRIMARY KEY (channel_name, date)
);

CREATE INDEX IF NOT EXISTS idx_session_sources_user_id ON session_sources(user_id);
CREATE INDEX IF NOT EXISTS idx_conversions_user_id ON conversions(user_id);
CREATE INDEX IF NOT EXISTS idx_acj_session_id ON attribution_customer_journey(session_id);
`

// expectedTables lists the tables VerifyTables checks after migration.
var expectedTables = []string{
	"session_sources",
	"conversions",
	"session_costs",
	"attribution_customer_journey",
	"channel_reporting",
}

var tripleQuoted = regexp.MustCompile(`(?s)""".*?"""`)

// CleanScript strips triple-quoted blocks, '#' line comments and blank lines
// from a DDL script. The challenge's schema file carries Python-style
// commentary that the SQL engines reject.
func CleanScript(script string) string {
	script = tripleQuoted.ReplaceAllString(script, "")

	var lines []string
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// SplitStatements splits a cleaned DDL script into individual statements.
func SplitStatements(script string) []string {
	var stmts []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// LoadSchema reads and cleans an external DDL script. A missing or unreadable
// file is a fatal setup error.
func LoadSchema(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "store: read schema script %s", path)
	}
	return CleanScript(string(raw)), nil
}

// resolveSchema returns the DDL to migrate with: the external script when a
// path is configured, the embedded default otherwise.
func resolveSchema(schemaPath string) (string, error) {
	if schemaPath == "" {
		return defaultSchema, nil
	}
	return LoadSchema(schemaPath)
}
