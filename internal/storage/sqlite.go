package storage

import (
	"database/sql"
	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

type DB interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
	Close() error
}

type Store struct{ db DB }

func OpenSQLite(dsn string) (DB, error) {
	return sql.Open("sqlite3", dsn)
}

func InitSchema(db DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS messages(
		chat_id INTEGER, user_id INTEGER, role TEXT, text TEXT, ts INTEGER
	)`); err != nil {
		return err
	}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS tool_calls(
		chat_id INTEGER, tool TEXT, ok INTEGER, ts INTEGER
	)`)
	return err
}

func NewStore(db DB) *Store { return &Store{db: db} }

// SaveMessage appends one transcript line. Role is "user" or "assistant";
// userID is 0 for assistant lines.
func (s *Store) SaveMessage(chatID, userID int64, role, text string, ts int64) error {
	_, err := s.db.Exec(`INSERT INTO messages(chat_id,user_id,role,text,ts) VALUES(?,?,?,?,?)`,
		chatID, userID, role, text, ts)
	return err
}

// RecordToolCall logs one executed tool call for the /stats counters.
func (s *Store) RecordToolCall(chatID int64, tool string, ok bool, ts int64) error {
	okInt := 0
	if ok {
		okInt = 1
	}
	_, err := s.db.Exec(`INSERT INTO tool_calls(chat_id,tool,ok,ts) VALUES(?,?,?,?)`,
		chatID, tool, okInt, ts)
	return err
}

// ToolUsage is one tool's call counters for a chat.
type ToolUsage struct {
	Tool  string
	Calls int64
	Fails int64
}

// FetchToolUsage returns per-tool call counts for a chat, most used first.
func (s *Store) FetchToolUsage(chatID int64) ([]ToolUsage, error) {
	rows, err := s.db.Query(`SELECT tool, COUNT(*), SUM(1-ok) FROM tool_calls
		WHERE chat_id=? GROUP BY tool ORDER BY COUNT(*) DESC, tool ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ToolUsage
	for rows.Next() {
		var u ToolUsage
		if err := rows.Scan(&u.Tool, &u.Calls, &u.Fails); err == nil {
			out = append(out, u)
		}
	}
	return out, rows.Err()
}

// CountMessages returns the number of stored transcript lines for a chat.
func (s *Store) CountMessages(chatID int64) (int64, error) {
	var n int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE chat_id=?`, chatID).Scan(&n)
	return n, err
}
