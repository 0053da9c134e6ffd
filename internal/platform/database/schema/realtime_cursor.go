package schema

// RealtimeCursorTable represents the 'realtime.channel_cursor' table
type RealtimeCursorTable struct {
	Table     string
	UserID    string
	ThreadID  string
	LastSeq   string
	UpdatedAt string
}

// RealtimeCursor is the schema definition for realtime.channel_cursor
var RealtimeCursor = RealtimeCursorTable{
	Table:     "realtime.channel_cursor",
	UserID:    "userid",
	ThreadID:  "threadid",
	LastSeq:   "lastseq",
	UpdatedAt: "updatedat",
}

func (t RealtimeCursorTable) Columns() []string {
	return []string{t.UserID, t.ThreadID, t.LastSeq, t.UpdatedAt}
}
