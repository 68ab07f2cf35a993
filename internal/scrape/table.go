package scrape

import (
	"fmt"
	"time"
)

// DateLayout renders the batch timestamp: UTC, second precision, "Z" suffix.
const DateLayout = "2006-01-02T15:04:05Z"

// Columns lists the result table columns in order.
var Columns = []string{"url", "date", "status", "html"}

// Table is the result of one scrape run. Rows are positionally keyed to the
// input URL list.
type Table struct {
	Date time.Time `json:"-"`
	Rows []Row     `json:"rows"`
}

// NewTable builds the table skeleton before any fetch starts. Every row shares
// the same capture time.
func NewTable(urls []string, now time.Time) *Table {
	date := FormatDate(now)
	rows := make([]Row, len(urls))
	for i, u := range urls {
		rows[i] = Row{URL: u, Date: date}
	}
	return &Table{Date: now.UTC().Truncate(time.Second), Rows: rows}
}

// FormatDate renders t as the table's date column.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// URLs returns the url column.
func (t *Table) URLs() []string {
	out := make([]string, t.Len())
	for i := range out {
		out[i] = t.Rows[i].URL
	}
	return out
}

// Apply writes a task result into its row.
func (t *Table) Apply(r Result) error {
	if r.Index < 0 || r.Index >= t.Len() {
		return fmt.Errorf("row %d out of range [0,%d)", r.Index, t.Len())
	}
	t.Rows[r.Index].Status = r.Status
	t.Rows[r.Index].HTML = r.Text
	return nil
}

// Record returns the row in column order.
func (r Row) Record() []string {
	return []string{r.URL, r.Date, r.Status, r.HTML}
}
