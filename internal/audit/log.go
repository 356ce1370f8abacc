package audit

import (
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edgerun/skippy/internal/skippy/model"
)

// Record is a single scheduling decision: the pod that was scheduled, the
// node it was placed on (empty if no node was feasible), and the images
// that still needed a pull on that node at commit time.
type Record struct {
	Timestamp     time.Time `json:"timestamp"`
	PodNamespace  string    `json:"podNamespace"`
	PodName       string    `json:"podName"`
	ChosenNode    string    `json:"chosenNode"`
	FeasibleNodes int       `json:"feasibleNodes"`
	NeededImages  []string  `json:"neededImages"`
	LatencyMillis int64     `json:"latencyMillis"`
}

// Log is a thread-safe ring buffer of recent scheduling decisions with
// optional SQLite persistence.
type Log struct {
	mu      sync.RWMutex
	records []Record
	max     int
	db      *sql.DB
	writer  *Writer
}

// NewLog creates an audit log with the given max in-memory capacity.
func NewLog(maxRecords int) *Log {
	return &Log{
		records: make([]Record, 0, maxRecords),
		max:     maxRecords,
	}
}

// NewLogWithDB creates an audit log backed by SQLite. If both db and writer
// are nil, it behaves identically to NewLog; writer alone enables
// persisting new records, and db alone makes GetAll read from SQLite.
func NewLogWithDB(maxRecords int, db *sql.DB, writer *Writer) *Log {
	return &Log{
		records: make([]Record, 0, maxRecords),
		max:     maxRecords,
		db:      db,
		writer:  writer,
	}
}

// Record appends a scheduling decision. pod identifies the scheduled pod;
// result is nil-host (result.SuggestedHost == nil) when no node was
// feasible.
func (l *Log) Record(pod model.Pod, result model.SchedulingResult, latency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chosen := ""
	if result.SuggestedHost != nil {
		chosen = result.SuggestedHost.Name
	}

	rec := Record{
		Timestamp:     time.Now(),
		PodNamespace:  pod.Namespace,
		PodName:       pod.Name,
		ChosenNode:    chosen,
		FeasibleNodes: result.FeasibleNodes,
		NeededImages:  result.NeededImages,
		LatencyMillis: latency.Milliseconds(),
	}

	if len(l.records) >= l.max {
		copy(l.records, l.records[1:])
		l.records[len(l.records)-1] = rec
	} else {
		l.records = append(l.records, rec)
	}

	if l.writer != nil {
		ts := rec.Timestamp.Format(time.RFC3339)
		ns, name, node := rec.PodNamespace, rec.PodName, rec.ChosenNode
		feasible, images, latencyMs := rec.FeasibleNodes, strings.Join(rec.NeededImages, ","), rec.LatencyMillis
		l.writer.Enqueue(func(db *sql.DB) {
			if _, err := db.Exec(
				`INSERT INTO placements
					(timestamp, pod_namespace, pod_name, chosen_node, feasible_nodes, needed_images, latency_millis)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ts, ns, name, node, feasible, images, latencyMs,
			); err != nil {
				slog.Error("audit: insert placement", "pod", ns+"/"+name, "error", err)
			}
		})
	}
}

// GetRecent returns the most recent n records in reverse chronological order.
// Always reads from in-memory, since SQLite writes are async.
func (l *Log) GetRecent(n int) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	count := len(l.records)
	if n > count {
		n = count
	}

	result := make([]Record, n)
	for i := 0; i < n; i++ {
		result[i] = l.records[count-1-i]
	}
	return result
}

// GetAll returns up to the 10,000 most recent persisted records when backed
// by SQLite, falling back to the in-memory ring buffer otherwise.
func (l *Log) GetAll() []Record {
	if l.db != nil {
		if records := l.queryAll(); records != nil {
			return records
		}
	}

	l.mu.RLock()
	count := len(l.records)
	l.mu.RUnlock()

	return l.GetRecent(count)
}

// Flush waits for all pending records to be written to SQLite. No-op if no
// async writer is configured.
func (l *Log) Flush() {
	if l.writer != nil {
		l.writer.Drain()
	}
}

func (l *Log) queryAll() []Record {
	rows, err := l.db.Query(
		`SELECT timestamp, pod_namespace, pod_name, chosen_node, feasible_nodes, needed_images, latency_millis
			FROM placements ORDER BY timestamp DESC LIMIT 10000`,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) []Record {
	var result []Record
	for rows.Next() {
		var r Record
		var ts, images string
		if err := rows.Scan(&ts, &r.PodNamespace, &r.PodName, &r.ChosenNode, &r.FeasibleNodes, &images, &r.LatencyMillis); err != nil {
			slog.Warn("audit: scan placement row", "error", err)
			continue
		}
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			slog.Warn("audit: parse timestamp", "ts", ts, "error", err)
			continue
		}
		r.Timestamp = parsed
		if images != "" {
			r.NeededImages = strings.Split(images, ",")
		}
		result = append(result, r)
	}
	return result
}
