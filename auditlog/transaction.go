package auditlog

import (
	"regexp"
	"strings"

	"modsecmon/severity"
)

// Unknown is the placeholder for fields that were never seen in a transaction.
const Unknown = "unknown"

var (
	rxMarker    = regexp.MustCompile(`^--([a-zA-Z0-9]+)-([A-Z])--`)
	rxRequest   = regexp.MustCompile(`^([A-Z]+) (.*?) HTTP`)
	rxTimestamp = regexp.MustCompile(`\[(\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}:\d{2}(?:\.\d+)? [+\-]\d{4})\]`)
	rxClient    = regexp.MustCompile(`\[client ([0-9A-Fa-f.:]+)\].*?\[unique_id "(.*?)"\]`)
	rxMessage   = regexp.MustCompile(`\[msg "(.*?)"\]`)
	rxRuleID    = regexp.MustCompile(`\[id "(.*?)"\]`)
	rxSeverity  = regexp.MustCompile(`\[severity "(.*?)"\]`)
)

// Transaction is an audit log entry that is still being assembled.
type Transaction struct {
	ID          string
	RawLines    []string
	RequestLine string
	Timestamp   string
	metadata    strings.Builder
}

func newTransaction(id string) *Transaction {
	return &Transaction{ID: id, Timestamp: Unknown}
}

// MetadataText is the space-joined content of the H section seen so far.
func (t *Transaction) MetadataText() string {
	return t.metadata.String()
}

func (t *Transaction) addBodyLine(line string) {
	if t.RequestLine == "" && rxRequest.MatchString(line) {
		t.RequestLine = line
	}
	if t.Timestamp == Unknown {
		if m := rxTimestamp.FindStringSubmatch(line); m != nil {
			t.Timestamp = m[1]
		}
	}
}

func (t *Transaction) addMetadataLine(line string) {
	t.metadata.WriteString(line)
	t.metadata.WriteByte(' ')
}

// Record is a finalized transaction, ready to be served to the dashboard.
type Record struct {
	UniqueID    string   `json:"unique_id"`
	ClientIP    string   `json:"client_ip"`
	Timestamp   string   `json:"timestamp"`
	RequestLine string   `json:"request_line"`
	Messages    []string `json:"messages"`
	RuleIDs     []string `json:"rule_ids"`
	Severities  []string `json:"severities"`
	ThreatScore int      `json:"threat_score"`
}

func (t *Transaction) finalize() Record {
	meta := t.MetadataText()

	rec := Record{
		UniqueID:    t.ID,
		ClientIP:    Unknown,
		Timestamp:   t.Timestamp,
		RequestLine: t.RequestLine,
		Messages:    findAll(rxMessage, meta),
		RuleIDs:     findAll(rxRuleID, meta),
		Severities:  findAll(rxSeverity, meta),
	}

	if m := rxClient.FindStringSubmatch(meta); m != nil {
		rec.ClientIP = m[1]
		rec.UniqueID = m[2]
	}
	if rec.RequestLine == "" {
		rec.RequestLine = Unknown
	}
	if rec.Timestamp == "" {
		rec.Timestamp = Unknown
	}

	rec.ThreatScore = severity.Score(rec.Severities)
	return rec
}

// findAll returns the first capture group of every match, never nil so that
// records always encode empty lists as [].
func findAll(rx *regexp.Regexp, s string) []string {
	matches := rx.FindAllStringSubmatch(s, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}
