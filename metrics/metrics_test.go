package metrics

import (
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"modsecmon/auditlog"
	"modsecmon/reputation"
	"modsecmon/verdict"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestDecisionMade(t *testing.T) {
	assert := assert.New(t)

	m := New()
	m.DecisionMade(verdict.Block, verdict.ReasonFlagged, 20*time.Millisecond)
	m.DecisionMade(verdict.Block, verdict.ReasonBanned, time.Millisecond)
	m.DecisionMade(verdict.Block, verdict.ReasonFlagged, 30*time.Millisecond)

	assert.Equal(2.0, testutil.ToFloat64(m.decisions.WithLabelValues("BLOCK", "flagged")))
	assert.Equal(1.0, testutil.ToFloat64(m.decisions.WithLabelValues("BLOCK", "banned")))
}

func TestQueryDone(t *testing.T) {
	assert := assert.New(t)

	m := New()
	m.QueryDone(reputation.VirusTotal, reputation.OutcomeOK, time.Second)
	m.QueryDone(reputation.VirusTotal, reputation.OutcomeStatus, time.Second)

	assert.Equal(1.0, testutil.ToFloat64(m.providerQueries.WithLabelValues("virustotal", "bad_status")))
	assert.Equal(1, testutil.CollectAndCount(m.providerDuration))
}

func TestAuditPassDoneTextfile(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	m := New()
	path := filepath.Join(t.TempDir(), "modsecmon.prom")

	// Act
	m.AuditPassDone(auditlog.Stats{Lines: 40, Opened: 4, Emitted: 3, Dropped: 1}, time.Unix(1700000000, 0))
	err := m.WriteTextfile(path)

	// Assert
	assert.Nil(err)
	b, err := os.ReadFile(path)
	assert.Nil(err)
	out := string(b)
	assert.True(strings.Contains(out, `modsecmon_audit_transactions_total{result="emitted"} 3`))
	assert.True(strings.Contains(out, `modsecmon_audit_transactions_total{result="dropped"} 1`))
	assert.True(strings.Contains(out, "modsecmon_audit_lines_total 40"))
}

func TestHandler(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	m := New()
	m.DecisionMade(verdict.Allow, verdict.ReasonAllowlisted, time.Millisecond)
	rec := httptest.NewRecorder()

	// Act
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	// Assert
	assert.Equal(200, rec.Code)
	b, _ := ioutil.ReadAll(rec.Body)
	assert.True(strings.Contains(string(b), `modsecmon_decisions_total{reason="allowlisted",verdict="ALLOW"} 1`))
}
