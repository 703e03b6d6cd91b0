package main

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

const auditLog = `--a1b2c3d4-A--
[12/Mar/2024:10:00:00 +0000] YfZ1 198.51.100.7 51234 10.0.0.5 443
--a1b2c3d4-B--
GET /index.php?id=1' HTTP/1.1
Host: example.com
--a1b2c3d4-H--
Message: Warning. Pattern match [file "x.conf"] [id "942100"] [msg "SQL Injection Attack Detected via libinjection"] [severity "CRITICAL"]
Apache-Error: [client 198.51.100.7] ModSecurity: Warning. [id "942100"] [unique_id "YfZ1"]
--a1b2c3d4-Z--
--e5f6-A--
[12/Mar/2024:10:00:01 +0000] YfZ2 198.51.100.8 51235 10.0.0.5 443
--e5f6-B--
GET / HTTP/1.1
`

func TestRunConvertsLog(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	dir := t.TempDir()
	in := filepath.Join(dir, "modsec_audit.log")
	out := filepath.Join(dir, "www", "modsec_data.json")
	prom := filepath.Join(dir, "auditparse.prom")
	assert.Nil(ioutil.WriteFile(in, []byte(auditLog), 0644))
	var stderr bytes.Buffer

	// Act
	code := run([]string{"-in", in, "-out", out, "-metrics-textfile", prom}, &stderr)

	// Assert
	assert.Equal(exitOK, code, stderr.String())
	b, err := ioutil.ReadFile(out)
	assert.Nil(err)
	var recs []map[string]interface{}
	assert.Nil(json.Unmarshal(b, &recs))
	assert.Len(recs, 1)
	assert.Equal("YfZ1", recs[0]["unique_id"])
	assert.Equal("198.51.100.7", recs[0]["client_ip"])
	assert.Equal(10.0, recs[0]["threat_score"])

	b, err = ioutil.ReadFile(prom)
	assert.Nil(err)
	assert.True(strings.Contains(string(b), `modsecmon_audit_transactions_total{result="emitted"} 1`))
}

func TestRunBadConfig(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	dir := t.TempDir()
	cfg := filepath.Join(dir, "monitor.yaml")
	if err := ioutil.WriteFile(cfg, []byte("min_flagged_vendors: 0\n"), 0644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var stderr bytes.Buffer

	// Act
	code := run([]string{"-config", cfg, "-out", filepath.Join(dir, "out.json")}, &stderr)

	// Assert
	assert.Equal(exitConfig, code)
	assert.True(strings.Contains(stderr.String(), "Error while loading configuration"))
}

func TestRunMissingInput(t *testing.T) {
	assert := assert.New(t)

	dir := t.TempDir()
	var stderr bytes.Buffer

	code := run([]string{"-in", filepath.Join(dir, "absent.log"), "-out", filepath.Join(dir, "out.json")}, &stderr)

	assert.Equal(exitUnreadable, code)
}
