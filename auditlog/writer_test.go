package auditlog

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
)

func TestRecordWriterEmpty(t *testing.T) {
	assert := assert.New(t)

	var b bytes.Buffer
	rw := NewRecordWriter(&b)

	assert.Nil(rw.Close())
	assert.Equal("[]\n", b.String())
}

func TestRecordWriterProducesJSONArray(t *testing.T) {
	assert := assert.New(t)

	// Arrange
	var b bytes.Buffer
	rw := NewRecordWriter(&b)
	in := []Record{
		{UniqueID: "a", ClientIP: "1.2.3.4", Timestamp: Unknown, RequestLine: "GET / HTTP/1.1", Messages: []string{"m"}, RuleIDs: []string{"1"}, Severities: []string{"NOTICE"}, ThreatScore: 2},
		{UniqueID: "b", ClientIP: Unknown, Timestamp: Unknown, RequestLine: Unknown, Messages: []string{}, RuleIDs: []string{}, Severities: []string{}},
	}

	// Act
	for _, rec := range in {
		assert.Nil(rw.Write(rec))
	}
	assert.Nil(rw.Close())

	// Assert
	var out []Record
	assert.Nil(json.Unmarshal(b.Bytes(), &out))
	assert.Equal(in, out)
	assert.Equal(2, rw.Count())
	assert.Contains(b.String(), "\"messages\": []")
	assert.True(bytes.HasPrefix(b.Bytes(), []byte("[\n  {\n    \"unique_id\": \"a\"")))
}
