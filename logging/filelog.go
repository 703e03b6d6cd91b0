package logging

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"modsecmon/verdict"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	operationName = "IPReputationCheck"
	category      = "ModSecurityThreatMonitorLog"
)

// FileResultsLogger appends one JSON line per decision to a file.
type FileResultsLogger struct {
	file     ResultsFile
	logger   zerolog.Logger
	hostname string
	now      func() time.Time
	mu       sync.Mutex
}

// NewFileResultsLogger opens (or creates) the results log at path.
func NewFileResultsLogger(fileSystem ResultsFileSystem, path string, logger zerolog.Logger) (*FileResultsLogger, error) {
	r := &FileResultsLogger{logger: logger, now: time.Now}
	r.hostname, _ = os.Hostname()

	dir := filepath.Dir(path)
	if err := fileSystem.MkDir(dir); err != nil {
		logger.Error().Err(err).Str("path", dir).Msg("Failed to create the directory while initializing")
		return nil, err
	}

	f, err := fileSystem.Open(path)
	if err != nil {
		logger.Error().Err(err).Str("file", path).Msg("Failed to open the file at initiation")
		return nil, err
	}
	r.file = f

	return r, nil
}

// VerdictIssued writes the decision. Write errors are logged, never returned.
func (l *FileResultsLogger) VerdictIssued(d verdict.Decision) {
	lg := &decisionLogEntry{
		Time:          l.now().UTC().Format(time.RFC3339),
		OperationName: operationName,
		Category:      category,
		Properties: decisionLogProperty{
			ClientIP:       d.Address,
			Action:         string(d.Verdict),
			Reason:         string(d.Reason),
			FlaggedVendors: d.FlaggedVendors,
			TotalFlags:     d.TotalFlags,
			Signals:        d.Signals,
			Country:        d.Country,
			Hostname:       l.hostname,
		},
	}

	bb, err := json.Marshal(lg)
	if err != nil {
		l.logger.Error().Err(err).Msg("Error while marshaling JSON results log")
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err = l.file.Append(append(bb, '\n')); err != nil {
		l.logger.Error().Err(err).Msg("Error while writing results log")
	}
}

// Close closes the results log.
func (l *FileResultsLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
