package auditlog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ErrUnreadableInput is returned by Run when the input stream fails mid-read.
var ErrUnreadableInput = errors.New("audit log input is unreadable")

type state int

const (
	idle state = iota
	inA
	inB
	inH
	// inOther covers sections whose content is kept raw but never parsed (C, E, F, I, J, K, ...).
	inOther
)

// Stats counts what an Assembler has seen.
type Stats struct {
	Lines   int `json:"lines"`
	Opened  int `json:"opened"`
	Emitted int `json:"emitted"`
	Dropped int `json:"dropped"`
}

// Assembler rebuilds transactions from the line stream of a serial ModSecurity audit log.
// It holds at most one transaction at a time; one that is never closed by its Z marker is dropped.
// Section markers must carry the open transaction's id: a B, H or Z marker with another id drops it,
// so A(aaa) B H Z(bbb) yields no record.
type Assembler struct {
	logger zerolog.Logger
	state  state
	cur    *Transaction
	stats  Stats
}

// NewAssembler creates an Assembler in the idle state.
func NewAssembler(logger zerolog.Logger) *Assembler {
	return &Assembler{logger: logger}
}

// Feed consumes one line. ok is true when the line closed a transaction and rec holds its record.
func (a *Assembler) Feed(line string) (rec Record, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	a.stats.Lines++

	if m := rxMarker.FindStringSubmatch(line); m != nil {
		return a.marker(m[1], m[2])
	}

	if a.state == idle {
		return
	}

	a.cur.RawLines = append(a.cur.RawLines, line)
	switch a.state {
	case inB:
		a.cur.addBodyLine(line)
	case inH:
		a.cur.addMetadataLine(line)
	}
	return
}

func (a *Assembler) marker(id, section string) (rec Record, ok bool) {
	if section == "A" {
		if a.cur != nil {
			a.drop("transaction restarted before its Z marker")
		}
		a.cur = newTransaction(id)
		a.state = inA
		a.stats.Opened++
		return
	}

	if a.cur == nil {
		a.logger.Debug().Str("txid", id).Str("section", section).Msg("Section marker outside of a transaction")
		return
	}

	if id != a.cur.ID {
		a.logger.Debug().Str("txid", a.cur.ID).Str("markerTxid", id).Str("section", section).Msg("Section marker for a different transaction")
		a.drop("interleaved transaction")
		return
	}

	switch section {
	case "B":
		a.state = inB
	case "H":
		a.state = inH
	case "Z":
		rec, ok = a.cur.finalize(), true
		a.cur = nil
		a.state = idle
		a.stats.Emitted++
	default:
		a.state = inOther
	}
	return
}

func (a *Assembler) drop(reason string) {
	a.logger.Debug().Str("txid", a.cur.ID).Int("lines", len(a.cur.RawLines)).Str("reason", reason).Msg("Dropping unterminated transaction")
	a.cur = nil
	a.state = idle
	a.stats.Dropped++
}

// Close drops any transaction still open at the end of the stream and returns the final stats.
func (a *Assembler) Close() Stats {
	if a.cur != nil {
		a.drop("end of input")
	}
	return a.stats
}

// Stats returns the counters so far.
func (a *Assembler) Stats() Stats {
	return a.stats
}

// Run streams r through a new Assembler, calling emit for every completed record.
// Any error from emit stops the pass and is returned as is.
func Run(ctx context.Context, logger zerolog.Logger, r io.Reader, emit func(Record) error) (stats Stats, err error) {
	a := NewAssembler(logger)
	br := bufio.NewReaderSize(r, 64*1024)

	for {
		if a.stats.Lines%4096 == 0 {
			if err = ctx.Err(); err != nil {
				return a.Stats(), err
			}
		}

		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			if rec, ok := a.Feed(strings.ToValidUTF8(line, "")); ok {
				if err = emit(rec); err != nil {
					return a.Stats(), err
				}
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			err = fmt.Errorf("%w: %v", ErrUnreadableInput, readErr)
			return a.Stats(), err
		}
	}

	stats = a.Close()
	return
}
