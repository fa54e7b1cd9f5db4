// Package exchange implements bulk transfer of the whole registry: a
// versioned XML export for backup and migration between backends, and the
// matching import with a per-participant action log.
package exchange

import (
	"encoding/xml"
	"time"

	"smpserver/internal/smp/xmldoc"
	dErrors "smpserver/pkg/domain-errors"
)

// Version is the only exchange document format understood. Documents with
// any other version attribute are rejected outright; there is no best-effort
// parsing of unknown versions.
const Version = "1.0"

// Document is the self-describing export of every service group with its
// service information, redirects, and business card.
type Document struct {
	XMLName       xml.Name                  `xml:"registry-export"`
	Version       string                    `xml:"version,attr"`
	ServiceGroups []xmldoc.ServiceGroupElem `xml:"ServiceGroup"`
}

// CheckVersion rejects documents of any version but the supported one.
func (d *Document) CheckVersion() error {
	if d.Version != Version {
		return dErrors.Newf(dErrors.CodeBadRequest,
			"unsupported exchange document version %q", d.Version)
	}
	return nil
}

// Level classifies one import action.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Action is one entry of the import log: one participant processed, with
// severity, timestamp, and the underlying error detail when present.
type Action struct {
	Level         Level  `xml:"level,attr"`
	Timestamp     string `xml:"datetime,attr"`
	ParticipantID string `xml:"participantID,attr,omitempty"`
	Message       string `xml:"message"`
	Exception     string `xml:"exception,omitempty"`
}

// Summary aggregates the import outcome.
type Summary struct {
	DurationMillis int64 `xml:"durationMillis,attr"`
	InfoCount      int   `xml:"infoCount,attr"`
	WarningCount   int   `xml:"warningCount,attr"`
	ErrorCount     int   `xml:"errorCount,attr"`
}

// Result is the ordered action log of one import. It is the sole
// success/failure signal back to the caller; there is no implicit
// all-or-nothing transaction across the whole import.
type Result struct {
	XMLName xml.Name `xml:"import-result"`
	Version string   `xml:"version,attr"`
	Actions []Action `xml:"action"`
	Summary Summary  `xml:"summary"`
}

func (r *Result) log(level Level, participantID, message, exception string) {
	r.Actions = append(r.Actions, Action{
		Level:         level,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		ParticipantID: participantID,
		Message:       message,
		Exception:     exception,
	})
	switch level {
	case LevelInfo:
		r.Summary.InfoCount++
	case LevelWarning:
		r.Summary.WarningCount++
	case LevelError:
		r.Summary.ErrorCount++
	}
}
