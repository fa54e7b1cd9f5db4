// Package identifier implements the schemed identifiers used across the
// registry: participants, document types, and processes. An identifier is a
// (scheme, value) pair with the textual form "scheme::value". Parsing
// validates per-scheme rules and produces the canonical form used as the
// storage and lookup key; equality is case-sensitive on the canonical form.
package identifier

import (
	"fmt"
	"regexp"
	"strings"

	dErrors "smpserver/pkg/domain-errors"
)

// Separator joins scheme and value in the textual form accepted at the
// boundary, e.g. "iso6523-actorid-upis::9915:test".
const Separator = "::"

// Well-known schemes of the eDelivery network.
const (
	SchemeParticipantISO6523 = "iso6523-actorid-upis"
	SchemeDocumentTypeBusdox = "busdox-docid-qns"
	SchemeProcessCenbii      = "cenbii-procid-ubl"
)

// Per-scheme limits. Document type values carry full customization IDs and
// are therefore much longer than participant values.
const (
	maxSchemeLen            = 25
	maxParticipantValueLen  = 135
	maxDocumentTypeValueLen = 500
	maxProcessValueLen      = 200
)

// schemePattern is the lowercase dash-separated shape shared by all
// registered identifier schemes.
var schemePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)+$`)

// ParticipantIdentifier uniquely identifies a participant.
type ParticipantIdentifier struct {
	Scheme string
	Value  string
}

// DocumentTypeIdentifier classifies a document kind under a service group.
type DocumentTypeIdentifier struct {
	Scheme string
	Value  string
}

// ProcessIdentifier classifies the business process an endpoint serves.
type ProcessIdentifier struct {
	Scheme string
	Value  string
}

func (p ParticipantIdentifier) String() string  { return p.Scheme + Separator + p.Value }
func (d DocumentTypeIdentifier) String() string { return d.Scheme + Separator + d.Value }
func (p ProcessIdentifier) String() string      { return p.Scheme + Separator + p.Value }

func (p ParticipantIdentifier) IsZero() bool  { return p.Scheme == "" && p.Value == "" }
func (d DocumentTypeIdentifier) IsZero() bool { return d.Scheme == "" && d.Value == "" }

// Factory parses and validates identifiers. The zero Factory enforces
// registered-scheme validation; AllowUnverified admits syntactically sound
// identifiers with unknown schemes for deployments outside the default
// network policy.
type Factory struct {
	AllowUnverified bool
}

// ParseParticipant parses the textual "scheme::value" form into a validated
// participant identifier in canonical form.
func (f Factory) ParseParticipant(s string) (ParticipantIdentifier, error) {
	scheme, value, err := f.split(s)
	if err != nil {
		return ParticipantIdentifier{}, err
	}
	return f.Participant(scheme, value)
}

// Participant validates a (scheme, value) pair. Participant values are
// case-insensitive on the wire and are lowercased into canonical form.
func (f Factory) Participant(scheme, value string) (ParticipantIdentifier, error) {
	if err := f.checkScheme(scheme); err != nil {
		return ParticipantIdentifier{}, err
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if err := checkValue(value, maxParticipantValueLen); err != nil {
		return ParticipantIdentifier{}, err
	}
	return ParticipantIdentifier{Scheme: scheme, Value: value}, nil
}

// ParseDocumentType parses the textual form of a document type identifier.
func (f Factory) ParseDocumentType(s string) (DocumentTypeIdentifier, error) {
	scheme, value, err := f.split(s)
	if err != nil {
		return DocumentTypeIdentifier{}, err
	}
	return f.DocumentType(scheme, value)
}

// DocumentType validates a (scheme, value) pair. Document type values are
// case-sensitive and kept verbatim.
func (f Factory) DocumentType(scheme, value string) (DocumentTypeIdentifier, error) {
	if err := f.checkScheme(scheme); err != nil {
		return DocumentTypeIdentifier{}, err
	}
	if err := checkValue(value, maxDocumentTypeValueLen); err != nil {
		return DocumentTypeIdentifier{}, err
	}
	return DocumentTypeIdentifier{Scheme: scheme, Value: value}, nil
}

// ParseProcess parses the textual form of a process identifier.
func (f Factory) ParseProcess(s string) (ProcessIdentifier, error) {
	scheme, value, err := f.split(s)
	if err != nil {
		return ProcessIdentifier{}, err
	}
	return f.Process(scheme, value)
}

// Process validates a (scheme, value) pair for a process identifier.
func (f Factory) Process(scheme, value string) (ProcessIdentifier, error) {
	if err := f.checkScheme(scheme); err != nil {
		return ProcessIdentifier{}, err
	}
	if err := checkValue(value, maxProcessValueLen); err != nil {
		return ProcessIdentifier{}, err
	}
	return ProcessIdentifier{Scheme: scheme, Value: value}, nil
}

// registeredSchemes are the schemes accepted without AllowUnverified.
var registeredSchemes = map[string]struct{}{
	SchemeParticipantISO6523: {},
	SchemeDocumentTypeBusdox: {},
	SchemeProcessCenbii:      {},
	"busdox-actorid-upis":    {},
	"bdx-docid-qns":          {},
	"connectivity-partid":    {},
	"connectivity-docid":     {},
	"connectivity-procid":    {},
}

func (f Factory) split(s string) (scheme, value string, err error) {
	scheme, value, ok := strings.Cut(s, Separator)
	if !ok {
		return "", "", dErrors.Newf(dErrors.CodeInvalidIdentifier,
			"identifier %q is missing the %q separator", s, Separator)
	}
	return scheme, value, nil
}

func (f Factory) checkScheme(scheme string) error {
	if scheme == "" {
		return dErrors.New(dErrors.CodeInvalidIdentifier, "identifier scheme is empty")
	}
	if len(scheme) > maxSchemeLen {
		return dErrors.Newf(dErrors.CodeInvalidIdentifier,
			"identifier scheme %q exceeds %d characters", scheme, maxSchemeLen)
	}
	if !schemePattern.MatchString(scheme) {
		return dErrors.Newf(dErrors.CodeInvalidIdentifier,
			"identifier scheme %q is malformed", scheme)
	}
	if _, ok := registeredSchemes[scheme]; !ok && !f.AllowUnverified {
		return dErrors.Newf(dErrors.CodeInvalidIdentifier,
			"identifier scheme %q is not registered", scheme)
	}
	return nil
}

func checkValue(value string, maxLen int) error {
	if value == "" {
		return dErrors.New(dErrors.CodeInvalidIdentifier, "identifier value is empty")
	}
	if len(value) > maxLen {
		return dErrors.Newf(dErrors.CodeInvalidIdentifier,
			"identifier value exceeds %d characters", maxLen)
	}
	for _, r := range value {
		if r < 0x20 || r == 0x7f {
			return dErrors.New(dErrors.CodeInvalidIdentifier,
				"identifier value contains control characters")
		}
	}
	return nil
}

// MustParticipant is a test/fixture helper that panics on invalid input.
func MustParticipant(s string) ParticipantIdentifier {
	p, err := Factory{}.ParseParticipant(s)
	if err != nil {
		panic(fmt.Sprintf("identifier: %v", err))
	}
	return p
}

// MustDocumentType is a test/fixture helper that panics on invalid input.
func MustDocumentType(s string) DocumentTypeIdentifier {
	d, err := Factory{}.ParseDocumentType(s)
	if err != nil {
		panic(fmt.Sprintf("identifier: %v", err))
	}
	return d
}

// MustProcess is a test/fixture helper that panics on invalid input.
func MustProcess(s string) ProcessIdentifier {
	p, err := Factory{}.ParseProcess(s)
	if err != nil {
		panic(fmt.Sprintf("identifier: %v", err))
	}
	return p
}
