// Package models holds the value records of the service-metadata registry.
// Records are immutable by convention: stores return copies, and loading a
// service group's children is an explicit query on the relevant store.
package models

import (
	"time"

	"smpserver/pkg/identifier"
)

// ServiceGroup is the root registry record for one participant. It owns at
// most one ServiceInformation or Redirect per document type (never both) and
// has exactly one owning account.
type ServiceGroup struct {
	Participant identifier.ParticipantIdentifier
	OwnerID     string
	// Extension is an opaque caller-supplied blob stored verbatim.
	Extension string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Endpoint describes one technical endpoint of a process. Certificate and
// the activation/expiration window are passed through opaquely; the core
// performs no certificate validation.
type Endpoint struct {
	TransportProfile              string
	Address                       string
	RequireBusinessLevelSignature bool
	Certificate                   string
	ServiceActivation             *time.Time
	ServiceExpiration             *time.Time
	TechnicalContactURL           string
	Description                   string
	Extension                     string
}

// Process groups the endpoints serving one business process. Endpoint order
// is insertion order and is preserved by every backend.
type Process struct {
	ID        identifier.ProcessIdentifier
	Endpoints []Endpoint
	Extension string
}

// ServiceInformation is the full registration of a document type under a
// service group: the process list with their endpoints.
type ServiceInformation struct {
	Participant  identifier.ParticipantIdentifier
	DocumentType identifier.DocumentTypeIdentifier
	Processes    []Process
	Extension    string
}

// Redirect points callers to another SMP that is authoritative for the
// given document type. Mutually exclusive with a ServiceInformation for the
// same (participant, document type) key.
type Redirect struct {
	Participant  identifier.ParticipantIdentifier
	DocumentType identifier.DocumentTypeIdentifier
	TargetURL    string
	// SubjectUniqueID hints at the certificate subject of the target SMP.
	SubjectUniqueID string
	Extension       string
}

// BusinessIdentifier is an additional identifier listed on a business card.
type BusinessIdentifier struct {
	Scheme string
	Value  string
}

// BusinessContact is a human contact listed on a business card.
type BusinessContact struct {
	Type        string
	Name        string
	PhoneNumber string
	Email       string
}

// BusinessEntity is one named entity on a business card.
type BusinessEntity struct {
	Name             string
	CountryCode      string
	GeographicalInfo string
	Identifiers      []BusinessIdentifier
	Websites         []string
	Contacts         []BusinessContact
	AdditionalInfo   string
	RegistrationDate *time.Time
}

// BusinessCard is optional human-readable metadata attached 1:1 to a
// service group. Its lifecycle is independent of ServiceInformation.
type BusinessCard struct {
	Participant identifier.ParticipantIdentifier
	Entities    []BusinessEntity
}

// Ownership maps an account to a service group it owns. The core model
// keeps one owner per service group; the relational backend additionally
// carries this table for multi-owner deployments.
type Ownership struct {
	OwnerID     string
	Participant identifier.ParticipantIdentifier
}
