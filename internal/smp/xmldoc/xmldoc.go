// Package xmldoc holds the XML element vocabulary shared by the file
// backend and the exchange subsystem. The shapes mirror the OASIS SMP
// element names so the documents stay readable next to wire-level SMP
// responses.
package xmldoc

import (
	"fmt"
	"time"

	"smpserver/internal/smp/models"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
)

type IdentifierElem struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type ServiceGroupElem struct {
	ParticipantIdentifier IdentifierElem    `xml:"ParticipantIdentifier"`
	OwnerID               string            `xml:"ownerID,attr"`
	CreatedAt             string            `xml:"createdAt,attr,omitempty"`
	UpdatedAt             string            `xml:"updatedAt,attr,omitempty"`
	Extension             string            `xml:"Extension,omitempty"`
	ServiceInformation    []ServiceInfoElem `xml:"ServiceInformation"`
	Redirects             []RedirectElem    `xml:"Redirect"`
	BusinessCard          *BusinessCardElem `xml:"BusinessCard"`
}

type ServiceInfoElem struct {
	DocumentIdentifier IdentifierElem `xml:"DocumentIdentifier"`
	Processes          []ProcessElem  `xml:"ProcessList>Process"`
	Extension          string         `xml:"Extension,omitempty"`
}

type ProcessElem struct {
	ProcessIdentifier IdentifierElem `xml:"ProcessIdentifier"`
	Endpoints         []EndpointElem `xml:"ServiceEndpointList>Endpoint"`
	Extension         string         `xml:"Extension,omitempty"`
}

type EndpointElem struct {
	TransportProfile              string `xml:"transportProfile,attr"`
	EndpointURI                   string `xml:"EndpointURI"`
	RequireBusinessLevelSignature bool   `xml:"RequireBusinessLevelSignature"`
	Certificate                   string `xml:"Certificate,omitempty"`
	ServiceActivationDate         string `xml:"ServiceActivationDate,omitempty"`
	ServiceExpirationDate         string `xml:"ServiceExpirationDate,omitempty"`
	TechnicalContactUrl           string `xml:"TechnicalContactUrl,omitempty"`
	ServiceDescription            string `xml:"ServiceDescription,omitempty"`
	Extension                     string `xml:"Extension,omitempty"`
}

type RedirectElem struct {
	DocumentIdentifier IdentifierElem `xml:"DocumentIdentifier"`
	Href               string         `xml:"href,attr"`
	CertificateUID     string         `xml:"certificateUID,attr,omitempty"`
	Extension          string         `xml:"Extension,omitempty"`
}

type BusinessCardElem struct {
	Entities []BusinessEntityElem `xml:"BusinessEntity"`
}

type BusinessEntityElem struct {
	Name             string           `xml:"Name"`
	CountryCode      string           `xml:"CountryCode"`
	GeographicalInfo string           `xml:"GeographicalInformation,omitempty"`
	Identifiers      []IdentifierElem `xml:"Identifier"`
	Websites         []string         `xml:"WebsiteURI"`
	Contacts         []ContactElem    `xml:"Contact"`
	AdditionalInfo   string           `xml:"AdditionalInformation,omitempty"`
	RegistrationDate string           `xml:"RegistrationDate,omitempty"`
}

type ContactElem struct {
	Type        string `xml:"type,attr,omitempty"`
	Name        string `xml:"Name,omitempty"`
	PhoneNumber string `xml:"PhoneNumber,omitempty"`
	Email       string `xml:"Email,omitempty"`
}

type MigrationElem struct {
	ID           string         `xml:"id,attr"`
	Direction    string         `xml:"direction,attr"`
	State        string         `xml:"state,attr"`
	MigrationKey string         `xml:"migrationKey,attr"`
	InitiatedAt  string         `xml:"initiatedAt,attr"`
	UpdatedAt    string         `xml:"updatedAt,attr"`
	Participant  IdentifierElem `xml:"ParticipantIdentifier"`
}

// --- model -> element ---

func ToIdentifierElem(scheme, value string) IdentifierElem {
	return IdentifierElem{Scheme: scheme, Value: value}
}

// FormatTime renders a timestamp as RFC 3339 in UTC; the zero time renders
// as the empty string so omitempty attributes drop it.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ToServiceGroupElem renders the service group record itself; children are
// appended by the caller.
func ToServiceGroupElem(sg models.ServiceGroup) ServiceGroupElem {
	return ServiceGroupElem{
		ParticipantIdentifier: ToIdentifierElem(sg.Participant.Scheme, sg.Participant.Value),
		OwnerID:               sg.OwnerID,
		CreatedAt:             FormatTime(sg.CreatedAt),
		UpdatedAt:             FormatTime(sg.UpdatedAt),
		Extension:             sg.Extension,
	}
}

func ToServiceInfoElem(si models.ServiceInformation) ServiceInfoElem {
	e := ServiceInfoElem{
		DocumentIdentifier: ToIdentifierElem(si.DocumentType.Scheme, si.DocumentType.Value),
		Extension:          si.Extension,
	}
	for _, p := range si.Processes {
		pe := ProcessElem{
			ProcessIdentifier: ToIdentifierElem(p.ID.Scheme, p.ID.Value),
			Extension:         p.Extension,
		}
		for _, ep := range p.Endpoints {
			pe.Endpoints = append(pe.Endpoints, EndpointElem{
				TransportProfile:              ep.TransportProfile,
				EndpointURI:                   ep.Address,
				RequireBusinessLevelSignature: ep.RequireBusinessLevelSignature,
				Certificate:                   ep.Certificate,
				ServiceActivationDate:         FormatTimePtr(ep.ServiceActivation),
				ServiceExpirationDate:         FormatTimePtr(ep.ServiceExpiration),
				TechnicalContactUrl:           ep.TechnicalContactURL,
				ServiceDescription:            ep.Description,
				Extension:                     ep.Extension,
			})
		}
		e.Processes = append(e.Processes, pe)
	}
	return e
}

func ToRedirectElem(r models.Redirect) RedirectElem {
	return RedirectElem{
		DocumentIdentifier: ToIdentifierElem(r.DocumentType.Scheme, r.DocumentType.Value),
		Href:               r.TargetURL,
		CertificateUID:     r.SubjectUniqueID,
		Extension:          r.Extension,
	}
}

func ToBusinessCardElem(bc models.BusinessCard) *BusinessCardElem {
	e := &BusinessCardElem{}
	for _, ent := range bc.Entities {
		be := BusinessEntityElem{
			Name:             ent.Name,
			CountryCode:      ent.CountryCode,
			GeographicalInfo: ent.GeographicalInfo,
			Websites:         append([]string(nil), ent.Websites...),
			AdditionalInfo:   ent.AdditionalInfo,
			RegistrationDate: FormatTimePtr(ent.RegistrationDate),
		}
		for _, id := range ent.Identifiers {
			be.Identifiers = append(be.Identifiers, IdentifierElem{Scheme: id.Scheme, Value: id.Value})
		}
		for _, c := range ent.Contacts {
			be.Contacts = append(be.Contacts, ContactElem{
				Type: c.Type, Name: c.Name, PhoneNumber: c.PhoneNumber, Email: c.Email,
			})
		}
		e.Entities = append(e.Entities, be)
	}
	return e
}

func ToMigrationElem(m models.Migration) MigrationElem {
	return MigrationElem{
		ID:           m.ID,
		Direction:    string(m.Direction),
		State:        string(m.State),
		MigrationKey: m.MigrationKey,
		InitiatedAt:  FormatTime(m.InitiatedAt),
		UpdatedAt:    FormatTime(m.UpdatedAt),
		Participant:  ToIdentifierElem(m.Participant.Scheme, m.Participant.Value),
	}
}

// --- element -> model ---

func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func ParseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FromServiceGroupElem parses the service group record itself; children are
// handled by the caller.
func FromServiceGroupElem(f identifier.Factory, e ServiceGroupElem) (*models.ServiceGroup, error) {
	participant, err := f.Participant(e.ParticipantIdentifier.Scheme, e.ParticipantIdentifier.Value)
	if err != nil {
		return nil, err
	}
	createdAt, err := ParseTime(e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("service group %s createdAt: %w", participant, err)
	}
	updatedAt, err := ParseTime(e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("service group %s updatedAt: %w", participant, err)
	}
	return &models.ServiceGroup{
		Participant: participant,
		OwnerID:     e.OwnerID,
		Extension:   e.Extension,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func FromServiceInfoElem(f identifier.Factory, participant identifier.ParticipantIdentifier, e ServiceInfoElem) (*models.ServiceInformation, error) {
	docType, err := f.DocumentType(e.DocumentIdentifier.Scheme, e.DocumentIdentifier.Value)
	if err != nil {
		return nil, err
	}
	si := &models.ServiceInformation{
		Participant:  participant,
		DocumentType: docType,
		Extension:    e.Extension,
	}
	for _, pe := range e.Processes {
		procID, err := f.Process(pe.ProcessIdentifier.Scheme, pe.ProcessIdentifier.Value)
		if err != nil {
			return nil, err
		}
		proc := models.Process{ID: procID, Extension: pe.Extension}
		for _, ee := range pe.Endpoints {
			activation, err := ParseTimePtr(ee.ServiceActivationDate)
			if err != nil {
				return nil, fmt.Errorf("endpoint activation date: %w", err)
			}
			expiration, err := ParseTimePtr(ee.ServiceExpirationDate)
			if err != nil {
				return nil, fmt.Errorf("endpoint expiration date: %w", err)
			}
			proc.Endpoints = append(proc.Endpoints, models.Endpoint{
				TransportProfile:              ee.TransportProfile,
				Address:                       ee.EndpointURI,
				RequireBusinessLevelSignature: ee.RequireBusinessLevelSignature,
				Certificate:                   ee.Certificate,
				ServiceActivation:             activation,
				ServiceExpiration:             expiration,
				TechnicalContactURL:           ee.TechnicalContactUrl,
				Description:                   ee.ServiceDescription,
				Extension:                     ee.Extension,
			})
		}
		si.Processes = append(si.Processes, proc)
	}
	return si, nil
}

func FromRedirectElem(f identifier.Factory, participant identifier.ParticipantIdentifier, e RedirectElem) (*models.Redirect, error) {
	docType, err := f.DocumentType(e.DocumentIdentifier.Scheme, e.DocumentIdentifier.Value)
	if err != nil {
		return nil, err
	}
	return &models.Redirect{
		Participant:     participant,
		DocumentType:    docType,
		TargetURL:       e.Href,
		SubjectUniqueID: e.CertificateUID,
		Extension:       e.Extension,
	}, nil
}

func FromBusinessCardElem(participant identifier.ParticipantIdentifier, e *BusinessCardElem) (*models.BusinessCard, error) {
	bc := &models.BusinessCard{Participant: participant}
	for _, be := range e.Entities {
		regDate, err := ParseTimePtr(be.RegistrationDate)
		if err != nil {
			return nil, fmt.Errorf("business entity registration date: %w", err)
		}
		ent := models.BusinessEntity{
			Name:             be.Name,
			CountryCode:      be.CountryCode,
			GeographicalInfo: be.GeographicalInfo,
			Websites:         append([]string(nil), be.Websites...),
			AdditionalInfo:   be.AdditionalInfo,
			RegistrationDate: regDate,
		}
		for _, id := range be.Identifiers {
			ent.Identifiers = append(ent.Identifiers, models.BusinessIdentifier{Scheme: id.Scheme, Value: id.Value})
		}
		for _, c := range be.Contacts {
			ent.Contacts = append(ent.Contacts, models.BusinessContact{
				Type: c.Type, Name: c.Name, PhoneNumber: c.PhoneNumber, Email: c.Email,
			})
		}
		bc.Entities = append(bc.Entities, ent)
	}
	return bc, nil
}

func FromMigrationElem(f identifier.Factory, e MigrationElem) (*models.Migration, error) {
	participant, err := f.Participant(e.Participant.Scheme, e.Participant.Value)
	if err != nil {
		return nil, err
	}
	direction := models.MigrationDirection(e.Direction)
	if !direction.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown migration direction %q", e.Direction)
	}
	initiatedAt, err := ParseTime(e.InitiatedAt)
	if err != nil {
		return nil, fmt.Errorf("migration initiatedAt: %w", err)
	}
	updatedAt, err := ParseTime(e.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("migration updatedAt: %w", err)
	}
	return &models.Migration{
		ID:           e.ID,
		Direction:    direction,
		Participant:  participant,
		State:        models.MigrationState(e.State),
		MigrationKey: e.MigrationKey,
		InitiatedAt:  initiatedAt,
		UpdatedAt:    updatedAt,
	}, nil
}
