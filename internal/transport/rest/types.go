package rest

import (
	"time"

	"smpserver/internal/smp/models"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
)

// Transport DTOs. Identifiers travel as full "scheme::value" strings; the
// participant and document type of a resource come from the URL, so request
// bodies never repeat them.

type createServiceGroupRequest struct {
	OwnerID   string `json:"owner_id,omitempty"`
	Extension string `json:"extension,omitempty"`
}

type serviceGroupResponse struct {
	ParticipantID string    `json:"participant_id"`
	OwnerID       string    `json:"owner_id"`
	Extension     string    `json:"extension,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toServiceGroupResponse(sg models.ServiceGroup) serviceGroupResponse {
	return serviceGroupResponse{
		ParticipantID: sg.Participant.String(),
		OwnerID:       sg.OwnerID,
		Extension:     sg.Extension,
		CreatedAt:     sg.CreatedAt,
		UpdatedAt:     sg.UpdatedAt,
	}
}

type endpointPayload struct {
	TransportProfile              string     `json:"transport_profile"`
	Address                       string     `json:"address"`
	RequireBusinessLevelSignature bool       `json:"require_business_level_signature,omitempty"`
	Certificate                   string     `json:"certificate,omitempty"`
	ServiceActivation             *time.Time `json:"service_activation,omitempty"`
	ServiceExpiration             *time.Time `json:"service_expiration,omitempty"`
	TechnicalContactURL           string     `json:"technical_contact_url,omitempty"`
	Description                   string     `json:"description,omitempty"`
	Extension                     string     `json:"extension,omitempty"`
}

type processPayload struct {
	ProcessID string            `json:"process_id"`
	Endpoints []endpointPayload `json:"endpoints"`
	Extension string            `json:"extension,omitempty"`
}

type serviceInformationRequest struct {
	Processes []processPayload `json:"processes"`
	Extension string           `json:"extension,omitempty"`
}

type serviceInformationResponse struct {
	ParticipantID  string           `json:"participant_id"`
	DocumentTypeID string           `json:"document_type_id"`
	Processes      []processPayload `json:"processes"`
	Extension      string           `json:"extension,omitempty"`
}

func (req serviceInformationRequest) toModel(
	f identifier.Factory,
	participant identifier.ParticipantIdentifier,
	docType identifier.DocumentTypeIdentifier,
) (models.ServiceInformation, error) {
	si := models.ServiceInformation{
		Participant:  participant,
		DocumentType: docType,
		Extension:    req.Extension,
	}
	for _, p := range req.Processes {
		procID, err := f.ParseProcess(p.ProcessID)
		if err != nil {
			return models.ServiceInformation{}, dErrors.Wrap(err, dErrors.CodeInvalidIdentifier, "invalid process identifier")
		}
		proc := models.Process{ID: procID, Extension: p.Extension}
		for _, ep := range p.Endpoints {
			proc.Endpoints = append(proc.Endpoints, models.Endpoint{
				TransportProfile:              ep.TransportProfile,
				Address:                       ep.Address,
				RequireBusinessLevelSignature: ep.RequireBusinessLevelSignature,
				Certificate:                   ep.Certificate,
				ServiceActivation:             ep.ServiceActivation,
				ServiceExpiration:             ep.ServiceExpiration,
				TechnicalContactURL:           ep.TechnicalContactURL,
				Description:                   ep.Description,
				Extension:                     ep.Extension,
			})
		}
		si.Processes = append(si.Processes, proc)
	}
	return si, nil
}

func toServiceInformationResponse(si models.ServiceInformation) serviceInformationResponse {
	resp := serviceInformationResponse{
		ParticipantID:  si.Participant.String(),
		DocumentTypeID: si.DocumentType.String(),
		Extension:      si.Extension,
	}
	for _, p := range si.Processes {
		proc := processPayload{ProcessID: p.ID.String(), Extension: p.Extension}
		for _, ep := range p.Endpoints {
			proc.Endpoints = append(proc.Endpoints, endpointPayload{
				TransportProfile:              ep.TransportProfile,
				Address:                       ep.Address,
				RequireBusinessLevelSignature: ep.RequireBusinessLevelSignature,
				Certificate:                   ep.Certificate,
				ServiceActivation:             ep.ServiceActivation,
				ServiceExpiration:             ep.ServiceExpiration,
				TechnicalContactURL:           ep.TechnicalContactURL,
				Description:                   ep.Description,
				Extension:                     ep.Extension,
			})
		}
		resp.Processes = append(resp.Processes, proc)
	}
	return resp
}

type redirectRequest struct {
	TargetURL       string `json:"target_url"`
	SubjectUniqueID string `json:"subject_unique_id,omitempty"`
	Extension       string `json:"extension,omitempty"`
}

type redirectResponse struct {
	ParticipantID   string `json:"participant_id"`
	DocumentTypeID  string `json:"document_type_id"`
	TargetURL       string `json:"target_url"`
	SubjectUniqueID string `json:"subject_unique_id,omitempty"`
	Extension       string `json:"extension,omitempty"`
}

func toRedirectResponse(red models.Redirect) redirectResponse {
	return redirectResponse{
		ParticipantID:   red.Participant.String(),
		DocumentTypeID:  red.DocumentType.String(),
		TargetURL:       red.TargetURL,
		SubjectUniqueID: red.SubjectUniqueID,
		Extension:       red.Extension,
	}
}

type businessIdentifierPayload struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

type businessContactPayload struct {
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Email       string `json:"email,omitempty"`
}

type businessEntityPayload struct {
	Name             string                      `json:"name"`
	CountryCode      string                      `json:"country_code"`
	GeographicalInfo string                      `json:"geographical_info,omitempty"`
	Identifiers      []businessIdentifierPayload `json:"identifiers,omitempty"`
	Websites         []string                    `json:"websites,omitempty"`
	Contacts         []businessContactPayload    `json:"contacts,omitempty"`
	AdditionalInfo   string                      `json:"additional_info,omitempty"`
	RegistrationDate *time.Time                  `json:"registration_date,omitempty"`
}

type businessCardRequest struct {
	Entities []businessEntityPayload `json:"entities"`
}

type businessCardResponse struct {
	ParticipantID string                  `json:"participant_id"`
	Entities      []businessEntityPayload `json:"entities"`
}

func (req businessCardRequest) toModel(participant identifier.ParticipantIdentifier) models.BusinessCard {
	bc := models.BusinessCard{Participant: participant}
	for _, e := range req.Entities {
		entity := models.BusinessEntity{
			Name:             e.Name,
			CountryCode:      e.CountryCode,
			GeographicalInfo: e.GeographicalInfo,
			Websites:         e.Websites,
			AdditionalInfo:   e.AdditionalInfo,
			RegistrationDate: e.RegistrationDate,
		}
		for _, id := range e.Identifiers {
			entity.Identifiers = append(entity.Identifiers, models.BusinessIdentifier{Scheme: id.Scheme, Value: id.Value})
		}
		for _, c := range e.Contacts {
			entity.Contacts = append(entity.Contacts, models.BusinessContact{
				Type:        c.Type,
				Name:        c.Name,
				PhoneNumber: c.PhoneNumber,
				Email:       c.Email,
			})
		}
		bc.Entities = append(bc.Entities, entity)
	}
	return bc
}

func toBusinessCardResponse(bc models.BusinessCard) businessCardResponse {
	resp := businessCardResponse{ParticipantID: bc.Participant.String()}
	for _, e := range bc.Entities {
		entity := businessEntityPayload{
			Name:             e.Name,
			CountryCode:      e.CountryCode,
			GeographicalInfo: e.GeographicalInfo,
			Websites:         e.Websites,
			AdditionalInfo:   e.AdditionalInfo,
			RegistrationDate: e.RegistrationDate,
		}
		for _, id := range e.Identifiers {
			entity.Identifiers = append(entity.Identifiers, businessIdentifierPayload{Scheme: id.Scheme, Value: id.Value})
		}
		for _, c := range e.Contacts {
			entity.Contacts = append(entity.Contacts, businessContactPayload{
				Type:        c.Type,
				Name:        c.Name,
				PhoneNumber: c.PhoneNumber,
				Email:       c.Email,
			})
		}
		resp.Entities = append(resp.Entities, entity)
	}
	return resp
}

type createMigrationRequest struct {
	ParticipantID string `json:"participant_id"`
	MigrationKey  string `json:"migration_key,omitempty"`
}

type finalizeInboundRequest struct {
	Extension string `json:"extension,omitempty"`
}

type migrationResponse struct {
	ID            string    `json:"id"`
	Direction     string    `json:"direction"`
	ParticipantID string    `json:"participant_id"`
	State         string    `json:"state"`
	MigrationKey  string    `json:"migration_key"`
	InitiatedAt   time.Time `json:"initiated_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toMigrationResponse(m models.Migration) migrationResponse {
	return migrationResponse{
		ID:            m.ID,
		Direction:     string(m.Direction),
		ParticipantID: m.Participant.String(),
		State:         string(m.State),
		MigrationKey:  m.MigrationKey,
		InitiatedAt:   m.InitiatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
