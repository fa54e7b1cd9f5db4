package rest

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"smpserver/internal/audit"
	"smpserver/internal/sml"
	"smpserver/internal/smp/exchange"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/service"
	"smpserver/internal/smp/store/memory"
	"smpserver/pkg/identifier"
)

const (
	testParticipant = "iso6523-actorid-upis::9915:test"
	testDocType     = "busdox-docid-qns::invoice"
	testOwner       = "owner@unit.test"
)

var testMetrics = smpmetrics.New()

// HandlerSuite exercises the HTTP layer against real in-memory stores.
type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func (s *HandlerSuite) SetupTest() {
	s.router = newRouter(s.T(), true)
}

func newRouter(t *testing.T, writable bool) http.Handler {
	t.Helper()
	backend := memory.NewBackend()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := audit.NewPublisher(audit.NewInMemoryStore(), logger)
	factory := identifier.Factory{}

	locks := service.NewLocks()
	groups := service.NewServiceGroupService(backend, sml.Noop{}, locks, publisher, testMetrics, logger)
	infos := service.NewServiceInformationService(backend, locks, publisher, testMetrics, logger)
	redirects := service.NewRedirectService(backend, locks, publisher, testMetrics, logger)
	cards := service.NewBusinessCardService(backend, publisher, logger)
	migrations := service.NewMigrationService(backend, groups, publisher, testMetrics, logger)
	exporter := exchange.NewExporter(backend, testMetrics, logger)
	importer := exchange.NewImporter(backend, factory, publisher, testMetrics, logger)

	h := New(logger, factory, groups, infos, redirects, cards, migrations, exporter, importer, writable)
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

// do executes a request as the given caller and returns the recorder.
func (s *HandlerSuite) do(method, target, user string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		req.Header.Set("X-SMP-User", user)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) doAdmin(method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(s.T(), err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("X-SMP-User", "admin@unit.test")
	req.Header.Set("X-SMP-Role", "admin")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) createServiceGroup() {
	rec := s.do(http.MethodPut, "/servicegroups/"+testParticipant, testOwner, nil)
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *HandlerSuite) serviceInfoBody() serviceInformationRequest {
	return serviceInformationRequest{
		Processes: []processPayload{{
			ProcessID: "cenbii-procid-ubl::bii04",
			Endpoints: []endpointPayload{{
				TransportProfile: "peppol-transport-as4-v2_0",
				Address:          "https://ap.unit.test/as4",
			}},
		}},
	}
}

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(s.T(), http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestCreateAndGetServiceGroup() {
	s.createServiceGroup()

	rec := s.do(http.MethodGet, "/servicegroups/"+testParticipant, "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp serviceGroupResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(s.T(), testParticipant, resp.ParticipantID)
	assert.Equal(s.T(), testOwner, resp.OwnerID)
}

func (s *HandlerSuite) TestServiceGroupPathEscaping() {
	s.createServiceGroup()

	// Percent-escaped separators resolve to the same group.
	rec := s.do(http.MethodGet, "/servicegroups/iso6523-actorid-upis%3A%3A9915%3Atest", "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	var resp serviceGroupResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(s.T(), testParticipant, resp.ParticipantID)

	// A literal percent sign in the value is decoded exactly once.
	const escaped = "iso6523-actorid-upis::9915:a%2541b"
	rec = s.do(http.MethodPut, "/servicegroups/"+escaped, testOwner, nil)
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/servicegroups/"+escaped, "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	resp = serviceGroupResponse{}
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(s.T(), "iso6523-actorid-upis::9915:a%41b", resp.ParticipantID)
}

func (s *HandlerSuite) TestCreateServiceGroup_DuplicateConflicts() {
	s.createServiceGroup()

	rec := s.do(http.MethodPut, "/servicegroups/"+testParticipant, testOwner, nil)
	assert.Equal(s.T(), http.StatusConflict, rec.Code)

	var body errorBody
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(s.T(), "conflict", body.Error)
}

func (s *HandlerSuite) TestCreateServiceGroup_InvalidIdentifier() {
	rec := s.do(http.MethodPut, "/servicegroups/not-an-identifier", testOwner, nil)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCreateServiceGroup_AnonymousRejected() {
	rec := s.do(http.MethodPut, "/servicegroups/"+testParticipant, "", nil)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code,
		"expected 400 when no owner can be derived")
}

func (s *HandlerSuite) TestGetServiceGroup_NotFound() {
	rec := s.do(http.MethodGet, "/servicegroups/"+testParticipant, "", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestDeleteServiceGroup() {
	s.createServiceGroup()

	rec := s.do(http.MethodDelete, "/servicegroups/"+testParticipant, testOwner, nil)
	assert.Equal(s.T(), http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/servicegroups/"+testParticipant, "", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestDeleteServiceGroup_Absent() {
	rec := s.do(http.MethodDelete, "/servicegroups/"+testParticipant, testOwner, nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestDeleteServiceGroup_NonOwnerForbidden() {
	s.createServiceGroup()

	rec := s.do(http.MethodDelete, "/servicegroups/"+testParticipant, "other@unit.test", nil)
	assert.Equal(s.T(), http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestPutAndGetServiceInformation() {
	s.createServiceGroup()

	target := "/servicegroups/" + testParticipant + "/services/" + testDocType
	rec := s.do(http.MethodPut, target, testOwner, s.serviceInfoBody())
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, target, "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp serviceInformationResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(s.T(), testDocType, resp.DocumentTypeID)
	require.Len(s.T(), resp.Processes, 1)
	require.Len(s.T(), resp.Processes[0].Endpoints, 1)
	assert.Equal(s.T(), "https://ap.unit.test/as4", resp.Processes[0].Endpoints[0].Address)
}

func (s *HandlerSuite) TestPutServiceInformation_InvalidJSON() {
	s.createServiceGroup()

	target := "/servicegroups/" + testParticipant + "/services/" + testDocType
	rec := s.do(http.MethodPut, target, testOwner, "not valid json")
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestPutServiceInformation_NoEndpointsRejected() {
	s.createServiceGroup()

	body := serviceInformationRequest{
		Processes: []processPayload{{ProcessID: "cenbii-procid-ubl::bii04"}},
	}
	target := "/servicegroups/" + testParticipant + "/services/" + testDocType
	rec := s.do(http.MethodPut, target, testOwner, body)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRedirectConflictsWithServiceInformation() {
	s.createServiceGroup()

	siTarget := "/servicegroups/" + testParticipant + "/services/" + testDocType
	rec := s.do(http.MethodPut, siTarget, testOwner, s.serviceInfoBody())
	require.Equal(s.T(), http.StatusOK, rec.Code)

	redTarget := "/servicegroups/" + testParticipant + "/redirects/" + testDocType
	redirect := redirectRequest{TargetURL: "https://other-smp.unit.test"}

	rec = s.do(http.MethodPut, redTarget, testOwner, redirect)
	assert.Equal(s.T(), http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, redTarget+"?overwrite=true", testOwner, redirect)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, siTarget, "", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code,
		"overwriting redirect must replace the service information")
}

func (s *HandlerSuite) TestDeleteRedirect_Absent() {
	s.createServiceGroup()

	target := "/servicegroups/" + testParticipant + "/redirects/" + testDocType
	rec := s.do(http.MethodDelete, target, testOwner, nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestBusinessCardLifecycle() {
	s.createServiceGroup()

	target := "/servicegroups/" + testParticipant + "/businesscard"
	card := businessCardRequest{Entities: []businessEntityPayload{{
		Name:        "Unit Test Corp",
		CountryCode: "NO",
	}}}
	rec := s.do(http.MethodPut, target, testOwner, card)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, target, "", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)

	var resp businessCardResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(s.T(), resp.Entities, 1)
	assert.Equal(s.T(), "Unit Test Corp", resp.Entities[0].Name)

	rec = s.do(http.MethodDelete, target, testOwner, nil)
	assert.Equal(s.T(), http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, target, "", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestOutboundMigrationLifecycle() {
	s.createServiceGroup()

	rec := s.do(http.MethodPost, "/migrations/outbound", testOwner,
		createMigrationRequest{ParticipantID: testParticipant})
	require.Equal(s.T(), http.StatusCreated, rec.Code, rec.Body.String())

	var m migrationResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&m))
	assert.NotEmpty(s.T(), m.ID)
	assert.NotEmpty(s.T(), m.MigrationKey)
	assert.Equal(s.T(), "IN_PROGRESS", m.State)

	rec = s.do(http.MethodPost, "/migrations/outbound/"+m.ID+"/finalize", testOwner, nil)
	assert.Equal(s.T(), http.StatusNoContent, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/servicegroups/"+testParticipant, "", nil)
	assert.Equal(s.T(), http.StatusNotFound, rec.Code,
		"finalized outbound migration must remove the service group")
}

func (s *HandlerSuite) TestCancelMigration() {
	s.createServiceGroup()

	rec := s.do(http.MethodPost, "/migrations/outbound", testOwner,
		createMigrationRequest{ParticipantID: testParticipant})
	require.Equal(s.T(), http.StatusCreated, rec.Code)
	var m migrationResponse
	require.NoError(s.T(), json.NewDecoder(rec.Body).Decode(&m))

	rec = s.do(http.MethodPost, "/migrations/"+m.ID+"/cancel", testOwner, nil)
	assert.Equal(s.T(), http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodPost, "/migrations/"+m.ID+"/cancel", testOwner, nil)
	assert.Equal(s.T(), http.StatusConflict, rec.Code,
		"cancelling a terminal migration is a state transition conflict")
}

func (s *HandlerSuite) TestListMigrations_UnknownDirection() {
	rec := s.do(http.MethodGet, "/migrations/?direction=sideways", testOwner, nil)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestInboundMigration_RequiresKey() {
	rec := s.do(http.MethodPost, "/migrations/inbound", testOwner,
		createMigrationRequest{ParticipantID: testParticipant})
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestExport_RequiresAdmin() {
	rec := s.do(http.MethodGet, "/registry/export", testOwner, nil)
	assert.Equal(s.T(), http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestExport_AdminReceivesDocument() {
	s.createServiceGroup()

	rec := s.doAdmin(http.MethodGet, "/registry/export", nil)
	require.Equal(s.T(), http.StatusOK, rec.Code)
	assert.Equal(s.T(), "application/xml", rec.Header().Get("Content-Type"))
	assert.Contains(s.T(), rec.Body.String(), "registry-export")
	assert.Contains(s.T(), rec.Body.String(), testParticipant)
}

func (s *HandlerSuite) TestImport_InvalidDocument() {
	rec := s.doAdmin(http.MethodPut, "/registry/import?default-owner="+testOwner, "not xml at all")
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestImport_RequiresDefaultOwner() {
	doc := `<registry-export version="1.0"></registry-export>`
	rec := s.doAdmin(http.MethodPut, "/registry/import", doc)
	assert.Equal(s.T(), http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestImport_AppliesDocument() {
	doc := `<registry-export version="1.0">` +
		`<ServiceGroup><ParticipantIdentifier scheme="iso6523-actorid-upis">9915:imported</ParticipantIdentifier></ServiceGroup>` +
		`</registry-export>`
	rec := s.doAdmin(http.MethodPut, "/registry/import?default-owner="+testOwner, doc)
	require.Equal(s.T(), http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(s.T(), rec.Body.String(), "import-result")

	rec = s.do(http.MethodGet, "/servicegroups/iso6523-actorid-upis::9915:imported", "", nil)
	assert.Equal(s.T(), http.StatusOK, rec.Code)
}

func TestReadOnlyInstanceRejectsMutations(t *testing.T) {
	router := newRouter(t, false)

	req := httptest.NewRequest(http.MethodPut, "/servicegroups/"+testParticipant, nil)
	req.Header.Set("X-SMP-User", testOwner)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)

	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "read_only", body.Error)

	// Reads still work.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
