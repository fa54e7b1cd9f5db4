// Package xmlfile is the file-resident backend: the whole registry lives in
// one XML document that is loaded into in-memory indices at startup and
// rewritten in full on every mutation. Readers are served from the indices
// concurrently; writes are mutually exclusive and the file rewrite is atomic
// (write-to-temp plus rename) with respect to the whole file.
package xmlfile

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/store/memory"
	"smpserver/internal/smp/xmldoc"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
	"smpserver/pkg/platform/tx"
)

// NewBackend loads the registry file at path (a missing file starts an
// empty registry) and returns a backend whose mutations rewrite the file.
func NewBackend(path string, f identifier.Factory) (*store.Backend, error) {
	mem := memory.NewBackend()
	p := &persister{path: path, b: mem}
	if err := p.load(f); err != nil {
		return nil, err
	}
	return &store.Backend{
		ServiceGroups:      &serviceGroupStore{inner: mem.ServiceGroups, p: p},
		ServiceInformation: &serviceInfoStore{inner: mem.ServiceInformation, p: p},
		Redirects:          &redirectStore{inner: mem.Redirects, p: p},
		BusinessCards:      &businessCardStore{inner: mem.BusinessCards, p: p},
		Migrations:         &migrationStore{inner: mem.Migrations, p: p},
		Ownership:          mem.Ownership,
		Tx:                 p.txRunner(mem.Tx),
	}, nil
}

// persister owns the file. One writer at a time; the registry snapshot is
// taken from the in-memory stores under that writer lock.
type persister struct {
	path string
	mu   sync.Mutex
	b    *store.Backend
}

// deferFlushKey marks a context as being inside a write transaction: store
// wrappers skip their per-call flush and the transaction runner writes the
// file once on success.
type deferFlushKey struct{}

func (p *persister) txRunner(inner tx.Runner) tx.Runner {
	return tx.FuncRunner(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return inner.RunInTx(ctx, func(ctx context.Context) error {
			if err := fn(context.WithValue(ctx, deferFlushKey{}, true)); err != nil {
				return err
			}
			return p.flush(ctx)
		})
	})
}

// afterWrite flushes unless the call is inside a write transaction.
func (p *persister) afterWrite(ctx context.Context) error {
	if ctx.Value(deferFlushKey{}) != nil {
		return nil
	}
	return p.flush(ctx)
}

func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot registry: %w", err)
	}
	payload, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry file: %w", err)
	}
	payload = append([]byte(xml.Header), payload...)

	tmp := p.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

func (p *persister) snapshot(ctx context.Context) (*registryDoc, error) {
	doc := &registryDoc{Version: Version}

	participants, err := p.b.ServiceGroups.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	for _, participant := range participants {
		sg, err := p.b.ServiceGroups.Find(ctx, participant)
		if err != nil {
			return nil, err
		}
		elem := xmldoc.ToServiceGroupElem(*sg)
		infos, err := p.b.ServiceInformation.ListOfParticipant(ctx, participant)
		if err != nil {
			return nil, err
		}
		for _, si := range infos {
			elem.ServiceInformation = append(elem.ServiceInformation, xmldoc.ToServiceInfoElem(si))
		}
		redirects, err := p.b.Redirects.ListOfParticipant(ctx, participant)
		if err != nil {
			return nil, err
		}
		for _, r := range redirects {
			elem.Redirects = append(elem.Redirects, xmldoc.ToRedirectElem(r))
		}
		bc, err := p.b.BusinessCards.Find(ctx, participant)
		switch {
		case err == nil:
			elem.BusinessCard = xmldoc.ToBusinessCardElem(*bc)
		case errors.Is(err, sentinel.ErrNotFound):
			// no card
		default:
			return nil, err
		}
		doc.ServiceGroups = append(doc.ServiceGroups, elem)
	}

	for _, direction := range []models.MigrationDirection{models.MigrationOutbound, models.MigrationInbound} {
		migrations, err := p.b.Migrations.List(ctx, direction)
		if err != nil {
			return nil, err
		}
		for _, m := range migrations {
			doc.Migrations = append(doc.Migrations, xmldoc.ToMigrationElem(m))
		}
	}
	return doc, nil
}

func (p *persister) load(f identifier.Factory) error {
	payload, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read registry file: %w", err)
	}
	var doc registryDoc
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("parse registry file %s: %w", p.path, err)
	}
	if doc.Version != Version {
		return dErrors.Newf(dErrors.CodeBadRequest,
			"registry file %s has unsupported version %q", p.path, doc.Version)
	}

	ctx := context.Background()
	for _, elem := range doc.ServiceGroups {
		sg, err := xmldoc.FromServiceGroupElem(f, elem)
		if err != nil {
			return fmt.Errorf("registry file %s: %w", p.path, err)
		}
		participant := sg.Participant
		if err := p.b.ServiceGroups.Create(ctx, sg); err != nil {
			return fmt.Errorf("load service group %s: %w", participant, err)
		}
		if sg.OwnerID != "" {
			if err := p.b.Ownership.Assign(ctx, sg.OwnerID, participant); err != nil {
				return err
			}
		}
		for _, sie := range elem.ServiceInformation {
			si, err := xmldoc.FromServiceInfoElem(f, participant, sie)
			if err != nil {
				return fmt.Errorf("load service information of %s: %w", participant, err)
			}
			if err := p.b.ServiceInformation.Upsert(ctx, si); err != nil {
				return err
			}
		}
		for _, re := range elem.Redirects {
			r, err := xmldoc.FromRedirectElem(f, participant, re)
			if err != nil {
				return fmt.Errorf("load redirect of %s: %w", participant, err)
			}
			if err := p.b.Redirects.Upsert(ctx, r); err != nil {
				return err
			}
		}
		if elem.BusinessCard != nil {
			bc, err := xmldoc.FromBusinessCardElem(participant, elem.BusinessCard)
			if err != nil {
				return fmt.Errorf("load business card of %s: %w", participant, err)
			}
			if err := p.b.BusinessCards.Upsert(ctx, bc); err != nil {
				return err
			}
		}
	}
	for _, me := range doc.Migrations {
		m, err := xmldoc.FromMigrationElem(f, me)
		if err != nil {
			return fmt.Errorf("registry file %s: %w", p.path, err)
		}
		if err := p.b.Migrations.Create(ctx, m); err != nil {
			return fmt.Errorf("load migration %s: %w", m.ID, err)
		}
	}
	return nil
}

// --- persisting wrappers ---

type serviceGroupStore struct {
	inner store.ServiceGroupStore
	p     *persister
}

func (s *serviceGroupStore) Create(ctx context.Context, sg *models.ServiceGroup) error {
	if err := s.inner.Create(ctx, sg); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *serviceGroupStore) Update(ctx context.Context, sg *models.ServiceGroup) error {
	if err := s.inner.Update(ctx, sg); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *serviceGroupStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	changed, err := s.inner.Delete(ctx, participant)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.p.afterWrite(ctx)
}

func (s *serviceGroupStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.ServiceGroup, error) {
	return s.inner.Find(ctx, participant)
}

func (s *serviceGroupStore) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	return s.inner.ListParticipants(ctx)
}

func (s *serviceGroupStore) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

type serviceInfoStore struct {
	inner store.ServiceInformationStore
	p     *persister
}

func (s *serviceInfoStore) Upsert(ctx context.Context, si *models.ServiceInformation) error {
	if err := s.inner.Upsert(ctx, si); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *serviceInfoStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	changed, err := s.inner.Delete(ctx, participant, docType)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.p.afterWrite(ctx)
}

func (s *serviceInfoStore) DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	n, err := s.inner.DeleteOfParticipant(ctx, participant)
	if err != nil || n == 0 {
		return n, err
	}
	return n, s.p.afterWrite(ctx)
}

func (s *serviceInfoStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.ServiceInformation, error) {
	return s.inner.Find(ctx, participant, docType)
}

func (s *serviceInfoStore) ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.ServiceInformation, error) {
	return s.inner.ListOfParticipant(ctx, participant)
}

func (s *serviceInfoStore) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

type redirectStore struct {
	inner store.RedirectStore
	p     *persister
}

func (s *redirectStore) Upsert(ctx context.Context, r *models.Redirect) error {
	if err := s.inner.Upsert(ctx, r); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *redirectStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (bool, error) {
	changed, err := s.inner.Delete(ctx, participant, docType)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.p.afterWrite(ctx)
}

func (s *redirectStore) DeleteOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) (int, error) {
	n, err := s.inner.DeleteOfParticipant(ctx, participant)
	if err != nil || n == 0 {
		return n, err
	}
	return n, s.p.afterWrite(ctx)
}

func (s *redirectStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier, docType identifier.DocumentTypeIdentifier) (*models.Redirect, error) {
	return s.inner.Find(ctx, participant, docType)
}

func (s *redirectStore) ListOfParticipant(ctx context.Context, participant identifier.ParticipantIdentifier) ([]models.Redirect, error) {
	return s.inner.ListOfParticipant(ctx, participant)
}

func (s *redirectStore) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

type businessCardStore struct {
	inner store.BusinessCardStore
	p     *persister
}

func (s *businessCardStore) Upsert(ctx context.Context, bc *models.BusinessCard) error {
	if err := s.inner.Upsert(ctx, bc); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *businessCardStore) Delete(ctx context.Context, participant identifier.ParticipantIdentifier) (bool, error) {
	changed, err := s.inner.Delete(ctx, participant)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.p.afterWrite(ctx)
}

func (s *businessCardStore) Find(ctx context.Context, participant identifier.ParticipantIdentifier) (*models.BusinessCard, error) {
	return s.inner.Find(ctx, participant)
}

func (s *businessCardStore) ListParticipants(ctx context.Context) ([]identifier.ParticipantIdentifier, error) {
	return s.inner.ListParticipants(ctx)
}

func (s *businessCardStore) Count(ctx context.Context) (int, error) {
	return s.inner.Count(ctx)
}

type migrationStore struct {
	inner store.MigrationStore
	p     *persister
}

func (s *migrationStore) Create(ctx context.Context, m *models.Migration) error {
	if err := s.inner.Create(ctx, m); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *migrationStore) Update(ctx context.Context, m *models.Migration) error {
	if err := s.inner.Update(ctx, m); err != nil {
		return err
	}
	return s.p.afterWrite(ctx)
}

func (s *migrationStore) Find(ctx context.Context, id string) (*models.Migration, error) {
	return s.inner.Find(ctx, id)
}

func (s *migrationStore) FindActive(ctx context.Context, direction models.MigrationDirection, participant identifier.ParticipantIdentifier) (*models.Migration, error) {
	return s.inner.FindActive(ctx, direction, participant)
}

func (s *migrationStore) List(ctx context.Context, direction models.MigrationDirection) ([]models.Migration, error) {
	return s.inner.List(ctx, direction)
}

func (s *migrationStore) Delete(ctx context.Context, id string) (bool, error) {
	changed, err := s.inner.Delete(ctx, id)
	if err != nil || !changed {
		return changed, err
	}
	return true, s.p.afterWrite(ctx)
}
