package exchange

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/xmldoc"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// Exporter serializes the whole registry into one exchange document.
type Exporter struct {
	backend *store.Backend
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
}

func NewExporter(backend *store.Backend, m *smpmetrics.Metrics, logger *slog.Logger) *Exporter {
	return &Exporter{backend: backend, metrics: m, logger: logger}
}

// exportConcurrency bounds the parallel per-participant reads.
const exportConcurrency = 8

// Export gathers every service group with its children. Per-participant
// reads fan out in parallel; document order follows the participant listing
// regardless of completion order.
func (e *Exporter) Export(ctx context.Context) (*Document, error) {
	start := time.Now()

	participants, err := e.backend.ServiceGroups.ListParticipants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "participant listing failed")
	}

	elems := make([]xmldoc.ServiceGroupElem, len(participants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exportConcurrency)
	for i, participant := range participants {
		i, participant := i, participant
		g.Go(func() error {
			elem, err := e.exportOne(gctx, participant)
			if err != nil {
				return err
			}
			elems[i] = *elem
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "registry export failed")
	}

	e.metrics.ObserveExport(start)
	e.logger.Info("registry exported",
		"service_groups", len(elems),
		"duration", time.Since(start))
	return &Document{Version: Version, ServiceGroups: elems}, nil
}

func (e *Exporter) exportOne(ctx context.Context, participant identifier.ParticipantIdentifier) (*xmldoc.ServiceGroupElem, error) {
	sg, err := e.backend.ServiceGroups.Find(ctx, participant)
	if err != nil {
		return nil, err
	}
	elem := xmldoc.ToServiceGroupElem(*sg)

	infos, err := e.backend.ServiceInformation.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}
	for _, si := range infos {
		elem.ServiceInformation = append(elem.ServiceInformation, xmldoc.ToServiceInfoElem(si))
	}

	redirects, err := e.backend.Redirects.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}
	for _, r := range redirects {
		elem.Redirects = append(elem.Redirects, xmldoc.ToRedirectElem(r))
	}

	bc, err := e.backend.BusinessCards.Find(ctx, participant)
	switch {
	case err == nil:
		elem.BusinessCard = xmldoc.ToBusinessCardElem(*bc)
	case errors.Is(err, sentinel.ErrNotFound):
		// no card
	default:
		return nil, err
	}
	return &elem, nil
}
