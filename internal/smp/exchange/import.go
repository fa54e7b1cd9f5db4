package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smpserver/internal/audit"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/models"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/xmldoc"
	dErrors "smpserver/pkg/domain-errors"
	"smpserver/pkg/identifier"
	"smpserver/pkg/platform/sentinel"
)

// ImportOptions control how an exchange document is applied.
type ImportOptions struct {
	// Overwrite replaces service groups that already exist. When false,
	// existing participants are skipped with a warning action.
	Overwrite bool
	// DefaultOwner is attributed to imported service groups whose original
	// owner is unresolvable. The caller must supply it.
	DefaultOwner string
}

// Importer applies an exchange document to the active backend. Each service
// group is its own unit of work: a failure is logged as an error action and
// processing continues, so the action log is the sole outcome signal.
type Importer struct {
	backend *store.Backend
	factory identifier.Factory
	auditor *audit.Publisher
	metrics *smpmetrics.Metrics
	logger  *slog.Logger
}

func NewImporter(backend *store.Backend, factory identifier.Factory, auditor *audit.Publisher, m *smpmetrics.Metrics, logger *slog.Logger) *Importer {
	return &Importer{backend: backend, factory: factory, auditor: auditor, metrics: m, logger: logger}
}

// Import applies the document under the given options. The returned result
// carries one ordered action per participant processed plus a summary.
// Cancellation stops further participants; already-applied ones are not
// rolled back.
func (im *Importer) Import(ctx context.Context, caller string, doc *Document, opts ImportOptions) (*Result, error) {
	start := time.Now()
	if err := doc.CheckVersion(); err != nil {
		return nil, err
	}
	if opts.DefaultOwner == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "import requires a default owner")
	}

	existing, err := im.existingParticipants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "participant listing failed")
	}

	result := &Result{Version: Version}
	for _, elem := range doc.ServiceGroups {
		if err := ctx.Err(); err != nil {
			result.log(LevelWarning, "", "import abandoned by caller", err.Error())
			break
		}
		im.importOne(ctx, elem, existing, opts, result)
	}
	result.Summary.DurationMillis = time.Since(start).Milliseconds()

	im.auditor.Emit(ctx, audit.Event{
		Actor:  caller,
		Action: audit.ActionImport,
		Detail: fmt.Sprintf("%d service groups, %d errors", len(doc.ServiceGroups), result.Summary.ErrorCount),
	})
	im.metrics.ObserveImport(start)
	im.logger.Info("registry import finished",
		"service_groups", len(doc.ServiceGroups),
		"errors", result.Summary.ErrorCount,
		"warnings", result.Summary.WarningCount,
		"duration", time.Since(start))
	return result, nil
}

func (im *Importer) existingParticipants(ctx context.Context) (map[string]struct{}, error) {
	ids, err := im.backend.ServiceGroups.ListParticipants(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id.String()] = struct{}{}
	}
	return set, nil
}

func (im *Importer) importOne(ctx context.Context, elem xmldoc.ServiceGroupElem, existing map[string]struct{}, opts ImportOptions, result *Result) {
	sg, err := xmldoc.FromServiceGroupElem(im.factory, elem)
	if err != nil {
		rawID := elem.ParticipantIdentifier.Scheme + identifier.Separator + elem.ParticipantIdentifier.Value
		result.log(LevelError, rawID, "invalid participant identifier", err.Error())
		return
	}
	participantID := sg.Participant.String()

	overwriting := false
	if _, ok := existing[participantID]; ok {
		if !opts.Overwrite {
			result.log(LevelWarning, participantID, "service group already exists, skipped", "")
			return
		}
		overwriting = true
	}
	if sg.OwnerID == "" {
		sg.OwnerID = opts.DefaultOwner
	}

	// Parse the whole subtree before the first write. A malformed child must
	// fail the unit while nothing has changed, not halfway through it.
	infos := make([]*models.ServiceInformation, 0, len(elem.ServiceInformation))
	for _, sie := range elem.ServiceInformation {
		si, err := xmldoc.FromServiceInfoElem(im.factory, sg.Participant, sie)
		if err != nil {
			result.log(LevelError, participantID, "invalid service information", err.Error())
			return
		}
		infos = append(infos, si)
	}
	redirects := make([]*models.Redirect, 0, len(elem.Redirects))
	for _, re := range elem.Redirects {
		r, err := xmldoc.FromRedirectElem(im.factory, sg.Participant, re)
		if err != nil {
			result.log(LevelError, participantID, "invalid redirect", err.Error())
			return
		}
		redirects = append(redirects, r)
	}
	var card *models.BusinessCard
	if elem.BusinessCard != nil {
		card, err = xmldoc.FromBusinessCardElem(sg.Participant, elem.BusinessCard)
		if err != nil {
			result.log(LevelError, participantID, "invalid business card", err.Error())
			return
		}
	}

	// On an overwrite the current records are captured first so a failed
	// unit can put them back on backends whose transactions only serialize.
	var prior *participantState
	if overwriting {
		prior, err = im.captureState(ctx, sg.Participant)
		if err != nil {
			result.log(LevelError, participantID, "service group import failed", err.Error())
			return
		}
	}

	err = im.backend.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if overwriting {
			if err := im.deleteExisting(txCtx, sg.Participant); err != nil {
				return err
			}
		}
		if err := im.backend.ServiceGroups.Create(txCtx, sg); err != nil {
			return err
		}
		if err := im.backend.Ownership.Assign(txCtx, sg.OwnerID, sg.Participant); err != nil {
			return err
		}
		for _, si := range infos {
			if err := im.backend.ServiceInformation.Upsert(txCtx, si); err != nil {
				return err
			}
		}
		for _, r := range redirects {
			if err := im.backend.Redirects.Upsert(txCtx, r); err != nil {
				return err
			}
		}
		if card != nil {
			if err := im.backend.BusinessCards.Upsert(txCtx, card); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			result.log(LevelWarning, participantID, "service group already exists, skipped", "")
			return
		}
		im.compensate(ctx, sg.Participant, prior, result)
		result.log(LevelError, participantID, "service group import failed", err.Error())
		return
	}

	existing[participantID] = struct{}{}
	result.log(LevelInfo, participantID, "service group imported", "")
}

// participantState is the full record set of one participant, captured
// before an overwriting import so a failed unit can be undone.
type participantState struct {
	group     *models.ServiceGroup
	infos     []models.ServiceInformation
	redirects []models.Redirect
	card      *models.BusinessCard
}

func (im *Importer) captureState(ctx context.Context, participant identifier.ParticipantIdentifier) (*participantState, error) {
	group, err := im.backend.ServiceGroups.Find(ctx, participant)
	if err != nil {
		return nil, err
	}
	infos, err := im.backend.ServiceInformation.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}
	redirects, err := im.backend.Redirects.ListOfParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}
	card, err := im.backend.BusinessCards.Find(ctx, participant)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		card = nil
	}
	return &participantState{group: group, infos: infos, redirects: redirects, card: card}, nil
}

// compensate reverts a failed import unit. The memory and XML backends
// cannot roll a transaction back, so the unit's writes are undone here: a
// fresh participant is removed outright, an overwritten one is restored
// from its captured state. On the relational backend the rollback has
// already happened and these calls find nothing to undo.
func (im *Importer) compensate(ctx context.Context, participant identifier.ParticipantIdentifier, prior *participantState, result *Result) {
	var err error
	if prior == nil {
		err = im.deleteExisting(ctx, participant)
	} else {
		err = im.restoreState(ctx, prior)
	}
	if err != nil {
		im.logger.Error("fatal inconsistency: import compensation failed",
			"participant", participant.String(),
			"error", err.Error())
		result.log(LevelError, participant.String(),
			"import compensation failed, manual intervention required", err.Error())
	}
}

func (im *Importer) restoreState(ctx context.Context, prior *participantState) error {
	participant := prior.group.Participant
	if err := im.deleteExisting(ctx, participant); err != nil {
		return err
	}
	if err := im.backend.ServiceGroups.Create(ctx, prior.group); err != nil {
		return err
	}
	if err := im.backend.Ownership.Assign(ctx, prior.group.OwnerID, participant); err != nil {
		return err
	}
	for i := range prior.infos {
		if err := im.backend.ServiceInformation.Upsert(ctx, &prior.infos[i]); err != nil {
			return err
		}
	}
	for i := range prior.redirects {
		if err := im.backend.Redirects.Upsert(ctx, &prior.redirects[i]); err != nil {
			return err
		}
	}
	if prior.card != nil {
		if err := im.backend.BusinessCards.Upsert(ctx, prior.card); err != nil {
			return err
		}
	}
	return nil
}

// deleteExisting removes a service group and its children ahead of an
// overwriting import. The directory is not involved: the participant stays
// registered to this SMP throughout.
func (im *Importer) deleteExisting(ctx context.Context, participant identifier.ParticipantIdentifier) error {
	if _, err := im.backend.ServiceInformation.DeleteOfParticipant(ctx, participant); err != nil {
		return err
	}
	if _, err := im.backend.Redirects.DeleteOfParticipant(ctx, participant); err != nil {
		return err
	}
	if _, err := im.backend.BusinessCards.Delete(ctx, participant); err != nil {
		return err
	}
	if _, err := im.backend.Ownership.RemoveOfParticipant(ctx, participant); err != nil {
		return err
	}
	_, err := im.backend.ServiceGroups.Delete(ctx, participant)
	return err
}
