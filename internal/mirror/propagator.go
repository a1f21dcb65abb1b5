// Watchgate - Incident Lifecycle & Watchlist Synchronization Engine
// Copyright 2026 Vigilant Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vigilant-labs/watchgate

package mirror

import (
	"context"
	"time"

	"github.com/vigilant-labs/watchgate/internal/config"
	"github.com/vigilant-labs/watchgate/internal/database"
	"github.com/vigilant-labs/watchgate/internal/logging"
	"github.com/vigilant-labs/watchgate/internal/metrics"
	"github.com/vigilant-labs/watchgate/internal/models"
	"github.com/vigilant-labs/watchgate/internal/resolver"
)

// Propagator translates committed watchlist changes into mirror documents.
//
// Push and Pull run after the owning database transaction has committed and
// are strictly best effort: every failure is logged and counted but never
// propagated, because a broken mirror must not block incident review. The
// delivery log row is written before the mirror write so reconciliation can
// replay anything the mirror missed.
type Propagator struct {
	db    *database.DB
	res   *resolver.Resolver
	store Store
	root  string
}

// NewPropagator wires a propagator over the given store.
func NewPropagator(db *database.DB, res *resolver.Resolver, store Store, cfg *config.MirrorConfig) *Propagator {
	return &Propagator{db: db, res: res, store: store, root: cfg.Root}
}

// DocKeyIncident returns the mirror document key for an incident.
func DocKeyIncident(incidentUUID string) string { return "incident_" + incidentUUID }

// DocKeyCustomer returns the mirror document key for a customer.
func DocKeyCustomer(customerUUID string) string { return "customer_" + customerUUID }

// Path returns the mirror path for a company/branch pair, resolving the
// external UUIDs through the reverse cache.
func (p *Propagator) Path(ctx context.Context, companyID, branchID int64) (string, error) {
	companyUUID, err := p.res.CompanyUUID(ctx, companyID)
	if err != nil {
		return "", err
	}
	branchUUID, err := p.res.BranchUUID(ctx, branchID)
	if err != nil {
		return "", err
	}
	return p.root + "/" + companyUUID + "/" + branchUUID, nil
}

// docInfo bundles a derived mirror document with its addressing and the
// internal ids needed for the delivery log.
type docInfo struct {
	doc       *models.WatchlistDocument
	path      string
	key       string
	companyID int64
	branchID  int64
}

// Document builds the denormalized mirror payload for a watchlist entry,
// returning the document plus its mirror path and key. Reconciliation uses
// the same derivation when replaying the delivery log.
func (p *Propagator) Document(ctx context.Context, entry *models.WatchlistEntry) (*models.WatchlistDocument, string, string, error) {
	info, err := p.document(ctx, entry)
	if err != nil {
		return nil, "", "", err
	}
	return info.doc, info.path, info.key, nil
}

func (p *Propagator) document(ctx context.Context, entry *models.WatchlistEntry) (*docInfo, error) {
	if entry.Kind() == models.EntryKindIncident {
		return p.incidentDocument(ctx, *entry.IncidentID)
	}
	return p.customerDocument(ctx, *entry.CustomerID, entry.RelatedIncidentID)
}

func (p *Propagator) incidentDocument(ctx context.Context, incidentID int64) (*docInfo, error) {
	inc, err := p.db.GetIncidentByID(ctx, nil, incidentID)
	if err != nil {
		return nil, err
	}

	path, err := p.Path(ctx, inc.CompanyID, inc.BranchID)
	if err != nil {
		return nil, err
	}
	companyUUID, _ := p.res.CompanyUUID(ctx, inc.CompanyID)
	branchUUID, _ := p.res.BranchUUID(ctx, inc.BranchID)

	doc := &models.WatchlistDocument{
		IncidentUUID: inc.IncidentUUID,
		CompanyUUID:  companyUUID,
		BranchUUID:   branchUUID,
		Name:         inc.Name,
		PhotoURL:     inc.PhotoURL,
		VisitCount:   inc.VisitCount,
		Watchlisted:  true,
		IsTest:       inc.IsTest,
		PushedAt:     time.Now().UTC(),
	}

	if inc.PreviousIncidentID != nil {
		prev, err := p.db.GetIncidentByID(ctx, nil, *inc.PreviousIncidentID)
		if err == nil {
			doc.PreviousIncidentUUID = prev.IncidentUUID
		}
	}

	return &docInfo{
		doc:       doc,
		path:      path,
		key:       DocKeyIncident(inc.IncidentUUID),
		companyID: inc.CompanyID,
		branchID:  inc.BranchID,
	}, nil
}

func (p *Propagator) customerDocument(ctx context.Context, customerID int64, relatedIncidentID *int64) (*docInfo, error) {
	cust, err := p.db.GetCustomerByID(ctx, nil, customerID)
	if err != nil {
		return nil, err
	}

	path, err := p.Path(ctx, cust.CompanyID, cust.BranchID)
	if err != nil {
		return nil, err
	}
	companyUUID, _ := p.res.CompanyUUID(ctx, cust.CompanyID)
	branchUUID, _ := p.res.BranchUUID(ctx, cust.BranchID)

	doc := &models.WatchlistDocument{
		CustomerUUID: cust.CustomerUUID,
		CompanyUUID:  companyUUID,
		BranchUUID:   branchUUID,
		Descriptor1:  cust.Descriptor1,
		Descriptor2:  cust.Descriptor2,
		PhotoURL:     cust.PhotoURL,
		VisitCount:   cust.VisitCount,
		Watchlisted:  true,
		IsTest:       cust.IsTest,
		PushedAt:     time.Now().UTC(),
	}

	if relatedIncidentID != nil {
		related, err := p.db.GetIncidentByID(ctx, nil, *relatedIncidentID)
		if err == nil {
			doc.PreviousIncidentUUID = related.IncidentUUID
		}
	}

	return &docInfo{
		doc:       doc,
		path:      path,
		key:       DocKeyCustomer(cust.CustomerUUID),
		companyID: cust.CompanyID,
		branchID:  cust.BranchID,
	}, nil
}

// Push mirrors a newly watchlisted entry. Best effort: failures are logged
// and swallowed.
func (p *Propagator) Push(ctx context.Context, entryID int64) {
	entry, err := p.db.GetEntryByID(ctx, nil, entryID)
	if err != nil {
		logging.CtxErr(ctx, err).Int64("entry_id", entryID).Msg("Mirror push: entry lookup failed")
		metrics.RecordMirrorFailure("push")
		return
	}

	info, err := p.document(ctx, entry)
	if err != nil {
		logging.CtxErr(ctx, err).Int64("entry_id", entryID).Msg("Mirror push: payload derivation failed")
		metrics.RecordMirrorFailure("push")
		return
	}

	// Duplicate suppression: a live document means a previous push already
	// landed and the delivery log already has the add row.
	exists, err := p.store.Exists(ctx, info.path, info.key, map[string]interface{}{"watchlisted": true})
	if err != nil {
		logging.CtxErr(ctx, err).Str("key", info.key).Msg("Mirror push: existence check failed")
		metrics.RecordMirrorFailure("push")
		return
	}
	if exists {
		logging.Ctx(ctx).Debug().Str("key", info.key).Msg("Mirror push skipped, document already live")
		return
	}

	rec := &models.DeliveryRecord{
		Action:           models.DeliveryAdd,
		CompanyID:        info.companyID,
		BranchID:         info.branchID,
		IncidentID:       entry.IncidentID,
		CustomerID:       entry.CustomerID,
		WatchlistEntryID: &entry.ID,
	}
	if err := p.db.InsertDeliveryRecord(ctx, nil, rec); err != nil {
		logging.CtxErr(ctx, err).Str("key", info.key).Msg("Mirror push: delivery log write failed")
		metrics.RecordMirrorFailure("push")
		return
	}

	if err := p.store.Set(ctx, info.path, info.key, info.doc); err != nil {
		logging.CtxErr(ctx, err).Str("key", info.key).Msg("Mirror push: document write failed")
		metrics.RecordMirrorFailure("push")
		return
	}

	metrics.MirrorPushes.WithLabelValues(string(entry.Kind())).Inc()
	logging.Ctx(ctx).Info().Str("path", info.path).Str("key", info.key).Msg("Watchlist document mirrored")
}

// PullIncident removes an incident document after watchlist removal.
func (p *Propagator) PullIncident(ctx context.Context, inc *models.Incident) {
	path, err := p.Path(ctx, inc.CompanyID, inc.BranchID)
	if err != nil {
		logging.CtxErr(ctx, err).Str("incident_uuid", inc.IncidentUUID).Msg("Mirror pull: path resolution failed")
		metrics.RecordMirrorFailure("pull")
		return
	}
	p.pull(ctx, path, DocKeyIncident(inc.IncidentUUID), &models.DeliveryRecord{
		Action:     models.DeliveryRemove,
		CompanyID:  inc.CompanyID,
		BranchID:   inc.BranchID,
		IncidentID: &inc.ID,
	})
}

// PullCustomer removes a customer document after watchlist removal.
func (p *Propagator) PullCustomer(ctx context.Context, cust *models.Customer) {
	path, err := p.Path(ctx, cust.CompanyID, cust.BranchID)
	if err != nil {
		logging.CtxErr(ctx, err).Str("customer_uuid", cust.CustomerUUID).Msg("Mirror pull: path resolution failed")
		metrics.RecordMirrorFailure("pull")
		return
	}
	p.pull(ctx, path, DocKeyCustomer(cust.CustomerUUID), &models.DeliveryRecord{
		Action:     models.DeliveryRemove,
		CompanyID:  cust.CompanyID,
		BranchID:   cust.BranchID,
		CustomerID: &cust.ID,
	})
}

// ResetIncident overwrites an incident's own mirror document with the
// watchlisted flag cleared. Used after a reentry removal: the removal pulled
// the previous incident's document, but the reentry's document on the device
// still claims the subject is watchlisted.
func (p *Propagator) ResetIncident(ctx context.Context, inc *models.Incident) {
	path, err := p.Path(ctx, inc.CompanyID, inc.BranchID)
	if err != nil {
		logging.CtxErr(ctx, err).Str("incident_uuid", inc.IncidentUUID).Msg("Mirror reset: path resolution failed")
		metrics.RecordMirrorFailure("reset")
		return
	}
	companyUUID, _ := p.res.CompanyUUID(ctx, inc.CompanyID)
	branchUUID, _ := p.res.BranchUUID(ctx, inc.BranchID)

	doc := &models.WatchlistDocument{
		IncidentUUID: inc.IncidentUUID,
		CompanyUUID:  companyUUID,
		BranchUUID:   branchUUID,
		Name:         inc.Name,
		PhotoURL:     inc.PhotoURL,
		VisitCount:   inc.VisitCount,
		Watchlisted:  false,
		IsTest:       inc.IsTest,
		PushedAt:     time.Now().UTC(),
	}
	if err := p.store.Set(ctx, path, DocKeyIncident(inc.IncidentUUID), doc); err != nil {
		logging.CtxErr(ctx, err).Str("incident_uuid", inc.IncidentUUID).Msg("Mirror reset: document write failed")
		metrics.RecordMirrorFailure("reset")
		return
	}
	logging.Ctx(ctx).Info().Str("path", path).Str("incident_uuid", inc.IncidentUUID).Msg("Mirror document watchlist flag reset")
}

func (p *Propagator) pull(ctx context.Context, path, key string, rec *models.DeliveryRecord) {
	if err := p.db.InsertDeliveryRecord(ctx, nil, rec); err != nil {
		logging.CtxErr(ctx, err).Str("key", key).Msg("Mirror pull: delivery log write failed")
		metrics.RecordMirrorFailure("pull")
		return
	}

	if err := p.store.Delete(ctx, path, key); err != nil {
		logging.CtxErr(ctx, err).Str("key", key).Msg("Mirror pull: document delete failed")
		metrics.RecordMirrorFailure("pull")
		return
	}

	metrics.MirrorPulls.Inc()
	logging.Ctx(ctx).Info().Str("path", path).Str("key", key).Msg("Watchlist document removed from mirror")
}
