package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/events"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/storage"
)

// ReportEntry maps one report label to the badge name it was stored under.
type ReportEntry struct {
	Label string
	Name  string
}

// ReportResult lists the badges of a coverage report in input order, one
// entry per distinct label.
type ReportResult struct {
	Entries []ReportEntry
}

// Lookup returns the badge name stored for label.
func (r *ReportResult) Lookup(label string) (string, bool) {
	for _, e := range r.Entries {
		if e.Label == label {
			return e.Name, true
		}
	}
	return "", false
}

// MarshalJSON encodes the result as an object from label to badge name,
// keeping input order.
func (r *ReportResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		name, err := json.Marshal(e.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(name)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type reportItem struct {
	index int
	req   badge.Request
	name  string
	key   badge.Key
	svg   []byte
}

// itemError names the failing report item in err's message, keeping its kind.
func itemError(item *reportItem, err error) error {
	msg := err.Error()
	var berr *badge.Error
	if errors.As(err, &berr) {
		msg = berr.Message
	}
	return &badge.Error{
		Kind:    badge.KindOf(err),
		Message: fmt.Sprintf("reports[%d] (label %q, badge %q): %s", item.index, item.req.Label, item.name, msg),
		Err:     err,
	}
}

// CoverageReport renders and stores every item of report under
// CompositeName(report.Name, label). It is all-or-nothing: every item is
// rendered before anything is written, and if a write fails the items of the
// report already written are restored to their previous content.
func (b *Badges) CoverageReport(ctx context.Context, report badge.CoverageReport) (*ReportResult, error) {
	if err := validateName(report.Name); err != nil {
		return nil, err
	}

	items := make([]*reportItem, len(report.Reports))
	for i, req := range report.Reports {
		name := badge.CompositeName(report.Name, req.Label)
		items[i] = &reportItem{index: i, req: req, name: name, key: badge.KeyOf(name)}
	}

	if err := b.renderAll(ctx, items); err != nil {
		return nil, err
	}

	if err := b.commit(ctx, items); err != nil {
		return nil, err
	}

	result := &ReportResult{}
	position := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := position[item.req.Label]; ok {
			result.Entries[i].Name = item.name
			continue
		}
		position[item.req.Label] = len(result.Entries)
		result.Entries = append(result.Entries, ReportEntry{Label: item.req.Label, Name: item.name})
	}

	b.logger.Info("coverage report stored", "name", report.Name, "badges", len(result.Entries))
	for _, e := range result.Entries {
		b.publish(ctx, events.NewEvent(events.ActionUpdated, e.Name))
	}

	return result, nil
}

func (b *Badges) renderAll(ctx context.Context, items []*reportItem) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for _, item := range items {
		g.Go(func() error {
			svg, err := b.render(gctx, item.req)
			if err != nil {
				return itemError(item, err)
			}
			item.svg = svg
			return nil
		})
	}

	return g.Wait()
}

type snapshot struct {
	key     badge.Key
	name    string
	content []byte
	existed bool
}

// commit writes items in order. On failure every badge touched so far is
// put back the way it was.
func (b *Badges) commit(ctx context.Context, items []*reportItem) error {
	var snapshots []snapshot
	seen := make(map[badge.Key]bool, len(items))

	for _, item := range items {
		if !seen[item.key] {
			snap, err := b.snapshot(ctx, item)
			if err != nil {
				b.rollback(ctx, snapshots)
				return itemError(item, err)
			}
			seen[item.key] = true
			snapshots = append(snapshots, snap)
		}

		if err := b.store.Put(ctx, item.key, item.svg); err != nil {
			b.rollback(ctx, snapshots)
			return itemError(item, badge.StoreFailed("failed to store badge", err))
		}
	}

	return nil
}

func (b *Badges) snapshot(ctx context.Context, item *reportItem) (snapshot, error) {
	snap := snapshot{key: item.key, name: item.name}

	content, err := b.store.Get(ctx, item.key)
	switch {
	case err == nil:
		snap.content = content
		snap.existed = true
	case errors.Is(err, storage.ErrNotFound):
	default:
		return snap, badge.StoreFailed("failed to read previous badge", err)
	}

	return snap, nil
}

// rollback restores snapshots newest first, even if ctx was cancelled.
func (b *Badges) rollback(ctx context.Context, snapshots []snapshot) {
	ctx = context.WithoutCancel(ctx)

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		var err error
		if snap.existed {
			err = b.store.Put(ctx, snap.key, snap.content)
		} else {
			err = b.store.Delete(ctx, snap.key)
		}
		if err != nil {
			b.logger.Error("failed to roll back badge",
				"name", snap.name,
				"key", snap.key.String(),
				"error", err,
			)
		}
	}
}
