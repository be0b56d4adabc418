package usecase

import (
	"context"
	"errors"
	"fmt"

	"calsync/internal/engine"
	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/internal/sync"
)

// RunPass executes one reconciliation pass end to end. Item-level
// failures are collected; only listing failures, user cancellation and
// context cancellation abort the pass.
func (uc *implUseCase) RunPass(ctx context.Context) (sync.PassResult, error) {
	started := uc.now()
	res := sync.PassResult{}
	win := provider.TimeWindow{
		Start: started.AddDate(0, 0, -uc.win.DaysPast),
		End:   started.AddDate(0, 0, uc.win.DaysFuture),
	}
	uc.l.Infof(ctx, "sync.usecase.RunPass window %s .. %s",
		win.Start.Format("2006-01-02"), win.End.Format("2006-01-02"))

	leftItems, rightItems, err := uc.listBothSides(ctx, win)
	if err != nil {
		return res, err
	}

	ms, err := uc.matcher.Match(ctx, leftItems, rightItems)
	if err != nil {
		return res, fmt.Errorf("match: %w", err)
	}
	res.SuppressedDeletes = ms.SuppressedDeletes

	// Reclaimed and metadata-enhanced links must reach storage even if
	// the rest of the pass fails.
	for _, ev := range ms.Reclaimed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := uc.left.SaveEvent(ctx, ev); err != nil {
			if !uc.recordError(ctx, &res, fmt.Errorf("persist reclaimed link on %s: %w", ev.Summary(), err)) {
				return res, sync.ErrUserCancelled
			}
			continue
		}
		res.MetadataSaves++
	}

	if cont := uc.applyDeletions(ctx, &res, ms.LeftOnly); !cont {
		return res, sync.ErrUserCancelled
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if cont := uc.applyCreations(ctx, &res, ms.RightOnly); !cont {
		return res, sync.ErrUserCancelled
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if cont := uc.comparePairs(ctx, &res, ms.Paired); !cont {
		return res, sync.ErrUserCancelled
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	res.Duration = uc.now().Sub(started)
	uc.l.Infof(ctx, "sync.usecase.RunPass done | created=%d updated=%d deleted=%d skipped=%d metadata=%d errors=%d in %s",
		res.Created, res.Updated, res.Deleted, res.Skipped, res.MetadataSaves, len(res.Errors), res.Duration)
	return res, nil
}

// listBothSides reads the two calendars concurrently. Items are read
// fresh every pass.
func (uc *implUseCase) listBothSides(ctx context.Context, win provider.TimeWindow) ([]*model.Event, []*model.Event, error) {
	var leftItems []*model.Event
	var leftErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		leftItems, leftErr = uc.left.ListEvents(ctx, win)
	}()

	rightItems, rightErr := uc.right.ListEvents(ctx, win)
	<-done

	if leftErr != nil {
		return nil, nil, fmt.Errorf("%w: list left side: %v", sync.ErrProviderUnavailable, leftErr)
	}
	if rightErr != nil {
		return nil, nil, fmt.Errorf("%w: list right side: %v", sync.ErrProviderUnavailable, rightErr)
	}
	uc.l.Debugf(ctx, "sync.usecase.listBothSides %d left, %d right", len(leftItems), len(rightItems))
	return leftItems, rightItems, nil
}

func (uc *implUseCase) applyDeletions(ctx context.Context, res *sync.PassResult, leftOnly []*model.Event) bool {
	for _, ev := range leftOnly {
		if ctx.Err() != nil {
			return true
		}
		if uc.prompter != nil && !uc.prompter.ConfirmDelete(ctx, ev) {
			// Declining a deletion unmanages the item.
			uc.store.ClearLink(ev)
			uc.store.ClearForceResync(ev)
			if err := uc.left.SaveEvent(ctx, ev); err != nil {
				if !uc.recordError(ctx, res, fmt.Errorf("unmanage %s: %w", ev.Summary(), err)) {
					return false
				}
				continue
			}
			uc.l.Infof(ctx, "sync.usecase.applyDeletions kept %s, now unmanaged", ev.Summary())
			res.Skipped++
			continue
		}
		if err := uc.left.DeleteEvent(ctx, ev); err != nil {
			if !uc.recordError(ctx, res, fmt.Errorf("delete %s: %w", ev.Summary(), err)) {
				return false
			}
			continue
		}
		uc.l.Infof(ctx, "sync.usecase.applyDeletions deleted %s", ev.Summary())
		res.Deleted++
	}
	return true
}

func (uc *implUseCase) applyCreations(ctx context.Context, res *sync.PassResult, rightOnly []*model.Event) bool {
	for _, right := range rightOnly {
		if ctx.Err() != nil {
			return true
		}
		ev := uc.differ.NewLeftFromRight(right)
		uc.store.SetLink(ev, right.ID, right.CollectionID)
		uc.store.SetEngineLastModified(ev, uc.now())

		created, err := uc.left.CreateEvent(ctx, ev)
		if err != nil {
			if !uc.recordError(ctx, res, fmt.Errorf("create twin of %s: %w", right.Summary(), err)) {
				return false
			}
			continue
		}
		res.Created++
		uc.l.Infof(ctx, "sync.usecase.applyCreations created %s", created.Summary())

		// A freshly created master still needs its exception set; the
		// compare is forced because the twin carries today's stamp.
		if right.IsSeriesMaster() {
			n, err := uc.rec.ReconcileExceptions(ctx, engine.MatchedPair{Left: created, Right: right})
			if err == nil && n > 0 {
				if err := uc.left.SaveEvent(ctx, created); err != nil {
					if !uc.recordError(ctx, res, fmt.Errorf("persist exceptions of %s: %w", created.Summary(), err)) {
						return false
					}
				}
			}
		}

		if uc.st.Direction == model.DirectionBidirectional {
			uc.rmeta.SetLeftLink(right, created.ID)
			uc.rmeta.SetEngineLastModified(right, uc.now())
			if err := uc.saveRightMeta(ctx, right); err != nil {
				if !uc.recordError(ctx, res, fmt.Errorf("stamp reverse link on %s: %w", right.Summary(), err)) {
					return false
				}
			}
		}
	}
	return true
}

func (uc *implUseCase) comparePairs(ctx context.Context, res *sync.PassResult, pairs []engine.MatchedPair) bool {
	for _, pair := range pairs {
		if ctx.Err() != nil {
			return true
		}
		force := uc.store.ForceResync(pair.Left)
		diff, err := uc.differ.DiffPair(ctx, pair, force)
		if errors.Is(err, engine.ErrUnreadableItem) {
			res.Skipped++
			continue
		}
		if err != nil {
			if !uc.recordError(ctx, res, fmt.Errorf("diff %s: %w", pair.Left.Summary(), err)) {
				return false
			}
			continue
		}
		// The staleness guard only covers the field compare; a master's
		// exception set is still reconciled so occurrence edits are not
		// stranded behind a newer target item.
		mutations := diff.MutationCount
		if pair.Left.IsSeriesMaster() {
			n, err := uc.rec.ReconcileExceptions(ctx, pair)
			if err != nil && !errors.Is(err, engine.ErrNotSeriesMaster) {
				if !uc.recordError(ctx, res, fmt.Errorf("reconcile exceptions of %s: %w", pair.Left.Summary(), err)) {
					return false
				}
			}
			mutations += n
		}

		switch {
		case mutations > 0:
			uc.store.SetEngineLastModified(pair.Left, uc.now())
			uc.store.ClearForceResync(pair.Left)
			if err := uc.left.SaveEvent(ctx, pair.Left); err != nil {
				if !uc.recordError(ctx, res, fmt.Errorf("save %s: %w", pair.Left.Summary(), err)) {
					return false
				}
				continue
			}
			res.Updated++
			if uc.st.Direction == model.DirectionBidirectional {
				uc.rmeta.SetEngineLastModified(pair.Right, uc.now())
				if err := uc.saveRightMeta(ctx, pair.Right); err != nil {
					if !uc.recordError(ctx, res, fmt.Errorf("stamp %s: %w", pair.Right.Summary(), err)) {
						return false
					}
				}
			}
		case diff.Skipped:
			res.Skipped++
		case force:
			// Nothing changed but the flag itself must not survive.
			uc.store.ClearForceResync(pair.Left)
			if err := uc.left.SaveEvent(ctx, pair.Left); err != nil {
				if !uc.recordError(ctx, res, fmt.Errorf("clear resync flag on %s: %w", pair.Left.Summary(), err)) {
					return false
				}
				continue
			}
			res.MetadataSaves++
		}
	}
	return true
}

func (uc *implUseCase) saveRightMeta(ctx context.Context, ev *model.Event) error {
	if patcher, ok := uc.right.(sync.MetaPatcher); ok {
		return patcher.PatchMeta(ctx, ev)
	}
	return uc.right.SaveEvent(ctx, ev)
}

// recordError collects an item-level failure and reports whether the
// pass should go on.
func (uc *implUseCase) recordError(ctx context.Context, res *sync.PassResult, err error) bool {
	uc.l.Errorf(ctx, "sync.usecase.RunPass %v", err)
	res.Errors = append(res.Errors, err)
	if uc.prompter != nil && !uc.prompter.ContinueAfterError(ctx, err) {
		return false
	}
	return true
}
