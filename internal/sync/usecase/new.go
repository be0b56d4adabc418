package usecase

import (
	"time"

	"calsync/internal/engine"
	"calsync/internal/model"
	"calsync/internal/provider"
	"calsync/internal/sync"
	pkgLog "calsync/pkg/log"
	"calsync/pkg/obfuscate"
)

type implUseCase struct {
	l  pkgLog.Logger
	st engine.Settings

	left  provider.Client
	right provider.Client
	win   sync.Window

	store   *engine.MetaStore
	rmeta   *engine.RightMetaStore
	matcher *engine.Matcher
	differ  *engine.Differ
	rec     *engine.Reconciler

	prompter sync.Prompter
	now      func() time.Time
}

// New creates a new sync UseCase instance. prompter may be nil for
// unattended operation.
func New(
	l pkgLog.Logger,
	st engine.Settings,
	left provider.Client,
	right provider.Client,
	win sync.Window,
	obf *obfuscate.Engine,
	prompter sync.Prompter,
) *implUseCase {
	// The pass machinery reads uc.right as truth and writes uc.left. A
	// left-to-right sync runs with the provider roles swapped, so the
	// declared source is read and the declared target written.
	if st.Direction == model.DirectionLeftToRight {
		left, right = right, left
	}
	if st.ActiveRightCollectionID == "" {
		st.ActiveRightCollectionID = right.CollectionID()
	}
	store := engine.NewMetaStore()
	rmeta := engine.NewRightMetaStore()
	rec := engine.NewReconciler(st, store, l)
	return &implUseCase{
		l:        l,
		st:       st,
		left:     left,
		right:    right,
		win:      win,
		store:    store,
		rmeta:    rmeta,
		matcher:  engine.NewMatcher(st, store, rmeta, l),
		differ:   engine.NewDiffer(st, store, rmeta, rec, obf, l),
		rec:      rec,
		prompter: prompter,
		now:      time.Now,
	}
}
