package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"obsdock/internal/domain"
	"obsdock/internal/logging"
)

// itemListConcurrency bounds the parallel GetSceneItemList calls of one refresh.
const itemListConcurrency = 4

// SnapshotCache holds the last fetched OBS state. It is written only by
// Refresh, which replaces everything at once, and read by the gateway and UIs.
type SnapshotCache struct {
	recorder Recorder

	// refreshMu serializes Refresh so two wholesale replacements never race.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	transport domain.Transport
	gen       uint64
	snap      domain.Snapshot
	loaded    bool
}

// NewSnapshotCache creates an empty, unbound cache.
func NewSnapshotCache(recorder Recorder) *SnapshotCache {
	return &SnapshotCache{recorder: recorderOrNop(recorder)}
}

// Bind points the cache at a new session and drops the previous snapshot.
func (c *SnapshotCache) Bind(t domain.Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.transport = t
	c.snap = domain.Snapshot{}
	c.loaded = false
}

// Clear unbinds the cache and drops everything. A refresh still in flight
// is discarded when it completes.
func (c *SnapshotCache) Clear() {
	c.Bind(nil)
}

// Snapshot returns a deep copy of the current snapshot. ok is false until
// the first refresh of the bound session succeeds.
func (c *SnapshotCache) Snapshot() (domain.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return domain.Snapshot{}, false
	}
	return c.snap.Clone(), true
}

// ResolveSourceID is a pure lookup against the current snapshot.
func (c *SnapshotCache) ResolveSourceID(scene, source string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return 0, false
	}
	return c.snap.ResolveSourceID(scene, source)
}

// CurrentProgramScene returns the program scene of the current snapshot.
func (c *SnapshotCache) CurrentProgramScene() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded || c.snap.CurrentProgramScene == "" {
		return "", false
	}
	return c.snap.CurrentProgramScene, true
}

// sceneLoaded reports whether the snapshot holds the item list of scene.
// A loaded scene is authoritative for name resolution.
func (c *SnapshotCache) sceneLoaded(scene string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return false
	}
	_, ok := c.snap.SceneItems[scene]
	return ok
}

// Refresh fetches the complete state from the bound session and swaps it in.
func (c *SnapshotCache) Refresh(ctx context.Context) (domain.Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.mu.RLock()
	t, gen := c.transport, c.gen
	c.mu.RUnlock()
	if t == nil {
		return domain.Snapshot{}, domain.ErrNotConnected
	}

	start := time.Now()
	snap, err := fetchSnapshot(ctx, t)
	c.recorder.SnapshotRefreshed(err, time.Since(start))
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("refresh: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return domain.Snapshot{}, fmt.Errorf("refresh: session replaced: %w", domain.ErrConnectionClosed)
	}
	c.snap = snap
	c.loaded = true

	logging.Component("snapshot").Debug().
		Int("scenes", len(snap.Scenes)).
		Str("program", snap.CurrentProgramScene).
		Dur("elapsed", time.Since(start)).
		Msg("refreshed")
	return snap.Clone(), nil
}

func fetchSnapshot(ctx context.Context, t domain.Transport) (domain.Snapshot, error) {
	var (
		list   domain.GetSceneListResponse
		studio domain.GetStudioModeEnabledResponse
		snap   domain.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := t.Call(gctx, "GetSceneList", nil, &list); err != nil {
			return err
		}
		return list.Validate()
	})
	g.Go(func() error {
		return t.Call(gctx, "GetStudioModeEnabled", nil, &studio)
	})
	g.Go(func() error {
		return t.Call(gctx, "GetStreamStatus", nil, &snap.Stream)
	})
	g.Go(func() error {
		return t.Call(gctx, "GetRecordStatus", nil, &snap.Record)
	})
	g.Go(func() error {
		if err := t.Call(gctx, "GetVideoSettings", nil, &snap.Video); err != nil {
			return err
		}
		return snap.Video.Validate()
	})
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}

	snap.Scenes = list.ToScenes()
	snap.CurrentProgramScene = list.CurrentProgramSceneName
	snap.StudioModeEnabled = studio.StudioModeEnabled
	if studio.StudioModeEnabled {
		snap.CurrentPreviewScene = list.CurrentPreviewSceneName
	}

	var mu sync.Mutex
	snap.SceneItems = make(map[string][]domain.SceneItem, len(snap.Scenes))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(itemListConcurrency)
	for _, scene := range snap.Scenes {
		g.Go(func() error {
			var resp domain.GetSceneItemListResponse
			if err := t.Call(gctx, "GetSceneItemList", domain.SceneParams{SceneName: scene.Name}, &resp); err != nil {
				return err
			}
			if err := resp.Validate(); err != nil {
				return err
			}
			items := resp.ToItems()
			mu.Lock()
			snap.SceneItems[scene.Name] = items
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}

	snap.FetchedAt = time.Now()
	return snap, nil
}
