package cache

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"variantcache/internal/fsutil"
	"variantcache/internal/logging"

	"golang.org/x/sync/errgroup"
)

// scanWorkers bounds the number of files decoded at once.
const scanWorkers = 8

// Report describes one cache file found by Scan.
type Report struct {
	Path         string
	Conversation string
	Turns        int
	Variants     int
	Orphan       bool
	Corrupt      bool
}

// slowScan is the duration past which a scan is logged as slow.
const slowScan = 2 * time.Second

// Scan inventories every cache file under root.
func Scan(ctx context.Context, root string) ([]Report, error) {
	timer := logging.StartTimer(logging.CategoryCache, "Scan")
	defer timer.StopWithThreshold(slowScan)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), Suffix) && !fsutil.IsTemp(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	reports := make([]Report, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = inspect(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
	logging.Cache("Scanned %s: %d cache files", root, len(reports))
	return reports, nil
}

func inspect(path string) Report {
	base := filepath.Base(path)
	r := Report{
		Path:         path,
		Conversation: strings.TrimSuffix(base, Suffix),
	}
	history := strings.TrimSuffix(path, Suffix) + ".json"
	r.Orphan = !fsutil.Exists(history)

	store, err := readStore(path)
	if err != nil {
		logging.CacheWarn("Scan: unreadable cache %s: %v", path, err)
		r.Corrupt = true
		return r
	}
	r.Turns, r.Variants = store.Stats()
	return r
}
