// Package logmine turns an append-only directory of line-delimited JSON
// usage logs into per-day usage aggregates, tolerating the several record
// shapes the log producer has emitted over time.
package logmine

import (
	"bufio"
	"context"
	"log"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/spendmon/spendmon/internal/core"
)

const (
	minLogFileSize = 100             // bytes; smaller files are noise
	readChunkSize  = 64 * 1024       // initial scanner buffer
	maxLineBytes   = 8 * 1024 * 1024 // hard cap for a single log line
)

// MiningStats reports what a mining pass saw. Per-line and per-file
// failures degrade to counters here; they never abort the pass.
type MiningStats struct {
	FilesScanned int
	FilesSkipped int
	FileErrors   int
	LinesParsed  int
	LinesSkipped int
	AccessError  bool
	CacheHit     bool
}

// Miner orchestrates scanner, parser and cache into a best-effort
// directory→daily-usage view. File parsing fans out to a fixed-size worker
// pool; each file is streamed in bounded chunks so peak memory stays flat
// on multi-hundred-MB logs.
type Miner struct {
	dir     string
	scanner *Scanner
	parser  *Parser
	cache   *Cache
	workers int
}

func NewMiner(dir string) *Miner {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	return &Miner{
		dir:     dir,
		scanner: NewScanner(),
		parser:  NewParser(),
		cache:   NewCache(),
		workers: workers,
	}
}

// DailyUsage returns mined usage grouped by local calendar date. Results
// are cached by directory fingerprint; an unchanged directory within the
// TTL is served without touching file contents. An unavailable directory
// (missing, permission revoked) yields an empty result with AccessError
// set, never a hard failure.
func (m *Miner) DailyUsage(ctx context.Context) (DailyUsage, MiningStats, error) {
	var stats MiningStats
	if _, err := os.Stat(m.dir); err != nil {
		stats.AccessError = true
		log.Printf("[miner] log directory unavailable: %v", err)
		return DailyUsage{}, stats, nil
	}

	files := m.scanner.ListFiles(m.dir)
	key := Fingerprint(files)
	if rec, ok := m.cache.Get(key); ok {
		stats.CacheHit = true
		return rec.Payload, stats, nil
	}

	entries, stats := m.mineFiles(ctx, files)
	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}
	daily := groupByDay(entries)
	m.cache.Put(key, daily)
	return daily, stats, nil
}

// CurrentWindowUsage mines live, bypassing the cache and restricted to
// files touched within the window. The rolling quota display would
// otherwise lag up to a full cache TTL behind the logs.
func (m *Miner) CurrentWindowUsage(ctx context.Context, ref time.Time, quota WindowQuota) (FiveHourWindow, error) {
	cutoff := ref.Add(-WindowDuration)
	recent := lo.Filter(m.scanner.ListFiles(m.dir), func(f LogFile, _ int) bool {
		return !f.ModTime.Before(cutoff)
	})
	entries, _ := m.mineFiles(ctx, recent)
	if err := ctx.Err(); err != nil {
		return FiveHourWindow{}, err
	}
	return ComputeWindow(groupByDay(entries), ref, quota), nil
}

type fileStat struct {
	skipped      bool
	failed       bool
	parsed       int
	skippedLines int
}

func (m *Miner) mineFiles(ctx context.Context, files []LogFile) ([]core.UsageLogEntry, MiningStats) {
	results := make([][]core.UsageLogEntry, len(files))
	fileStats := make([]fileStat, len(files))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				f := files[i]
				if f.Size < minLogFileSize {
					fileStats[i] = fileStat{skipped: true}
					continue
				}
				results[i], fileStats[i] = m.mineFile(f.Path)
			}
		}()
	}

feed:
	for i := range files {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	// Merge in scan order so entry order within a day is deterministic.
	var stats MiningStats
	var all []core.UsageLogEntry
	for i := range files {
		all = append(all, results[i]...)
		st := fileStats[i]
		switch {
		case st.skipped:
			stats.FilesSkipped++
		case st.failed:
			stats.FileErrors++
		default:
			stats.FilesScanned++
		}
		stats.LinesParsed += st.parsed
		stats.LinesSkipped += st.skippedLines
	}
	return all, stats
}

// mineFile streams one log file line by line. A read failure mid-file keeps
// whatever parsed before it; the file is counted as failed and mining moves
// on to the rest.
func (m *Miner) mineFile(path string) ([]core.UsageLogEntry, fileStat) {
	var st fileStat
	f, err := os.Open(path)
	if err != nil {
		st.failed = true
		log.Printf("[miner] skipping %s: %v", path, err)
		return nil, st
	}
	defer f.Close()

	var entries []core.UsageLogEntry
	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, readChunkSize)
	scanner.Buffer(buf, maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry, ok := m.parser.ParseLine(line)
		if !ok {
			st.skippedLines++
			continue
		}
		entries = append(entries, entry)
		st.parsed++
	}
	if err := scanner.Err(); err != nil {
		st.failed = true
		log.Printf("[miner] read error in %s: %v", path, err)
	}
	return entries, st
}

func groupByDay(entries []core.UsageLogEntry) DailyUsage {
	daily := make(DailyUsage)
	for _, e := range entries {
		day := e.Timestamp.In(time.Local).Format("2006-01-02")
		daily[day] = append(daily[day], e)
	}
	return daily
}
