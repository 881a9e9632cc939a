package databaseio

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/neno/internal/models"
	"github.com/starford/neno/internal/notefile"
	"github.com/starford/neno/internal/subwaytext"
)

// ErrPoolClosed is returned by Parse after Close.
var ErrPoolClosed = errors.New("databaseio: parser pool closed")

// RawNote is a serialized note file awaiting parsing.
type RawNote struct {
	Slug string
	Raw  string
}

// ParsedNote is the result of parsing one RawNote. Err is set when the file
// is not a well-formed note.
type ParsedNote struct {
	Slug   string
	Note   *models.ExistingNote
	Blocks []subwaytext.Block
	Err    error
}

type parseJob struct {
	shard   []RawNote
	results chan<- []ParsedNote
}

// ParserPool is a fixed set of goroutines parsing note files in shards.
type ParserPool struct {
	size int
	jobs chan parseJob

	mu     sync.RWMutex
	closed bool
	group  errgroup.Group
}

// DefaultPoolSize is the hardware parallelism, at least 2.
func DefaultPoolSize() int {
	return max(2, runtime.NumCPU())
}

// NewParserPool starts size workers. A size below 1 selects DefaultPoolSize.
func NewParserPool(size int) *ParserPool {
	if size < 1 {
		size = DefaultPoolSize()
	}
	p := &ParserPool{size: size, jobs: make(chan parseJob)}
	for range size {
		p.group.Go(func() error {
			for job := range p.jobs {
				job.results <- parseShard(job.shard)
			}
			return nil
		})
	}
	return p
}

// Size returns the number of workers.
func (p *ParserPool) Size() int {
	return p.size
}

// Parse splits raws into one shard per worker and merges the results. The
// output order is unspecified.
func (p *ParserPool) Parse(ctx context.Context, raws []RawNote) ([]ParsedNote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if len(raws) == 0 {
		return nil, nil
	}

	shardSize := (len(raws) + p.size - 1) / p.size
	var shards [][]RawNote
	for start := 0; start < len(raws); start += shardSize {
		shards = append(shards, raws[start:min(start+shardSize, len(raws))])
	}

	results := make(chan []ParsedNote, len(shards))
	for _, shard := range shards {
		select {
		case p.jobs <- parseJob{shard: shard, results: results}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	merged := make([]ParsedNote, 0, len(raws))
	for len(merged) < len(raws) {
		select {
		case part := <-results:
			merged = append(merged, part...)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return merged, nil
}

// Close stops the workers after in-flight parses finish. It is safe to call
// more than once.
func (p *ParserPool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	_ = p.group.Wait()
}

func parseShard(shard []RawNote) []ParsedNote {
	out := make([]ParsedNote, 0, len(shard))
	for _, raw := range shard {
		note, err := notefile.Parse(raw.Raw, raw.Slug)
		if err != nil {
			out = append(out, ParsedNote{Slug: raw.Slug, Err: err})
			continue
		}
		out = append(out, ParsedNote{
			Slug:   raw.Slug,
			Note:   note,
			Blocks: subwaytext.Parse(note.Content),
		})
	}
	return out
}
