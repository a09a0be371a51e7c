package manager

import (
	"context"
	"strings"
	"sync"

	"github.com/daybook-app/daybook/internal/entry"
	"github.com/daybook-app/daybook/internal/index"
)

// Search scans document bodies of non-archived entries for a
// case-insensitive substring.
//
// Small result sets are scanned on the calling goroutine. Above the
// fan-out threshold the scan is spread across a bounded pool of
// workers, each unit limited by a per-document timeout. A unit that
// times out or fails contributes an empty partial result; it never
// fails the whole search.
func (m *Manager) Search(ctx context.Context, query string) ([]*entry.Entry, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}

	stubs, err := m.store.ListStubs(ctx, m.kind, index.UnboundedFilter())
	if err != nil {
		return nil, err
	}

	var hits []*entry.Entry
	if len(stubs) <= m.fanoutThresh {
		for _, stub := range stubs {
			if e := m.scanUnit(ctx, stub, query); e != nil {
				hits = append(hits, e)
			}
		}
	} else {
		hits = m.searchFanout(ctx, stubs, query)
	}

	sortByAnchor(hits)
	return hits, nil
}

// searchFanout spreads units across m.searchWorkers goroutines.
func (m *Manager) searchFanout(ctx context.Context, stubs []entry.Stub, query string) []*entry.Entry {
	units := make(chan entry.Stub)
	var (
		mu   sync.Mutex
		hits []*entry.Entry
		wg   sync.WaitGroup
	)

	for i := 0; i < m.searchWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for stub := range units {
				if e := m.scanUnit(ctx, stub, query); e != nil {
					mu.Lock()
					hits = append(hits, e)
					mu.Unlock()
				}
			}
		}()
	}

	for _, stub := range stubs {
		select {
		case units <- stub:
		case <-ctx.Done():
			close(units)
			wg.Wait()
			return hits
		}
	}
	close(units)
	wg.Wait()

	return hits
}

// scanUnit loads one document and matches it against the query, bounded
// by the per-unit timeout. Failures and timeouts yield nil.
func (m *Manager) scanUnit(ctx context.Context, stub entry.Stub, query string) *entry.Entry {
	unitCtx, cancel := context.WithTimeout(ctx, m.searchTimeout)
	defer cancel()

	type result struct {
		e   *entry.Entry
		err error
	}
	done := make(chan result, 1)

	go func() {
		e, err := m.store.Docs().Read(stub.DocPath)
		done <- result{e: e, err: err}
	}()

	select {
	case <-unitCtx.Done():
		m.log.Warnf("search unit %s timed out", stub.ID)
		return nil
	case res := <-done:
		if res.err != nil {
			m.log.Warnf("search unit %s failed: %v", stub.ID, res.err)
			return nil
		}
		if matches(res.e, query) {
			return res.e
		}
		return nil
	}
}
