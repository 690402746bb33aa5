package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

// CacheList prints the persisted entries, most recently used first.
func (a *App) CacheList(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := store.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.Out, "cache is empty")
		return nil
	}

	var total int64
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Entry\tSamples\tBytes\tLast access (UTC)")
	for _, e := range entries {
		access := "-"
		if e.HasMeta {
			access = e.LastAccess.Format(time.RFC3339)
		}
		total += e.Size
		fmt.Fprintf(writer, "%s\t%d\t%d\t%s\n", e.ID, e.Samples, e.Size, access)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "\n%d entries, %d bytes\n", len(entries), total)
	return nil
}

// CacheClear drops every entry in the configured namespace.
func (a *App) CacheClear(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "removed %d entries\n", n)
	return nil
}

// CacheReclaim runs one eviction pass. forced evicts down to the floor.
func (a *App) CacheReclaim(ctx context.Context, forced bool) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := store.Reclaim(ctx, forced)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "evicted %d entries\n", n)
	return nil
}
