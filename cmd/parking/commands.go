package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/fsutil"
	"github.com/banshee-data/parking.report/internal/httputil"
	"github.com/banshee-data/parking.report/internal/spaces"
	"github.com/banshee-data/parking.report/internal/status"
)

// runStatus prints the snapshot from the status file, or from a running
// monitor's /api/status when -url is given. With -watch it repeats until ctx
// is cancelled; a missing or unreadable snapshot is reported and retried on
// the next tick instead of ending the watch.
func runStatus(ctx context.Context, args []string, cfg *config.Config, client httputil.HTTPClient, fsys fsutil.FileSystem, out io.Writer) error {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	fset.SetOutput(out)
	url := fset.String("url", "", "Base URL of a running monitor, e.g. http://localhost:8090")
	watch := fset.Duration("watch", 0, "Repeat at this interval until interrupted")
	if err := fset.Parse(args); err != nil {
		return err
	}

	fetch := func() (status.Snapshot, error) {
		if *url == "" {
			return status.Read(fsys, cfg.GetStatusPath())
		}
		var snap status.Snapshot
		err := httputil.GetJSON(ctx, client, strings.TrimSuffix(*url, "/")+"/api/status", &snap)
		return snap, err
	}

	for {
		snap, err := fetch()
		switch {
		case err == nil:
			printSnapshot(out, snap)
		case *watch > 0 && transientSnapshotError(err):
			fmt.Fprintf(out, "No data yet: %v\n", err)
		default:
			return err
		}

		if *watch <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(*watch):
		}
	}
}

// transientSnapshotError reports whether err means the snapshot has not been
// written yet or was caught mid-replace.
func transientSnapshotError(err error) bool {
	var serErr *status.SerializationError
	return errors.Is(err, status.ErrNoSnapshot) || errors.As(err, &serErr)
}

func printSnapshot(out io.Writer, snap status.Snapshot) {
	fmt.Fprintf(out, "Free: %d  Occupied: %d  Total: %d  (updated %s)\n",
		snap.Free, snap.Occupied, snap.Total, snap.UpdatedAt.Format(time.RFC3339))
	for _, sp := range snap.Spaces {
		if sp.Status == status.Occupied && sp.Elapsed != "" {
			fmt.Fprintf(out, "  Space %d: %s %s\n", sp.ID, sp.Status, sp.Elapsed)
			continue
		}
		fmt.Fprintf(out, "  Space %d: %s\n", sp.ID, sp.Status)
	}
}

// runSeed writes the all-free snapshot sized to the configured spaces.
func runSeed(cfg *config.Config, fsys fsutil.FileSystem, now time.Time, out io.Writer) error {
	defs, err := spaces.LoadFS(fsys, cfg.GetSpacesPath())
	if err != nil {
		return err
	}
	if err := status.Seed(fsys, cfg.GetStatusPath(), len(defs), now); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %s with %d free spaces\n", cfg.GetStatusPath(), len(defs))
	return nil
}
