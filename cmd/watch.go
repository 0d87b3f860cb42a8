package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tenniscourt/slotwatch/internal/utils"
	"github.com/tenniscourt/slotwatch/pkg/browser"
	"github.com/tenniscourt/slotwatch/pkg/notify"
	"github.com/tenniscourt/slotwatch/pkg/snapshot"
	"github.com/tenniscourt/slotwatch/pkg/watch"
	"github.com/tenniscourt/slotwatch/pkg/whttp"
)

// watchCmd implements: slotwatch watch <venue>
// Exit status: 0 ok, 2 critical step failed, 3 service suspended, 4 page never loaded,
// 5 notification failed, 6 another run holds the venue, 1 anything else.
var watchCmd = &cobra.Command{
	Use:          "watch <venue>",
	Short:        "Check one venue once and notify on changes",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := runWatch(ctx, cmd, args[0])
		exitCode = code
		return err
	},
}

func runWatch(ctx context.Context, cmd *cobra.Command, name string) (int, error) {
	venue, err := findVenue(name)
	if err != nil {
		return watch.ExitError, err
	}
	log := utils.Log.WithField("venue", venue.Name)

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	preflight, _ := cmd.Flags().GetBool("preflight")
	headful, _ := cmd.Flags().GetBool("headful")
	jitter, _ := cmd.Flags().GetDuration("jitter")

	path := snapshotPath(venue)
	lock, err := utils.NewRunLock(path)
	if err != nil {
		return watch.ExitError, err
	}
	lockCtx, cancel := context.WithTimeout(ctx, viper.GetDuration("run.lock_wait"))
	err = lock.Lock(lockCtx)
	cancel()
	if err != nil {
		if errors.Is(err, utils.ErrLocked) {
			log.Warnf("Skipping run: %v", err)
			return watch.ExitLocked, err
		}
		return watch.ExitError, err
	}
	defer lock.Unlock()

	if jitter > 0 {
		// Spread scheduled runs so the portals do not see a burst on the minute.
		delay := time.Second + time.Duration(rand.Int63n(int64(jitter)))
		log.Debugf("Sleeping %s before starting", delay.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return watch.ExitError, ctx.Err()
		case <-time.After(delay):
		}
	}

	if preflight {
		client := whttp.NewClient(whttp.Options{})
		res, err := whttp.Probe(ctx, client, venue.BaseURL)
		if err == nil && !res.OK() {
			err = fmt.Errorf("%s answered HTTP %d", venue.BaseURL, res.StatusCode)
		}
		if err != nil {
			log.Errorf("Preflight failed: %v", err)
			return watch.ExitLoadTimeout, err
		}
		log.Debugf("Preflight ok: HTTP %d %q in %s", res.StatusCode, res.Title, res.Elapsed.Round(time.Millisecond))
	}

	cal, err := loadCalendar(time.Now())
	if err != nil {
		return watch.ExitError, err
	}

	store := snapshotStore(venue)
	var dispatcher notify.Dispatcher = smtpDispatcher()
	if dryRun {
		// Reads the real snapshot; writes stay in memory.
		store = &snapshot.Store{
			Fs:   afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(afero.NewOsFs()), afero.NewMemMapFs()),
			Path: path,
		}
		dispatcher = notify.Writer{W: cmd.OutOrStdout()}
	}

	chrome, err := browser.NewChrome(ctx, browser.Options{
		Headless: !headful && viper.GetBool("browser.headless"),
		ExecPath: viper.GetString("browser.exec_path"),
	})
	if err != nil {
		return watch.ExitError, fmt.Errorf("starting browser: %w", err)
	}
	defer chrome.Close()

	log.Infof("Checking %s", venue)
	res, err := watch.Run(ctx, watch.Config{
		Venue:            venue,
		Driver:           chrome,
		Dispatcher:       dispatcher,
		Store:            store,
		Calendar:         cal,
		Recipients:       recipients(),
		PersistOnFailure: viper.GetBool("notify.persist_on_failure"),
		Watchdog:         viper.GetDuration("run.watchdog"),
		Timeout:          viper.GetDuration("run.timeout"),
		Retries:          viper.GetInt("run.retries"),
		Log:              log,
	})
	if err != nil {
		if res.FailedStep != "" {
			log.Errorf("Run failed at step %q: %v", res.FailedStep, err)
		} else {
			log.Errorf("Run failed: %v", err)
		}
		return res.Outcome.ExitCode(), err
	}
	log.Infof("Done: %s (%d line(s))", res.Outcome, len(res.Added)+len(res.Removed))
	return res.Outcome.ExitCode(), nil
}

func init() {
	watchCmd.Flags().Bool("dry-run", false, "Print the notification instead of sending it and leave the snapshot untouched")
	watchCmd.Flags().Bool("preflight", false, "Probe the portal over plain HTTP before starting the browser")
	watchCmd.Flags().Bool("headful", false, "Show the browser window")
	watchCmd.Flags().Duration("jitter", 0, "Sleep a random 1s..jitter before starting (the cron setup uses 30s)")
	rootCmd.AddCommand(watchCmd)
}
