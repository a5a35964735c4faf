package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/axkibe/lsyncd-go/cmd"
	"github.com/axkibe/lsyncd-go/pkg/config"
	"github.com/axkibe/lsyncd-go/pkg/engine"
	"github.com/axkibe/lsyncd-go/pkg/filesystem/locking"
	"github.com/axkibe/lsyncd-go/pkg/logging"
	"github.com/axkibe/lsyncd-go/pkg/lsyncd"
	"github.com/axkibe/lsyncd-go/pkg/sync"
	"github.com/axkibe/lsyncd-go/pkg/watch"
)

// configuration holds the parsed command-line flags, mirroring the shape of
// spec.md §6's "command line parsed into engine configuration".
var configuration struct {
	help      bool
	log       []string
	logfile   string
	monitor   string
	nodaemon  bool
	pidfile   string
	runner    string
	version   bool
	rsync     []string
	rsyncssh  []string
}

func rootMain(command *cobra.Command, arguments []string) error {
	if configuration.version {
		fmt.Println(lsyncd.Version)
		return nil
	}

	if command.Flags().Changed("monitor") {
		if configuration.monitor == "list" || configuration.monitor == "" {
			fmt.Println("supported event facilities: inotify")
			os.Exit(1)
		}
		if configuration.monitor != "inotify" {
			return errors.Errorf("unsupported event facility %q (only inotify is supported)", configuration.monitor)
		}
	}

	for _, category := range configuration.log {
		logging.Enable(logging.Category(category))
	}
	if configuration.logfile != "" {
		if _, err := logging.ConfigureFile(configuration.logfile); err != nil {
			return err
		}
	} else if !configuration.nodaemon {
		if _, err := logging.ConfigureSyslog("lsyncd-go"); err != nil {
			return err
		}
	} else {
		log.SetOutput(os.Stderr)
	}

	rsyncFlagsUsed := len(configuration.rsync) > 0 || len(configuration.rsyncssh) > 0
	if rsyncFlagsUsed && len(arguments) > 0 {
		return errors.New("-rsync/-rsyncssh cannot be combined with a configuration file")
	}
	if rsyncFlagsUsed && len(configuration.rsync) > 0 && len(configuration.rsyncssh) > 0 {
		return errors.New("-rsync and -rsyncssh are mutually exclusive")
	}

	var syncConfigs []sync.Config
	var statusFile string
	var statusInterval = config.DefaultStatusInterval

	switch {
	case len(configuration.rsync) > 0:
		if len(configuration.rsync) != 2 {
			return errors.New("-rsync requires exactly SOURCE and DESTINATION arguments")
		}
		syncConfigs = []sync.Config{config.RsyncFlagConfig(configuration.rsync[0], configuration.rsync[1])}
	case len(configuration.rsyncssh) > 0:
		if len(configuration.rsyncssh) != 3 {
			return errors.New("-rsyncssh requires exactly SOURCE, HOST, and TARGETDIR arguments")
		}
		syncConfigs = []sync.Config{
			config.RsyncSSHFlagConfig(configuration.rsyncssh[0], configuration.rsyncssh[1], configuration.rsyncssh[2]),
		}
	case len(arguments) == 1:
		file, err := config.Load(arguments[0])
		if err != nil {
			return err
		}
		syncConfigs, err = file.Configs()
		if err != nil {
			return err
		}
		statusFile = file.Settings.StatusFile
		statusInterval = file.StatusInterval()
	default:
		return errors.New("exactly one of a configuration file, -rsync, or -rsyncssh is required")
	}

	if configuration.pidfile != "" {
		locker, err := locking.NewLocker(configuration.pidfile, 0644)
		if err != nil {
			return errors.Wrap(err, "unable to open pidfile")
		}
		if err := locker.Lock(false); err != nil {
			return errors.Wrap(err, "another instance holds the pidfile lock")
		}
		defer locker.Close()
		if err := locker.Truncate(0); err == nil {
			locker.Write([]byte(fmt.Sprintf("%d\n", os.Getpid())))
		}
	}

	source, err := watch.NewInotifySource()
	if err != nil {
		return errors.Wrap(err, "unable to initialize inotify")
	}
	defer source.Close()

	completions := engine.NewCompletions()

	entries := make([]engine.SyncEntry, 0, len(syncConfigs))
	for _, sc := range syncConfigs {
		s, err := sync.New(sc, completions)
		if err != nil {
			return errors.Wrap(err, "unable to construct sync")
		}
		entries = append(entries, engine.SyncEntry{Sync: s, Root: sc.Source, TrackSubdirs: true})
	}

	var progress *cmd.StatusLinePrinter
	engineConfig := engine.Config{
		Syncs:          entries,
		Source:         source,
		StatusFile:     statusFile,
		StatusInterval: statusInterval,
		Completions:    completions,
	}
	if configuration.nodaemon {
		progress = &cmd.StatusLinePrinter{}
		engineConfig.ProgressFunc = progress.Print
	}

	e, err := engine.New(engineConfig)
	if err != nil {
		return errors.Wrap(err, "unable to start engine")
	}

	if configuration.nodaemon {
		logging.RootLogger.Printf("lsyncd-go %s starting, %d sync(s) configured", lsyncd.Version, len(entries))
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, cmd.TerminationSignals...)
	defer signal.Stop(signals)

	if progress != nil {
		defer progress.BreakIfNonEmpty()
	}
	return e.Run(signals)
}

var RootCommand = &cobra.Command{
	Use:          "lsyncd-go [configuration-file]",
	Short:        "Live directory-mirroring daemon",
	Args:         cobra.MaximumNArgs(1),
	Run:          cmd.Mainify(rootMain),
	SilenceUsage: true,
}

func init() {
	flags := RootCommand.Flags()
	flags.SortFlags = false

	flags.BoolVarP(&configuration.help, "help", "h", false, "Show usage information")
	flags.StringArrayVar(&configuration.log, "log", nil, "Enable a log category (repeatable; also \"all\", \"scarce\")")
	flags.StringVar(&configuration.logfile, "logfile", "", "Log to the given file instead of syslog (or the console with -nodaemon)")
	flags.StringVar(&configuration.monitor, "monitor", "", "Select the event facility (only \"inotify\" is supported); bare flag lists supported facilities")
	flags.Lookup("monitor").NoOptDefVal = "list"
	flags.BoolVar(&configuration.nodaemon, "nodaemon", false, "Stay in the foreground and log to the console")
	flags.StringVar(&configuration.pidfile, "pidfile", "", "Write (and lock) the daemon's pid to the given path")
	flags.StringVar(&configuration.runner, "runner", "", "Unused compatibility flag, accepted and ignored")
	flags.BoolVarP(&configuration.version, "version", "v", false, "Print the version and exit")
	flags.StringArrayVar(&configuration.rsync, "rsync", nil, "Synthesize one sync using the built-in rsync action: SOURCE DESTINATION")
	flags.StringArrayVar(&configuration.rsyncssh, "rsyncssh", nil, "Synthesize one sync using the built-in rsync+ssh action: SOURCE HOST TARGETDIR")

	flags.Lookup("runner").Hidden = true

	// Cobra treats a "help" flag specially: execute() short-circuits to
	// flag.ErrHelp the moment it's set, and ExecuteC swallows that as a
	// non-error after invoking HelpFunc. Left alone that means "-help"
	// prints usage and exits 0, contrary to lsyncd's own "-help" behavior
	// of exiting nonzero. Wrap the default HelpFunc so it still renders
	// the usual usage text but then exits nonzero itself, since the
	// ErrHelp swallow happens before rootMain ever runs.
	defaultHelp := RootCommand.HelpFunc()
	RootCommand.SetHelpFunc(func(command *cobra.Command, arguments []string) {
		defaultHelp(command, arguments)
		os.Exit(1)
	})
}

func main() {
	if err := RootCommand.Execute(); err != nil {
		cmd.Fatal(err)
	}
}
