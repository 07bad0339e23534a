// Package cmd implements the title-resolve command line.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Digital-Shane/title-resolve/internal/config"
	"github.com/Digital-Shane/title-resolve/internal/log"
	"github.com/Digital-Shane/title-resolve/internal/pipeline"
	"github.com/Digital-Shane/title-resolve/internal/provider"
	"github.com/Digital-Shane/title-resolve/internal/provider/ffprobe"
	"github.com/Digital-Shane/title-resolve/internal/provider/providers"
)

// Env holds what the commands touch outside the process: the filesystem,
// output streams and the provider clients.
type Env struct {
	FS   afero.Fs
	Out  io.Writer
	Err  io.Writer
	Args []string
	Now  func() time.Time
	// Registry builds the provider clients for a run.
	Registry func(provider.Config) (*provider.Registry, error)
	// Prober reads stream details when a template asks for them.
	Prober pipeline.Prober
	// Interactive shows the live progress view.
	Interactive bool
}

// DefaultEnv is the environment of a real run.
func DefaultEnv() *Env {
	return &Env{
		FS:          afero.NewOsFs(),
		Out:         os.Stdout,
		Err:         os.Stderr,
		Args:        os.Args[1:],
		Now:         time.Now,
		Registry:    providers.Build,
		Prober:      ffprobe.New(),
		Interactive: isatty.IsTerminal(os.Stderr.Fd()) && isatty.IsTerminal(os.Stdin.Fd()),
	}
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	env        *Env
	v          *viper.Viper
	configFile string
	noProgress bool
	cfg        *config.Config
}

// flagKeys maps persistent flags onto configuration keys.
var flagKeys = map[string]string{
	"locale":           "locale",
	"workers":          "workers",
	"log-level":        "log.level",
	"log-json":         "log.json",
	"movie-template":   "templates.movie",
	"episode-template": "templates.episode",
}

// NewRootCommand builds the command tree for env.
func NewRootCommand(env *Env) *cobra.Command {
	a := &app{env: env, v: config.NewViper(env.FS)}

	root := &cobra.Command{
		Use:   "title-resolve",
		Short: "Rename movie and episode files from online metadata",
		Long: `title-resolve identifies movie and TV episode files by their names, looks them up
with TMDb, TheTVDB, OMDb or TVmaze and renames them through naming templates.

Every applied batch is journaled so the latest one can be undone.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "config" {
				return nil
			}
			return a.load()
		},
	}
	root.SetOut(env.Out)
	root.SetErr(env.Err)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Configuration file (default ~/.title-resolve/config.yaml)")
	flags.String("locale", "", "Metadata language, e.g. en-US")
	flags.Int("workers", 0, "Number of files resolved concurrently")
	flags.String("log-level", "", "Log level: debug, info, warn or error")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.BoolVar(&a.noProgress, "no-progress", false, "Disable the live progress view")
	flags.String("movie-template", "", "Naming template for movies")
	flags.String("episode-template", "", "Naming template for episodes")
	bindFlags(a.v, flags)

	root.AddCommand(a.previewCommand(), a.applyCommand(), a.undoCommand(), a.configCommand())
	return root
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for flag, key := range flagKeys {
		lo.Must0(v.BindPFlag(key, flags.Lookup(flag)))
	}
}

// load reads and validates the configuration and sets up logging.
func (a *app) load() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	opts := cfg.LogOptions()
	opts.Output = a.env.Err
	log.Setup(opts)
	a.cfg = cfg
	return nil
}

// Execute runs the command line and returns the process exit code. An
// interrupt cancels the run; files already resolved are still reported.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := DefaultEnv()
	if err := NewRootCommand(env).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(env.Err, "Error: %v\n", err)
		return 1
	}
	return 0
}
