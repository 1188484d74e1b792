package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"obsdock/internal/adapter/secondary/repository"
	"obsdock/internal/logging"
)

var (
	cfgPath   string
	verbosity int

	// settings layers --address/--password/--timeout over OBSDOCK_* env vars.
	settings *viper.Viper
)

// NewRootCmd creates the root CLI command.
// This is the primary adapter that translates CLI inputs to use case calls.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "obsdock",
		Short:         "Drive OBS Studio over obs-websocket",
		Long:          "Scene switching, source toggling and output control for OBS Studio from the terminal or a browser dock",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgPath, "config", repository.DefaultPath(), "preferences file path")
	flags.CountVarP(&verbosity, "verbose", "v", "more logging (-v, -vv, ... up to 4 times)")
	flags.String("address", "", "OBS websocket host:port (defaults to the saved address)")
	flags.String("password", "", "OBS websocket password (defaults to the saved password)")
	flags.Duration("timeout", 10*time.Second, "handshake timeout")

	settings = newSettings(flags)

	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// Inside the shell the level set with 'log' sticks unless -v is given.
		if active == nil || cmd.Flags().Changed("verbose") {
			logging.SetVerbosity(verbosity)
		}
	}

	cmd.AddCommand(
		newStatusCmd(),
		newScenesCmd(),
		newDoCmd(),
		newActionsCmd(),
		newRefreshCmd(),
		newConnectCmd(),
		newDisconnectCmd(),
		newServeCmd(),
		newConfigCmd(),
		newShellCmd(),
		newLogCmd(),
	)

	return cmd
}

func newSettings(flags *pflag.FlagSet) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("OBSDOCK")
	v.AutomaticEnv()
	for _, name := range []string{"address", "password", "timeout"} {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
	return v
}

func newShellCmd() *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Interactive shell that keeps one OBS session across commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractiveShell(prompt)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "obsdock> ", "shell prompt")
	return cmd
}

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "log [-v...] [--level name] [--show]",
		Short:              "Show or change the log level",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return handleLog(args, cmd.OutOrStdout())
		},
	}
}

func runInteractiveShell(prompt string) error {
	if active != nil {
		return errors.New("already inside the shell")
	}
	historyFile := filepath.Join(os.TempDir(), "obsdock-shell.history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	s, err := openSession()
	if err != nil {
		return err
	}
	active = s
	defer func() {
		active = nil
		s.close()
	}()

	notes := s.dock.Subscribe()
	go reportStateChanges(rl.Stdout(), notes)
	defer s.dock.Unsubscribe(notes)

	sh := &shell{out: rl.Stdout()}
	fmt.Fprintln(sh.out, "obsdock shell. 'help' for usage, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Fprintln(sh.out)
			continue
		}
		if err == io.EOF {
			fmt.Fprintln(sh.out)
			return nil
		}
		if sh.exec(line) {
			return nil
		}
	}
}

// shell runs one input line at a time against the active session.
type shell struct {
	out io.Writer
}

// exec reports true when the line ends the shell.
func (sh *shell) exec(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	switch line {
	case "exit", "quit":
		fmt.Fprintln(sh.out, "Bye!")
		return true
	case "help":
		printShellHelp(sh.out)
		return false
	}
	tokens, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(sh.out, "Parse error: %v\n", err)
		return false
	}
	if len(tokens) == 0 {
		return false
	}
	if tokens[0] == "shell" {
		fmt.Fprintln(sh.out, "Already in the shell. Enter a command or 'exit' to quit.")
		return false
	}
	if err := executeArgs(tokens, sh.out); err != nil {
		fmt.Fprintf(sh.out, "command error: %v\n", err)
	}
	return false
}

func executeArgs(args []string, out io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.Execute()
}

func handleLog(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("log", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var vcount int
	var level string
	var show bool
	fs.CountVarP(&vcount, "verbose", "v", "Increase verbosity (-v... up to 4)")
	fs.StringVar(&level, "level", "", "level name (error|warn|info|debug|trace)")
	fs.BoolVarP(&show, "show", "s", false, "print the current level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var count int
	switch {
	case show && vcount == 0 && level == "":
		fmt.Fprintf(out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	case level != "":
		_, c, err := logging.ParseLevel(level)
		if err != nil {
			return err
		}
		count = c
	case vcount > 0:
		count = vcount
	default:
		fmt.Fprintf(out, "log level: %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
		return nil
	}

	logging.SetVerbosity(count)
	fmt.Fprintf(out, "log level set to %s (-v x%d)\n", logging.LevelName(), logging.Verbosity())
	return nil
}

func printShellHelp(out io.Writer) {
	fmt.Fprintln(out, `Examples:
  connect --address 10.0.0.5:4455 --password s3cret
  status                                  # connection state and outputs
  scenes                                  # scenes and their sources
  do setCurrentProgramScene sceneName=Live
  do setSceneItemEnabled sceneName=Live sourceName=Camera sceneItemEnabled=false
  do toggleStream
  do setSceneName sceneName='"2024"' newSceneName=Archive   # quote JSON to force a string
  actions                                 # every supported action type
  refresh                                 # re-read the OBS state
  disconnect
  serve --listen 127.0.0.1:7071           # HTTP API + dock page
  config get / config set --attempts 3
  log -vv / log --show
  exit / quit`)
}
