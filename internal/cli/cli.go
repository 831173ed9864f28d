package cli

import (
	"fmt"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status      *StatusCommand
	Candidates  *CandidatesCommand
	Activations *ActivationsCommand
	Purged      *PurgedCommand
	Record      *RecordCommand
	Purge       *PurgeCommand
	Sweep       *SweepCommand
	Clear       *ClearCommand
	Exempt      *ExemptCommand
	Replay      *ReplayCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string, env *environment) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.HelpFlag|goflags.PassDoubleDash)
	parser.Name = "bounceguard"
	parser.LongDescription = "Bounce tracking protection: detect redirect trackers that set state and purge their data."

	g := &globals
	cmds := &commands{
		Status:      &StatusCommand{globals: g, env: env, version: version},
		Candidates:  &CandidatesCommand{globals: g, env: env},
		Activations: &ActivationsCommand{globals: g, env: env},
		Purged:      &PurgedCommand{globals: g, env: env},
		Record:      &RecordCommand{globals: g, env: env},
		Purge:       &PurgeCommand{globals: g, env: env},
		Sweep:       &SweepCommand{globals: g, env: env},
		Clear:       &ClearCommand{globals: g, env: env},
		Exempt:      &ExemptCommand{globals: g, env: env},
		Replay:      &ReplayCommand{globals: g, env: env},
	}

	parser.AddCommand("status", "Show mode, retention and partition counts", "Show the operating mode, retention and per-partition record counts.", cmds.Status)
	parser.AddCommand("candidates", "List bounce tracker candidates", "List the live bounce tracker candidates of a partition.", cmds.Candidates)
	parser.AddCommand("activations", "List user activations", "List the live user activations of a partition.", cmds.Activations)
	parser.AddCommand("purged", "Show the recent purge log", "Show the sites purged most recently in a partition.", cmds.Purged)
	parser.AddCommand("record", "Record a candidate or activation by hand", "Record a bounce tracker candidate or a user activation by hand.", cmds.Record)
	parser.AddCommand("purge", "Run a purge cycle now", "Run one purge cycle now, deleting site data through the configured purge command.", cmds.Purge)
	parser.AddCommand("sweep", "Remove expired records", "Physically remove candidates and activations older than the retention window.", cmds.Sweep)
	parser.AddCommand("clear", "Delete ALL tracking state", "Delete all candidates, activations and purge logs. Destructive operation with safety prompt.", cmds.Clear)
	parser.AddCommand("exempt", "Add an allowlist rule", "Add a domain or regex rule for sites that are never purged.", cmds.Exempt)
	parser.AddCommand("replay", "Replay a recorded event trace", "Feed a JSONL event trace through an in-process manager and print the classification.", cmds.Replay)

	return parser, &globals, cmds
}

// Run is the main entry point for the bounceguard CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	return runWithEnv(version, args, defaultEnvironment())
}

func runWithEnv(version string, args []string, env *environment) error {
	// go-flags requires a subcommand, but --version is valid without one.
	checkArgs := args
	if checkArgs == nil {
		checkArgs = env.args
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Fprintf(env.stdout, "bounceguard %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version, env)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.ParseArgs(env.args)
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok && flagsErr.Type == goflags.ErrHelp {
			fmt.Fprintln(env.stdout, flagsErr.Message)
			return nil
		}
		return err
	}
	return nil
}
