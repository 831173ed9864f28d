package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	DB      string `long:"db" description:"Path to the SQLite database (overrides storage config)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// StatusCommand shows mode, retention and per-partition counts.
type StatusCommand struct {
	globals *GlobalFlags
	env     *environment
	version string
}

// CandidatesCommand lists the live bounce tracker candidates.
type CandidatesCommand struct {
	Partition string `long:"partition" description:"Partition key (default partition when empty)"`

	globals *GlobalFlags
	env     *environment
}

// ActivationsCommand lists the live user activations.
type ActivationsCommand struct {
	Partition string `long:"partition" description:"Partition key (default partition when empty)"`

	globals *GlobalFlags
	env     *environment
}

// PurgedCommand prints the recent purge log.
type PurgedCommand struct {
	Partition string `long:"partition" description:"Partition key (default partition when empty)"`

	globals *GlobalFlags
	env     *environment
}

// RecordCommand adds a candidate or an activation by hand.
type RecordCommand struct {
	Candidate  string `long:"candidate" description:"Host to record as a bounce tracker candidate"`
	Activation string `long:"activation" description:"Host to record as user activated"`
	At         string `long:"at" description:"Timestamp in RFC3339 (default now)"`
	Partition  string `long:"partition" description:"Partition key (default partition when empty)"`

	globals *GlobalFlags
	env     *environment
}

// PurgeCommand runs one purge cycle now.
type PurgeCommand struct {
	Partition string `long:"partition" description:"Partition key (default partition when empty)"`
	DryRun    bool   `long:"dry-run" description:"Report what would be purged without deleting"`

	globals *GlobalFlags
	env     *environment
}

// SweepCommand physically removes expired records.
type SweepCommand struct {
	globals *GlobalFlags
	env     *environment
}

// ClearCommand deletes tracking state with a safety confirmation.
type ClearCommand struct {
	All       bool   `long:"all" description:"Required flag to confirm clear intent"`
	Force     bool   `long:"force" description:"Skip safety confirmation prompt"`
	Partition string `long:"partition" description:"Only clear this partition"`

	globals *GlobalFlags
	env     *environment
}

// ExemptCommand adds an allowlist rule to the database.
type ExemptCommand struct {
	Domain string `long:"domain" description:"Site that is never purged"`
	Regex  string `long:"regex" description:"Host pattern that is never purged"`
	Reason string `long:"reason" description:"Why the rule exists"`

	globals *GlobalFlags
	env     *environment
}

// ReplayCommand feeds a recorded JSONL event trace through an in-process
// manager.
type ReplayCommand struct {
	File  string `long:"file" description:"Trace file, one JSON event per line (required)"`
	Purge bool   `long:"purge" description:"Run a purge cycle after the trace"`

	globals *GlobalFlags
	env     *environment
}
