package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if hasHelpFlag(args) {
		if help, ok := commandHelp[cmd]; ok {
			fmt.Print(help)
			return 0
		}
	}

	switch cmd {
	case "start":
		return runStart(args)
	case "print":
		return runPrint(args)
	case "scan":
		return runScan(args)
	case "inspect":
		return runInspect(args)
	case "printers":
		return runPrinters(args)
	case "select":
		return runSelect(args)
	case "history":
		return runHistory(args)
	case "check", "doctor":
		return runCheck(args)
	case "watch":
		return runWatch(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		if len(args) > 0 {
			if help, ok := commandHelp[args[0]]; ok {
				fmt.Print(help)
				return 0
			}
		}
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: labelspool version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		return printJSON(info)
	}

	fmt.Printf("labelspool %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if commit != "" {
		info.Commit = shortenCommit(commit)
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(built); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`labelspool - print ZPL label files to a thermal printer

Usage:
  labelspool <command> [flags]

Service:
  start       Watch the selected folder and print new label files (foreground)
  watch       Live dashboard of a running instance

Printing:
  print       Print files now; they are kept afterwards
  scan        Run one folder pass and wait for it to finish
  inspect     Show block counts and content hashes without printing

Setup:
  printers    List configured aliases and CUPS queues
  select      Show or change the selected printer and folder
  check       Validate configuration and environment
  history     Show recent dispatches

General:
  version     Show version information
  help        Show this help message

Every command accepts --config PATH. Use 'labelspool help <command>' for flags.
`)
}

var commandHelp = map[string]string{
	"start": `Usage: labelspool start [--config PATH]
Run the folder monitor (and the HTTP API when api.enabled) until SIGINT/SIGTERM.
Only one instance may run per state directory.
`,
	"print": `Usage: labelspool print [--config PATH] [--printer NAME] [--json] FILE...
Print each file block by block. Files are never deleted. Refuses to run while
'labelspool start' holds the lock; send files to its POST /print instead.

Exit codes:
  0  Every file was fully printed
  1  At least one file failed or was skipped
`,
	"scan": `Usage: labelspool scan [--config PATH] [--json]
Run one pass over the selected folder, print what is there, and delete each
file that was fully printed. Refuses to run while 'labelspool start' holds the lock.
`,
	"inspect": `Usage: labelspool inspect [--json] FILE...
Show how many labels each file holds and its BLAKE3 hash.
`,
	"printers": `Usage: labelspool printers [--config PATH] [--json]
List printer aliases from the config and CUPS queues from lpstat. The selected
printer is marked with '*'.
`,
	"select": `Usage: labelspool select [--config PATH] [--printer NAME] [--folder DIR]
Save the printer and/or watched folder. With no flags, show the selection.
Pass an empty value (--folder "") to clear a field.
`,
	"history": `Usage: labelspool history [--config PATH] [--limit N] [--json]
Show recent dispatches, newest first.
`,
	"check": `Usage: labelspool check [--config PATH] [--json]
Validate configuration, printer resolution, the watched folder and local state.

Exit codes:
  0  All checks passed
  1  One or more errors
  2  Passed with warnings
`,
	"watch": `Usage: labelspool watch [--config PATH] [--api URL] [--api-key KEY]
Live dashboard fed by GET /events and GET /healthz of a running instance.

Flags:
  --api URL        API base URL (default: http://<api.listen>)
  --api-key KEY    Bearer key (default: api.auth.api_key or $LABELSPOOL_API_KEY)

Keybindings:
  q, Ctrl+C        Quit
  ↑/↓, k/j         Scroll files
`,
	"version": `Usage: labelspool version [--json]
`,
}
