// Weir CLI - inspection tooling for scope checkpoints and wire records
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/weirworks/weir/checkpoint"
	"github.com/weirworks/weir/manifest"
	"github.com/weirworks/weir/scope"
	"github.com/weirworks/weir/wire"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	inspectPath := flag.String("inspect", "", "Decode a wire record file and print the scope it carries")
	readPath := flag.String("read", "", "Decode a checkpoint file and print the restored scope")
	listAttempts := flag.Bool("attempts", false, "List recorded checkpoint attempts from the ledger")
	scopeName := flag.String("scope", "", "Scope name to restore under (with -read, default: file name)")
	envKind := flag.String("env", "", "Environment kind to instantiate (with -read, default: manifest setting)")
	deferUndefined := flag.Bool("defer-undefined", false, "Defer undefined variables instead of failing (with -read)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: weir [options]\n\n")
		fmt.Fprintf(os.Stderr, "Inspects weir scope checkpoints and dehydrated wire records.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  weir -inspect ingest.scope       # Print a wire record\n")
		fmt.Fprintf(os.Stderr, "  weir -read ingest                # Print a checkpoint from the project checkpoint dir\n")
		fmt.Fprintf(os.Stderr, "  weir -read ingest -env process   # Restore against the process environment\n")
		fmt.Fprintf(os.Stderr, "  weir -attempts                   # List checkpoint attempts\n")
	}
	flag.Parse()

	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	// Load the project manifest if there is one
	mf, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *verbose && mf != nil {
		fmt.Printf("Using manifest in %s\n", mf.Dir)
	}

	if *inspectPath != "" {
		if err := runInspect(*inspectPath, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *readPath != "" {
		if err := runRead(*readPath, *scopeName, *envKind, *deferUndefined, mf, *verbose); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if *listAttempts {
		if err := runAttempts(mf); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	flag.Usage()
	os.Exit(2)
}

// runInspect decodes a wire record and prints the scope it carries.
func runInspect(path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	m, err := wire.Rehydrate(data, nil)
	if err != nil {
		return err
	}

	printScope(m, verbose)
	return nil
}

// runRead decodes a checkpoint file and prints the restored scope.
// The restore context comes from flags, falling back to the manifest.
func runRead(path, name, kind string, deferUndefined bool, mf *manifest.Manifest, verbose bool) error {
	path, err := resolveCheckpoint(path, mf)
	if err != nil {
		return err
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if kind == "" {
		kind = scope.KindMemory
		if mf != nil {
			kind = mf.Scope.Environment
		}
	}
	if mf != nil && mf.Scope.DeferUndefined {
		deferUndefined = true
	}

	pc := scope.NewProcessorContext(name, deferUndefined, func() (scope.Environment, error) {
		return scope.DefaultRegistry().New(kind)
	})

	m, err := checkpoint.Read(path, pc)
	if err != nil {
		return err
	}

	printScope(m, verbose)
	return nil
}

// runAttempts lists recorded checkpoint attempts, newest first.
func runAttempts(mf *manifest.Manifest) error {
	if mf == nil {
		return fmt.Errorf("no weir.toml manifest found (run inside a weir project)")
	}

	ledger, err := checkpoint.OpenLedger(mf.LedgerPath())
	if err != nil {
		return err
	}
	defer ledger.Close()

	attempts, err := ledger.List()
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("No attempts recorded")
		return nil
	}

	for _, a := range attempts {
		status := "running"
		if a.Complete {
			status = "complete"
		}
		fmt.Printf("%4d  %-20s  %-8s  %s  %s\n",
			a.ID, a.Scope, status, a.Created.Format("2006-01-02 15:04:05"), a.Path)
	}
	return nil
}

// resolveCheckpoint locates a checkpoint file, trying the manifest
// checkpoint directory when the literal path does not exist.
func resolveCheckpoint(path string, mf *manifest.Manifest) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	if mf != nil {
		candidate := filepath.Join(mf.CheckpointDirPath(), path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("checkpoint %q not found", path)
}

// printScope prints a restored scope in a readable format.
func printScope(m *scope.Map, verbose bool) {
	fmt.Print(m.Dump())

	policy := "fail on undefined"
	if m.DeferUndefined() {
		policy = "defer undefined"
	}
	fmt.Printf("policy: %s\n", policy)

	env := m.Environment()
	if env == nil {
		fmt.Println("environment: none")
		return
	}
	fmt.Printf("environment: %s\n", env.Kind())

	if verbose {
		for _, name := range m.ExternalNames() {
			if v, ok := env.Lookup(name); ok {
				fmt.Printf("  %s = %v (%T)\n", name, v, v)
			}
		}
	}
}
