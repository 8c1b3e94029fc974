// abictl inspects and serves the handle syscall boundary.
//
//	abictl table                          list every errno
//	abictl demux [--width 64|ptr] WORD    decode a returned word
//	abictl mux [--width 64|ptr] VALUE     encode a success value
//	abictl mux --errno N                  encode a failure
//	abictl serve --socket PATH            run the simulated kernel
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/pflag"

	abi "github.com/wnxd/microdbg-abi"
	"github.com/wnxd/microdbg-abi/kernel"
	"github.com/wnxd/microdbg-abi/transport"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errors.New("missing command")
	}
	switch args[0] {
	case "table":
		return runTable(stdout)
	case "demux":
		return runDemux(args[1:], stdout, stderr)
	case "mux":
		return runMux(args[1:], stdout, stderr)
	case "serve":
		return runServe(args[1:], stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	}
	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: abictl <command> [flags]

Commands:
  table    list every errno with its code and description
  demux    decode a syscall return word
  mux      encode a success value or an errno into a word
  serve    run the simulated kernel on a Unix socket
`)
}

func runTable(stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDINAL\tNAME\tERRNO\tTEXT")
	fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", 0, abi.OK.Name(), int32(abi.OK), abi.OK.Text())
	for _, errno := range abi.Errnos() {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", -int32(errno), errno.Name(), int32(errno), errno.Text())
	}
	return tw.Flush()
}

func widthFlag(flagSet *pflag.FlagSet) *string {
	return flagSet.String("width", "64", `word width: "64" (32-bit payload) or "ptr" (pointer-width payload)`)
}

func runDemux(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("demux", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	width := widthFlag(flagSet)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return errors.New("demux takes exactly one WORD")
	}
	word, err := strconv.ParseUint(flagSet.Arg(0), 0, 64)
	if err != nil {
		return fmt.Errorf("parsing word: %w", err)
	}

	var value uint64
	switch *width {
	case "64":
		var v uint32
		v, err = abi.Demux64(word)
		value = uint64(v)
	case "ptr":
		var v uintptr
		v, err = abi.DemuxSize(uintptr(word))
		value = uint64(v)
	default:
		return fmt.Errorf("unknown width %q", *width)
	}
	if err != nil {
		errno := abi.AsErrno(err)
		fmt.Fprintf(stdout, "error %s (%d): %s\n", errno.Name(), int32(errno), errno.Text())
		return nil
	}
	fmt.Fprintf(stdout, "ok %d (%#x)\n", value, value)
	return nil
}

func runMux(args []string, stdout, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("mux", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	width := widthFlag(flagSet)
	errnoFlag := flagSet.Int32("errno", 0, "encode this (negative) errno instead of a value")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var value uint64
	var failure error
	if flagSet.Changed("errno") {
		if flagSet.NArg() != 0 {
			return errors.New("mux takes either --errno or a VALUE")
		}
		errno := abi.Errno(*errnoFlag)
		if errno == abi.OK || !errno.Valid() {
			return fmt.Errorf("errno %d is not a defined failure", *errnoFlag)
		}
		failure = errno
	} else {
		if flagSet.NArg() != 1 {
			return errors.New("mux takes exactly one VALUE")
		}
		var err error
		value, err = strconv.ParseUint(flagSet.Arg(0), 0, 64)
		if err != nil {
			return fmt.Errorf("parsing value: %w", err)
		}
		if value > 0 && value < uint64(abi.Reserved) {
			fmt.Fprintf(stderr, "warning: %d lies in the reserved window and will decode as an error\n", value)
		}
	}

	var word uint64
	switch *width {
	case "64":
		if value > 0xffffffff {
			return fmt.Errorf("value %#x does not fit a 32-bit payload", value)
		}
		word = abi.Mux64(uint32(value), failure)
	case "ptr":
		word = uint64(abi.MuxSize(uintptr(value), failure))
	default:
		return fmt.Errorf("unknown width %q", *width)
	}
	fmt.Fprintf(stdout, "%#x (%d)\n", word, word)
	return nil
}

func runServe(args []string, stderr io.Writer) error {
	flagSet := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	socketPath := flagSet.String("socket", "", "Unix socket to listen on (required)")
	configPath := flagSet.String("config", "", "YAML kernel configuration")
	grants := flagSet.StringArray("grant", nil, "seed an object as TASK:NAME:RIGHTS (repeatable)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *socketPath == "" {
		return errors.New("--socket is required")
	}

	cfg := kernel.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = kernel.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	k, err := kernel.NewKernel(cfg, logger)
	if err != nil {
		return err
	}
	defer k.Close()

	for _, grant := range *grants {
		task, name, rights, err := parseGrant(grant)
		if err != nil {
			return err
		}
		id, err := k.Grant(task, name, rights)
		if err != nil {
			return fmt.Errorf("granting %q: %w", grant, err)
		}
		logger.Info("object granted", "task", task, "object", name, "rights", rights.String(), "handle", uint32(id))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return transport.NewServer(*socketPath, k, logger).Serve(ctx)
}

func parseGrant(s string) (task uint64, name string, rights abi.Rights, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[1] == "" {
		return 0, "", 0, fmt.Errorf("grant %q: want TASK:NAME:RIGHTS", s)
	}
	task, err = strconv.ParseUint(parts[0], 0, 64)
	if err != nil {
		return 0, "", 0, fmt.Errorf("grant %q: task: %w", s, err)
	}
	rights, err = abi.ParseRights(parts[2])
	if err != nil {
		return 0, "", 0, fmt.Errorf("grant %q: rights %q: %w", s, parts[2], err)
	}
	return task, parts[1], rights, nil
}
