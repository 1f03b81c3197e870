package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/marmos91/vxi11/internal/logger"
	"github.com/marmos91/vxi11/internal/protocol/portmap"
	"github.com/marmos91/vxi11/internal/protocol/rpc"
	wire "github.com/marmos91/vxi11/internal/protocol/vxi11"
	"github.com/marmos91/vxi11/pkg/capture"
	"github.com/marmos91/vxi11/pkg/vxi11"
)

const prompt = "=> "

var (
	// errQuit ends the session.
	errQuit = errors.New("quit")

	errNoStore = errors.New("no capture store configured")
)

// shell reads commands line by line and forwards them to one device.
//
// A line whose first word ends in '?' is a query: it is written and the
// response printed. Lines starting with '%' are handled locally.
type shell struct {
	dev *vxi11.Device
	out io.Writer

	// store receives %SAVE records and backs %LIST and %SHOW. Nil disables
	// all three.
	store capture.Store

	// portmapPort and rpcOpts are used by %DUMP.
	portmapPort int
	rpcOpts     []rpc.Option
}

type localCommand struct {
	minArgs int
	maxArgs int // -1 for no limit
	usage   string
	run     func(s *shell, ctx context.Context, args []string) error
}

var localCommands = map[string]localCommand{
	"%SLEEP": {minArgs: 1, maxArgs: 1, usage: "%SLEEP <ms>", run: (*shell).sleep},
	"%SAVE":  {minArgs: 2, maxArgs: -1, usage: "%SAVE <key> <query>", run: (*shell).save},
	"%LIST":  {minArgs: 0, maxArgs: 1, usage: "%LIST [prefix]", run: (*shell).list},
	"%SHOW":  {minArgs: 1, maxArgs: 1, usage: "%SHOW <key>", run: (*shell).show},
	"%DUMP":  {minArgs: 0, maxArgs: 0, usage: "%DUMP", run: (*shell).dump},
}

// Run processes lines from in until 'q', end of input, ctx cancellation or
// a transport failure.
func (s *shell) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "Enter command to send. Quit with 'q'.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Fprintln(s.out, "exiting..")
			return nil
		}

		err := s.exec(ctx, strings.TrimSpace(scanner.Text()))
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// exec runs one line. Device-level failures are printed and the session
// continues; transport and RPC protocol failures are returned because the
// link cannot be used again.
func (s *shell) exec(ctx context.Context, line string) error {
	switch {
	case line == "":
		return nil
	case line == "q":
		return errQuit
	case strings.HasPrefix(line, "%"):
		return s.report(s.local(ctx, line))
	case isQuery(line):
		resp, err := s.dev.Ask(ctx, line)
		if err != nil {
			return s.report(err)
		}
		fmt.Fprintln(s.out, trimResponse(resp))
		return nil
	default:
		return s.report(s.dev.Write(ctx, line))
	}
}

func (s *shell) report(err error) error {
	if err == nil {
		return nil
	}

	var connErr *vxi11.ConnectionError
	var closedErr *vxi11.ConnectionClosedError
	var protoErr *vxi11.ProtocolError
	switch {
	case errors.As(err, &connErr), errors.As(err, &closedErr), errors.As(err, &protoErr):
		return err
	case errors.Is(err, context.Canceled):
		return err
	}

	fmt.Fprintf(s.out, "ERROR: %v\n", err)
	return nil
}

func (s *shell) local(ctx context.Context, line string) error {
	args := strings.Fields(line)
	name := strings.ToUpper(args[0])

	cmd, ok := localCommands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", line)
	}

	n := len(args) - 1
	if n < cmd.minArgs || (cmd.maxArgs >= 0 && n > cmd.maxArgs) {
		return fmt.Errorf("invalid number of arguments for command %s (usage: %s)", name, cmd.usage)
	}

	return cmd.run(s, ctx, args[1:])
}

func (s *shell) sleep(ctx context.Context, args []string) error {
	ms, err := strconv.ParseFloat(args[0], 64)
	if err != nil || ms < 0 {
		return fmt.Errorf("invalid duration %q: expected milliseconds", args[0])
	}

	timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// save runs a query and stores its response under the given key.
func (s *shell) save(ctx context.Context, args []string) error {
	if s.store == nil {
		return errNoStore
	}

	key, query := args[0], strings.Join(args[1:], " ")
	if err := capture.ValidateKey(key); err != nil {
		return err
	}

	resp, err := s.dev.Ask(ctx, query)
	if err != nil {
		return err
	}

	rec := capture.Record{
		Key:      key,
		Host:     s.dev.Host(),
		Device:   s.dev.Name(),
		Query:    query,
		Response: resp,
		Time:     time.Now().UTC(),
	}
	if err := s.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	fmt.Fprintln(s.out, trimResponse(resp))
	fmt.Fprintf(s.out, "saved %s (%d bytes)\n", key, len(resp))
	return nil
}

func (s *shell) list(ctx context.Context, args []string) error {
	if s.store == nil {
		return errNoStore
	}

	var prefix string
	if len(args) > 0 {
		prefix = args[0]
	}

	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		fmt.Fprintln(s.out, key)
	}
	return nil
}

// show prints a saved record with the query that produced it.
func (s *shell) show(ctx context.Context, args []string) error {
	if s.store == nil {
		return errNoStore
	}

	rec, err := s.store.Get(ctx, args[0])
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "KEY\t%s\n", rec.Key)
	fmt.Fprintf(tw, "HOST\t%s\n", rec.Host)
	fmt.Fprintf(tw, "DEVICE\t%s\n", rec.Device)
	fmt.Fprintf(tw, "TIME\t%s\n", rec.Time.Format(time.RFC3339))
	fmt.Fprintf(tw, "QUERY\t%s\n", rec.Query)
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, trimResponse(rec.Response))
	return nil
}

// dump lists the instrument's port mapper registrations.
func (s *shell) dump(ctx context.Context, _ []string) error {
	client, err := portmap.Dial(ctx, s.dev.Host(), s.portmapPort, s.rpcOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Debug("portmap close: %v", err)
		}
	}()

	mappings, err := client.Dump(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROGRAM\tVERSION\tPROTO\tPORT\tSERVICE")
	for _, m := range mappings {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\n", m.Program, m.Version, m.Protocol, m.Port, programName(m.Program))
	}
	return tw.Flush()
}

func programName(program uint32) string {
	switch program {
	case portmap.Program:
		return "portmap"
	case wire.CoreProgram:
		return "vxi11-core"
	case wire.AsyncProgram:
		return "vxi11-async"
	case wire.InterruptProgram:
		return "vxi11-intr"
	default:
		return "-"
	}
}

// isQuery reports whether the first word of line ends in '?'.
func isQuery(line string) bool {
	first, _, _ := strings.Cut(line, " ")
	return strings.HasSuffix(first, "?")
}

func trimResponse(resp []byte) string {
	return strings.TrimRight(string(resp), "\r\n")
}
