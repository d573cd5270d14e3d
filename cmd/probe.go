// SPDX-FileCopyrightText: 2025 The Skua Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skua-project/skua/pkg/config"
	"github.com/skua-project/skua/pkg/factory"
	"github.com/skua-project/skua/pkg/probe"
)

// probeFlags holds the flags shared by the probe commands. Each
// command binds the subset it supports.
type probeFlags struct {
	count      int
	timeout    time.Duration
	port       int
	method     string
	maxHops    int
	hopProbes  int
	queryType  string
	nameserver string
}

func (f *probeFlags) request(kind probe.Kind, target string) probe.Request {
	return probe.Request{
		Kind:       kind,
		Target:     target,
		Count:      f.count,
		Timeout:    f.timeout,
		Port:       f.port,
		Method:     f.method,
		MaxHops:    f.maxHops,
		HopProbes:  f.hopProbes,
		QueryType:  f.queryType,
		Nameserver: f.nameserver,
	}
}

func probeCommands() []*cobra.Command {
	return []*cobra.Command{
		newCmdPing(),
		newCmdTcping(),
		newCmdWebsite(),
		newCmdTraceroute(),
		newCmdDNS(),
	}
}

func newCmdPing() *cobra.Command {
	flags := &probeFlags{}
	cmd := &cobra.Command{
		Use:     "ping <host>",
		Aliases: []string{"echo"},
		Short:   "Probe a host with ICMP echo requests",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags.request(probe.KindEcho, args[0]))
		},
	}
	cmd.Flags().IntVarP(&flags.count, "count", "n", 0, "number of echo requests to send")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "per-request timeout")
	return cmd
}

func newCmdTcping() *cobra.Command {
	flags := &probeFlags{}
	var ports string
	cmd := &cobra.Command{
		Use:     "tcping <host>",
		Aliases: []string{"tcp"},
		Short:   "Probe a TCP port with connection attempts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ports != "" {
				return runPortScan(cmd, flags, args[0], ports)
			}
			return runProbe(cmd, flags.request(probe.KindTCP, args[0]))
		},
	}
	cmd.Flags().IntVarP(&flags.port, "port", "p", 80, "TCP port to connect to")
	cmd.Flags().IntVarP(&flags.count, "count", "n", 0, "number of connection attempts")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "per-attempt timeout")
	cmd.Flags().StringVar(&ports, "ports", "", "scan a port range instead, e.g. 1-1024 or 22,80,443")
	return cmd
}

func newCmdWebsite() *cobra.Command {
	flags := &probeFlags{}
	var follow bool
	cmd := &cobra.Command{
		Use:     "website <url>",
		Aliases: []string{"http"},
		Short:   "Probe a website with an HTTP request",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := flags.request(probe.KindHTTP, args[0])
			req.FollowRedirects = &follow
			return runProbe(cmd, req)
		},
	}
	cmd.Flags().StringVarP(&flags.method, "method", "m", "", "HTTP method to use")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "request timeout")
	cmd.Flags().BoolVar(&follow, "follow-redirects", true, "follow HTTP redirects")
	return cmd
}

func newCmdTraceroute() *cobra.Command {
	flags := &probeFlags{}
	cmd := &cobra.Command{
		Use:     "traceroute <host>",
		Aliases: []string{"trace"},
		Short:   "Discover the route to a host hop by hop",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags.request(probe.KindTrace, args[0]))
		},
	}
	cmd.Flags().IntVar(&flags.maxHops, "max-hops", 0, "maximum number of hops to probe")
	cmd.Flags().IntVar(&flags.hopProbes, "probes", 0, "probes sent per hop")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "per-hop timeout")
	return cmd
}

func newCmdDNS() *cobra.Command {
	flags := &probeFlags{}
	cmd := &cobra.Command{
		Use:   "dns <domain>",
		Short: "Resolve a domain name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags.request(probe.KindDNS, args[0]))
		},
	}
	cmd.Flags().StringVarP(&flags.queryType, "type", "q", "", "record type to query (A, AAAA, CNAME, MX, TXT, NS)")
	cmd.Flags().StringVarP(&flags.nameserver, "nameserver", "s", "", "nameserver to query instead of the system resolver")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 0, "query timeout")
	return cmd
}

// runProbe streams a single probe session to the command's output.
func runProbe(cmd *cobra.Command, req probe.Request) error {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := factory.NewEngine(cfg.Engine)
	events, err := engine.Stream(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	started := false
	for ev := range events {
		switch ev.Type {
		case probe.EventOutcome:
			printOutcome(out, *ev.Outcome)
		case probe.EventHop:
			if !started {
				fmt.Fprintf(out, "route to %s\n", req.Target)
				started = true
			}
			printHop(out, *ev.Hop)
		case probe.EventResult:
			printSummary(out, *ev.Result)
		}
	}
	return nil
}

// runPortScan probes each port of the range with a single connection
// attempt and reports the ones that accepted.
func runPortScan(cmd *cobra.Command, flags *probeFlags, target, spec string) error {
	ports, err := parsePorts(spec)
	if err != nil {
		return err
	}

	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := factory.NewEngine(cfg.Engine)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scanning %d ports on %s\n", len(ports), target)

	open := 0
	for _, port := range ports {
		req := probe.Request{
			Kind:    probe.KindTCP,
			Target:  target,
			Port:    port,
			Count:   1,
			Timeout: flags.timeout,
		}
		res, err := engine.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		for _, o := range res.Outcomes {
			if o.State == probe.StateSuccess {
				fmt.Fprintf(out, "%d open %s\n", port, o.Latency)
				open++
			}
		}
	}
	fmt.Fprintf(out, "\n%d of %d ports open\n", open, len(ports))
	return nil
}

// parsePorts expands a comma-separated list of ports and inclusive
// ranges, e.g. "22,80,8000-8080".
func parsePorts(spec string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		lo, hi, ok := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", part)
		}
		last := first
		if ok {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid port range %q", part)
			}
		}
		if first < 1 || last > 65535 || last < first {
			return nil, fmt.Errorf("port range %q out of bounds", part)
		}
		for p := first; p <= last; p++ {
			ports = append(ports, p)
		}
	}
	return ports, nil
}

func printOutcome(w io.Writer, o probe.Outcome) {
	switch o.State {
	case probe.StateSuccess:
		if o.Data != nil {
			fmt.Fprintf(w, "seq=%d time=%s %v\n", o.Seq, o.Latency, o.Data)
			return
		}
		fmt.Fprintf(w, "seq=%d time=%s\n", o.Seq, o.Latency)
	case probe.StateTimeout:
		fmt.Fprintf(w, "seq=%d timeout\n", o.Seq)
	default:
		fmt.Fprintf(w, "seq=%d %s: %s\n", o.Seq, o.State, o.Reason)
	}
}

func printHop(w io.Writer, h probe.Hop) {
	if !h.Responded {
		fmt.Fprintf(w, "%-2d *\n", h.TTL)
		return
	}
	name := h.Addr
	if h.Name != "" {
		name = fmt.Sprintf("%s (%s)", h.Name, h.Addr)
	}
	fmt.Fprintf(w, "%-2d %-45s %s\n", h.TTL, name, h.Latency)
}

func printSummary(w io.Writer, res probe.Result) {
	fmt.Fprintf(w, "\n--- %s %s statistics ---\n", res.Target, res.Kind)
	fmt.Fprintf(w, "%d sent, %d received, %.1f%% loss, status %s\n",
		res.Stats.Sent, res.Stats.Received, res.Stats.Loss*100, res.Status)
	if res.Stats.Received > 0 && res.Kind != probe.KindTrace {
		fmt.Fprintf(w, "latency min/avg/max/jitter = %s/%s/%s/%s\n",
			res.Stats.Min, res.Stats.Avg, res.Stats.Max, res.Stats.Jitter)
	}
}
