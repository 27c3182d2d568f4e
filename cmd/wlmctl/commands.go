/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/gridforge/wlmcore/auth"
	"github.com/gridforge/wlmcore/cmn"
	"github.com/gridforge/wlmcore/ctrlclient"
	"github.com/gridforge/wlmcore/jobspec"
	"github.com/gridforge/wlmcore/metrics"
	"github.com/gridforge/wlmcore/wire"
	"github.com/gridforge/wlmcore/xport"
)

// newClient builds a ctrlclient.Client from the app's global --controller/
// --backup flags. Each call attaches a fresh, unregistered
// metrics.Controller, so its standby-retry counter covers only the
// requests made through the returned client.
func newClient(c *cli.Context) (*ctrlclient.Client, error) {
	primary, err := xport.ParseHostPort(c.GlobalString("controller"))
	if err != nil {
		return nil, fmt.Errorf("invalid --controller address: %w", err)
	}
	var ep ctrlclient.Endpoints
	ep.Primary = primary
	if backup := c.GlobalString("backup"); backup != "" {
		secondary, err := xport.ParseHostPort(backup)
		if err != nil {
			return nil, fmt.Errorf("invalid --backup address: %w", err)
		}
		ep.Secondary = secondary
	}
	cl := ctrlclient.New(ep, auth.NoneProvider{})
	cl.Metrics = metrics.NewController(nil)
	return cl, nil
}

// fieldEncode joins the request's argument fields with NUL, the body
// encoding wlmd's dispatch handlers decode (spec.md §2's generic forwarded
// operations carry their target and parameters in the opaque body).
func fieldEncode(fields ...string) []byte {
	return []byte(strings.Join(fields, "\x00"))
}

// extractRC reads wlmd's reply encoding: a big-endian uint32 return code
// followed by the operation's payload (cmd/wlmd/server.go's (*server).reply).
func extractRC(body []byte) cmn.RC {
	if len(body) < 4 {
		return cmn.ERROR
	}
	return cmn.RC(binary.BigEndian.Uint32(body))
}

func payload(body []byte) []byte {
	if len(body) <= 4 {
		return nil
	}
	return body[4:]
}

func sendAndReport(c *cli.Context, kind int32, body []byte) error {
	cl, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := cl.SendRecvController(ctx, kind, body, extractRC)
	if err != nil {
		return err
	}
	if resp.RC != cmn.SUCCESS {
		return cmn.NewErr(resp.RC, "controller returned %s", resp.RC)
	}
	if out := payload(resp.Body); len(out) > 0 {
		fmt.Fprintln(c.App.Writer, string(out))
	}
	return nil
}

var placeCommand = cli.Command{
	Name:      "place",
	Usage:     "request a block placement from the controller",
	ArgsUsage: "",
	Flags: []cli.Flag{
		cli.StringFlag{Name: "job-id", Usage: "job id (generated by the controller if omitted)"},
		cli.StringFlag{Name: "user", Usage: "submitting user id, consulted by image ACL checks"},
		cli.StringFlag{Name: "group", Usage: "submitting group id, consulted by image ACL checks"},
		cli.StringFlag{Name: "partition", Usage: "partition name"},
		cli.StringFlag{Name: "procs-min", Usage: "minimum processor count"},
		cli.StringFlag{Name: "procs-max", Usage: "maximum processor count"},
		cli.StringFlag{Name: "nodes-min", Usage: "minimum node count"},
		cli.StringFlag{Name: "nodes-max", Usage: "maximum node count"},
		cli.StringFlag{Name: "nodes-req", Usage: "requested node count"},
		cli.StringFlag{Name: "geometry", Usage: "fixed geometry, e.g. 2x2x2"},
		cli.BoolFlag{Name: "rotate", Usage: "allow axis rotation when matching a fixed geometry"},
		cli.StringFlag{Name: "connection-type", Usage: "MESH or TORUS (default: no preference)"},
		cli.StringFlag{Name: "image-blrts", Usage: "required blrts image name"},
		cli.StringFlag{Name: "image-linux", Usage: "required linux image name"},
		cli.StringFlag{Name: "image-mloader", Usage: "required mloader image name"},
		cli.StringFlag{Name: "image-ramdisk", Usage: "required ramdisk image name"},
		cli.StringFlag{Name: "required-nodes", Usage: "comma-separated node list the block must contain"},
		cli.BoolFlag{Name: "test-only", Usage: "validate placement without committing a block"},
	},
	Action: func(c *cli.Context) error {
		return sendAndReport(c, wire.KindPlace, encodePlaceRequest(c))
	},
}

// encodePlaceRequest builds the NUL-joined "field=value" body wlmd's
// handlePlace decodes with jobspec's field parsers (spec.md §6 field
// grammar); a flag left at its zero value is simply omitted.
func encodePlaceRequest(c *cli.Context) []byte {
	var fields []string
	add := func(field, value string) {
		if value != "" {
			fields = append(fields, field+"="+value)
		}
	}
	add("job_id", c.String("job-id"))
	add("user_id", c.String("user"))
	add("group_id", c.String("group"))
	add("partition", c.String("partition"))
	add("procs_min", c.String("procs-min"))
	add("procs_max", c.String("procs-max"))
	add("nodes_min", c.String("nodes-min"))
	add("nodes_max", c.String("nodes-max"))
	add("nodes_req", c.String("nodes-req"))
	add("geometry", c.String("geometry"))
	add("connection_type", c.String("connection-type"))
	add("image_blrts", c.String("image-blrts"))
	add("image_linux", c.String("image-linux"))
	add("image_mloader", c.String("image-mloader"))
	add("image_ramdisk", c.String("image-ramdisk"))
	add("required_nodes", c.String("required-nodes"))
	if c.Bool("rotate") {
		fields = append(fields, "rotate=yes")
	}
	if c.Bool("test-only") {
		fields = append(fields, "test_only=yes")
	}
	return fieldEncode(fields...)
}

var cancelCommand = cli.Command{
	Name:      "cancel",
	Usage:     "cancel a job",
	ArgsUsage: "JOB_ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("cancel requires exactly one JOB_ID argument", 1)
		}
		jobID := c.Args().Get(0)
		// spec.md §5/§8 scenario 5: cancel retries sleep 5+i seconds while
		// the controller reports a retriable transition-state code.
		policy := ctrlclient.CancelRetryPolicy(cmn.GCO.Get().Transport.MaxCancelRetry)
		err := ctrlclient.WithCancelRetry(policy, time.Sleep, func() error {
			return sendAndReport(c, wire.KindCancel, fieldEncode(jobID))
		})
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	},
}

var requeueCommand = cli.Command{
	Name:      "requeue",
	Usage:     "requeue a job",
	ArgsUsage: "JOB_ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.NewExitError("requeue requires exactly one JOB_ID argument", 1)
		}
		return sendAndReport(c, wire.KindRequeue, fieldEncode(c.Args().Get(0)))
	},
}

var signalCommand = cli.Command{
	Name:      "signal",
	Usage:     "send a signal to a job's tasks",
	ArgsUsage: "JOB_ID SIGNAL",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.NewExitError("signal requires JOB_ID and SIGNAL arguments", 1)
		}
		jobID, sigName := c.Args().Get(0), c.Args().Get(1)
		if _, err := jobspec.SignalByName(sigName); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return sendAndReport(c, wire.KindSignal, fieldEncode(jobID, sigName))
	},
}

var updateCommand = cli.Command{
	Name:      "update",
	Usage:     "update one field of a pending or running job",
	ArgsUsage: "JOB_ID FIELD VALUE",
	Action: func(c *cli.Context) error {
		if c.NArg() != 3 {
			return cli.NewExitError("update requires JOB_ID, FIELD, and VALUE arguments", 1)
		}
		return sendAndReport(c, wire.KindUpdate, fieldEncode(c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)))
	},
}
