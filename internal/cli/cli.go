package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/platonv/delayq/internal/app"
	"github.com/platonv/delayq/internal/config"
	"github.com/platonv/delayq/internal/service/models/message"
	"github.com/platonv/delayq/internal/service/models/webhook"
)

// Globals are the flags shared by every command.
type Globals struct {
	EnvFile string `help:"Env file loaded before the configuration." name:"env-file" type:"path"`
	Config  string `help:"Config file read instead of config.yaml." type:"path"`
}

func (g *Globals) init() error {
	return config.Init(config.Options{
		EnvFile:    g.EnvFile,
		ConfigFile: g.Config,
	})
}

// withServices runs fn against services built from the configuration and closes them afterwards.
func (g *Globals) withServices(fn func(ctx context.Context, s *app.Services) error) error {
	if err := g.init(); err != nil {
		return err
	}

	ctx := context.Background()
	services, err := app.NewServices(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = services.Close() }()

	return fn(ctx, services)
}

// CLI is the command tree of delayq.
type CLI struct {
	Globals

	Queue    QueueCmd    `cmd:"" help:"Inspect and drive the delayed queue."`
	Webhooks WebhooksCmd `cmd:"" help:"Manage webhook endpoints."`
	Server   ServerCmd   `cmd:"" help:"Run the HTTP server and the dispatch loop."`
}

type QueueCmd struct {
	Get      QueueGetCmd      `cmd:"" help:"Print every stored message."`
	Count    QueueCountCmd    `cmd:"" help:"Print the number of stored messages."`
	Schedule QueueScheduleCmd `cmd:"" help:"Schedule a message."`
	Poll     QueuePollCmd     `cmd:"" help:"Lease due messages."`
	Ack      QueueAckCmd      `cmd:"" help:"Acknowledge a leased message."`
}

type QueueGetCmd struct{}

func (c *QueueGetCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		messages, err := s.QueueSvc.List(ctx)
		if err != nil {
			return err
		}

		return printJSON(out, messages)
	})
}

type QueueCountCmd struct{}

func (c *QueueCountCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		count, err := s.QueueSvc.Count(ctx)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, count)

		return err
	})
}

type QueueScheduleCmd struct {
	Key     string        `help:"Message key. Generated when empty."`
	Kind    string        `help:"Message kind." default:"${sample_kind}"`
	Payload string        `help:"Message payload." default:"${sample_payload}"`
	Delay   time.Duration `help:"Delay before the message is due."`
	At      int64         `help:"Epoch second the message is due at. Overrides --delay."`
}

func (c *QueueScheduleCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		now := s.QueueSvc.Now()
		scheduledAt := c.At
		if scheduledAt == 0 {
			scheduledAt = now + int64(c.Delay/time.Second)
		}

		stored, err := s.QueueSvc.Schedule(ctx, message.New(c.Key, c.Kind, []byte(c.Payload), scheduledAt, now))
		if err != nil {
			return err
		}

		return printJSON(out, stored)
	})
}

type QueuePollCmd struct {
	Kind      string `help:"Only lease messages of this kind."`
	EmptyKind bool   `help:"Only lease messages with an empty kind." name:"empty-kind"`
	Limit     int    `help:"Maximum number of messages, 0 leases every due message." default:"1"`
}

func (c *QueuePollCmd) filter() message.KindFilter {
	switch {
	case c.EmptyKind:
		return message.OfKind("")
	case c.Kind != "":
		return message.OfKind(c.Kind)
	default:
		return message.AnyKind()
	}
}

func (c *QueuePollCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		leased, err := s.QueueSvc.PollBatch(ctx, s.QueueSvc.Now(), c.filter(), c.Limit)
		if len(leased) > 0 {
			if printErr := printJSON(out, leased); printErr != nil {
				return printErr
			}
		}

		return err
	})
}

type QueueAckCmd struct {
	Key         string `help:"Message key." required:""`
	Kind        string `help:"Message kind."`
	CreatedAt   int64  `help:"Creation epoch second of the message." name:"created-at" required:""`
	ScheduledAt int64  `help:"Fencing token returned by poll. Omit to delete regardless of the lease." name:"scheduled-at"`
}

func (c *QueueAckCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		ack := message.Ack{
			Identity: message.Identity{
				Key:       c.Key,
				Kind:      c.Kind,
				CreatedAt: c.CreatedAt,
			},
		}
		if c.ScheduledAt != 0 {
			fence := c.ScheduledAt
			ack.FencingToken = &fence
		}

		deleted, err := s.QueueSvc.Ack(ctx, ack)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, deleted)

		return err
	})
}

type WebhooksCmd struct {
	Get    WebhooksGetCmd    `cmd:"" help:"Print every registered webhook."`
	Create WebhooksCreateCmd `cmd:"" help:"Register a webhook."`
}

type WebhooksGetCmd struct{}

func (c *WebhooksGetCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		hooks, err := s.WebhookSvc.GetAll(ctx)
		if err != nil {
			return err
		}

		return printJSON(out, hooks)
	})
}

type WebhooksCreateCmd struct {
	URL string `help:"Endpoint receiving dispatched messages." name:"url" default:"${sample_url}"`
}

func (c *WebhooksCreateCmd) Run(g *Globals, out io.Writer) error {
	return g.withServices(func(ctx context.Context, s *app.Services) error {
		hook, err := s.WebhookSvc.Create(ctx, c.URL)
		if err != nil {
			return err
		}

		return printJSON(out, hook)
	})
}

type ServerCmd struct{}

func (c *ServerCmd) Run(g *Globals) error {
	if err := g.init(); err != nil {
		return err
	}

	return app.MustNewApp().Run()
}

// Execute parses args and runs the selected command, writing results to out.
func Execute(args []string, out io.Writer) error {
	var cli CLI

	parser, err := kong.New(&cli,
		kong.Name("delayq"),
		kong.Description("Delayed-delivery message queue."),
		kong.UsageOnError(),
		kong.Writers(out, os.Stderr),
		kong.BindTo(out, (*io.Writer)(nil)),
		kong.Vars{
			"sample_kind":    message.SampleKind,
			"sample_payload": message.SamplePayload,
			"sample_url":     webhook.SampleURL,
		},
	)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	return ctx.Run(&cli.Globals)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
