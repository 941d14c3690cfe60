package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/aigoflow/mmss-service/pkg/client"
)

const usage = `mmssctl drives a running MMSS service.

Usage:
  mmssctl [-addr URL] <command> [flags]

Commands:
  health                      service health
  metrics [-vectorized]       current geometric metrics
  tasks                       list tasks, newest first
  submit  [flags]             submit a task (-kind asymmetry|hopfion|script or -operator)
  status  <task-id>           one task's status
  packet                      visualization packet
  hopfion                     last generated hopfion field
  query   <text>              plan a task with the LLM gateway
  plan    <text>              plan an EQGFT task
  campaign [flags]            run a research campaign
  rules                       list metric rules
  rule-add [flags]            register a metric rule
  rule-rm <name>              remove a metric rule
  export  <file>              download the task history as parquet
  watch   [flags]             stream backpressure reports and heartbeats over NATS
`

func main() {
	addr := flag.String("addr", envOr("MMSS_ADDR", "http://localhost:8080"), "Service base URL")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall command timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.NewHTTPClient(*addr)
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "health":
		err = printResult(c.Health(ctx))
	case "metrics":
		err = runMetrics(ctx, c, args)
	case "tasks":
		err = printResult(c.ListTasks(ctx))
	case "submit":
		err = runSubmit(ctx, c, args)
	case "status":
		err = runStatus(ctx, c, args)
	case "packet":
		err = printResult(c.Packet(ctx))
	case "hopfion":
		err = printResult(c.HopfionField(ctx))
	case "query":
		err = printResult(c.Query(ctx, client.LLMQuery{Query: strings.Join(args, " ")}))
	case "plan":
		err = printResult(c.PlanEqgftTask(ctx, client.LLMQuery{Query: strings.Join(args, " ")}))
	case "campaign":
		err = runCampaign(ctx, c, args)
	case "rules":
		err = printResult(c.ListRules(ctx))
	case "rule-add":
		err = runRuleAdd(ctx, c, args)
	case "rule-rm":
		if len(args) != 1 {
			log.Fatalf("rule-rm needs exactly one rule name")
		}
		err = printResult(c.DeleteRule(ctx, args[0]))
	case "export":
		err = runExport(ctx, c, args)
	case "watch":
		err = runWatch(ctx, args)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func runMetrics(ctx context.Context, c *client.HTTPClient, args []string) error {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	vectorized := fs.Bool("vectorized", false, "Print the vectorized form")
	fs.Parse(args)

	if *vectorized {
		return printResult(c.VectorizedMetrics(ctx))
	}
	return printResult(c.Metrics(ctx))
}

func runSubmit(ctx context.Context, c *client.HTTPClient, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	var (
		kind     = fs.String("kind", "", "Visualization task kind: asymmetry, hopfion or script")
		operator = fs.String("operator", "", "Geometric operator for a plain task")
		name     = fs.String("name", "", "Task name")
		module   = fs.String("module", "sys7", "Target module for a plain task")
		params   = fs.String("params", "{}", "JSON parameters for a plain task")
		kappa    = fs.String("kappa", "", "Asymmetry coupling")
		nEvents  = fs.String("n-events", "", "Asymmetry event count")
		sysErr   = fs.String("systematic-error", "", "Asymmetry systematic error")
		grid     = fs.String("grid-size", "", "Hopfion grid size")
		radius   = fs.String("radius", "", "Hopfion radius")
		script   = fs.String("script", "", "Script source, or @file to read it")
		wait     = fs.Bool("wait", false, "Wait until the task finishes")
	)
	fs.Parse(args)

	var (
		cmd client.TaskCommand
		err error
	)
	if *kind != "" {
		src := *script
		if strings.HasPrefix(src, "@") {
			data, err := os.ReadFile(src[1:])
			if err != nil {
				return fmt.Errorf("failed to read script: %w", err)
			}
			src = string(data)
		}
		cmd, err = client.BuildVisualizationTask(*kind, map[string]string{
			"task_name":        *name,
			"kappa":            *kappa,
			"n_events":         *nEvents,
			"systematic_error": *sysErr,
			"grid_size":        *grid,
			"radius":           *radius,
			"script":           src,
		})
		if err != nil {
			return err
		}
	} else {
		if *operator == "" {
			return fmt.Errorf("either -kind or -operator is required")
		}
		if !json.Valid([]byte(*params)) {
			return fmt.Errorf("-params is not valid JSON")
		}
		taskName := *name
		if taskName == "" {
			taskName = *operator
		}
		raw, err := json.Marshal(map[string]any{
			"task_name":              taskName,
			"geometric_operator":     *operator,
			"target_module":          *module,
			"parameters":             json.RawMessage(*params),
			"expected_output_metric": "",
		})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return err
		}
	}

	resp, err := c.SubmitTask(ctx, cmd)
	if err != nil {
		return err
	}
	if !*wait {
		return printJSON(resp)
	}
	fmt.Fprintf(os.Stderr, "Submitted %s, waiting...\n", resp.TaskID)
	return printResult(c.WaitForTask(ctx, resp.TaskID))
}

func runStatus(ctx context.Context, c *client.HTTPClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("status needs exactly one task id")
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid task id: %w", err)
	}
	return printResult(c.TaskStatus(ctx, id))
}

func runCampaign(ctx context.Context, c *client.HTTPClient, args []string) error {
	fs := flag.NewFlagSet("campaign", flag.ExitOnError)
	var (
		goal   = fs.String("goal", "", "Research goal")
		target = fs.String("target", "quaternion_coherence", "Metric to optimize")
		value  = fs.Float64("value", 0, "Target value (0 uses the metric's default)")
		steps  = fs.Int("steps", 0, "Maximum steps (0 uses the service default)")
	)
	fs.Parse(args)

	req := client.ResearchCampaignRequest{Goal: *goal, OptimizationTarget: *target}
	if *value != 0 {
		req.TargetValue = value
	}
	if *steps > 0 {
		req.MaxSteps = steps
	}
	return printResult(c.ResearchCampaign(ctx, req))
}

func runRuleAdd(ctx context.Context, c *client.HTTPClient, args []string) error {
	fs := flag.NewFlagSet("rule-add", flag.ExitOnError)
	var (
		name   = fs.String("name", "", "Rule name")
		deltaV = fs.Float64("dv", 0, "Added to V_geometric")
		deltaS = fs.Float64("ds", 0, "Added to S_geometric, clamped to [0,1]")
		deltaQ = fs.Float64("dq", 0, "Added to Q_oscillator")
		when   = fs.String("when", "", "Optional condition over the metrics")
	)
	fs.Parse(args)

	rule := client.MetricRule{Name: *name, When: *when}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dv":
			rule.DeltaV = deltaV
		case "ds":
			rule.DeltaS = deltaS
		case "dq":
			rule.DeltaQ = deltaQ
		}
	})
	return printResult(c.RegisterRule(ctx, rule))
}

func runExport(ctx context.Context, c *client.HTTPClient, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("export needs an output file")
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := c.ExportTasks(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", n, args[0])
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	var (
		natsURL = fs.String("nats", envOr("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
		service = fs.String("service", "mmss", "Service name")
		topic   = fs.String("topic", "mmss.monitoring.backpressure", "Monitoring topic")
	)
	fs.Parse(args)

	nc, err := client.NewNATSTaskClient(*natsURL, "mmssctl")
	if err != nil {
		return err
	}
	defer nc.Close()
	nc.WithSubjects(*service, "mmss.tasks.submit", "mmss.tasks.events")

	if health, err := nc.CheckHealth(ctx); err != nil {
		log.Printf("Health check failed: %v", err)
	} else {
		fmt.Printf("%s is %s (capabilities %v)\n", health.ServiceName, health.Status, health.Capabilities)
	}

	return nc.Watch(ctx, *topic,
		func(r client.BackpressureReport) {
			fmt.Printf("%s [%s] %s pending=%d active=%d completed=%d failed=%d\n",
				r.Timestamp.Format("15:04:05"), r.Status, r.ServiceName,
				r.PendingMessages, r.ActiveProcessing, r.CompletedTasks, r.FailedTasks)
		},
		func(h client.HealthStatus) {
			fmt.Printf("heartbeat %s %s up since %s\n", h.ServiceName, h.Status, h.StartedAt.Format(time.RFC3339))
		})
}

func printResult[T any](v T, err error) error {
	if err != nil {
		return err
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
