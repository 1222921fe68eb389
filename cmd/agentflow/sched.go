package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/claraverse/agentflow/pkg/config"
	"github.com/claraverse/agentflow/pkg/flow"
	"github.com/claraverse/agentflow/pkg/scheduler"
	"github.com/claraverse/agentflow/pkg/telemetry"
)

func runSched(ctx context.Context, flags globalFlags, cfg *config.Config, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: agentflow sched <serve|list|add|enable|disable|remove|run|history>"))
	}

	store, closeStore := openStore(cfg)
	defer closeStore()

	switch args[0] {
	case "serve":
		schedServe(ctx, cfg, store)
	case "list":
		schedList(ctx, flags, store)
	case "add":
		schedAdd(ctx, flags, args[1:], store)
	case "enable":
		schedToggle(ctx, args[1:], store, true)
	case "disable":
		schedToggle(ctx, args[1:], store, false)
	case "remove":
		schedRemove(ctx, args[1:], store)
	case "run":
		schedRunNow(ctx, flags, cfg, args[1:], store)
	case "history":
		schedHistory(ctx, flags, args[1:], store)
	default:
		fatal(fmt.Errorf("unknown sched command %q", args[0]))
	}
}

func openStore(cfg *config.Config) (scheduler.Store, func()) {
	if cfg.Scheduler.DBPath == "" {
		return scheduler.NewMemoryStore(cfg.Scheduler.HistoryLimit), func() {}
	}
	store, err := scheduler.OpenSQLiteStore(cfg.Scheduler.DBPath, cfg.Scheduler.HistoryLimit)
	if err != nil {
		fatal(err)
	}
	return store, func() { _ = store.Close() }
}

func schedServe(ctx context.Context, cfg *config.Config, store scheduler.Store) {
	shutdown, err := telemetry.InitWithConfig("agentflow", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(shutdownCtx)
	}()

	sched, err := scheduler.New(scheduler.Config{
		Store:        store,
		Executor:     buildExecutor(cfg),
		TickInterval: cfg.Scheduler.TickInterval(),
		RunTimeout:   cfg.Engine.RunTimeout(),
	})
	if err != nil {
		fatal(err)
	}
	sched.Start()
	fmt.Println("scheduler running, ctrl-c to stop")
	<-ctx.Done()
	sched.Stop()
}

func schedList(ctx context.Context, flags globalFlags, store scheduler.Store) {
	tasks, err := store.ListTasks(ctx)
	if err != nil {
		fatal(err)
	}
	if flags.JSON {
		printJSON(tasks)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "ID", "AGENT", "INTERVAL", "ENABLED", "STATUS", "LAST RUN", "NEXT RUN")
	for _, task := range tasks {
		lastRun, nextRun := "-", "-"
		if task.Schedule.LastRun != nil {
			lastRun = formatTime(*task.Schedule.LastRun)
		}
		if task.Schedule.NextRun != nil {
			nextRun = formatTime(*task.Schedule.NextRun)
		}
		writeRow(writer,
			task.ID,
			task.AgentName,
			string(task.Schedule.Interval),
			fmt.Sprintf("%t", task.Schedule.Enabled),
			string(task.Schedule.Status),
			lastRun,
			nextRun,
		)
	}
	writer.Flush()
}

func schedAdd(ctx context.Context, flags globalFlags, args []string, store scheduler.Store) {
	cmd := flag.NewFlagSet("sched add", flag.ExitOnError)
	file := cmd.String("file", "", "flow file to schedule")
	name := cmd.String("name", "", "agent name")
	description := cmd.String("description", "", "agent description")
	interval := cmd.String("interval", "", "interval kind (30seconds, minute, minutes, hourly, daily, weekly, cron)")
	minutes := cmd.Int("minutes", 0, "minute interval for --interval=minutes")
	clock := cmd.String("time", "", "HH:MM for daily and weekly")
	cronExpr := cmd.String("cron", "", "cron expression for --interval=cron")
	enable := cmd.Bool("enable", true, "enable the task immediately")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	if *file == "" || *name == "" || *interval == "" {
		fatal(fmt.Errorf("sched add requires --file, --name and --interval"))
	}

	graph, err := flow.Load(*file)
	if err != nil {
		fatal(err)
	}
	if _, err := flow.Compile(graph); err != nil {
		fatal(err)
	}

	task := scheduler.NewTask(*name, *description, graph)
	task.Schedule.Interval = scheduler.Interval(*interval)
	task.Schedule.MinuteInterval = *minutes
	task.Schedule.Time = *clock
	task.Schedule.CronExpr = *cronExpr
	if *enable {
		if err := task.Enable(time.Now()); err != nil {
			fatal(err)
		}
	}
	if err := store.SaveTask(ctx, task); err != nil {
		fatal(err)
	}

	if flags.JSON {
		printJSON(task)
		return
	}
	fmt.Printf("created task %s (%s)\n", task.ID, task.AgentName)
}

func schedToggle(ctx context.Context, args []string, store scheduler.Store, enable bool) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow sched enable|disable <task id>"))
	}
	task, err := store.GetTask(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if enable {
		if err := task.Enable(time.Now()); err != nil {
			fatal(err)
		}
	} else {
		task.Disable(time.Now())
	}
	if err := store.SaveTask(ctx, task); err != nil {
		fatal(err)
	}
	fmt.Printf("task %s enabled=%t\n", task.ID, task.Schedule.Enabled)
}

func schedRemove(ctx context.Context, args []string, store scheduler.Store) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow sched remove <task id>"))
	}
	if err := store.DeleteTask(ctx, args[0]); err != nil {
		fatal(err)
	}
	fmt.Printf("removed task %s\n", args[0])
}

func schedRunNow(ctx context.Context, flags globalFlags, cfg *config.Config, args []string, store scheduler.Store) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow sched run <task id>"))
	}
	sched, err := scheduler.New(scheduler.Config{
		Store:      store,
		Executor:   buildExecutor(cfg),
		RunTimeout: cfg.Engine.RunTimeout(),
	})
	if err != nil {
		fatal(err)
	}
	execution, err := sched.RunNow(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if flags.JSON {
		printJSON(execution)
		return
	}
	fmt.Printf("execution %s: %s in %s\n",
		execution.ID, execution.Status, execution.Duration.Round(time.Millisecond))
	if execution.Error != "" {
		fmt.Printf("  error: %s\n", execution.Error)
	}
	for node, value := range execution.Outputs {
		fmt.Printf("  %s: %v\n", node, value)
	}
}

func schedHistory(ctx context.Context, flags globalFlags, args []string, store scheduler.Store) {
	if len(args) != 1 {
		fatal(fmt.Errorf("usage: agentflow sched history <task id>"))
	}
	history, err := store.ListExecutions(ctx, args[0])
	if err != nil {
		fatal(err)
	}
	if flags.JSON {
		printJSON(history)
		return
	}
	writer := newTabWriter()
	writeRow(writer, "ID", "STARTED", "DURATION", "STATUS", "ERROR")
	for _, execution := range history {
		writeRow(writer,
			execution.ID,
			formatTime(execution.StartTime),
			execution.Duration.Round(time.Millisecond).String(),
			string(execution.Status),
			execution.Error,
		)
	}
	writer.Flush()
}
