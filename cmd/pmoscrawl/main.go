package main

import (
	"context"

	"pmoscrawl/cmd/pmoscrawl/commands"
	"pmoscrawl/lib/serviceutil"
	"pmoscrawl/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	// telemetry.json5 is optional; without it spans are no-ops
	t, err := telemetry.SetupFromEnv(ctx, "pmoscrawl")
	if err == nil {
		defer t.Shutdown(context.Background())
		telemetry.InstrumentPerfStats(ctx)
	}
	telemetry.InitSlog(false)

	commands.ExecuteContext(ctx)
}
