package cmds

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

const name = "github.com/credexam/certification-api/cmd/worker/cmds"

var tracer = otel.Tracer(name)

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Worker command to generate result artifacts from queued jobs",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
