// Command gatewayctl is the operator CLI for a tabgate gateway.
//
// Settings come from flags, then GATEWAYCTL_* environment variables, then
// an optional .gatewayctl.yml in the working directory:
//
//	GATEWAYCTL_SERVER      gateway base URL (default http://localhost:8080)
//	GATEWAYCTL_TOKEN_FILE  where login stores the token pair
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
