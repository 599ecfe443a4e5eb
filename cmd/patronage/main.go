package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/patronage/internal/activity"
	"github.com/smallbiznis/patronage/internal/auth"
	"github.com/smallbiznis/patronage/internal/authorization"
	"github.com/smallbiznis/patronage/internal/clock"
	"github.com/smallbiznis/patronage/internal/collective"
	"github.com/smallbiznis/patronage/internal/config"
	"github.com/smallbiznis/patronage/internal/github"
	"github.com/smallbiznis/patronage/internal/observability"
	"github.com/smallbiznis/patronage/internal/order"
	"github.com/smallbiznis/patronage/internal/payment"
	"github.com/smallbiznis/patronage/internal/paymentmethod"
	"github.com/smallbiznis/patronage/internal/plan"
	"github.com/smallbiznis/patronage/internal/providers"
	"github.com/smallbiznis/patronage/internal/ratelimit"
	"github.com/smallbiznis/patronage/internal/recaptcha"
	"github.com/smallbiznis/patronage/internal/spam"
	"github.com/smallbiznis/patronage/internal/subscription"
	"github.com/smallbiznis/patronage/internal/tax"
	"github.com/smallbiznis/patronage/internal/tier"
	"github.com/smallbiznis/patronage/internal/transaction"
	"github.com/smallbiznis/patronage/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "patronage",
		Short:         "Contributions, subscriptions and payouts for open collectives",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(cronCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// infrastructure is shared by every command that touches the database.
func infrastructure() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		observability.FxLogger,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		providers.Module,
	)
}

// domains wires every service the order flow needs.
func domains() fx.Option {
	return fx.Options(
		activity.Module,
		auth.Module,
		authorization.Module,
		collective.Module,
		github.Module,
		order.Module,
		payment.Module,
		paymentmethod.Module,
		plan.Module,
		recaptcha.Module,
		spam.Module,
		subscription.Module,
		tax.Module,
		tier.Module,
		transaction.Module,
	)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
