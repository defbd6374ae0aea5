// Package main запускает терминальный монитор заказов, который опрашивает сервер
// с фиксированным интервалом. Пустая строка на stdin запрашивает немедленное обновление.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tobikorais/Mealy/internal/client"
	"github.com/Tobikorais/Mealy/internal/model"
	"github.com/Tobikorais/Mealy/internal/poller"
)

func main() {
	server := flag.String("server", "localhost:8080", "server address")
	user := flag.String("user", "admin", "username")
	password := flag.String("password", "admin", "password")
	customer := flag.String("customer", "", "show only orders of this customer")
	interval := flag.Duration("interval", poller.DefaultInterval, "polling interval")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	sugar := logger.Sugar()

	c, err := client.New(*server)
	if err != nil {
		sugar.Fatalw("client initialization error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	role, err := c.Login(ctx, *user, *password, "")
	if err != nil {
		sugar.Fatalw("login failed", "error", err.Error())
	}

	name := *customer
	if name == "" && role != model.RoleAdmin {
		name = *user
	}

	coord := &poller.Coordinator[[]model.Order]{
		Interval: *interval,
		Logger:   logger,
		Fetch: func(ctx context.Context) ([]model.Order, error) {
			if name == "" {
				return c.ListOrders(ctx)
			}
			return c.ListOrdersByCustomer(ctx, name)
		},
		OnUpdate: printOrders,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coord.Run(ctx)
		return nil
	})

	// Ручное обновление по вводу. Горутина чтения stdin не отменяется и завершается вместе с процессом.
	lines := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- struct{}{}
		}
	}()

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-lines:
				if err := coord.Refresh(ctx); err != nil {
					sugar.Warnw("refresh failed", "error", err.Error())
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("watcher terminated with error", "error", err)
	}
}

func printOrders(orders []model.Order) {
	fmt.Printf("\n%s: %d orders\n", time.Now().Format(time.TimeOnly), len(orders))

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tMEAL\tPRICE\tTIME\tSTATUS")
	for _, o := range orders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", o.ID, o.CustomerName, o.Meal, o.Price.StringFixed(2), o.Time, o.Status)
	}
	tw.Flush()
}
