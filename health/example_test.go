package health_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/qazuor/qzpay-resilience/health"
)

func ExampleRegistry() {
	reg := health.NewRegistry()
	reg.Register(health.NewCheckerFunc("database", func(ctx context.Context) health.Result {
		return health.Up("database", "")
	}))
	reg.Register(health.NewPingChecker("redis", func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	agg := reg.Aggregate(context.Background())
	fmt.Println("Status:", agg.Status)
	fmt.Println("Message:", agg.Message)
	// Output:
	// Status: degraded
	// Message: 1 of 2 subsystems down
}

func ExampleFold() {
	agg := health.Fold([]health.Result{
		health.Up("database", ""),
		health.Up("redis", ""),
	})
	fmt.Println(agg.Status, agg.Healthy)
	// Output:
	// up true
}
