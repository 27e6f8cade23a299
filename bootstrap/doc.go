// Package bootstrap provides application initialization and lifecycle management.
// It wires the logger, configuration, database connection and HTTP layer
// together and keeps main.go small.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx, bootstrap.WithControllers(myController))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Shutdown()
//
//	if err := app.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Wait for shutdown signal
//	if err := app.WaitForShutdown(ctx); err != nil {
//	    log.Fatal(err)
//	}
package bootstrap
