// Package bootstrap provides application initialization and lifecycle management.
// It wires configuration, logging, the detection pipeline and the correlator
// into an App that the CLI commands drive.
//
// Usage:
//
//	cfg, err := bootstrap.InitConfig(configPath)
//	if err != nil {
//	    return err
//	}
//	app, err := bootstrap.NewApp(cfg, bootstrap.LoggerOptions{Console: true})
//	if err != nil {
//	    return err
//	}
//	defer app.Close()
//
//	stats, err := app.RunReplay(ctx, bootstrap.ReplayOptions{Path: "events.jsonl"})
package bootstrap
