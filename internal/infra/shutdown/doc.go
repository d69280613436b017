// Package shutdown provides graceful shutdown for the time machine daemon.
//
// A Handler waits for SIGINT, SIGTERM or an explicit Trigger and then runs
// named hooks in reverse registration order under a shared deadline:
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("store", func(context.Context) error { return store.Close() })
//	h.OnShutdown("http", srv.Shutdown)
//	err := h.Wait(ctx) // http stops first, then the store
package shutdown
