// Package lib provides a Go SDK for coordinating simulation operations
// programmatically.
//
// This package allows applications to submit, control and query operations
// without shelling out to the simops CLI binary. Because process handles are
// transient and never persisted, signal control (pause, resume, cancel) only
// works from the Client that spawned the operation: a resident host
// application keeps one Client alive for the lifetime of its operations.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	op, err := client.Submit(ctx, lib.SubmitOpts{
//	    Name: "paste-28d",
//	    Type: lib.OperationTypeHydration,
//	    Parameters: map[string]any{
//	        "binder": map[string]any{"w_c_ratio": 0.45},
//	        "curing": map[string]any{"days": 28},
//	    },
//	})
//
//	client.Pause(ctx, "paste-28d")
//	client.Resume(ctx, "paste-28d")
//	client.Cancel(ctx, "paste-28d", true)
//
// # Backends
//
//   - [BackendExec]: simulation programs run as local OS processes (default).
//   - [BackendDocker]: simulation images run as containers.
//   - [BackendFake]: scripted in-memory processes for unit testing, no real
//     programs needed.
//
// # Errors
//
// Failures wrap the package sentinels so callers can branch with errors.Is:
//
//   - [ErrNotFound]: operation does not exist.
//   - [ErrAlreadyExists]: operation name or process already taken.
//   - [ErrNotValid]: invalid request for the operation's current state.
//   - [ErrNotRunning]: no live process handle for the operation.
package lib
