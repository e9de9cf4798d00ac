// Package infty provides durable multi-role orchestration for long-running
// AI coding runs.
//
// A run binds a solver, a director, and a pool of verifiers under a single
// run directory. The orchestrator drives them through a structured loop: the
// solver works and emits JSON envelopes, the director answers direction
// requests, and verifiers fan out over verification requests until the run
// ends with a verified deliverable under the run store.
//
// # Quick Start
//
//	orch := infty.NewOrchestrator(
//	    infty.WithBackend(llm.NewAnthropic()),
//	    infty.WithRunsRoot("/var/lib/infty"),
//	)
//
//	params := infty.RunParams{
//	    RunID:    "demo",
//	    Solver:   infty.NewRoleConfig("solver", infty.Config{}),
//	    Director: infty.NewRoleConfig("director", infty.Config{}),
//	    Verifiers: []infty.RoleConfig{
//	        infty.NewRoleConfig("verifier-alpha", infty.Config{}),
//	    },
//	}
//
//	options := infty.DefaultRunExecutionOptions()
//	options.Objective = "Write hello.txt containing 'hi'"
//
//	outcome, err := orch.ExecuteNewRun(ctx, params, options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(outcome.DeliverablePath)
//
// Conversations are registered in a CrossSessionHub addressable by
// (run, role). Turns are posted through the hub and awaited with an idle
// timeout that resets on every event belonging to the turn's submission.
// Runs are executed once and are not resumable.
package infty
