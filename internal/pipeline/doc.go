// Package pipeline exposes the six fanout operations behind one Service:
// dependency graph construction, parallelizability analysis, batch
// optimization, coordinated execution, conflict detection and progress
// aggregation.
//
// Every operation validates its input before doing any work, runs inside
// a stage span, logs with a stage-scoped logger and records an operation
// metric. Input problems come back as *errors.ValidationError naming the
// offending field; domain outcomes such as failed tasks or detected
// conflicts are part of the returned result.
//
// # Usage
//
//	svc, _ := pipeline.New(pipeline.Config{Executor: sim},
//	    pipeline.WithLogger(logger),
//	    pipeline.WithRecorder(recorder),
//	)
//	verdict, _ := svc.AnalyzeParallelizability(ctx, "checkout", tasks, nil)
//	if verdict.Parallelizable {
//	    res, _ := svc.CoordinateExecution(ctx, coordinator.PlanFromAnalysis(verdict),
//	        coordinator.StrategyConservative, 4, coordinator.Constraints{})
//	}
package pipeline
