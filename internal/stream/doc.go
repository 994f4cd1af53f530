// Package stream turns a child process's output into classified events.
//
// Every line read from the child becomes an Event with a Severity. The
// severity comes from Classify:
//
//	[ERROR] disk full     (stdout) -> ERROR, marker wins
//	loading model         (stderr) -> ERROR, stderr default
//	[WARNING] low vram    (stderr) -> WARN, marker wins
//	starting server       (stdout) -> INFO
//
// A Router reads stdout and stderr on separate goroutines and forwards the
// events to an Emitter:
//
//	r := stream.NewRouter(sink, stream.WithRunID(id))
//	_ = r.Run(proc.Stdout(), proc.Stderr())
//	<-r.Done()
package stream
