// Package process wraps the supervised child process.
//
// A Process is started in a new process group with its stdout and stderr
// connected to pipes it owns:
//
//	p, err := process.Start(process.Spec{
//	    Name: "comfyui",
//	    Path: "/opt/ComfyUI/venv/bin/python",
//	    Args: []string{"-u", "main.py", "--listen"},
//	    Dir:  "/opt/ComfyUI",
//	    Env:  []string{"PYTHONUNBUFFERED=1"},
//	})
//
// Termination comes in three strengths, matching the launcher's shutdown
// escalation:
//
//   - Interrupt: SIGINT to the group (CTRL_BREAK on Windows)
//   - Terminate: SIGTERM to the top-level process (TerminateProcess on Windows)
//   - KillTree:  SIGKILL to the group (taskkill /T /F on Windows)
//
// Process is safe for concurrent use.
package process
