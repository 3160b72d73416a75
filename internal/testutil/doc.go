// Package testutil provides scripted collaborators for exercising the
// harness without a tracing service, a real subject or a trace reader.
//
// # Scenario Format
//
// A scenario file scripts one environment and the expected outcome:
//
//	name: pid_mismatch
//	description: "after_daemon reports the wrong pid"
//	sessiond_down: false
//	session:
//	  fail_on: ""          # create | enable | start | stop | destroy
//	subject:
//	  exit_code: 0
//	  timed_out: false
//	  launch_error: ""
//	sidechannel:
//	  width: 4
//	  parent_pid: 1000
//	  child_pid: 1001
//	  truncate: 0          # keep only the first N bytes when > 0
//	reader:
//	  tool: babeltrace
//	  missing: false
//	  exit_code: 0
//	  lines:
//	    - "ust_tests_daemon:before_daemon: { pid = 1000 }"
//	expect:
//	  bailed: false
//	  checks: [true, true, true, true, true, false]
//
// Env builds the fakes for a scenario. Golden report transcripts live next
// to the scenarios under testdata/golden and are compared with
// AssertGolden.
package testutil
