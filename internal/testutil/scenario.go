package testutil

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario scripts the harness's environment for one run.
type Scenario struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	SessiondDown bool              `yaml:"sessiond_down,omitempty"`
	Session      SessionScript     `yaml:"session,omitempty"`
	Subject      SubjectScript     `yaml:"subject"`
	Sidechannel  SidechannelScript `yaml:"sidechannel"`
	Reader       ReaderScript      `yaml:"reader"`
	Expect       Expectation       `yaml:"expect"`
}

// SessionScript controls the fake tracing service.
type SessionScript struct {
	// FailOn names the lifecycle call that fails.
	FailOn string `yaml:"fail_on,omitempty"`
}

// SubjectScript controls the fake subject.
type SubjectScript struct {
	ExitCode    int    `yaml:"exit_code"`
	TimedOut    bool   `yaml:"timed_out,omitempty"`
	LaunchError string `yaml:"launch_error,omitempty"`
}

// SidechannelScript is the record the fake subject writes on success.
type SidechannelScript struct {
	Width     uint8 `yaml:"width"`
	ParentPID int64 `yaml:"parent_pid"`
	ChildPID  int64 `yaml:"child_pid"`
	Truncate  int   `yaml:"truncate,omitempty"`
}

// ReaderScript controls the fake trace reader.
type ReaderScript struct {
	Tool     string   `yaml:"tool,omitempty"`
	Missing  bool     `yaml:"missing,omitempty"`
	ExitCode int      `yaml:"exit_code"`
	Lines    []string `yaml:"lines"`
}

// Expectation is the outcome a scenario must produce.
type Expectation struct {
	Bailed bool   `yaml:"bailed"`
	Checks []bool `yaml:"checks"`
}

// Lifecycle call names accepted by SessionScript.FailOn.
var lifecycleCalls = map[string]bool{
	"": true, "create": true, "enable": true, "start": true, "stop": true, "destroy": true,
}

// LoadScenario reads a scenario file, rejecting unknown fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if !lifecycleCalls[s.Session.FailOn] {
		return fmt.Errorf("session.fail_on: unknown call %q", s.Session.FailOn)
	}
	if len(s.Expect.Checks) > 6 {
		return fmt.Errorf("expect.checks: at most 6 checks, got %d", len(s.Expect.Checks))
	}
	if s.Reader.Tool == "" {
		s.Reader.Tool = "babeltrace"
	}
	return nil
}
