package task

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PlanFile is the on-disk form of a task list. YAML and JSON are both
// accepted since JSON is a subset of YAML.
type PlanFile struct {
	Description string            `yaml:"description"`
	Context     map[string]string `yaml:"context,omitempty"`
	Tasks       []Task            `yaml:"tasks"`
}

// LoadPlanFile reads a plan file. The file may be either a mapping with a
// "tasks" key or a bare list of tasks.
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlan(data)
}

// ParsePlan decodes plan file contents.
func ParsePlan(data []byte) (*PlanFile, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &PlanFile{}, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}

	var pf PlanFile
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		if err := node.Content[0].Decode(&pf.Tasks); err != nil {
			return nil, fmt.Errorf("failed to decode task list: %w", err)
		}
		return &pf, nil
	}
	if err := node.Decode(&pf); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &pf, nil
}

// LoadResultsFile reads a list of agent results (YAML or JSON).
func LoadResultsFile(path string) ([]Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return ParseResults(data)
}

// resultsFile is the mapping form of a results file, as written by
// "run --json".
type resultsFile struct {
	Results []Result `json:"results" yaml:"results"`
}

// ParseResults decodes either a bare list of results or a mapping with a
// "results" key. JSON input goes through encoding/json so durations written
// as integer nanoseconds decode back into time.Duration.
func ParseResults(data []byte) ([]Result, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if json.Valid(trimmed) {
		if trimmed[0] == '{' {
			var rf resultsFile
			if err := json.Unmarshal(trimmed, &rf); err != nil {
				return nil, fmt.Errorf("failed to parse results: %w", err)
			}
			return rf.Results, nil
		}
		var results []Result
		if err := json.Unmarshal(trimmed, &results); err != nil {
			return nil, fmt.Errorf("failed to parse results: %w", err)
		}
		return results, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.MappingNode {
		var rf resultsFile
		if err := node.Decode(&rf); err != nil {
			return nil, fmt.Errorf("failed to decode results: %w", err)
		}
		return rf.Results, nil
	}
	var results []Result
	if err := node.Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return results, nil
}
