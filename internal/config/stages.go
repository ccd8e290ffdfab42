package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseStages parses a stage list such as "30s:10,1m:10,10s:0", where
// each item is a duration and the user count to reach by its end.
func ParseStages(s string) ([]Stage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var stages []Stage
	for i, item := range strings.Split(s, ",") {
		durStr, targetStr, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok {
			return nil, fmt.Errorf("stage %d: want duration:target, got %q", i+1, item)
		}

		dur, err := time.ParseDuration(strings.TrimSpace(durStr))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration: %w", i+1, err)
		}
		if dur <= 0 {
			return nil, fmt.Errorf("stage %d: duration must be greater than 0", i+1)
		}

		target, err := strconv.Atoi(strings.TrimSpace(targetStr))
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target: %w", i+1, err)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %d: target cannot be negative", i+1)
		}

		stages = append(stages, Stage{Duration: Duration(dur), Target: target})
	}
	return stages, nil
}

// TotalDuration sums the stage durations.
func TotalDuration(stages []Stage) time.Duration {
	var total time.Duration
	for _, s := range stages {
		total += s.Duration.Std()
	}
	return total
}
