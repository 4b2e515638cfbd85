package app

import (
	"fmt"
	"time"

	"replicurse/internal/health"
)

// PrintStatus reads the health-status file from the OS temp directory and
// pretty-prints it, giving an operator a quick read on an in-progress or
// just-finished run without a GUI.
func PrintStatus(maxAge time.Duration) error {
	reporter := health.NewReporter(0, nil)
	status, err := reporter.ReadStatus(maxAge)
	if err != nil {
		return fmt.Errorf("read health document: %w", err)
	}

	profileName := "-"
	if status.CurrentProfile != nil {
		profileName = *status.CurrentProfile
	}
	eta := "-"
	if status.EtaSeconds != nil {
		eta = (time.Duration(*status.EtaSeconds) * time.Second).String()
	}

	fmt.Printf("Session:   %s\n", status.SessionID)
	fmt.Printf("Phase:     %s\n", status.Phase)
	fmt.Printf("Profile:   %s (%d/%d)\n", profileName, status.ProfileIndex+1, status.ProfileCount)
	fmt.Printf("Chunks:    %d complete, %d pending, %d failed (of %d)\n",
		status.ChunksCompleted, status.ChunksPending, status.ChunksFailed, status.ChunksTotal)
	fmt.Printf("Active:    %d jobs\n", status.ActiveJobs)
	fmt.Printf("Bytes:     %d\n", status.BytesCompleted)
	fmt.Printf("ETA:       %s\n", eta)
	fmt.Printf("Healthy:   %v\n", status.Healthy)
	if status.IsStale {
		fmt.Println("warning: health document is stale")
	}
	if status.Message != "" {
		fmt.Printf("Message:   %s\n", status.Message)
	}
	return nil
}
