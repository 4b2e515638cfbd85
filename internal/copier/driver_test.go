package copier

import (
	"testing"

	"replicurse/internal/types"
)

func TestClassify_BitmaskMatrix(t *testing.T) {
	tests := []struct {
		name          string
		exitCode      int
		mismatch      types.MismatchSeverity
		wantSeverity  types.Severity
		wantRetryable bool
	}{
		{"no changes needed", 0, types.MismatchSuccess, types.SeveritySuccess, false},
		{"files copied", bitFilesCopied, types.MismatchSuccess, types.SeveritySuccess, false},
		{"extras only", bitExtras, types.MismatchSuccess, types.SeveritySuccess, false},
		{"mismatch default success", bitMismatch, types.MismatchSuccess, types.SeveritySuccess, false},
		{"mismatch warning", bitMismatch, types.MismatchWarning, types.SeverityWarning, false},
		{"mismatch as error", bitMismatch, types.MismatchError, types.SeverityError, true},
		{"copy errors", bitCopyErrors, types.MismatchSuccess, types.SeverityError, true},
		{"fatal without copy errors", bitFatal, types.MismatchSuccess, types.SeverityFatal, false},
		{"fatal with copy errors", bitFatal | bitCopyErrors, types.MismatchSuccess, types.SeverityFatal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			severity, retryable, msg := Classify(tt.exitCode, tt.mismatch)
			if severity != tt.wantSeverity {
				t.Errorf("severity = %v, want %v", severity, tt.wantSeverity)
			}
			if retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", retryable, tt.wantRetryable)
			}
			if msg == "" {
				t.Error("expected a non-empty message")
			}
		})
	}
}

func TestClassify_TransientFailureThenSuccess(t *testing.T) {
	severity, retryable, _ := Classify(8, types.MismatchSuccess)
	if severity != types.SeverityError || !retryable {
		t.Fatalf("exit code 8 should be a retryable error, got severity=%v retryable=%v", severity, retryable)
	}

	severity, retryable, _ = Classify(1, types.MismatchSuccess)
	if severity != types.SeveritySuccess || retryable {
		t.Fatalf("exit code 1 should be a non-retryable success, got severity=%v retryable=%v", severity, retryable)
	}
}

func TestClassify_PermanentFatalFailure(t *testing.T) {
	severity, retryable, _ := Classify(16, types.MismatchSuccess)
	if severity != types.SeverityFatal {
		t.Fatalf("exit code 16 should be fatal, got %v", severity)
	}
	if retryable {
		t.Fatal("pure fatal (no copy-error bit) should not be retryable")
	}
}

func TestBuildResult_CombinesClassificationAndParse(t *testing.T) {
	chunk := &types.Chunk{ID: 7}
	parsed := ParseResult{FilesCopied: 10, BytesCopied: 1024, ParseWarning: "test warning"}

	result := BuildResult(chunk, 1, types.MismatchSuccess, parsed)

	if result.Severity != types.SeveritySuccess {
		t.Fatalf("severity = %v", result.Severity)
	}
	if result.FilesCopied != 10 || result.BytesCopied != 1024 {
		t.Fatalf("stats not carried through: %+v", result)
	}
	if result.ParseWarning != "test warning" {
		t.Fatalf("parse warning not carried through: %+v", result)
	}
}
