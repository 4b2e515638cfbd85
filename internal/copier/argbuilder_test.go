package copier

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"replicurse/internal/types"
)

func TestBuildArgs_GoldenVectors(t *testing.T) {
	tests := []struct {
		name         string
		in           BuildArgsInput
		wantArgs     []string
		wantWarnings []string
	}{
		{
			name: "no custom switches falls back to defaults, mirror mode",
			in: BuildArgsInput{
				SourcePath:      `C:\src`,
				DestinationPath: `C:\dst`,
				LogPath:         `C:\logs\a.log`,
			},
			wantArgs: []string{
				`C:\src`, `C:\dst`, "/mir",
				"/copy:DAT", "/dcopy:DAT",
				"/threads:1", "/retries:0", "/retry_wait:0",
				`/log:C:\logs\a.log`, "/tee", "/no_progress",
				"/no_file_list", "/no_dir_list",
				"/bytes",
			},
		},
		{
			name: "custom switches: managed collisions and unsafe arguments filtered",
			in: BuildArgsInput{
				SourcePath:      `C:\src`,
				DestinationPath: `C:\dst`,
				LogPath:         `C:\logs\a.log`,
				Threads:         8,
				Options: types.CopierOptions{
					CustomSwitches: []string{"/threads:2", "/MIR", "/a+:RAS", "-bad"},
				},
			},
			wantArgs: []string{
				`C:\src`, `C:\dst`, "/mir",
				"/a+:RAS",
				"/threads:8", "/retries:0", "/retry_wait:0",
				`/log:C:\logs\a.log`, "/tee", "/no_progress",
				"/no_file_list", "/no_dir_list",
				"/bytes",
			},
			wantWarnings: []string{`dropping unsafe custom switch "-bad"`},
		},
		{
			name: "chunk switches, preview flag, verbose, gap, exclusions, trailing-backslash log path",
			in: BuildArgsInput{
				SourcePath:       `D:\data`,
				DestinationPath:  `E:\mirror`,
				LogPath:          `D:\logs\`,
				Threads:          4,
				InterPacketGapMS: 250,
				Preview:          true,
				Verbose:          true,
				ChunkSwitches:    []string{"/lev:3", "/badswitch"},
				Options: types.CopierOptions{
					NoMirror:            true,
					SkipJunctions:       true,
					RetryCount:          5,
					RetryWait:           30 * time.Second,
					ExcludeFilePatterns: []string{"*.tmp", "../escape"},
					ExcludeDirPatterns:  []string{"node_modules"},
				},
			},
			wantArgs: []string{
				`D:\data`, `E:\mirror`, "/e",
				"/copy:DAT", "/dcopy:DAT",
				"/threads:4", "/retries:5", "/retry_wait:30",
				`/log:D:\logs\\`, "/tee", "/no_progress",
				"/bytes",
				"/exclude_junction_dirs", "/exclude_junction_files",
				"/ipg:250",
				"/exclude_files", "*.tmp",
				"/exclude_dirs", "node_modules",
				"/lev:3",
				"/list_only",
			},
			wantWarnings: []string{`file pattern "../escape": unsafe argument`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, warnings, err := BuildArgs(tt.in)
			if err != nil {
				t.Fatalf("BuildArgs: %v", err)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantWarnings, warnings); diff != "" {
				t.Errorf("warnings mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildArgs_RejectsUnsafePaths(t *testing.T) {
	_, _, err := BuildArgs(BuildArgsInput{
		SourcePath:      "-weird",
		DestinationPath: `C:\dst`,
		LogPath:         `C:\logs\a.log`,
	})
	if err == nil {
		t.Fatal("expected an error for a source path that looks like a switch")
	}
}
