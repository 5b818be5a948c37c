package supervisor

import (
	"strings"
	"testing"

	"github.com/kvhost/eeipc/ipc/instrument"
)

func TestParsePID(t *testing.T) {
	cases := map[string]string{
		"a=12345=b": "12345",
		"..=99=..":  "99",
	}
	for line, want := range cases {
		if got := parsePID(line); got != want {
			t.Errorf("parsePID(%q) = %q, want %q", line, got, want)
		}
	}
}

func TestProcessInstrumentedLineRecordsNonzeroErrorSummary(t *testing.T) {
	s := &Supervisor{pid: "42"}
	before := len(instrument.Snapshot())

	s.processInstrumentedLine("==42== ERROR SUMMARY: 3 errors from 3 contexts")
	after := instrument.Snapshot()
	if len(after) != before+1 {
		t.Fatalf("expected one new instrumentation error, got %d new", len(after)-before)
	}
	if !strings.Contains(after[len(after)-1], "ERROR SUMMARY: 3") {
		t.Fatalf("unexpected recorded line: %q", after[len(after)-1])
	}
}

func TestProcessInstrumentedLineIgnoresZeroErrorSummary(t *testing.T) {
	s := &Supervisor{pid: "42"}
	before := len(instrument.Snapshot())

	s.processInstrumentedLine("==42== ERROR SUMMARY: 0 errors from 0 contexts")
	after := instrument.Snapshot()
	if len(after) != before {
		t.Fatalf("expected no new instrumentation error, got %d new", len(after)-before)
	}
}

func TestProcessInstrumentedLineMarksCleanExit(t *testing.T) {
	s := &Supervisor{pid: "42"}
	if s.cleanExit.Load() {
		t.Fatalf("expected cleanExit false initially")
	}
	s.processInstrumentedLine("==42== All heap blocks were freed -- no leaks are possible")
	if !s.cleanExit.Load() {
		t.Fatalf("expected cleanExit true after heap-blocks-freed line")
	}
}

func TestLaunchArgsDirectMode(t *testing.T) {
	s := &Supervisor{cfg: Config{Mode: Direct, Port: 21214, EEPath: "/opt/voltdbipc"}}
	args := s.launchArgs()
	want := []string{"/opt/voltdbipc", "21214"}
	if len(args) != len(want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, args)
		}
	}
}

func TestLaunchArgsInstrumentedModeDefaultPath(t *testing.T) {
	s := &Supervisor{cfg: Config{Mode: Instrumented, Port: 21215, SiteID: 7}}
	args := s.launchArgs()
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "--leak-check=full") {
		t.Fatalf("expected leak-check flag, got %v", args)
	}
	if !strings.Contains(joined, "--quiet") || !strings.Contains(joined, "site_7.log") {
		t.Fatalf("expected default-path quiet+logfile flags, got %v", args)
	}
	if args[len(args)-2] != "./voltdbipc" || args[len(args)-1] != "21215" {
		t.Fatalf("expected trailing [./voltdbipc 21215], got %v", args)
	}
}

func TestLaunchArgsInstrumentedModeExplicitPathStreamsInline(t *testing.T) {
	s := &Supervisor{cfg: Config{Mode: Instrumented, Port: 21216, EEPath: "/opt/voltdbipc"}}
	args := s.launchArgs()
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "--quiet") {
		t.Fatalf("did not expect --quiet when EEPath is explicit, got %v", args)
	}
}

func TestAllocatePortIsMonotonic(t *testing.T) {
	a := AllocatePort()
	b := AllocatePort()
	if b <= a {
		t.Fatalf("expected AllocatePort to be monotonically increasing, got %d then %d", a, b)
	}
}
