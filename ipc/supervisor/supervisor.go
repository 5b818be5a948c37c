// Package supervisor owns the lifecycle of the out-of-process
// Execution Engine: choosing a mode to launch it in, reading its
// stdout for the PID/handshake protocol and memory-checker diagnostics,
// and awaiting/killing the child on shutdown.
package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/kvhost/eeipc/ipc/elog"
	"github.com/kvhost/eeipc/ipc/instrument"
)

var log = logger.GetLogger(elog.Supervisor)

// nextPort is the process-wide monotonically increasing port counter,
// shared by every Supervisor in this process, starting at the EE's
// conventional base port.
var nextPort uint64 = 21213

// AllocatePort returns the next port in the process-wide sequence.
func AllocatePort() int {
	return int(atomic.AddUint64(&nextPort, 1))
}

// Mode selects how the EE process is obtained.
type Mode int

const (
	// External means the driver does not start the EE itself; the
	// operator is expected to have started it (or it is already
	// running) on Port.
	External Mode = iota
	// Direct spawns the EE binary directly with the port as its sole
	// argument.
	Direct
	// Instrumented spawns the EE binary wrapped in a memory checker
	// (Valgrind-compatible invocation).
	Instrumented
)

// Config describes how to obtain a running EE process.
type Config struct {
	Mode Mode
	// Port to connect to (External mode) or to pass to the child
	// (Direct/Instrumented modes). If zero in Direct/Instrumented
	// mode, AllocatePort() is used.
	Port int
	// EEPath is the absolute path to the EE binary. Defaults to
	// "./voltdbipc" when empty, mirroring VOLTDBIPC_PATH's default.
	EEPath string
	// SiteID is used to name the memory checker's log file when
	// EEPath is unset (matching the default memory-checker invocation
	// which redirects to a per-site log instead of streaming inline).
	SiteID int
}

// Supervisor manages one EE child process (or, in External mode, just
// the agreed-upon port).
type Supervisor struct {
	cfg Config
	cmd *exec.Cmd
	pid string

	readerDone chan struct{}
	cleanExit  atomic.Bool
}

// Start launches or attaches to the EE according to cfg.Mode. In Direct
// and Instrumented modes it blocks until the readiness handshake
// ("listening") is observed on the child's stdout, or returns an error
// if the process exits or closes stdout first; in External mode it
// returns immediately.
func Start(cfg Config) (*Supervisor, error) {
	s := &Supervisor{cfg: cfg}

	if cfg.Mode == External {
		log.Infof("external EE expected on port %d", cfg.Port)
		return s, nil
	}

	if s.cfg.Port == 0 {
		s.cfg.Port = AllocatePort()
	}

	args := s.launchArgs()
	name := args[0]
	cmd := exec.Command(name, args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout // inherit stderr onto stdout, per the combined-output contract

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start %s: %w", name, err)
	}
	s.cmd = cmd
	log.Infof("started EE process pid=%d on port %d", cmd.Process.Pid, s.cfg.Port)

	ready := make(chan error, 1)
	s.readerDone = make(chan struct{})
	go s.readOutput(stdout, ready)

	if err := <-ready; err != nil {
		s.Kill()
		return nil, err
	}
	return s, nil
}

// launchArgs builds the argv for Direct or Instrumented mode.
func (s *Supervisor) launchArgs() []string {
	eePath := s.cfg.EEPath
	if eePath == "" {
		eePath = "./voltdbipc"
	}
	port := strconv.Itoa(s.cfg.Port)

	if s.cfg.Mode == Direct {
		return []string{eePath, port}
	}

	args := []string{
		"valgrind",
		"--leak-check=full",
		"--show-reachable=yes",
		"--num-callers=32",
		"--error-exitcode=-1",
	}
	if s.cfg.EEPath == "" {
		args = append(args, "--quiet", fmt.Sprintf("--log-file=site_%d.log", s.cfg.SiteID))
	}
	args = append(args, eePath, port)
	return args
}

// readOutput reads the EE's combined stdout/stderr: first the PID
// handshake line, then subsequent lines until one containing
// "listening" is seen (readiness), continuing afterwards for the
// lifetime of the child to feed memory-checker diagnostics into the
// process-wide instrumentation error list.
func (s *Supervisor) readOutput(r io.Reader, ready chan<- error) {
	defer close(s.readerDone)
	scanner := bufio.NewScanner(r)

	if !scanner.Scan() {
		ready <- fmt.Errorf("supervisor: EE closed stdout before emitting a PID line")
		return
	}
	pidLine := scanner.Text()
	s.pid = parsePID(pidLine)
	log.Infof("EE PID string %q -> pid=%s", pidLine, s.pid)

	readyClosed := false
	for scanner.Scan() {
		line := scanner.Text()
		log.Infof("[ipc=%s]:::%s", s.pid, line)

		if !readyClosed && strings.Contains(line, "listening") {
			readyClosed = true
			ready <- nil
			continue
		}

		if strings.HasPrefix(line, "=="+s.pid+"==") {
			s.processInstrumentedLine(line)
		}
	}

	if !readyClosed {
		ready <- fmt.Errorf("supervisor: EE closed stdout before emitting the listening handshake")
		return
	}

	if !s.cleanExit.Load() {
		instrument.Append("Not all heap blocks were freed")
	}
}

// parsePID extracts the process id from a PID line of the form
// "..=<pid>=..", taking the substring between the first run of '='
// characters and the next '='. A line with no '=' yields "".
func parsePID(line string) string {
	start := strings.Index(line, "=")
	if start < 0 {
		return ""
	}
	rest := strings.TrimLeft(line[start:], "=")
	if idx := strings.Index(rest, "="); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

const errorSummaryPrefix = "ERROR SUMMARY: "
const heapBlocksFreedMarker = "All heap blocks were freed"

// processInstrumentedLine parses one memory-checker diagnostic line,
// appending it to the process-wide instrumentation error list when it
// reports a nonzero error count, and marking a clean exit when it
// confirms every heap block was freed.
func (s *Supervisor) processInstrumentedLine(line string) {
	if idx := strings.Index(line, errorSummaryPrefix); idx >= 0 {
		numStart := idx + len(errorSummaryPrefix)
		if numStart < len(line) && line[numStart] != '0' {
			instrument.Append(line)
		}
		return
	}
	if strings.Contains(line, heapBlocksFreedMarker) {
		s.cleanExit.Store(true)
	}
}

// Port returns the port the transport should dial.
func (s *Supervisor) Port() int {
	return s.cfg.Port
}

// Kill terminates the child process immediately. Start and driver.Open
// call it when startup fails partway through; no process-exit or signal
// hook calls it.
func (s *Supervisor) Kill() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// Shutdown closes out a supervised child: awaits process exit and joins
// the stdout reader. Safe to call on an External-mode Supervisor (a
// no-op). Callers close the transport socket first — that's the actual
// EE shutdown signal — then call Shutdown to reap the process.
func (s *Supervisor) Shutdown() error {
	if s.cfg.Mode == External || s.cmd == nil {
		return nil
	}
	err := s.cmd.Wait()
	<-s.readerDone
	if err != nil {
		log.Warningf("EE process exited with error: %v", err)
	}
	return nil
}
