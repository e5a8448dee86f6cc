package daemon

// NFS DEADLOCK WARNING:
// When the daemon processes NFS requests, any filesystem access (os.Stat,
// os.ReadFile, os.Open, etc.) to a path served by one of its own mounts will
// deadlock: the access blocks on an NFS reply that the blocked daemon can
// never produce. Seeding is the dangerous case. A seed directory inside a
// mounted target must be rejected before any file in it is touched.

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"

	"flatfs/internal/store"
	"flatfs/internal/util"
	flatfs "flatfs/internal/vfs"
)

func init() {
	// Default logging to discard until explicitly enabled via --logging flag
	logrus.SetOutput(io.Discard)
}

// DefaultShareName is the export name used when a mount request does not
// name the share.
const DefaultShareName = "flatfs"

// mountEntry is one live mount: a file table, the network filesystem server
// exporting it, and the target path where the kernel mounted it.
type mountEntry struct {
	ID     string
	Name   string
	Target string
	Port   int
	fs     *flatfs.FlatFS
	srv    NetFSServer
}

// Daemon serves one network filesystem per mounted table
type Daemon struct {
	ipcServer *Server
	logFile   *os.File
	stopCh    chan struct{}
	wg        sync.WaitGroup
	lock      *flock.Flock

	// Logging configuration
	// LogLevel sets the logging level: trace, debug, info, warn, off (default: off)
	LogLevel string

	// SkipCleanup skips startup cleanup tasks (stale mounts, zombie daemons).
	// Used by integration tests to avoid interfering with parallel test daemons.
	SkipCleanup bool

	// Live mounts keyed by cleaned target path
	mu     sync.Mutex
	mounts map[string]*mountEntry
}

// New creates a new daemon instance
func New() *Daemon {
	return &Daemon{
		stopCh: make(chan struct{}),
		mounts: make(map[string]*mountEntry),
	}
}

// Run starts the daemon and blocks until stopped
func (d *Daemon) Run() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	// Global settings supply the log level when no --logging flag was given
	if d.LogLevel == "" {
		if settings, err := LoadGlobalSettings(); err == nil {
			d.LogLevel = settings.LogLevel
		}
	}

	if !d.SkipCleanup {
		// Clean up stale mounts from previous crashed sessions
		if result, err := CleanupStaleMounts(); err == nil {
			if len(result.StaleMounts) > 0 || result.CleanedPidFile || result.CleanedSocket {
				log.Printf("Startup cleanup: %s", FormatCleanupResult(result))
			}
		}
	}

	// Acquire exclusive lock
	d.lock = flock.New(LockPath())
	locked, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another daemon instance is already running")
	}
	defer d.lock.Unlock()

	// Setup logging based on log level (case insensitive)
	logLevel := strings.ToLower(d.LogLevel)
	if logLevel != "" && logLevel != "none" && logLevel != "off" {
		// Truncate log file if it exceeds 50MB
		if err := d.truncateLogFile(50 * 1024 * 1024); err != nil {
			// Non-fatal, just log to stderr
			fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
		}

		logFile, err := os.OpenFile(LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		d.logFile = logFile
		log.SetOutput(logFile)
		log.SetFlags(log.LstdFlags | log.Lshortfile)

		// Also redirect logrus to the log file
		logrus.SetOutput(logFile)

		// Set logrus level based on LogLevel (case insensitive)
		switch logLevel {
		case "trace":
			logrus.SetLevel(logrus.TraceLevel)
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "info":
			logrus.SetLevel(logrus.InfoLevel)
		case "warn":
			logrus.SetLevel(logrus.WarnLevel)
		default:
			logrus.SetLevel(logrus.DebugLevel)
		}
	} else {
		// Disable logging by sending to /dev/null
		log.SetOutput(io.Discard)
		logrus.SetOutput(io.Discard)
	}

	// Write PID file
	if err := d.writePidFile(); err != nil {
		return err
	}
	defer d.removePidFile()

	log.Printf("Daemon started (PID %d)", os.Getpid())
	logServerType()

	// Start IPC server
	log.Printf("Starting IPC server at %s", SocketPath())
	d.ipcServer = NewServer(d.handleRequest)
	if err := d.ipcServer.Start(); err != nil {
		log.Printf("IPC server failed to start: %v", err)
		return err
	}
	log.Printf("IPC server started successfully")
	defer d.ipcServer.Stop()

	// Watch parent process (test runner) and self-terminate if it dies.
	// When Go's test timeout fires, os.Exit(2) bypasses all defers, leaving
	// daemon processes orphaned. This goroutine detects parent death and
	// triggers graceful shutdown (unmount NFS, cleanup, exit).
	if ppidStr := os.Getenv("FLATFS_PARENT_PID"); ppidStr != "" {
		if ppid, err := strconv.Atoi(ppidStr); err == nil && ppid > 0 {
			go func() {
				ticker := time.NewTicker(500 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-d.stopCh:
						return
					case <-ticker.C:
						// syscall.Kill(pid, 0) checks if process exists without signaling.
						// Returns error when process no longer exists.
						if err := syscall.Kill(ppid, 0); err != nil {
							log.Printf("Parent process (PID %d) died, shutting down to prevent orphan daemon", ppid)
							select {
							case <-d.stopCh:
							default:
								close(d.stopCh)
							}
							return
						}
					}
				}
			}()
			log.Printf("Watching parent process PID %s for orphan prevention", ppidStr)
		}
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case <-d.stopCh:
		log.Printf("Stop requested, shutting down...")
	}

	// Unmount everything before the servers go away
	d.unmountAll()

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("All mount goroutines finished")
	case <-time.After(500 * time.Millisecond):
		log.Printf("Timeout waiting for mount goroutines")
	}

	log.Printf("Daemon stopped")
	return nil
}

// handleRequest processes an IPC request
func (d *Daemon) handleRequest(req *Request) *Response {
	switch req.Type {
	case RequestMount:
		return d.handleMount(req)
	case RequestUnmount:
		return d.handleUnmount(req)
	case RequestStatus:
		return d.handleStatus()
	case RequestStop:
		return d.handleStop()
	case RequestIsMounted:
		return d.handleIsMounted(req)
	case RequestPing:
		return &Response{Success: true, PID: os.Getpid()}
	default:
		return &Response{Success: false, Error: "unknown request type"}
	}
}

// handleMount creates a fresh file table, optionally seeds it, starts a
// network filesystem server for it, and mounts that server at the target
// path. One mount is fully independent of every other.
func (d *Daemon) handleMount(req *Request) *Response {
	log.Printf("handleMount: received request target=%s name=%s seed=%s", req.Target, req.Name, req.Seed)

	if req.Target == "" {
		return &Response{Success: false, Error: "target path is required"}
	}
	target := filepath.Clean(req.Target)

	shareName := req.Name
	if shareName == "" {
		shareName = DefaultShareName
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.mounts[target]; ok {
		log.Printf("handleMount: target already mounted (id=%s)", existing.ID)
		return &Response{Success: false, Error: fmt.Sprintf("already mounted: %s", target)}
	}

	if req.Seed != "" {
		// Reject seed sources inside our own mounts up front; reading them
		// from this process would deadlock (see package comment).
		if err := d.checkSeedPath(req.Seed); err != nil {
			return &Response{Success: false, Error: err.Error()}
		}
	}

	// Ensure the mount point exists and is a plain directory
	if info, err := os.Stat(target); os.IsNotExist(err) {
		if err := os.MkdirAll(target, 0755); err != nil {
			return &Response{Success: false, Error: fmt.Sprintf("failed to create mount point: %v", err)}
		}
	} else if err != nil {
		return &Response{Success: false, Error: fmt.Sprintf("failed to stat mount point: %v", err)}
	} else if !info.IsDir() {
		return &Response{Success: false, Error: fmt.Sprintf("mount point is not a directory: %s", target)}
	}
	if IsMounted(target) {
		return &Response{Success: false, Error: fmt.Sprintf("a filesystem is already mounted at: %s", target)}
	}

	// Capacity limits come from global settings; missing fields fall back
	// to the built-in defaults
	limits := store.DefaultLimits()
	if settings, err := LoadGlobalSettings(); err == nil {
		limits = settings.TableLimits()
	}

	fs, srv, err := createTableAndServer(limits, shareName)
	if err != nil {
		log.Printf("handleMount: failed to create server: %v", err)
		return &Response{Success: false, Error: fmt.Sprintf("failed to create server: %v", err)}
	}

	seeded := 0
	if req.Seed != "" {
		cfg := store.DefaultSeedConfig()
		cfg.AllowPartial = true
		cfg.Filter = BuildFileFilter(req.Seed, !req.NoGitignore, req.Includes, req.Excludes)

		result, err := store.NewSeeder(fs.Table(), cfg).SeedFromDirectory(req.Seed)
		if err != nil {
			fs.Teardown()
			log.Printf("handleMount: seed failed: %v", err)
			return &Response{Success: false, Error: fmt.Sprintf("seed failed: %v", err)}
		}
		seeded = result.CopiedFiles
		log.Printf("handleMount: seeded %d files (%d bytes) from %s in %v",
			result.CopiedFiles, result.CopiedBytes, req.Seed, result.Duration)
		if len(result.SkippedFiles) > 0 {
			log.Printf("handleMount: seed skipped %d entries", len(result.SkippedFiles))
		}
	}

	ip := "127.0.0.1"
	port, err := findAvailablePort()
	if err != nil {
		fs.Teardown()
		return &Response{Success: false, Error: fmt.Sprintf("failed to find available port: %v", err)}
	}

	// Start server in background
	addr := fmt.Sprintf("%s:%d", ip, port)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := srv.Serve(addr); err != nil {
			log.Printf("%s server error for %s: %v", NetFSType(), target, err)
		}
	}()

	// Wait for server to be ready
	if err := waitForPort(ip, port, 3*time.Second); err != nil {
		srv.Shutdown()
		fs.Teardown()
		return &Response{Success: false, Error: fmt.Sprintf("server failed to start: %v", err)}
	}

	// Mount with one fast retry — mount_nfs can transiently fail under
	// parallel test load when multiple daemons mount concurrently on macOS.
	// Keep retry minimal (1 retry, 200ms pause) to stay within the 5s
	// auto-start timeout budget.
	var mountErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			log.Printf("handleMount: mount retry after %v", mountErr)
			time.Sleep(200 * time.Millisecond)
		}
		mountErr = mountNetFS(ip, port, shareName, target)
		if mountErr == nil {
			break
		}
	}
	if mountErr != nil {
		srv.Shutdown()
		fs.Teardown()
		log.Printf("handleMount: mount failed: %v", mountErr)
		return &Response{Success: false, Error: fmt.Sprintf("failed to mount filesystem: %v", mountErr)}
	}

	entry := &mountEntry{
		ID:     uuid.New().String(),
		Name:   shareName,
		Target: target,
		Port:   port,
		fs:     fs,
		srv:    srv,
	}
	d.mounts[target] = entry

	log.Printf("handleMount: success - mounted %s at %s (port %d)", entry.ID, target, port)

	msg := fmt.Sprintf("Mounted at %s", target)
	if req.Seed != "" {
		msg = fmt.Sprintf("Mounted at %s (seeded %d files from %s)", target, seeded, req.Seed)
	}
	return &Response{Success: true, Message: msg}
}

// checkSeedPath rejects seed directories that live under one of our own
// mount targets. Caller holds d.mu.
func (d *Daemon) checkSeedPath(seedDir string) error {
	seed := filepath.Clean(seedDir)
	for target := range d.mounts {
		if seed == target || strings.HasPrefix(seed, target+string(filepath.Separator)) {
			return fmt.Errorf("seed directory %s is inside the mounted path %s", seedDir, target)
		}
	}
	return nil
}

func (d *Daemon) handleUnmount(req *Request) *Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	if req.All {
		targets := make([]string, 0, len(d.mounts))
		for target := range d.mounts {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			d.unmountEntry(d.mounts[target])
		}
		return &Response{Success: true, Message: "All namespaces unmounted"}
	}

	if req.Target == "" {
		return &Response{Success: false, Error: "target path is required"}
	}
	target := filepath.Clean(req.Target)

	entry, ok := d.mounts[target]
	if !ok {
		return &Response{Success: false, Error: fmt.Sprintf("not mounted: %s", target)}
	}

	d.unmountEntry(entry)
	log.Printf("handleUnmount: unmounted %s", target)
	return &Response{Success: true, Message: fmt.Sprintf("Unmounted %s", target)}
}

// unmountEntry takes one mount down and drops it from the registry.
// Caller holds d.mu.
func (d *Daemon) unmountEntry(entry *mountEntry) {
	log.Printf("Unmounting %s (id=%s)", entry.Target, entry.ID)

	// Unmount FIRST while the server is still alive — this is fastest
	// because the kernel NFS client can communicate with the server during
	// unmount. If we shut down the server first, the kernel blocks for
	// seconds trying to reach the dead server.
	if err := Unmount(entry.Target); err != nil {
		log.Printf("unmountEntry: graceful unmount of %s failed: %v", entry.Target, err)
	}

	entry.srv.Shutdown()
	entry.fs.Teardown()
	delete(d.mounts, entry.Target)
}

func (d *Daemon) handleStatus() *Response {
	d.mu.Lock()
	defer d.mu.Unlock()

	mounts := make([]MountStatus, 0, len(d.mounts))
	for _, e := range d.mounts {
		mounts = append(mounts, MountStatus{
			ID:        e.ID,
			Name:      e.Name,
			Target:    e.Target,
			Port:      e.Port,
			Files:     e.fs.FileCount(),
			OpenFiles: e.fs.OpenCount(),
		})
	}
	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Target < mounts[j].Target })

	return &Response{
		Success: true,
		PID:     os.Getpid(),
		Mounts:  mounts,
	}
}

func (d *Daemon) handleStop() *Response {
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	return &Response{Success: true, Message: "Daemon stopping"}
}

func (d *Daemon) handleIsMounted(req *Request) *Response {
	// Get targets (supports both single Target and multiple Targets)
	targets := req.Targets
	if len(targets) == 0 && req.Target != "" {
		targets = []string{req.Target}
	}
	if len(targets) == 0 {
		return &Response{Success: false, Error: "no target paths specified"}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	mountedPaths := make(map[string]bool)
	allMounted := true
	for _, target := range targets {
		_, mounted := d.mounts[filepath.Clean(target)]
		mountedPaths[target] = mounted
		if !mounted {
			allMounted = false
		}
	}
	return &Response{Success: allMounted, MountedPaths: mountedPaths}
}

// unmountAll takes down every mount during shutdown
func (d *Daemon) unmountAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets := make([]string, 0, len(d.mounts))
	for target := range d.mounts {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		d.unmountEntry(d.mounts[target])
	}
}

func (d *Daemon) writePidFile() error {
	data := []byte(strconv.Itoa(os.Getpid()))
	return os.WriteFile(PidPath(), data, 0600)
}

func (d *Daemon) removePidFile() {
	os.Remove(PidPath())
}

// GetPID reads the daemon PID from file
func GetPID() (int, error) {
	data, err := os.ReadFile(PidPath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForPort waits until a port is accepting connections on the given IP
func waitForPort(ip string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(ip, fmt.Sprintf("%d", port))
	if util.WaitWithDeadline(time.Now().Add(timeout), 50*time.Millisecond, func() bool {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return true
		}
		return false
	}) {
		return nil
	}
	return fmt.Errorf("timeout waiting for port %d", port)
}

// truncateLogFile truncates the log file if it exceeds maxSize bytes.
// It keeps the last half of the file content to preserve recent logs.
func (d *Daemon) truncateLogFile(maxSize int64) error {
	logPath := LogPath()

	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil // File doesn't exist, nothing to truncate
	}
	if err != nil {
		return err
	}

	if info.Size() <= maxSize {
		return nil // File is within size limit
	}

	// Read the file
	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}

	// Keep the last half of the content (approximately)
	keepSize := len(data) / 2
	startIdx := len(data) - keepSize

	// Find the next newline to avoid cutting a line in the middle
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}

	// Write truncated content back
	truncatedData := data[startIdx:]
	header := []byte(fmt.Sprintf("--- Log truncated at %s (kept last %d bytes) ---\n",
		time.Now().Format(time.RFC3339), len(truncatedData)))

	return os.WriteFile(logPath, append(header, truncatedData...), 0600)
}
