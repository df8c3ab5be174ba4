package crash

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"tg-amnesia/internal/logger"
)

// RecoverWithStack recovers a panic and logs its stack. The caller keeps running.
func RecoverWithStack(moduleName string) {
	if r := recover(); r != nil {
		report(moduleName, r, "PANIC")
	}
}

// RecoverWithStackAndExit is meant for main: it logs the panic and exits non-zero.
func RecoverWithStackAndExit(moduleName string) {
	if r := recover(); r != nil {
		report(moduleName, r, "FATAL PANIC")

		// give the logger time to flush to disk
		logger.Sync()
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
}

// SafeGoroutine starts fn in a goroutine that recovers panics
func SafeGoroutine(name string, fn func()) {
	go func() {
		defer RecoverWithStack(fmt.Sprintf("goroutine-%s", name))
		fn()
	}()
}

// SetupCrashHandler turns unexpected memory faults into panics the recover helpers can log
func SetupCrashHandler() {
	debug.SetPanicOnFault(true)
}

func report(moduleName string, r interface{}, tag string) {
	stack := debug.Stack()

	logger.Errorf("%s in %s: %v", tag, moduleName, r)
	logger.Errorf("Stack trace:\n%s", string(stack))

	// also write to stderr so container logs show it
	fmt.Fprintf(os.Stderr, "[%s] %s - %s: %v\n", tag, time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
	fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

	logRuntimeInfo()
}

// logRuntimeInfo logs goroutine and heap figures next to a crash
func logRuntimeInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	logger.Errorf("runtime: go=%s cpus=%d goroutines=%d heap_alloc_kb=%d heap_inuse_kb=%d num_gc=%d",
		runtime.Version(),
		runtime.NumCPU(),
		runtime.NumGoroutine(),
		m.HeapAlloc/1024,
		m.HeapInuse/1024,
		m.NumGC,
	)
}
