package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// WriteEvent captures one register store for post-mortem analysis
type WriteEvent struct {
	Bus   string // Register file name (gpio, clock, pwm, spi0)
	Index int    // Word index within the register file
	Value uint32 // Value stored
}

const (
	WriteRingSize = 32 // Keep last 32 stores for post-mortem
)

var (
	// debugPrintln is the global debug print function (can be set by the host program)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	debugEnabled bool = false

	// Register store ring buffer
	ringMu        sync.Mutex
	writeRing     [WriteRingSize]WriteEvent
	writeRingHead int
	writeRingUsed int
	traceEnabled  bool = false

	// Queue drained by the async writer goroutine
	asyncOnce    sync.Once
	debugChan    chan string
	asyncDropped atomic.Int64
)

// AsyncDebugDepth is the number of messages DebugAsync can queue before it
// starts dropping them.
const AsyncDebugDepth = 64

// SetDebugWriter sets the debug output function.
// The CLI points this at stderr or at syslog.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the goroutine that hands queued messages to the
// writer. Call it from main after SetDebugWriter and before any controller
// is used. Later calls do nothing.
func InitAsyncDebug() {
	asyncOnce.Do(func() {
		ch := make(chan string, AsyncDebugDepth)
		go func() {
			for msg := range ch {
				if w := debugPrintln; w != nil {
					w(msg)
				}
			}
		}()
		debugChan = ch
	})
}

// DebugPrintln writes a debug message using the configured writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// Debugf formats and writes a debug message
func Debugf(format string, args ...interface{}) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(fmt.Sprintf(format, args...))
	}
}

// DebugAsync queues msg for the async writer and never blocks. Register
// paths that hold a map lock report through here so a slow writer cannot
// stretch the critical section. A full queue drops the message. Without
// InitAsyncDebug the message is written synchronously.
func DebugAsync(msg string) {
	if !debugEnabled {
		return
	}
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
		asyncDropped.Add(1)
	}
}

// DebugAsyncf formats and queues a debug message
func DebugAsyncf(format string, args ...interface{}) {
	if debugEnabled {
		DebugAsync(fmt.Sprintf(format, args...))
	}
}

// DroppedDebug returns how many async messages were lost to a full queue
func DroppedDebug() int64 {
	return asyncDropped.Load()
}

// SetTraceEnabled turns register store capture on or off
func SetTraceEnabled(enabled bool) {
	ringMu.Lock()
	traceEnabled = enabled
	ringMu.Unlock()
}

// RecordWrite captures a register store in the ring buffer
func RecordWrite(bus string, index int, value uint32) {
	ringMu.Lock()
	defer ringMu.Unlock()
	if !traceEnabled {
		return
	}
	writeRing[writeRingHead] = WriteEvent{Bus: bus, Index: index, Value: value}
	writeRingHead = (writeRingHead + 1) % WriteRingSize
	if writeRingUsed < WriteRingSize {
		writeRingUsed++
	}
}

// RecentWrites returns the captured stores, oldest first
func RecentWrites() []WriteEvent {
	ringMu.Lock()
	defer ringMu.Unlock()
	out := make([]WriteEvent, 0, writeRingUsed)
	start := (writeRingHead - writeRingUsed + WriteRingSize) % WriteRingSize
	for i := 0; i < writeRingUsed; i++ {
		out = append(out, writeRing[(start+i)%WriteRingSize])
	}
	return out
}

// DumpWriteRing outputs the store ring through the debug writer
func DumpWriteRing() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Register Store Dump ===")
	for _, evt := range RecentWrites() {
		debugPrintln(fmt.Sprintf("[TRACE] %-5s [%2d] = %032b", evt.Bus, evt.Index, evt.Value))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearWriteRing clears the store buffer
func ClearWriteRing() {
	ringMu.Lock()
	defer ringMu.Unlock()
	for i := range writeRing {
		writeRing[i] = WriteEvent{}
	}
	writeRingHead = 0
	writeRingUsed = 0
}
