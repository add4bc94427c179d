// Package canopylog implements canopy's structured logger, adapted from
// the teacher's text/template-based Logger (logger.go): a small level set,
// a pooled buffer, and a user-configurable template that renders either
// plain text or JSON depending on what the format string looks like.
package canopylog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"text/template"
	"time"
)

// Level is the severity of one log line.
type Level uint8

const (
	Debug Level = iota
	Info
	Warn
	Error
	Fatal
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// DefaultFormat is the default text/template source used to render the
// fixed fields of every log line before the message is appended.
const DefaultFormat = `{"app_name":"{{.app_name}}","time_rfc3339":"{{.time_rfc3339}}","level":"{{.level}}","short_file":"{{.short_file}}","line":"{{.line}}"}`

// Logger is canopy's structured logger. It is safe for concurrent use.
type Logger struct {
	AppName string
	Enabled bool
	Output  io.Writer

	template   *template.Template
	bufferPool sync.Pool
	mutex      sync.Mutex
}

// New returns a Logger that renders with format (DefaultFormat if empty),
// writing to os.Stderr by default.
func New(appName, format string) *Logger {
	if format == "" {
		format = DefaultFormat
	}
	return &Logger{
		AppName: appName,
		Enabled: true,
		Output:  os.Stderr,
		template: template.Must(
			template.New("canopylog").Parse(format),
		),
		bufferPool: sync.Pool{
			New: func() any { return bytes.NewBuffer(make([]byte, 0, 256)) },
		},
	}
}

func (l *Logger) Debugf(format string, args ...any) { l.log(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(Info, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(Warn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(Error, format, args...) }

// Fatalf logs at Fatal and terminates the process, matching the teacher's
// Logger.Fatalf.
func (l *Logger) Fatalf(format string, args ...any) {
	l.log(Fatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(lvl Level, format string, args ...any) {
	if !l.Enabled {
		return
	}

	message := fmt.Sprintf(format, args...)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	buf := l.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		l.bufferPool.Put(buf)
	}()

	_, file, line, _ := runtime.Caller(2)
	data := map[string]any{
		"app_name":     l.AppName,
		"time_rfc3339": time.Now().Format(time.RFC3339),
		"level":        lvl.String(),
		"short_file":   path.Base(file),
		"line":         strconv.Itoa(line),
	}

	if err := l.template.Execute(buf, data); err != nil {
		fmt.Fprintf(l.Output, "%s %s\n", lvl, message)
		return
	}

	s := buf.Bytes()
	if len(s) > 0 && s[len(s)-1] == '}' {
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(',')
		b, _ := json.Marshal(message)
		buf.WriteString(`"message":`)
		buf.Write(b)
		buf.WriteByte('}')
	} else {
		buf.WriteByte(' ')
		buf.WriteString(message)
	}
	buf.WriteByte('\n')

	l.Output.Write(buf.Bytes())
}
