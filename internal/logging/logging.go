/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logging

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DebugEnabledFunc is a function type that determines if debug logging is enabled
// We use a function because we want to check the setting at log time, not when the logger is created
type DebugEnabledFunc func() bool

// DebugCheckFormatter drops debug entries unless debugEnabled reports true
// at the time they are logged.
type DebugCheckFormatter struct {
	formatter    logrus.Formatter
	debugEnabled DebugEnabledFunc
}

// Format implements logrus.Formatter.Format. A dropped entry formats to no
// bytes, which logrus writes as nothing.
func (f *DebugCheckFormatter) Format(e *logrus.Entry) ([]byte, error) {
	if e.Level >= logrus.DebugLevel && (f.debugEnabled == nil || !f.debugEnabled()) {
		return nil, nil
	}
	return f.formatter.Format(e)
}

// NewLogger creates a new logger writing to stderr with dynamic debug checking
func NewLogger(debugEnabled DebugEnabledFunc) *logrus.Logger {
	return newLogger(os.Stderr, debugEnabled)
}

func newLogger(out io.Writer, debugEnabled DebugEnabledFunc) *logrus.Logger {
	l := logrus.New()
	l.Out = out
	// Always use DebugLevel here to allow all messages through
	// Our custom formatter will do the filtering
	l.Level = logrus.DebugLevel
	l.Formatter = &DebugCheckFormatter{
		formatter:    &logrus.TextFormatter{DisableTimestamp: true},
		debugEnabled: debugEnabled,
	}
	return l
}

// Discard returns a logger that writes nothing.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

// LoggerSetterGetter is an interface that can set and get a logger
type LoggerSetterGetter interface {
	// SetLogger sets a new logger
	SetLogger(l *logrus.Logger)
	// Logger returns the current logger
	Logger() logrus.FieldLogger
}

// LogHolder stores a logger that may be replaced while in use.
type LogHolder struct {
	// logger is an atomic.Pointer[logrus.Logger] to store the logger
	// We use atomic.Pointer for thread safety
	logger atomic.Pointer[logrus.Logger]
}

// Logger returns the logger for the LogHolder. If none was set, returns a discarding logger.
func (l *LogHolder) Logger() logrus.FieldLogger {
	if lg := l.logger.Load(); lg != nil {
		return lg
	}
	return Discard()
}

// SetLogger sets the logger for the LogHolder. A nil logger discards logs.
func (l *LogHolder) SetLogger(lg *logrus.Logger) {
	if lg == nil {
		lg = Discard()
	}
	l.logger.Store(lg)
}

// Ensure LogHolder implements LoggerSetterGetter
var _ LoggerSetterGetter = &LogHolder{}
