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
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug entries follow the switch at log time", func(t *testing.T) {
		debug := false
		buf := &bytes.Buffer{}
		logger := newLogger(buf, func() bool { return debug })

		logger.Debug("hidden")
		assert.Empty(t, buf.String())

		debug = true
		logger.WithField("path", "mychart-0.1.0.tgz").Debug("shown")
		assert.Contains(t, buf.String(), `msg=shown path=mychart-0.1.0.tgz`)
	})

	t.Run("other levels are always written without timestamps", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := newLogger(buf, nil)

		logger.Warn("careful")
		logger.Debug("hidden")
		assert.Equal(t, "level=warning msg=careful\n", buf.String())
	})
}

func TestLogHolder_Logger(t *testing.T) {
	t.Run("should return new logger with a then set logger", func(t *testing.T) {
		holder := &LogHolder{}
		buf := &bytes.Buffer{}

		holder.SetLogger(newLogger(buf, nil))
		logger := holder.Logger()

		assert.NotNil(t, logger)

		// Test that the logger works
		logger.Info("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("should return discard logger when none is set", func(t *testing.T) {
		holder := &LogHolder{}
		logger := holder.Logger()

		assert.Equal(t, io.Discard, logger.(*logrus.Logger).Out)
	})
}

func TestLogHolder_SetLogger(t *testing.T) {
	t.Run("sets discard logger with nil logger", func(t *testing.T) {
		holder := &LogHolder{}

		holder.SetLogger(nil)
		logger := holder.Logger()

		assert.NotNil(t, logger)
		assert.Equal(t, io.Discard, logger.(*logrus.Logger).Out)
	})

	t.Run("can replace existing logger", func(t *testing.T) {
		holder := &LogHolder{}

		first := newLogger(&bytes.Buffer{}, nil)
		holder.SetLogger(first)
		assert.Same(t, first, holder.Logger())

		second := newLogger(&bytes.Buffer{}, nil)
		holder.SetLogger(second)
		assert.Same(t, second, holder.Logger())
	})
}
