/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package logger provides the structured logging facade used throughout the
// gateway. It wraps logrus the way the upstream golib logger package wraps
// its own backend: callers depend on the Logger interface, never on logrus
// directly, so the backend can be swapped without touching call sites.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// FuncLog returns a Logger instance; used for lazy, dependency-injected
// construction the way golib's FuncLog type is used across its components.
type FuncLog func() Logger

// Logger is the logging facade. Never pass raw credentials through data —
// the auth store must log usernames only, never passwords (see the
// password-hashing design note).
type Logger interface {
	Debug(message string, data interface{}, args ...interface{})
	Info(message string, data interface{}, args ...interface{})
	Warn(message string, data interface{}, args ...interface{})
	Error(message string, data interface{}, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger

	SetLevel(level string)
	SetOutput(w io.Writer)
}

type logger struct {
	entry *logrus.Entry
}

// New builds a Logger backed by logrus, writing to stderr by default with a
// text formatter (matching the teacher's default console hook behavior).
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logger{entry: logrus.NewEntry(l)}
}

func (l *logger) log(level logrus.Level, message string, data interface{}, args ...interface{}) {
	e := l.entry
	if data != nil {
		e = e.WithField("data", data)
	}
	e.Logf(level, message, args...)
}

func (l *logger) Debug(message string, data interface{}, args ...interface{}) {
	l.log(logrus.DebugLevel, message, data, args...)
}

func (l *logger) Info(message string, data interface{}, args ...interface{}) {
	l.log(logrus.InfoLevel, message, data, args...)
}

func (l *logger) Warn(message string, data interface{}, args ...interface{}) {
	l.log(logrus.WarnLevel, message, data, args...)
}

func (l *logger) Error(message string, data interface{}, args ...interface{}) {
	l.log(logrus.ErrorLevel, message, data, args...)
}

func (l *logger) WithField(key string, value interface{}) Logger {
	return &logger{entry: l.entry.WithField(key, value)}
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	return &logger{entry: l.entry.WithFields(fields)}
}

func (l *logger) SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.entry.Logger.SetLevel(lvl)
}

func (l *logger) SetOutput(w io.Writer) {
	l.entry.Logger.SetOutput(w)
}
