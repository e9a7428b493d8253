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

// Package errors provides a coded, traced error hierarchy for the gateway.
//
// A CodeError is a registered (kind, code, message) triple classifying a
// failure into one of the kinds from the error-handling design: protocol,
// auth, admission, routing, upstream, relay or config errors. Its Error
// method mints a *Traced value, which carries the call site (file/line) and
// an optional parent chain, and satisfies the standard error interface so it
// composes with errors.Is / errors.As. The gateway uses these codes to
// classify what it logs; the other internal packages return plain errors.
package errors

import (
	"fmt"
	"runtime"
)

// Kind classifies a CodeError into one of the error-handling design's kinds.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindProtocol
	KindAuth
	KindAdmission
	KindRouting
	KindUpstream
	KindRelay
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	case KindAdmission:
		return "admission"
	case KindRouting:
		return "routing"
	case KindUpstream:
		return "upstream"
	case KindRelay:
		return "relay"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// CodeError is a registered (kind, code, message) triple. Error() mints a
// traced Error instance carrying an optional parent.
type CodeError struct {
	Kind    Kind
	Code    uint16
	Message string
}

// Error mints a traced error from this code, optionally wrapping a parent.
func (c CodeError) Error(parent error) *Traced {
	_, file, line, _ := runtime.Caller(1)
	return &Traced{
		code:   c,
		parent: parent,
		file:   file,
		line:   line,
	}
}

// Traced is the concrete error value returned by CodeError.Error. It embeds
// the call site and the originating parent error (if any).
type Traced struct {
	code   CodeError
	parent error
	file   string
	line   int
}

func (t *Traced) Error() string {
	if t.parent != nil {
		return fmt.Sprintf("[%s:%d] %s: %s", t.file, t.line, t.code.Message, t.parent.Error())
	}
	return fmt.Sprintf("[%s:%d] %s", t.file, t.line, t.code.Message)
}

// Unwrap exposes the parent so errors.Is / errors.As can walk the chain.
func (t *Traced) Unwrap() error {
	return t.parent
}

// Kind reports the classification of this error.
func (t *Traced) Kind() Kind {
	return t.code.Kind
}

// Code reports the numeric code of this error.
func (t *Traced) Code() uint16 {
	return t.code.Code
}

// File reports the source file this error was minted from.
func (t *Traced) File() string {
	return t.file
}

// Line reports the source line this error was minted from.
func (t *Traced) Line() int {
	return t.line
}

// Is reports whether target is a *Traced error with the same code,
// allowing callers to write `errors.Is(err, CodeProtocolMalformed.Error(nil))`.
func (t *Traced) Is(target error) bool {
	if o, ok := target.(*Traced); ok {
		return o.code.Code == t.code.Code
	}
	return false
}
