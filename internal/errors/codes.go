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

package errors

// Sentinel codes, grouped by kind, mirroring the error-handling design.
var (
	CodeProtocolMalformed  = CodeError{Kind: KindProtocol, Code: 4000, Message: "malformed socks5 frame"}
	CodeProtocolUnknownVer = CodeError{Kind: KindProtocol, Code: 4001, Message: "unsupported protocol version"}
	CodeProtocolBadATYP    = CodeError{Kind: KindProtocol, Code: 4002, Message: "unknown address type"}
	CodeProtocolBadCmd     = CodeError{Kind: KindProtocol, Code: 4003, Message: "unsupported command"}
	CodeProtocolBadDomain  = CodeError{Kind: KindProtocol, Code: 4004, Message: "invalid domain name"}

	CodeAuthUnsupported = CodeError{Kind: KindAuth, Code: 4010, Message: "no acceptable authentication method"}
	CodeAuthInvalid     = CodeError{Kind: KindAuth, Code: 4011, Message: "invalid credentials"}
	CodeAuthDisabled    = CodeError{Kind: KindAuth, Code: 4012, Message: "user record disabled"}

	CodeAdmissionRateLimited = CodeError{Kind: KindAdmission, Code: 4290, Message: "rate limit exceeded"}
	CodeAdmissionDDoS        = CodeError{Kind: KindAdmission, Code: 4291, Message: "ddos protection triggered"}
	CodeAdmissionBanned      = CodeError{Kind: KindAdmission, Code: 4292, Message: "ip banned"}
	CodeAdmissionNoSlot      = CodeError{Kind: KindAdmission, Code: 4293, Message: "no connection slot available"}
	CodeAdmissionNoMemory    = CodeError{Kind: KindAdmission, Code: 4294, Message: "memory budget exhausted"}

	CodeRoutingBlocked  = CodeError{Kind: KindRouting, Code: 4030, Message: "blocked by routing policy"}
	CodeRoutingRedirect = CodeError{Kind: KindRouting, Code: 4031, Message: "redirect not supported in reference path"}

	CodeUpstreamTimeout    = CodeError{Kind: KindUpstream, Code: 5040, Message: "upstream dial timeout"}
	CodeUpstreamRefused    = CodeError{Kind: KindUpstream, Code: 5041, Message: "upstream connection refused"}
	CodeUpstreamNetUnreach = CodeError{Kind: KindUpstream, Code: 5042, Message: "network unreachable"}
	CodeUpstreamHostUnreach = CodeError{Kind: KindUpstream, Code: 5043, Message: "host unreachable"}
	CodeUpstreamGeneral    = CodeError{Kind: KindUpstream, Code: 5049, Message: "upstream connect failed"}

	CodeRelayIO = CodeError{Kind: KindRelay, Code: 5050, Message: "relay i/o error"}

	CodeConfigInvalid = CodeError{Kind: KindConfig, Code: 5000, Message: "invalid configuration"}
)
