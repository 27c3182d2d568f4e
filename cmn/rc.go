// Package cmn provides shared constants, the return-code enum, and the
// global configuration snapshot used across the placement and RPC cores.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "fmt"

// RC is the flat return-code enumeration from spec.md §6: callers branch
// on the code, never on an error's formatted message.
type RC int

const (
	SUCCESS RC = iota
	NO_CHANGE_IN_DATA

	// transport
	CONNECTION_ERROR
	SEND_ERROR
	RECV_ERROR
	SHUTDOWN_ERROR
	SOCKET_ERROR

	// protocol
	VERSION_MISMATCH
	INCOMPLETE_PACKET
	AUTH_INVALID
	RECV_TIMEOUT

	// controller-scoped remaps of the transport group
	CONTROLLER_CONNECTION_ERROR
	CONTROLLER_SEND_ERROR
	CONTROLLER_RECV_ERROR
	CONTROLLER_SHUTDOWN_ERROR

	// scheduler
	ALREADY_DONE
	INVALID_JOB_ID
	TRANSITION_STATE_NO_UPDATE
	JOB_PENDING
	IN_STANDBY_MODE
	DISABLED

	// placement
	NO_FIT
	ERROR
)

func (rc RC) String() string {
	switch rc {
	case SUCCESS:
		return "success"
	case NO_CHANGE_IN_DATA:
		return "no-change-in-data"
	case CONNECTION_ERROR:
		return "connection-error"
	case SEND_ERROR:
		return "send-error"
	case RECV_ERROR:
		return "recv-error"
	case SHUTDOWN_ERROR:
		return "shutdown-error"
	case SOCKET_ERROR:
		return "socket-error"
	case VERSION_MISMATCH:
		return "version-mismatch"
	case INCOMPLETE_PACKET:
		return "incomplete-packet"
	case AUTH_INVALID:
		return "auth-invalid"
	case RECV_TIMEOUT:
		return "recv-timeout"
	case CONTROLLER_CONNECTION_ERROR:
		return "controller-connection-error"
	case CONTROLLER_SEND_ERROR:
		return "controller-send-error"
	case CONTROLLER_RECV_ERROR:
		return "controller-recv-error"
	case CONTROLLER_SHUTDOWN_ERROR:
		return "controller-shutdown-error"
	case ALREADY_DONE:
		return "already-done"
	case INVALID_JOB_ID:
		return "invalid-job-id"
	case TRANSITION_STATE_NO_UPDATE:
		return "transition-state-no-update"
	case JOB_PENDING:
		return "job-pending"
	case IN_STANDBY_MODE:
		return "in-standby-mode"
	case DISABLED:
		return "disabled"
	case NO_FIT:
		return "no-fit"
	case ERROR:
		return "error"
	default:
		return "unknown-rc"
	}
}

// Retriable reports whether rc is one of the two transient scheduler codes
// eligible for bounded retry per spec.md §5 ("Cancellation and timeouts").
func (rc RC) Retriable() bool {
	return rc == TRANSITION_STATE_NO_UPDATE || rc == JOB_PENDING
}

// Terminal reports whether rc is reported tersely and never retried.
func (rc RC) Terminal() bool {
	return rc == ALREADY_DONE || rc == INVALID_JOB_ID
}

// Err pairs an RC with a human-readable one-liner (spec.md §7:
// "short one-liners identifying job id and failing field").
type Err struct {
	Code RC
	Msg  string
}

func NewErr(code RC, format string, a ...any) *Err {
	return &Err{Code: code, Msg: fmt.Sprintf(format, a...)}
}

func (e *Err) Error() string { return e.Msg }
func (e *Err) RC() RC        { return e.Code }

// ToRC extracts an RC from any error that implements `RC() RC`, defaulting
// to ERROR for opaque errors.
func ToRC(err error) RC {
	if err == nil {
		return SUCCESS
	}
	type rcer interface{ RC() RC }
	if e, ok := err.(rcer); ok {
		return e.RC()
	}
	return ERROR
}
