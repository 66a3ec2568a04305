package common

import (
	"fmt"
	"strings"

	"ahbverify/internal/ahb"
)

// Err is a library error code.
type Err uint32

const (
	OK                    Err = 0
	ErrFail               Err = 1
	ErrNotInit            Err = 2
	ErrInvalidParamVal    Err = 3
	ErrAttachTooMany      Err = 4
	ErrAttachCompNotFound Err = 5
	ErrInvalidTransfer    Err = 6
	ErrBadBeatSeq         Err = 7
	ErrUnexpectedResp     Err = 8
	ErrIncompleteXfer     Err = 9
	ErrPipelineDiverged   Err = 10
	ErrConfig             Err = 11
	ErrTraceParse         Err = 12
	ErrAborted            Err = 13
	ErrProtocol           Err = 14
	ErrMismatch           Err = 15
	ErrLast               Err = 16
)

// ErrSeverity is the severity of an error, or the verbosity of a log.
type ErrSeverity uint32

const (
	ErrSevNone  ErrSeverity = 0
	ErrSevError ErrSeverity = 1
	ErrSevWarn  ErrSeverity = 2
	ErrSevInfo  ErrSeverity = 3
)

// Error is the component error object: a code, a severity and the cycle
// at which it was raised.
type Error struct {
	Code    Err
	Sev     ErrSeverity
	Cycle   ahb.Cycle
	Message string
}

func NewError(sev ErrSeverity, code Err) *Error {
	return &Error{
		Code:  code,
		Sev:   sev,
		Cycle: ahb.BadCycle,
	}
}

func NewErrorMsg(sev ErrSeverity, code Err, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Cycle:   ahb.BadCycle,
		Message: msg,
	}
}

func NewErrorWithCycleMsg(sev ErrSeverity, code Err, cycle ahb.Cycle, msg string) *Error {
	return &Error{
		Code:    code,
		Sev:     sev,
		Cycle:   cycle,
		Message: msg,
	}
}

// Error implements the standard error interface.
func (e *Error) Error() string {
	var sb strings.Builder

	switch e.Sev {
	case ErrSevError:
		sb.WriteString("ERROR:")
	case ErrSevWarn:
		sb.WriteString("WARN :")
	case ErrSevInfo:
		sb.WriteString("INFO :")
	default:
		return "INTERNAL ERROR: Invalid Error Object"
	}

	sb.WriteString(fmt.Sprintf("0x%04x ", uint32(e.Code)))

	if desc, ok := errorCodeDesc[e.Code]; ok {
		sb.WriteString(fmt.Sprintf("(%s) [%s]; ", desc.name, desc.msg))
	} else {
		sb.WriteString("(unknown); ")
	}

	if e.Cycle != ahb.BadCycle {
		sb.WriteString(fmt.Sprintf("Cycle=%d; ", e.Cycle))
	}

	sb.WriteString(e.Message)
	return sb.String()
}

type errDesc struct {
	name string
	msg  string
}

var errorCodeDesc = map[Err]errDesc{
	OK:                    {"AHB_OK", "No Error."},
	ErrFail:               {"AHB_ERR_FAIL", "General failure."},
	ErrNotInit:            {"AHB_ERR_NOT_INIT", "Component not initialised."},
	ErrInvalidParamVal:    {"AHB_ERR_INVALID_PARAM_VAL", "Invalid value parameter passed to component."},
	ErrAttachTooMany:      {"AHB_ERR_ATTACH_TOO_MANY", "Cannot attach - attach device limit reached."},
	ErrAttachCompNotFound: {"AHB_ERR_ATTACH_COMP_NOT_FOUND", "Cannot detach - component not found."},
	ErrInvalidTransfer:    {"AHB_ERR_INVALID_TRANSFER", "Transfer violates the transaction model."},
	ErrBadBeatSeq:         {"AHB_ERR_BAD_BEAT_SEQ", "Observed beats cannot be attributed to a transfer."},
	ErrUnexpectedResp:     {"AHB_ERR_UNEXPECTED_RESP", "Response seen with no beat in the data phase."},
	ErrIncompleteXfer:     {"AHB_ERR_INCOMPLETE_XFER", "Transfer abandoned before all beats completed."},
	ErrPipelineDiverged:   {"AHB_ERR_PIPELINE_DIVERGED", "Driven and observed pipeline occupancy differ."},
	ErrConfig:             {"AHB_ERR_CONFIG", "Invalid scenario configuration."},
	ErrTraceParse:         {"AHB_ERR_TRACE_PARSE", "Signal trace parse error."},
	ErrAborted:            {"AHB_ERR_ABORTED", "Run aborted before completion."},
	ErrProtocol:           {"AHB_ERR_PROTOCOL", "Bus protocol rule violated."},
	ErrMismatch:           {"AHB_ERR_MISMATCH", "Observed transfer differs from the intended one."},
	ErrLast:               {"AHB_ERR_LAST", "No error - error code end marker"},
}
