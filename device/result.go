// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"fmt"
)

// Result is a native API result code. Values match VkResult.
type Result int32

// Native result codes
const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	EventSet                  Result = 3
	EventReset                Result = 4
	Incomplete                Result = 5
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorMemoryMapFailed      Result = -5
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorTooManyObjects       Result = -10
	ErrorFormatNotSupported   Result = -11
	ErrorSurfaceLost          Result = -1000000000
	Suboptimal                Result = 1000001003
	ErrorOutOfDate            Result = -1000001004
)

var resultNames = map[Result]string{
	Success:                   "Success",
	NotReady:                  "NotReady",
	Timeout:                   "Timeout",
	EventSet:                  "EventSet",
	EventReset:                "EventReset",
	Incomplete:                "Incomplete",
	ErrorOutOfHostMemory:      "ErrorOutOfHostMemory",
	ErrorOutOfDeviceMemory:    "ErrorOutOfDeviceMemory",
	ErrorInitializationFailed: "ErrorInitializationFailed",
	ErrorDeviceLost:           "ErrorDeviceLost",
	ErrorMemoryMapFailed:      "ErrorMemoryMapFailed",
	ErrorLayerNotPresent:      "ErrorLayerNotPresent",
	ErrorExtensionNotPresent:  "ErrorExtensionNotPresent",
	ErrorFeatureNotPresent:    "ErrorFeatureNotPresent",
	ErrorIncompatibleDriver:   "ErrorIncompatibleDriver",
	ErrorTooManyObjects:       "ErrorTooManyObjects",
	ErrorFormatNotSupported:   "ErrorFormatNotSupported",
	ErrorSurfaceLost:          "ErrorSurfaceLost",
	Suboptimal:                "Suboptimal",
	ErrorOutOfDate:            "ErrorOutOfDate",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Result(%d)", int32(r))
}

// Failed reports whether r is a native failure code.
// Positive codes are statuses, not failures.
func (r Result) Failed() bool {
	return r < 0
}

// Error is a failed native call, together with the result
// code it returned.
type Error struct {
	Op     string
	Result Result
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(): %s", e.Op, e.Result)
}

// Check converts a failed Result into an *Error named after op.
// Statuses (Success, Suboptimal, Timeout and the like) return nil.
func Check(op string, r Result) error {
	if !r.Failed() {
		return nil
	}
	return &Error{Op: op, Result: r}
}
